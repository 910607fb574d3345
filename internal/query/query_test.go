package query

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archivehq/evm-processor/internal/model"
)

func TestEncodeClampsToArchiveHeight(t *testing.T) {
	t.Parallel()

	doc, err := Encode(model.Batch{Range: model.NewRange(100, 200)}, 150)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), doc.FromBlock)
	assert.Equal(t, uint64(150), doc.ToBlock)
}

func TestEncodeUnboundedArchiveHeightUsesRangeEnd(t *testing.T) {
	t.Parallel()

	doc, err := Encode(model.Batch{Range: model.NewRange(100, 200)}, -1)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), doc.ToBlock)
}

func TestEncodeFromExceedsToIsError(t *testing.T) {
	t.Parallel()

	_, err := Encode(model.Batch{Range: model.NewRange(100, 200)}, 50)
	assert.Error(t, err)
}

func TestEncodeLogClauseAddressLowercased(t *testing.T) {
	t.Parallel()

	addr := common.HexToAddress("0xABCDEF0000000000000000000000000000001234")
	doc, err := Encode(model.Batch{
		Range: model.NewRange(0, 10),
		Request: model.Request{
			Logs: []model.LogClause{{Address: []common.Address{addr}}},
		},
	}, -1)
	require.NoError(t, err)
	require.Len(t, doc.Logs, 1)
	require.Len(t, doc.Logs[0].Address, 1)
	assert.Equal(t, strings.ToLower(addr.Hex()), doc.Logs[0].Address[0])
	require.NotNil(t, doc.Logs[0].FieldSelection.Log)
}

func TestEncodeNilAddressMeansAny(t *testing.T) {
	t.Parallel()

	doc, err := Encode(model.Batch{
		Range:   model.NewRange(0, 10),
		Request: model.Request{Logs: []model.LogClause{{}}},
	}, -1)
	require.NoError(t, err)
	require.Len(t, doc.Logs, 1)
	assert.Nil(t, doc.Logs[0].Address)
}

func TestEncodeLogWithTransactionJoinIncludesTxFields(t *testing.T) {
	t.Parallel()

	doc, err := Encode(model.Batch{
		Range: model.NewRange(0, 10),
		Request: model.Request{
			Logs: []model.LogClause{{FieldSelection: model.FieldSelection{Log: model.LogFieldSelection{Transaction: true}}}},
		},
	}, -1)
	require.NoError(t, err)
	require.NotNil(t, doc.Logs[0].FieldSelection.Transaction)
}

func TestEncodeTransactionClauseOmitsLogFields(t *testing.T) {
	t.Parallel()

	doc, err := Encode(model.Batch{
		Range:   model.NewRange(0, 10),
		Request: model.Request{Transactions: []model.TxClause{{}}},
	}, -1)
	require.NoError(t, err)
	require.Len(t, doc.Transactions, 1)
	assert.Nil(t, doc.Transactions[0].FieldSelection.Log)
	assert.NotNil(t, doc.Transactions[0].FieldSelection.Transaction)
}
