package planner

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archivehq/evm-processor/internal/model"
)

func TestBuildEmpty(t *testing.T) {
	t.Parallel()
	assert.Nil(t, Build(nil))
}

func TestBuildSingleRegistration(t *testing.T) {
	t.Parallel()

	plan := Build([]Registration{
		{Range: model.NewRange(10, 20), Request: model.Request{IncludeAllBlocks: true}},
	})

	require.Len(t, plan, 1)
	assert.Equal(t, uint64(10), plan[0].Range.From)
	assert.Equal(t, uint64(20), plan[0].Range.End())
	assert.True(t, plan[0].Request.IncludeAllBlocks)
}

func TestBuildMergesOverlappingRanges(t *testing.T) {
	t.Parallel()

	addrA := common.HexToAddress("0x1")
	addrB := common.HexToAddress("0x2")

	plan := Build([]Registration{
		{Range: model.NewRange(0, 100), Request: model.Request{Logs: []model.LogClause{{Address: []common.Address{addrA}}}}},
		{Range: model.NewRange(50, 150), Request: model.Request{Logs: []model.LogClause{{Address: []common.Address{addrB}}}}},
	})

	require.Len(t, plan, 3)

	assert.Equal(t, model.Range{From: 0, To: ptr(49)}, plan[0].Range)
	require.Len(t, plan[0].Request.Logs, 1)
	assert.Equal(t, addrA, plan[0].Request.Logs[0].Address[0])

	assert.Equal(t, model.Range{From: 50, To: ptr(100)}, plan[1].Range)
	require.Len(t, plan[1].Request.Logs, 2)
	assert.Equal(t, addrA, plan[1].Request.Logs[0].Address[0])
	assert.Equal(t, addrB, plan[1].Request.Logs[1].Address[0])

	assert.Equal(t, model.Range{From: 101, To: ptr(150)}, plan[2].Range)
	require.Len(t, plan[2].Request.Logs, 1)
	assert.Equal(t, addrB, plan[2].Request.Logs[0].Address[0])
}

func TestBuildOpenEndedTail(t *testing.T) {
	t.Parallel()

	plan := Build([]Registration{
		{Range: model.NewRange(0, 99)},
		{Range: model.OpenRange(50)},
	})

	require.Len(t, plan, 3)
	assert.Equal(t, model.Range{From: 0, To: ptr(49)}, plan[0].Range)
	assert.Equal(t, model.Range{From: 50, To: ptr(99)}, plan[1].Range)
	assert.Equal(t, uint64(100), plan[2].Range.From)
	assert.Nil(t, plan[2].Range.To)
}

func TestBuildGapBetweenRegistrations(t *testing.T) {
	t.Parallel()

	plan := Build([]Registration{
		{Range: model.NewRange(0, 9)},
		{Range: model.NewRange(20, 29)},
	})

	require.Len(t, plan, 2)
	assert.Equal(t, model.Range{From: 0, To: ptr(9)}, plan[0].Range)
	assert.Equal(t, model.Range{From: 20, To: ptr(29)}, plan[1].Range)
}

func ptr(v uint64) *uint64 { return &v }
