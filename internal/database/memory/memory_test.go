package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archivehq/evm-processor/internal/processor"
)

func TestNewStartsAtMinusOne(t *testing.T) {
	t.Parallel()

	db := New()
	height, err := db.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(-1), height)
}

func TestAdvancePersistsHeight(t *testing.T) {
	t.Parallel()

	db := New()
	require.NoError(t, db.Advance(context.Background(), 42))

	height, err := db.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), height)
}

func TestTransactRecordsCallsAndPropagatesHandlerError(t *testing.T) {
	t.Parallel()

	db := New()
	boom := errors.New("boom")

	err := db.Transact(context.Background(), 10, 20, func(store processor.Store) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.Len(t, db.TransactCalls, 1)
	assert.Equal(t, TransactCall{From: 10, To: 20}, db.TransactCalls[0])
}
