package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/archivehq/evm-processor/internal/model"
)

func TestObserveFetchIncrementsCountersAndHistogram(t *testing.T) {
	m := New("test_observe_fetch", "ingest")

	m.ObserveFetch(model.NewRange(0, 10), 5, 200*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.BatchesFetched))
	assert.Equal(t, float64(5), testutil.ToFloat64(m.BlocksFetched))
}

func TestObserveArchiveHeightSetsGauge(t *testing.T) {
	m := New("test_observe_height", "ingest")

	m.ObserveArchiveHeight(12345)
	assert.Equal(t, float64(12345), testutil.ToFloat64(m.ArchiveHeight))
}

func TestObserveBatchAndHandlerLatency(t *testing.T) {
	m := New("test_observe_batch", "ingest")

	m.ObserveBatch(model.NewRange(0, 1), 1)
	m.ObserveHandlerLatency(time.Second)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.BatchesDelivered))
}

func TestNewDefaultsNamespaceAndSubsystem(t *testing.T) {
	m := New("", "")
	m.ObserveHeightWait(model.NewRange(0, 1))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HeightWaitsTotal))
}
