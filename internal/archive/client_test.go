package archive

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archivehq/evm-processor/internal/query"
)

func TestQuerySendsSquidIDHeaderAndDecodesResponse(t *testing.T) {
	t.Parallel()

	var gotSquidID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSquidID = r.Header.Get("x-squid-id")
		assert.Equal(t, "/query", r.URL.Path)
		w.Header().Set("content-type", "application/json")
		_ = json.NewEncoder(w).Encode(QueryResponse{Status: "ok", NextBlock: 11, ArchiveHeight: 10})
	}))
	defer srv.Close()

	c := New(srv.URL, "my-squid-id")
	resp, err := c.Query(context.Background(), query.Document{FromBlock: 0, ToBlock: 10})
	require.NoError(t, err)
	assert.Equal(t, "my-squid-id", gotSquidID)
	assert.Equal(t, uint64(11), resp.NextBlock)
	assert.Equal(t, int64(10), resp.ArchiveHeight)
}

func TestQueryRetriesOnServiceUnavailableThenSucceeds(t *testing.T) {
	t.Parallel()

	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(QueryResponse{Status: "ok", NextBlock: 1, ArchiveHeight: 1})
	}))
	defer srv.Close()

	c := New(srv.URL, "squid")
	resp, err := c.Query(context.Background(), query.Document{})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	assert.Equal(t, uint64(1), resp.NextBlock)
}

func TestQueryFailsPermanentlyOnBadRequest(t *testing.T) {
	t.Parallel()

	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad filter"))
	}))
	defer srv.Close()

	c := New(srv.URL, "squid")
	_, err := c.Query(context.Background(), query.Document{})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestQueryArchiveErrorsEnvelopeIsFatal(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(QueryResponse{
			Errors: []ErrorDetail{{Message: "unsupported filter"}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "squid")
	_, err := c.Query(context.Background(), query.Document{})
	require.Error(t, err)
	var archiveErr *ArchiveError
	require.ErrorAs(t, err, &archiveErr)
	assert.Equal(t, "unsupported filter", archiveErr.Messages[0])
}

func TestGetHeightMapsZeroToMinusOne(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/status", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"parquetBlockNumber": 0,
			"dbMaxBlockNumber":   0,
			"dbMinBlockNumber":   0,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "squid")
	h, err := c.GetHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(-1), h)
}

func TestGetHeightPrefersDBMaxWhenParquetAheadOfMin(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"parquetBlockNumber": 1000,
			"dbMaxBlockNumber":   1200,
			"dbMinBlockNumber":   500,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "squid")
	h, err := c.GetHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1200), h)
}

func TestWithRetryObserverIsInvokedOnRetry(t *testing.T) {
	t.Parallel()

	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(QueryResponse{NextBlock: 1})
	}))
	defer srv.Close()

	var observed int32
	c := New(srv.URL, "squid", WithRetryObserver(func(err error, req *query.Document, consecutive int, backoffMs int64) {
		atomic.AddInt32(&observed, 1)
	}))

	_, err := c.Query(context.Background(), query.Document{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&observed))
}
