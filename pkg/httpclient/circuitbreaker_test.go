package httpclient

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig("elasticsearch-test")
	cfg.MinRequests = 2
	cfg.Timeout = 50 * time.Millisecond
	return cfg
}

func newTransport() *BreakerTransport {
	return NewCircuitBreakerTransport(nil, testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func get(t *testing.T, client *http.Client, url string) (*http.Response, error) {
	t.Helper()
	resp, err := client.Get(url)
	if resp != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	return resp, err
}

func TestBreakerTransport_PassesThroughSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := newTransport()
	resp, err := get(t, &http.Client{Transport: tr}, srv.URL)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, gobreaker.StateClosed, tr.State())
}

func TestBreakerTransport_ServerErrorsTripButAreReturned(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	tr := newTransport()
	client := &http.Client{Transport: tr}

	for i := 0; i < 2; i++ {
		resp, err := get(t, client, srv.URL)
		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	}
	assert.Equal(t, gobreaker.StateOpen, tr.State())

	_, err := get(t, client, srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), hits.Load())
}

func TestBreakerTransport_ClientErrorsDoNotTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	tr := newTransport()
	client := &http.Client{Transport: tr}
	for i := 0; i < 5; i++ {
		resp, err := get(t, client, srv.URL)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	}
	assert.Equal(t, gobreaker.StateClosed, tr.State())
}

func TestBreakerTransport_RecoversAfterTimeout(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := newTransport()
	client := &http.Client{Transport: tr}
	for i := 0; i < 2; i++ {
		_, _ = get(t, client, srv.URL)
	}
	require.Equal(t, gobreaker.StateOpen, tr.State())

	failing.Store(false)
	time.Sleep(80 * time.Millisecond)

	resp, err := get(t, client, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, gobreaker.StateClosed, tr.State())
}
