package pricesource

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	// Effectively unlimited rate so tests don't sleep.
	return New(Config{BaseURL: srv.URL, RequestsPerMinute: 600000}, zap.NewNop())
}

func TestFetch_OK(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "fpi-bank", r.URL.Query().Get("ids"))
		assert.Equal(t, "rub", r.URL.Query().Get("vs_currencies"))
		w.Write([]byte(`{"fpi-bank":{"rub":12.34}}`))
	})

	price, err := c.Fetch(context.Background(), "fpi-bank", "rub")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("12.34")), "price = %s", price)
}

func TestFetch_RateLimitedNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Fetch(context.Background(), "fpi-bank", "rub")
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindRateLimited, fe.Kind)
	assert.True(t, fe.Retryable())
	assert.Equal(t, int32(1), calls.Load(), "429 must not be retried in-call")
}

func TestFetch_MissingQuoteIsNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	_, err := c.Fetch(context.Background(), "no-such-coin", "rub")
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindNotFound, fe.Kind)
	assert.False(t, fe.Retryable())
}

func TestFetch_BadJSONIsMalformed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json</html>`))
	})

	_, err := c.Fetch(context.Background(), "fpi-bank", "rub")
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindMalformed, fe.Kind)
}

func TestFetch_ServerErrorRetriedThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"fpi-bank":{"rub":10}}`))
	})

	price, err := c.Fetch(context.Background(), "fpi-bank", "rub")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetch_TransportErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close() // every request now fails at the transport

	c := New(Config{BaseURL: url, RequestsPerMinute: 600000}, zap.NewNop())
	_, err := c.Fetch(context.Background(), "fpi-bank", "rub")
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindTransient, fe.Kind)
	assert.True(t, fe.Retryable())
}

func TestFetchMany_OneRequestForManyCoins(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "fpi-bank,bitcoin", r.URL.Query().Get("ids"))
		assert.Equal(t, "rub", r.URL.Query().Get("vs_currencies"))
		w.Write([]byte(`{"fpi-bank":{"rub":12.34},"bitcoin":{"rub":5000000}}`))
	})

	prices, err := c.FetchMany(context.Background(), "rub", []string{"fpi-bank", "bitcoin"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load(), "a batch must be a single request")
	require.Len(t, prices, 2)
	assert.True(t, prices["fpi-bank"].Equal(decimal.RequireFromString("12.34")))
	assert.True(t, prices["bitcoin"].Equal(decimal.NewFromInt(5000000)))
}

func TestFetchMany_MissingCoinOmitted(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"fpi-bank":{"rub":10}}`))
	})

	prices, err := c.FetchMany(context.Background(), "rub", []string{"fpi-bank", "no-such-coin"})
	require.NoError(t, err)
	require.Len(t, prices, 1)
	_, ok := prices["no-such-coin"]
	assert.False(t, ok)
}

func TestFetchMany_EmptyCoinList(t *testing.T) {
	c := New(Config{BaseURL: "http://unused"}, zap.NewNop())
	_, err := c.FetchMany(context.Background(), "rub", nil)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindMalformed, fe.Kind)
}

func TestCachedPrice_ServedFromCache(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"fpi-bank":{"rub":10}}`))
	})

	_, err := c.Fetch(context.Background(), "fpi-bank", "rub")
	require.NoError(t, err)

	price, err := c.CachedPrice(context.Background(), "fpi-bank", "rub")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, int32(1), calls.Load(), "cached read must not hit the API")
}

func TestCachedPrice_BatchFillsCache(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"fpi-bank":{"rub":10},"bitcoin":{"rub":20}}`))
	})

	_, err := c.FetchMany(context.Background(), "rub", []string{"fpi-bank", "bitcoin"})
	require.NoError(t, err)

	price, err := c.CachedPrice(context.Background(), "bitcoin", "rub")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, int32(1), calls.Load(), "cached read must not hit the API")
}

func TestFetch_EmptyCoinID(t *testing.T) {
	c := New(Config{BaseURL: "http://unused"}, zap.NewNop())
	_, err := c.Fetch(context.Background(), "", "rub")
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindMalformed, fe.Kind)
}
