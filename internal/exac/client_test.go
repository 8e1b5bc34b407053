package exac

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const variantJSON = `{
	"any_covered": true,
	"consequence": {"missense_variant": {"ENSG00000187634": [{"SYMBOL": "SAMD11", "Feature": "ENST00000342066"}]}},
	"variant": {"variant_id": "1-931393-G-T", "rsid": ".", "allele_count": 5, "allele_num": 1000, "hom_count": 1, "allele_freq": 0.005}
}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL + "/")
	c.SetRetries(3)
	c.SetBackoff(time.Millisecond, 2*time.Millisecond)
	return c
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("")
	assert.Equal(t, DefaultBaseURL, c.BaseURL())
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)
	assert.Equal(t, DefaultRetries, c.attempts)

	c.SetTimeout(5 * time.Second)
	assert.Equal(t, 5*time.Second, c.httpClient.Timeout)

	c.SetRetries(0)
	assert.Equal(t, 1, c.attempts)
}

func TestClient_SingleAttempt(t *testing.T) {
	var requests int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		http.Error(w, "down", http.StatusBadGateway)
	})
	c.SetRetries(1)

	_, err := c.Lookup(context.Background(), "1-1-A-C")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestClient_RetryStopsOnCancel(t *testing.T) {
	var requests int32
	ctx, cancel := context.WithCancel(context.Background())
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		cancel()
		http.Error(w, "down", http.StatusServiceUnavailable)
	})
	c.SetRetries(5)
	c.SetBackoff(time.Second, time.Second)

	_, err := c.Lookup(ctx, "1-1-A-C")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestClient_Lookup(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		switch r.URL.Path {
		case "/rest/variant/1-931393-G-T":
			io.WriteString(w, variantJSON)
		case "/rest/variant/1-1-A-C":
			io.WriteString(w, "null")
		default:
			http.NotFound(w, r)
		}
	})

	ann, err := c.Lookup(context.Background(), "1-931393-G-T")
	require.NoError(t, err)
	require.NotNil(t, ann)
	assert.True(t, ann.Found())
	assert.Equal(t, 5, ann.Variant.AlleleCount)
	assert.Equal(t, "missense_variant", ann.ReportFields()[0])

	ann, err = c.Lookup(context.Background(), "1-1-A-C")
	require.NoError(t, err)
	assert.Nil(t, ann)

	ann, err = c.Lookup(context.Background(), "9-9-A-C")
	require.NoError(t, err)
	assert.Nil(t, ann)
}

func TestClient_BulkLookup(t *testing.T) {
	var requests int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/bulk/variant", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var keys []string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&keys))
		assert.Equal(t, []string{"1-931393-G-T", "1-6475586-TC-GA", "1-6475586-TC-G"}, keys)

		io.WriteString(w, `{"1-931393-G-T": `+variantJSON+`, "1-6475586-TC-GA": null}`)
	})

	anns, err := c.BulkLookup(context.Background(), []string{"1-931393-G-T", "1-6475586-TC-GA", "1-6475586-TC-G"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))

	require.NotNil(t, anns["1-931393-G-T"])
	assert.Equal(t, 1000, anns["1-931393-G-T"].Variant.AlleleNum)
	assert.Nil(t, anns["1-6475586-TC-GA"])
	_, present := anns["1-6475586-TC-G"]
	assert.False(t, present)
}

func TestClient_BulkLookup_NoKeys(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL)
	})
	anns, err := c.BulkLookup(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, anns)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var requests int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) < 3 {
			http.Error(w, "try later", http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `{}`)
	})

	anns, err := c.BulkLookup(context.Background(), []string{"1-1-A-C"})
	require.NoError(t, err)
	assert.Empty(t, anns)
	assert.Equal(t, int32(3), atomic.LoadInt32(&requests))
}

func TestClient_GivesUpAfterRetries(t *testing.T) {
	var requests int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := c.Lookup(context.Background(), "1-1-A-C")
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&requests))

	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusInternalServerError, serr.StatusCode)
	assert.Equal(t, "boom", serr.Body)
}

func TestClient_ClientErrorsNotRetried(t *testing.T) {
	var requests int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		http.Error(w, "bad query", http.StatusBadRequest)
	})

	_, err := c.BulkLookup(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))

	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusBadRequest, serr.StatusCode)
	assert.Equal(t, "bad query", serr.Body)
}

func TestClient_MalformedBody(t *testing.T) {
	var requests int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		io.WriteString(w, `{"1-1-A-C": [`)
	})

	_, err := c.BulkLookup(context.Background(), []string{"1-1-A-C"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestClient_ContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, variantJSON)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Lookup(ctx, "1-931393-G-T")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStatusError(t *testing.T) {
	assert.True(t, (&StatusError{StatusCode: 502}).Temporary())
	assert.True(t, (&StatusError{StatusCode: 429}).Temporary())
	assert.False(t, (&StatusError{StatusCode: 400}).Temporary())
	assert.Equal(t, "exac: http://x returned HTTP 400", (&StatusError{StatusCode: 400, URL: "http://x"}).Error())
}
