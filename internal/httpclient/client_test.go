package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testURL = "https://db.example.test/rest/v1/orders"

func newMockClient(t *testing.T, cfg Config) (*Client, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	cfg.Transport = transport
	client := New(&cfg)
	t.Cleanup(client.Close)
	return client, transport
}

func TestNew(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		client := New(nil)
		assert.Equal(t, DefaultTimeout, client.defaultTimeout)
		assert.Equal(t, defaultUserAgent, client.userAgent)
	})

	t.Run("custom config", func(t *testing.T) {
		client := New(&Config{DefaultTimeout: 5 * time.Second, UserAgent: "migrate-test/1.0"})
		assert.Equal(t, 5*time.Second, client.defaultTimeout)
		assert.Equal(t, "migrate-test/1.0", client.userAgent)
	})

	t.Run("config not mutated", func(t *testing.T) {
		cfg := Config{}
		_ = New(&cfg)
		assert.Zero(t, cfg.DefaultTimeout)
		assert.Empty(t, cfg.UserAgent)
	})
}

func TestHead_SendsHeadersAndUserAgent(t *testing.T) {
	client, transport := newMockClient(t, Config{UserAgent: "migrate-test/2.0"})

	transport.RegisterResponder(http.MethodHead, testURL,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "migrate-test/2.0", req.Header.Get("User-Agent"))
			assert.Equal(t, "count=exact", req.Header.Get("Prefer"))
			return httpmock.NewStringResponse(http.StatusOK, ""), nil
		})

	resp, err := client.Head(t.Context(), testURL, http.Header{"Prefer": {"count=exact"}})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func TestDo_CanceledContext(t *testing.T) {
	client, transport := newMockClient(t, Config{})
	transport.RegisterResponder(http.MethodHead, testURL,
		func(req *http.Request) (*http.Response, error) {
			<-req.Context().Done()
			return nil, req.Context().Err()
		})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	resp, err := client.Head(ctx, testURL, nil)
	if resp != nil {
		resp.Body.Close()
	}
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_DefaultTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	client := New(&Config{DefaultTimeout: 50 * time.Millisecond})
	t.Cleanup(client.Close)

	resp, err := client.Head(t.Context(), server.URL, nil)
	if resp != nil {
		resp.Body.Close()
	}
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDo_AfterResponseHook(t *testing.T) {
	client, transport := newMockClient(t, Config{})
	transport.RegisterResponder(http.MethodHead, testURL, httpmock.NewStringResponder(http.StatusNoContent, ""))

	var (
		called   bool
		status   int
		hookErr  error
		observed time.Duration
	)
	client.SetAfterResponseHook(func(_ *http.Request, resp *http.Response, err error, elapsed time.Duration) {
		called = true
		hookErr = err
		observed = elapsed
		if resp != nil {
			status = resp.StatusCode
		}
	})

	resp, err := client.Head(t.Context(), testURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.True(t, called)
	assert.NoError(t, hookErr)
	assert.Equal(t, http.StatusNoContent, status)
	assert.GreaterOrEqual(t, observed, time.Duration(0))
}

func TestDo_NilRequest(t *testing.T) {
	client := New(nil)
	t.Cleanup(client.Close)

	resp, err := client.Do(t.Context(), nil)
	assert.Nil(t, resp)
	require.Error(t, err)
}

func TestClose_Idempotent(t *testing.T) {
	client := New(nil)
	client.Close()
	client.Close()
}
