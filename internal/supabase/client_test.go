package supabase

import (
	"context"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casebridge/dispatch-migrate/internal/conf"
	"github.com/casebridge/dispatch-migrate/internal/errors"
)

const (
	testProject = "https://abcd.supabase.test"
	testKey     = "service-role-key"
)

func newMockClient(t *testing.T) (*Client, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	client, err := New(conf.SupabaseSettings{URL: testProject + "/", ServiceKey: testKey}, WithTransport(transport))
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client, transport
}

func countResponder(t *testing.T, contentRange string) httpmock.Responder {
	t.Helper()
	return func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, testKey, req.Header.Get("apikey"))
		assert.Equal(t, "Bearer "+testKey, req.Header.Get("Authorization"))
		assert.Equal(t, "count=exact", req.Header.Get("Prefer"))
		resp := httpmock.NewStringResponse(http.StatusOK, "")
		resp.Header.Set("Content-Range", contentRange)
		return resp, nil
	}
}

func TestNew_RequiresSettings(t *testing.T) {
	tests := []struct {
		name     string
		settings conf.SupabaseSettings
	}{
		{"missing url", conf.SupabaseSettings{ServiceKey: testKey}},
		{"missing key", conf.SupabaseSettings{URL: testProject}},
		{"relative url", conf.SupabaseSettings{URL: "abcd.supabase.test", ServiceKey: testKey}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.settings)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
		})
	}
}

func TestCount(t *testing.T) {
	client, transport := newMockClient(t)
	transport.RegisterResponder(http.MethodHead, testProject+"/rest/v1/orders", countResponder(t, "0-24/3573"))

	n, err := client.Count(t.Context(), "orders")
	require.NoError(t, err)
	assert.Equal(t, int64(3573), n)
	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func TestCountNotNull_FiltersColumn(t *testing.T) {
	client, transport := newMockClient(t)
	transport.RegisterResponder(http.MethodHead, testProject+"/rest/v1/patients",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "not.is.null", req.URL.Query().Get("legacy_id"))
			assert.Equal(t, "*", req.URL.Query().Get("select"))
			return countResponder(t, "*/42")(req)
		})

	n, err := client.CountNotNull(t.Context(), "patients", "legacy_id")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
}

func TestCount_EmptyTable(t *testing.T) {
	client, transport := newMockClient(t)
	transport.RegisterResponder(http.MethodHead, testProject+"/rest/v1/comments", countResponder(t, "*/0"))

	n, err := client.Count(t.Context(), "comments")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCount_HTTPError(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusServiceUnavailable} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			client, transport := newMockClient(t)
			transport.RegisterResponder(http.MethodHead, testProject+"/rest/v1/orders",
				httpmock.NewStringResponder(status, ""))

			_, err := client.Count(t.Context(), "orders")
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryHTTP))
		})
	}
}

func TestCount_TransportError(t *testing.T) {
	client, transport := newMockClient(t)
	transport.RegisterResponder(http.MethodHead, testProject+"/rest/v1/orders",
		httpmock.NewErrorResponder(assert.AnError))

	_, err := client.Count(t.Context(), "orders")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNetwork))
}

func TestCount_Canceled(t *testing.T) {
	client, transport := newMockClient(t)
	transport.RegisterResponder(http.MethodHead, testProject+"/rest/v1/orders",
		func(req *http.Request) (*http.Response, error) {
			<-req.Context().Done()
			return nil, req.Context().Err()
		})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := client.Count(ctx, "orders")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCancellation))
}

func TestCount_MissingContentRange(t *testing.T) {
	client, transport := newMockClient(t)
	transport.RegisterResponder(http.MethodHead, testProject+"/rest/v1/orders",
		httpmock.NewStringResponder(http.StatusOK, ""))

	_, err := client.Count(t.Context(), "orders")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryHTTP))
}

func TestCount_RequiresTable(t *testing.T) {
	client, _ := newMockClient(t)
	_, err := client.Count(t.Context(), "")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestParseContentRange(t *testing.T) {
	tests := []struct {
		header  string
		want    int64
		wantErr bool
	}{
		{"0-9/123", 123, false},
		{"*/0", 0, false},
		{" 0-0/1 ", 1, false},
		{"0-9/*", 0, true},
		{"123", 0, true},
		{"0-9/abc", 0, true},
		{"0-9/-4", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, err := ParseContentRange(tt.header)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
