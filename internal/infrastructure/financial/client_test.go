package financial

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientLookup(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/financials", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Acme Ltd", req["company"])

		_, _ = w.Write([]byte(`{"fiscal_year":"FY25","revenue":"2,369","order_book":"19,434","ratio":"8.2x","provisional":{"fiscal_year":"FY26","revenue":"3,300","order_book":"22,700"}}`))
	}))
	defer srv.Close()

	fin, err := NewClient(srv.URL+"/", "secret", 0).Lookup(context.Background(), "Acme Ltd")
	require.NoError(t, err)
	assert.Equal(t, "Acme Ltd", fin.Company)
	assert.Equal(t, "8.2x", fin.Ratio)
	assert.Equal(t, "FY26", fin.ProvisionalYear)
}

func TestClientLookupErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("empty") != "" {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", 0).Lookup(context.Background(), "Acme")
	assert.ErrorIs(t, err, ErrLookup)
	assert.ErrorContains(t, err, "502")

	_, err = NewClient(srv.URL, "", 0).Lookup(context.Background(), "")
	assert.ErrorIs(t, err, ErrLookup)
}
