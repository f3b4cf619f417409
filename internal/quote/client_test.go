package quote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	loginStatus int
	loginBody   string
	quoteStatus int
	quoteBody   string

	loginCalls int
	quoteCalls int
	lastAuth   string
	lastBody   map[string]any
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(loginPath, func(w http.ResponseWriter, r *http.Request) {
		f.loginCalls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.loginStatus)
		w.Write([]byte(f.loginBody))
	})
	mux.HandleFunc(quotePath, func(w http.ResponseWriter, r *http.Request) {
		f.quoteCalls++
		f.lastAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&f.lastBody)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.quoteStatus)
		w.Write([]byte(f.quoteBody))
	})
	return mux
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 2*time.Second, 2*time.Second, zerolog.Nop())
}

func TestClient_RequestQuote(t *testing.T) {
	t.Run("Should login then create a quote with the bearer token", func(t *testing.T) {
		api := &fakeAPI{
			loginStatus: http.StatusOK,
			loginBody:   `{"data":{"Token":"tok-123"}}`,
			quoteStatus: http.StatusOK,
			quoteBody:   `{"data":[{"totalPrice":1500,"totalTransport":300}]}`,
		}
		client := newTestClient(t, api)

		q, err := client.RequestQuote(context.Background(), "90210", "20ft", "cargo-worthy", 1)

		require.NoError(t, err)
		assert.InDelta(t, 1800.0, q.Total(), 1e-9)
		assert.Equal(t, 1, api.loginCalls)
		assert.Equal(t, 1, api.quoteCalls)
		assert.Equal(t, "Bearer tok-123", api.lastAuth)
		assert.Equal(t, "90210", api.lastBody["zipcode"])
		assert.Equal(t, true, api.lastBody["isDelivery"])
	})

	t.Run("Should accept a bare quote object as well as a list", func(t *testing.T) {
		api := &fakeAPI{
			loginStatus: http.StatusOK,
			loginBody:   `{"data":{"Token":"tok"}}`,
			quoteStatus: http.StatusOK,
			quoteBody:   `{"data":{"totalPrice":"1200.50","totalTransport":"99.50"}}`,
		}
		client := newTestClient(t, api)

		q, err := client.RequestQuote(context.Background(), "33101", "20ft", "cargo-worthy", 1)

		require.NoError(t, err)
		assert.InDelta(t, 1300.0, q.Total(), 1e-9)
	})

	t.Run("Should fail with ErrAuth and skip the quote call when login fails", func(t *testing.T) {
		api := &fakeAPI{
			loginStatus: http.StatusBadGateway,
			loginBody:   `{"message":"maintenance"}`,
		}
		client := newTestClient(t, api)

		_, err := client.RequestQuote(context.Background(), "90210", "20ft", "cargo-worthy", 1)

		require.ErrorIs(t, err, ErrAuth)
		assert.Zero(t, api.quoteCalls)
	})

	t.Run("Should fail with ErrAuth when login returns no token", func(t *testing.T) {
		api := &fakeAPI{
			loginStatus: http.StatusOK,
			loginBody:   `{"data":{}}`,
		}
		client := newTestClient(t, api)

		_, err := client.RequestQuote(context.Background(), "90210", "20ft", "cargo-worthy", 1)

		require.ErrorIs(t, err, ErrAuth)
		assert.Zero(t, api.quoteCalls)
	})

	t.Run("Should fail with ErrUnavailable on a quote API error", func(t *testing.T) {
		api := &fakeAPI{
			loginStatus: http.StatusOK,
			loginBody:   `{"data":{"Token":"tok"}}`,
			quoteStatus: http.StatusInternalServerError,
			quoteBody:   `{"message":"boom"}`,
		}
		client := newTestClient(t, api)

		_, err := client.RequestQuote(context.Background(), "90210", "20ft", "cargo-worthy", 1)

		require.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("Should fail with ErrUnavailable on an empty quote list", func(t *testing.T) {
		api := &fakeAPI{
			loginStatus: http.StatusOK,
			loginBody:   `{"data":{"Token":"tok"}}`,
			quoteStatus: http.StatusOK,
			quoteBody:   `{"data":[]}`,
		}
		client := newTestClient(t, api)

		_, err := client.RequestQuote(context.Background(), "90210", "20ft", "cargo-worthy", 1)

		require.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("Should fail with ErrUnavailable when pricing fields are all missing", func(t *testing.T) {
		api := &fakeAPI{
			loginStatus: http.StatusOK,
			loginBody:   `{"data":{"Token":"tok"}}`,
			quoteStatus: http.StatusOK,
			quoteBody:   `{"data":[{"somethingElse":true}]}`,
		}
		client := newTestClient(t, api)

		_, err := client.RequestQuote(context.Background(), "90210", "20ft", "cargo-worthy", 1)

		require.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("Should treat a missing transport field as zero", func(t *testing.T) {
		api := &fakeAPI{
			loginStatus: http.StatusOK,
			loginBody:   `{"data":{"Token":"tok"}}`,
			quoteStatus: http.StatusOK,
			quoteBody:   `{"data":[{"totalPrice":1500}]}`,
		}
		client := newTestClient(t, api)

		q, err := client.RequestQuote(context.Background(), "90210", "20ft", "cargo-worthy", 1)

		require.NoError(t, err)
		assert.InDelta(t, 1500.0, q.Total(), 1e-9)
		assert.Zero(t, q.Transport)
	})
}

func TestNormalizeQuote(t *testing.T) {
	t.Run("Should report no data for empty or invalid payloads", func(t *testing.T) {
		for _, raw := range []string{"", "null", "[]", `"oops"`, "42"} {
			_, ok := normalizeQuote(json.RawMessage(raw))
			assert.False(t, ok, "payload %q", raw)
		}
	})

	t.Run("Should pick the first record of a list", func(t *testing.T) {
		q, ok := normalizeQuote(json.RawMessage(`[{"totalPrice":100,"totalTransport":10},{"totalPrice":999}]`))
		require.True(t, ok)
		assert.InDelta(t, 110.0, q.Total(), 1e-9)
	})

	t.Run("Should count non-numeric fields as zero", func(t *testing.T) {
		q, ok := normalizeQuote(json.RawMessage(`{"totalPrice":"abc","totalTransport":25}`))
		require.True(t, ok)
		assert.InDelta(t, 25.0, q.Total(), 1e-9)
	})
}
