package messenger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type graphFake struct {
	statuses []int // one per attempt; last repeats
	attempts int
	lastBody sendRequest
	lastAuth string
}

func (g *graphFake) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i := g.attempts
		g.attempts++
		if i >= len(g.statuses) {
			i = len(g.statuses) - 1
		}
		g.lastAuth = r.URL.Query().Get("access_token")
		json.NewDecoder(r.Body).Decode(&g.lastBody)
		w.WriteHeader(g.statuses[i])
	}
}

func newTestSender(t *testing.T, fake *graphFake) *Sender {
	t.Helper()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)
	return NewSender(srv.URL, "page-token", 2*time.Second, zerolog.Nop())
}

func TestSender_Send(t *testing.T) {
	t.Run("Should deliver the message with the access token", func(t *testing.T) {
		fake := &graphFake{statuses: []int{http.StatusOK}}
		sender := newTestSender(t, fake)

		err := sender.Send(context.Background(), "user-1", "hello there")

		require.NoError(t, err)
		assert.Equal(t, 1, fake.attempts)
		assert.Equal(t, "page-token", fake.lastAuth)
		assert.Equal(t, "user-1", fake.lastBody.Recipient.ID)
		assert.Equal(t, "RESPONSE", fake.lastBody.MessagingType)
		assert.Equal(t, "hello there", fake.lastBody.Message.Text)
	})

	t.Run("Should retry on 429 and succeed", func(t *testing.T) {
		fake := &graphFake{statuses: []int{http.StatusTooManyRequests, http.StatusOK}}
		sender := newTestSender(t, fake)

		err := sender.Send(context.Background(), "user-2", "hi")

		require.NoError(t, err)
		assert.Equal(t, 2, fake.attempts)
	})

	t.Run("Should give up after two retries on persistent 5xx", func(t *testing.T) {
		fake := &graphFake{statuses: []int{http.StatusServiceUnavailable}}
		sender := newTestSender(t, fake)

		err := sender.Send(context.Background(), "user-3", "hi")

		require.Error(t, err)
		assert.Equal(t, 3, fake.attempts)
	})

	t.Run("Should not retry on 4xx client errors", func(t *testing.T) {
		fake := &graphFake{statuses: []int{http.StatusBadRequest}}
		sender := newTestSender(t, fake)

		err := sender.Send(context.Background(), "user-4", "hi")

		require.Error(t, err)
		assert.Equal(t, 1, fake.attempts)
	})

	t.Run("Should truncate long texts before sending", func(t *testing.T) {
		fake := &graphFake{statuses: []int{http.StatusOK}}
		sender := newTestSender(t, fake)

		err := sender.Send(context.Background(), "user-5", strings.Repeat("x", 5000))

		require.NoError(t, err)
		assert.Len(t, fake.lastBody.Message.Text, maxTextLength)
	})
}

func TestTruncate(t *testing.T) {
	t.Run("Should leave short text untouched", func(t *testing.T) {
		assert.Equal(t, "hello", Truncate("hello", 10))
	})

	t.Run("Should cut on rune boundaries", func(t *testing.T) {
		assert.Equal(t, "héllo", Truncate("héllo world", 5))
	})
}
