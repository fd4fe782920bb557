package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotify(t *testing.T) {
	t.Run("posts payload as json", func(t *testing.T) {
		var got map[string]interface{}
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		w := NewWebhook(server.URL, zerolog.Nop())
		err := w.Notify(context.Background(), map[string]interface{}{"success": true, "processed": 3})

		require.NoError(t, err)
		assert.Equal(t, true, got["success"])
		assert.Equal(t, float64(3), got["processed"])
	})

	t.Run("empty url drops silently", func(t *testing.T) {
		w := NewWebhook("", zerolog.Nop())
		assert.NoError(t, w.Notify(context.Background(), map[string]string{"k": "v"}))
	})

	t.Run("retries after a failed attempt", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&attempts, 1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		w := NewWebhook(server.URL, zerolog.Nop())
		err := w.Notify(context.Background(), map[string]string{"k": "v"})

		require.NoError(t, err)
		assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		w := NewWebhook(server.URL, zerolog.Nop())
		err := w.Notify(ctx, map[string]string{"k": "v"})

		assert.ErrorIs(t, err, context.Canceled)
	})
}
