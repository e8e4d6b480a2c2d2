package httpmiddleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, remote string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remote
	for _, m := range mutate {
		m(req)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit(t *testing.T) {
	t.Run("under limit", func(t *testing.T) {
		h := RateLimit(RateLimitConfig{Max: 3, Window: time.Minute})(okHandler())
		for i := range 3 {
			w := hit(h, "192.168.1.1:1000")
			assert.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
			assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
		}
	})

	t.Run("over limit", func(t *testing.T) {
		h := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute, Message: "slow down"})(okHandler())
		for range 2 {
			require.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1").Code)
		}
		w := hit(h, "10.0.0.1:2")
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("Retry-After"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "slow down", body["message"])
	})

	t.Run("independent clients", func(t *testing.T) {
		h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())
		assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1").Code)
		assert.Equal(t, http.StatusOK, hit(h, "10.0.0.2:1").Code)
		assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:2").Code)
	})

	t.Run("forwarded for", func(t *testing.T) {
		h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())
		xff := func(r *http.Request) { r.Header.Set("X-Forwarded-For", "203.0.113.50, 70.41.3.18") }
		assert.Equal(t, http.StatusOK, hit(h, "192.168.1.1:1", xff).Code)
		assert.Equal(t, http.StatusTooManyRequests, hit(h, "192.168.1.2:1", xff).Code)
	})

	t.Run("custom key", func(t *testing.T) {
		h := RateLimit(RateLimitConfig{
			Max:     1,
			Window:  time.Minute,
			KeyFunc: func(r *http.Request) string { return r.Header.Get("X-Key") },
		})(okHandler())
		key := func(k string) func(*http.Request) {
			return func(r *http.Request) { r.Header.Set("X-Key", k) }
		}
		assert.Equal(t, http.StatusOK, hit(h, "1.1.1.1:1", key("a")).Code)
		assert.Equal(t, http.StatusTooManyRequests, hit(h, "2.2.2.2:1", key("a")).Code)
		assert.Equal(t, http.StatusOK, hit(h, "1.1.1.1:1", key("b")).Code)
	})
}

func TestLimiterWindowRotation(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	_, _, ok := l.take("k", now)
	require.True(t, ok)
	_, _, ok = l.take("k", now.Add(time.Second))
	require.False(t, ok)

	// Two full windows later the previous bucket no longer counts.
	_, _, ok = l.take("k", now.Add(2*time.Minute+time.Second))
	assert.True(t, ok)

	l.sweep(now.Add(10 * time.Minute))
	assert.Empty(t, l.windows)
}
