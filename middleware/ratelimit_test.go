package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterPerClient(t *testing.T) {
	rl := NewRateLimiter(2)
	h := rl.Handler(okHandler())

	codes := func(addr string, n int) []int {
		var out []int
		for i := 0; i < n; i++ {
			req := httptest.NewRequest(http.MethodPost, "/api/generate", nil)
			req.RemoteAddr = addr
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			out = append(out, rec.Code)
		}
		return out
	}

	assert.Equal(t, []int{204, 204, 429}, codes("10.0.0.1:5000", 3))
	assert.Equal(t, []int{204}, codes("10.0.0.2:5000", 1))
	// Same host on another port shares the bucket.
	assert.Equal(t, []int{429}, codes("10.0.0.1:6000", 1))
}

func TestRateLimiterDisabled(t *testing.T) {
	h := NewRateLimiter(0).Handler(okHandler())
	for i := 0; i < 50; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/generate", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(5)
	now := time.Now()
	rl.now = func() time.Time { return now }
	rl.getLimiter("a")
	now = now.Add(time.Hour)
	rl.getLimiter("b")

	rl.Cleanup(time.Minute)
	assert.Len(t, rl.limiters, 1)
	assert.Contains(t, rl.limiters, "b")
}
