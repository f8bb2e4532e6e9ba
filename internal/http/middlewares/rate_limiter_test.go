package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupLimitedRouter(t *testing.T, limit int, window time.Duration) *gin.Engine {
	t.Helper()

	mr := miniredis.RunT(t)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	rl := NewRateLimiter(rdb, "test", limit, window)

	r := gin.New()
	r.POST("/login", rl.Middleware(ByClientIP()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	return r
}

func doPost(r *gin.Engine, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = remoteAddr

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_AllowsUnderLimit(t *testing.T) {
	r := setupLimitedRouter(t, 3, time.Minute)

	for i := 0; i < 3; i++ {
		w := doPost(r, "10.0.0.1:1234")

		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	r := setupLimitedRouter(t, 2, time.Minute)

	doPost(r, "10.0.0.1:1234")
	doPost(r, "10.0.0.1:1234")

	w := doPost(r, "10.0.0.1:1234")

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}

	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	r := setupLimitedRouter(t, 1, time.Minute)

	if w := doPost(r, "10.0.0.1:1234"); w.Code != http.StatusOK {
		t.Fatalf("first IP first request: expected 200, got %d", w.Code)
	}
	if w := doPost(r, "10.0.0.1:1234"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("first IP second request: expected 429, got %d", w.Code)
	}
	if w := doPost(r, "10.0.0.2:1234"); w.Code != http.StatusOK {
		t.Fatalf("second IP must have its own budget, got %d", w.Code)
	}
}
