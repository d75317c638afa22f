package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"
)

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusCreated) })
	return r
}

func serve(r http.Handler, method, header, value string) int {
	req := httptest.NewRequest(method, "/x", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestAPIToken(t *testing.T) {
	r := newEngine(APIToken("secret"))
	if code := serve(r, http.MethodGet, "", ""); code != http.StatusUnauthorized {
		t.Fatalf("missing token status=%d", code)
	}
	if code := serve(r, http.MethodGet, "Authorization", "Bearer wrong"); code != http.StatusUnauthorized {
		t.Fatalf("wrong token status=%d", code)
	}
	if code := serve(r, http.MethodGet, "Authorization", "bearer secret"); code != http.StatusOK {
		t.Fatalf("valid token status=%d", code)
	}

	open := newEngine(APIToken(" "))
	if code := serve(open, http.MethodGet, "", ""); code != http.StatusOK {
		t.Fatalf("empty token must disable auth, status=%d", code)
	}
}

func TestRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	fixed := time.Unix(1700000000, 0)
	rateLimitNow = func() time.Time { return fixed }
	t.Cleanup(func() { rateLimitNow = time.Now })

	r := newEngine(RateLimit(rdb, 2))
	for i := 0; i < 2; i++ {
		if code := serve(r, http.MethodGet, "", ""); code != http.StatusOK {
			t.Fatalf("request %d status=%d", i, code)
		}
	}
	if code := serve(r, http.MethodGet, "", ""); code != http.StatusTooManyRequests {
		t.Fatalf("third request status=%d", code)
	}

	fixed = fixed.Add(time.Second)
	if code := serve(r, http.MethodGet, "", ""); code != http.StatusOK {
		t.Fatalf("next window status=%d", code)
	}

	if code := serve(newEngine(RateLimit(rdb, 0)), http.MethodGet, "", ""); code != http.StatusOK {
		t.Fatalf("disabled limiter status=%d", code)
	}
}

func TestIdempotence(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	r := newEngine(Idempotence(rdb))
	if code := serve(r, http.MethodPost, idempotenceHeader, "k1"); code != http.StatusCreated {
		t.Fatalf("first status=%d", code)
	}
	if code := serve(r, http.MethodPost, idempotenceHeader, "k1"); code != http.StatusConflict {
		t.Fatalf("repeat status=%d", code)
	}
	if code := serve(r, http.MethodPost, "", ""); code != http.StatusCreated {
		t.Fatalf("no header status=%d", code)
	}
	if code := serve(r, http.MethodPost, "", ""); code != http.StatusCreated {
		t.Fatalf("requests without a key must never be rejected, status=%d", code)
	}
	mr.FastForward(idempotenceTTL + 1)
	if code := serve(r, http.MethodPost, idempotenceHeader, "k1"); code != http.StatusCreated {
		t.Fatalf("after ttl status=%d", code)
	}
}

func TestLogger(t *testing.T) {
	r := newEngine(Logger(zaptest.NewLogger(t)))
	if code := serve(r, http.MethodGet, "", ""); code != http.StatusOK {
		t.Fatalf("status=%d", code)
	}
}
