package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func rateLimitedRouter(rps int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(rps))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/emergency/active", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func TestRateLimit_ShedsAfterBurst(t *testing.T) {
	router := rateLimitedRouter(1) // burst of 2

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/emergency/active", nil)
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("burst requests should pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("expected 429 once the bucket is drained, got %d", codes[2])
	}
}

func TestRateLimit_HealthExempt(t *testing.T) {
	router := rateLimitedRouter(1)

	// Drain the bucket.
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/emergency/active", nil)
		router.ServeHTTP(w, req)
	}

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/health", nil)
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("health check rate limited: %d", w.Code)
		}
	}
}
