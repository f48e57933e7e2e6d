package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func ok(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "success"})
}

func request(router http.Handler, method, path, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = ip + ":1234"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCORS(t *testing.T) {
	router := setupTestRouter()
	router.Use(CORS(DefaultCORSConfig()))
	router.GET("/tournaments", ok)

	tests := []struct {
		name           string
		method         string
		origin         string
		wantStatus     int
		wantCORSHeader bool
	}{
		{name: "simple GET request with origin", method: "GET", origin: "http://localhost:3000", wantStatus: http.StatusOK, wantCORSHeader: true},
		{name: "preflight OPTIONS request", method: "OPTIONS", origin: "http://localhost:3000", wantStatus: http.StatusNoContent, wantCORSHeader: true},
		{name: "no origin header", method: "GET", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/tournaments", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.method == "OPTIONS" {
				req.Header.Set("Access-Control-Request-Method", "POST")
			}

			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantCORSHeader {
				assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))
			} else {
				assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
			}
		})
	}
}

func TestCORSWithOrigins(t *testing.T) {
	cfg := DefaultCORSConfig().WithOrigins([]string{"https://dashboard.example.com"})
	assert.Equal(t, []string{"https://dashboard.example.com"}, cfg.AllowOrigins)
	assert.Equal(t, DefaultCORSConfig(), DefaultCORSConfig().WithOrigins(nil))

	router := setupTestRouter()
	router.Use(CORS(cfg))
	router.GET("/tournaments", ok)

	req := httptest.NewRequest("GET", "/tournaments", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://dashboard.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest("GET", "/tournaments", nil)
	req.Header.Set("Origin", "https://elsewhere.example.com")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRateLimit(t *testing.T) {
	router := setupTestRouter()
	router.Use(RateLimit(RateLimitConfig{RequestsPerSecond: 2, Burst: 2}))
	router.GET("/tournaments", ok)

	// First 2 requests should succeed (burst capacity)
	for i := 0; i < 2; i++ {
		w := request(router, "GET", "/tournaments", "192.168.1.1")
		assert.Equal(t, http.StatusOK, w.Code, "Request %d should succeed", i+1)
	}

	w := request(router, "GET", "/tournaments", "192.168.1.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestRateLimitDifferentClients(t *testing.T) {
	router := setupTestRouter()
	router.Use(RateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 1}))
	router.GET("/tournaments", ok)

	assert.Equal(t, http.StatusOK, request(router, "GET", "/tournaments", "192.168.1.1").Code)
	assert.Equal(t, http.StatusOK, request(router, "GET", "/tournaments", "192.168.1.2").Code, "different IP")
	assert.Equal(t, http.StatusTooManyRequests, request(router, "GET", "/tournaments", "192.168.1.1").Code)
}

func TestRateLimitExemptPaths(t *testing.T) {
	router := setupTestRouter()
	router.Use(RateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 1, Exempt: []string{"/health"}}))
	router.GET("/health", ok)
	router.GET("/tournaments", ok)

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, request(router, "GET", "/health", "10.0.0.1").Code)
	}
	assert.Equal(t, http.StatusOK, request(router, "GET", "/tournaments", "10.0.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, request(router, "GET", "/tournaments", "10.0.0.1").Code)
}

func TestLimiterSetDropsIdleClients(t *testing.T) {
	set := newLimiterSet(RateLimitConfig{RequestsPerSecond: 1, Burst: 1})
	now := time.Now()
	set.now = func() time.Time { return now }

	set.get("10.0.0.1")
	set.get("10.0.0.2")
	require.Equal(t, 2, set.size())

	now = now.Add(clientIdleTTL / 2)
	set.get("10.0.0.2")

	now = now.Add(clientIdleTTL/2 + time.Second)
	set.get("10.0.0.3")
	assert.Equal(t, 2, set.size(), "only the idle client is dropped")
}

func TestGlobalRateLimit(t *testing.T) {
	router := setupTestRouter()
	router.Use(GlobalRateLimit(RateLimitConfig{RequestsPerSecond: 2, Burst: 2}))
	router.GET("/tournaments", ok)

	assert.Equal(t, http.StatusOK, request(router, "GET", "/tournaments", "192.168.1.1").Code)
	assert.Equal(t, http.StatusOK, request(router, "GET", "/tournaments", "192.168.1.2").Code)
	assert.Equal(t, http.StatusTooManyRequests, request(router, "GET", "/tournaments", "192.168.1.3").Code)
}

func TestDefaultConfigs(t *testing.T) {
	cors := DefaultCORSConfig()
	assert.Contains(t, cors.AllowOrigins, "*")
	assert.Contains(t, cors.AllowMethods, "POST")
	assert.Contains(t, cors.ExposeHeaders, "X-Trace-ID")
	assert.Equal(t, 12*time.Hour, cors.MaxAge)

	rl := DefaultRateLimitConfig()
	assert.Equal(t, 100, rl.RequestsPerSecond)
	assert.Equal(t, 200, rl.Burst)
	assert.Contains(t, rl.Exempt, "/metrics")
}

func BenchmarkRateLimit(b *testing.B) {
	router := setupTestRouter()
	router.Use(RateLimit(DefaultRateLimitConfig()))
	router.GET("/tournaments", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/tournaments", nil)
	req.RemoteAddr = "192.168.1.1:1234"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
	}
}
