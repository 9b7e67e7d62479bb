package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newCORSRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware([]string{"https://care.example"}, time.Hour))
	r.POST("/api/v1/push-tokens", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func preflight(r *gin.Engine, origin, method string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/push-tokens", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", method)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCORS_PreflightFromAllowedOrigin(t *testing.T) {
	w := preflight(newCORSRouter(), "https://care.example", http.MethodPost)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://care.example", w.Header().Get("Access-Control-Allow-Origin"))
	methods := w.Header().Get("Access-Control-Allow-Methods")
	assert.Contains(t, methods, http.MethodPost)
	assert.NotContains(t, methods, http.MethodDelete)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "3600", w.Header().Get("Access-Control-Max-Age"))
}

func TestCORS_RejectsUnknownOrigin(t *testing.T) {
	w := preflight(newCORSRouter(), "https://evil.example", http.MethodPost)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
