package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestCORS_ReflectsAllowedOrigin(t *testing.T) {
	router := gin.New()
	router.Use(CORS([]string{"https://app.example"}))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://app.example")
	router.ServeHTTP(w, req)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	router.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_PreflightShortCircuits(t *testing.T) {
	router := gin.New()
	router.Use(CORS(nil))
	router.OPTIONS("/x", func(c *gin.Context) { t.Fatal("preflight reached handler") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/x", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", "abc")
	router.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Len(t, w.Header().Get("X-Request-ID"), 36)
}

func TestErrorLogger_RecoversPanic(t *testing.T) {
	router := gin.New()
	router.Use(ErrorLogger(false))
	router.GET("/boom", func(c *gin.Context) { panic("kaput") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_SERVER_ERROR")
	assert.NotContains(t, w.Body.String(), "kaput")
}
