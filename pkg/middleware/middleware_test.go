package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestIDGeneratesWhenAbsent(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(requestIDKey))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Body.String() == "" {
		t.Fatal("expected a generated request id in the handler's context")
	}
	if w.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected the response to echo X-Request-Id")
	}
}

func TestRequestIDEchoesSuppliedHeader(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "fixed-id-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-Id"); got != "fixed-id-123" {
		t.Fatalf("expected the supplied request id to be echoed, got %q", got)
	}
}

func TestAccessLogDoesNotAlterResponse(t *testing.T) {
	r := gin.New()
	r.Use(AccessLog(zerolog.Nop()))
	r.GET("/", func(c *gin.Context) { c.String(http.StatusTeapot, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusTeapot {
		t.Fatalf("expected status %d to pass through unaltered, got %d", http.StatusTeapot, w.Code)
	}
}
