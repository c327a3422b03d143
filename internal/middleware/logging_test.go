package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger())
	r.POST("/echo", func(c *gin.Context) {
		body, _ := io.ReadAll(c.Request.Body)
		c.String(http.StatusOK, strings.Repeat(string(body), maxLoggedBody))
	})

	t.Run("body still readable and id generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("x")))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, maxLoggedBody, w.Body.Len())
		assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	})

	t.Run("incoming id kept", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("ab"))
		req.Header.Set(RequestIDHeader, "req-1")
		r.ServeHTTP(w, req)
		assert.Equal(t, "req-1", w.Header().Get(RequestIDHeader))
		assert.Equal(t, 2*maxLoggedBody, w.Body.Len(), "response not truncated")
	})
}
