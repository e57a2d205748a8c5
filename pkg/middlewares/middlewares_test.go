package middlewares

import (
	"Menuboard/pkg/log"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
)

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CORSMiddleware("https://storefront.example"))
	router.Use(CorrelationMiddleware(log.NewWithWriter("test", io.Discard)))
	router.GET("/ping", func(gctx *gin.Context) {
		gctx.String(http.StatusOK, gctx.GetString("correlation_id"))
	})
	router.GET("/stream", SSEMiddleware(), func(gctx *gin.Context) {
		gctx.Status(http.StatusOK)
	})
	return router
}

func TestCorrelationIDGenerated(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	id := w.Header().Get(CorrelationHeader)
	_, err := xid.FromString(id)
	assert.NoError(t, err)
	assert.Equal(t, id, w.Body.String())
}

func TestCorrelationIDPropagated(t *testing.T) {
	id := xid.New().String()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(CorrelationHeader, id)
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, req)

	assert.Equal(t, id, w.Header().Get(CorrelationHeader))
}

func TestCorrelationIDInvalidReplaced(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(CorrelationHeader, "not-an-xid")
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, req)

	assert.NotEqual(t, "not-an-xid", w.Header().Get(CorrelationHeader))
}

func TestCORSPreflight(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/stream", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://storefront.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSSEHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stream", nil))

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", w.Header().Get("Connection"))
}
