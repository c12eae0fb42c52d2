package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/mmo-terrain/internal/logging"
)

func TestPrometheusMiddleware_BasicMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()

	gin.SetMode(gin.TestMode)
	r := gin.New()

	promMw, err := NewPrometheusMiddleware("test", registry, registry)
	require.NoError(t, err)
	r.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(r)

	r.GET("/test", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })
	r.GET("/error", func(c *gin.Context) { c.JSON(500, gin.H{"error": "test error"}) })

	for _, path := range []string{"/test", "/error", "/nowhere"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	metricFamilies, err := registry.Gather()
	require.NoError(t, err)

	var durationFound, errorsFound bool
	for _, mf := range metricFamilies {
		switch mf.GetName() {
		case "test_http_request_duration_seconds":
			durationFound = true
			assert.Equal(t, "Длительность HTTP-запросов.", mf.GetHelp())
			assert.Len(t, mf.Metric, 3)
		case "test_http_request_errors_total":
			errorsFound = true
			// 500 и 404 неизвестного маршрута
			assert.Len(t, mf.Metric, 2)
		}
	}
	assert.True(t, durationFound, "Duration metric not found")
	assert.True(t, errorsFound, "Errors metric not found")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `path="unmatched"`))

	_, err = NewPrometheusMiddleware("test", registry, registry)
	assert.Error(t, err, "повторная регистрация")
}

func TestRequestLogger_SetsTraceID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := logging.NewWriterLogger("api", &buf, logging.DEBUG)

	r := gin.New()
	r.Use(NewRequestLogger(logger).Handler())

	var seen string
	r.GET("/ping", func(c *gin.Context) {
		seen = c.GetString(TraceIDKey)
		c.String(http.StatusOK, "pong")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, seen, 36, "uuid без активного спана")
	assert.Equal(t, seen, w.Header().Get("X-Trace-Id"))
	assert.Contains(t, buf.String(), "GET /ping 200")
	assert.Contains(t, buf.String(), seen)
}
