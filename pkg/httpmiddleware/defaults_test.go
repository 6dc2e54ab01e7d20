package httpmiddleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/lewisedginton/aiboy_relay/pkg/logger"
	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.NotNil(t, config.CORS)
	assert.True(t, config.EnableCorrelationID)
	assert.True(t, config.EnableRecovery)
	assert.True(t, config.EnableHeartbeat)
	assert.False(t, config.EnableLogging, "logging requires an explicit logger")
	assert.False(t, config.EnableStripPrefix)
}

func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	testLogger := logger.NewLogger(logger.Config{
		Level:   logger.DebugLevel,
		Format:  "json",
		Service: "test-service",
		Output:  &buf,
	})

	router := chi.NewRouter()
	WithLogger(router, testLogger)
	router.Post("/chat", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("test response"))
	})

	t.Run("middleware stack processes request and logs", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/chat", nil))

		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, "test response", recorder.Body.String())
		assert.NotEmpty(t, recorder.Header().Get("X-Correlation-ID"))
		assert.Contains(t, buf.String(), "HTTP response sent")
	})

	t.Run("heartbeat endpoint is available", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/ping", nil))

		assert.Equal(t, http.StatusOK, recorder.Code)
	})

	t.Run("wrong method is rejected by the router", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/chat", nil))

		assert.Equal(t, http.StatusMethodNotAllowed, recorder.Code)
	})

	t.Run("preflight is answered before routing", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
		req.Header.Set("Origin", "https://anywhere.example")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		recorder := httptest.NewRecorder()

		router.ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, "*", recorder.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestApplyWithCustomConfig(t *testing.T) {
	config := Config{EnableCorrelationID: true}

	router := chi.NewRouter()
	ApplyToRouter(router, config)
	var capturedID string
	router.Post("/chat", func(w http.ResponseWriter, r *http.Request) {
		capturedID = r.Header.Get("X-Correlation-ID")
	})

	t.Run("correlation ID still works when enabled", func(t *testing.T) {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/chat", nil))
		assert.NotEmpty(t, capturedID)
	})

	t.Run("heartbeat disabled means no ping endpoint", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/ping", nil))
		assert.Equal(t, http.StatusNotFound, recorder.Code)
	})
}

func TestStripPrefixIntegration(t *testing.T) {
	config := Config{StripPrefix: "/api", EnableStripPrefix: true}

	router := chi.NewRouter()
	ApplyToRouter(router, config)
	router.Post("/chat", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.URL.Path))
	})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/api/chat", nil))

	assert.Equal(t, "/chat", recorder.Body.String())
}
