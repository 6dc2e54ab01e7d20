package server

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	appconfig "github.com/lewisedginton/aiboy_relay/internal/config"
	"github.com/lewisedginton/aiboy_relay/pkg/config"
	"github.com/lewisedginton/aiboy_relay/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(upstreamURL string) *appconfig.AppConfig {
	return &appconfig.AppConfig{
		ServiceName: "aiboy-relay",
		Environment: "test",
		Common:      config.CommonConfig{LogLevel: "debug", LogFormat: "json"},
		HTTP: config.HTTPServerConfig{
			Host:                "127.0.0.1",
			Port:                0,
			ReadTimeoutSeconds:  5,
			WriteTimeoutSeconds: 5,
			IdleTimeoutSeconds:  5,
			MaxHeaderBytes:      1 << 20,
			ShutdownTimeout:     2 * time.Second,
		},
		Metrics: config.MetricsConfig{EnableHTTPMetrics: true, EnableUpstreamMetrics: true},
		OpenAI: appconfig.OpenAIConfig{
			APIKey:     "sk-test",
			Model:      "gpt-4",
			APIBaseURL: upstreamURL,
			Timeout:    5 * time.Second,
		},
		Relay: appconfig.RelayConfig{
			SystemPrompt:    appconfig.DefaultSystemPrompt,
			FallbackMessage: appconfig.DefaultFallbackMessage,
		},
		Health: appconfig.HealthConfig{Timeout: time.Second, FailureThreshold: 1},
	}
}

func newTestServer(t *testing.T, cfg *appconfig.AppConfig) (*Server, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	log := logger.NewLogger(logger.Config{Level: logger.DebugLevel, Output: &buf})
	s, err := New(cfg, log)
	require.NoError(t, err)
	return s, &buf
}

func stubUpstream(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(upstream.Close)
	return upstream, &calls
}

func postChat(handler http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}

func TestChat_RelaysCompletion(t *testing.T) {
	var gotBody map[string]any
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		_ = jsoniter.Unmarshal(raw, &gotBody)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hi there"}}]}`))
	}))
	defer upstream.Close()

	s, logs := newTestServer(t, testConfig(upstream.URL+"/v1"))
	recorder := postChat(s.Handler(), `{"message":"hello"}`)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `{"message":"hi there"}`, recorder.Body.String())
	assert.NotEmpty(t, recorder.Header().Get(logger.CorrelationIDHeader))

	require.NotNil(t, gotBody)
	assert.Equal(t, "gpt-4", gotBody["model"])
	messages, ok := gotBody["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, map[string]any{"role": "system", "content": appconfig.DefaultSystemPrompt}, messages[0])
	assert.Equal(t, map[string]any{"role": "user", "content": "hello"}, messages[1])

	assert.NotContains(t, logs.String(), "hi there", "reply text must not be logged")
}

func TestChat_UpstreamRejectionIsBadGateway(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusTooManyRequests, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			upstream, calls := stubUpstream(t, status, `{"error":{"message":"upstream detail"}}`)
			s, _ := newTestServer(t, testConfig(upstream.URL))

			recorder := postChat(s.Handler(), `{"message":"hello"}`)

			assert.Equal(t, http.StatusBadGateway, recorder.Code)
			assert.Equal(t, "OpenAI API error", recorder.Body.String())
			assert.Equal(t, int32(1), calls.Load(), "no retries")
		})
	}
}

func TestChat_MissingContentFallsBack(t *testing.T) {
	upstream, _ := stubUpstream(t, http.StatusOK, `{"choices":[]}`)
	s, _ := newTestServer(t, testConfig(upstream.URL))

	recorder := postChat(s.Handler(), `{"message":"hello"}`)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `{"message":"Sorry, I couldn't process that request."}`, recorder.Body.String())
}

func TestChat_UnparseableBodyIsInternalError(t *testing.T) {
	upstream, _ := stubUpstream(t, http.StatusOK, `<html>not json</html>`)
	s, _ := newTestServer(t, testConfig(upstream.URL))

	recorder := postChat(s.Handler(), `{"message":"hello"}`)

	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "error decoding response body")
}

func TestChat_NetworkFailureIsInternalError(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	url := upstream.URL
	upstream.Close()

	s, _ := newTestServer(t, testConfig(url))
	recorder := postChat(s.Handler(), `{"message":"hello"}`)

	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "error sending request")
}

func TestChat_BadInputIsClientError(t *testing.T) {
	upstream, calls := stubUpstream(t, http.StatusOK, `{}`)
	s, _ := newTestServer(t, testConfig(upstream.URL))

	recorder := postChat(s.Handler(), `{"msg":"hello"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, recorder.Code)

	recorder = postChat(s.Handler(), `{"message":`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	assert.Equal(t, int32(0), calls.Load())
}

func TestRouting(t *testing.T) {
	upstream, calls := stubUpstream(t, http.StatusOK, `{}`)
	s, _ := newTestServer(t, testConfig(upstream.URL))

	t.Run("GET /chat is rejected by the router", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		s.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/chat", nil))

		assert.Equal(t, http.StatusMethodNotAllowed, recorder.Code)
		assert.Equal(t, int32(0), calls.Load())
	})

	t.Run("unknown path", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		s.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/completions", nil))

		assert.Equal(t, http.StatusNotFound, recorder.Code)
	})

	t.Run("preflight from any origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
		req.Header.Set("Origin", "https://some-frontend.example")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "Content-Type")
		recorder := httptest.NewRecorder()

		s.Handler().ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, "*", recorder.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, recorder.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
		assert.Equal(t, int32(0), calls.Load())
	})

	t.Run("heartbeat", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		s.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/ping", nil))

		assert.Equal(t, http.StatusOK, recorder.Code)
	})

	t.Run("liveness", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		s.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/health/live", nil))

		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Contains(t, recorder.Body.String(), `"config"`)
	})

	t.Run("readiness without upstream probe", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		s.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusOK, recorder.Code)
	})
}

func TestReadiness_ProbesUpstream(t *testing.T) {
	var probed atomic.Bool
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/models" {
			probed.Store(true)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	cfg := testConfig(upstream.URL + "/v1")
	cfg.Health.CheckUpstream = true
	s, _ := newTestServer(t, cfg)

	recorder := httptest.NewRecorder()
	s.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
	assert.True(t, probed.Load())
}

func TestStripPrefix(t *testing.T) {
	upstream, _ := stubUpstream(t, http.StatusOK, `{"choices":[{"message":{"content":"prefixed"}}]}`)
	cfg := testConfig(upstream.URL)
	cfg.StripPrefix = "/api"
	s, _ := newTestServer(t, cfg)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	s.Handler().ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `{"message":"prefixed"}`, recorder.Body.String())
}

func TestMetricsCountRequests(t *testing.T) {
	upstream, _ := stubUpstream(t, http.StatusOK, `{"choices":[{"message":{"content":"x"}}]}`)
	s, _ := newTestServer(t, testConfig(upstream.URL))

	postChat(s.Handler(), `{"message":"hello"}`)

	recorder := httptest.NewRecorder()
	s.metrics.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	out := recorder.Body.String()
	assert.Contains(t, out, "relay_total_http_requests 1")
	assert.Contains(t, out, "relay_total_200_http_responses 1")
	assert.Contains(t, out, `relay_upstream_requests_total{outcome="ok"} 1`)
}

func TestRun_ServesAndShutsDown(t *testing.T) {
	upstream, _ := stubUpstream(t, http.StatusOK, `{"choices":[{"message":{"content":"hi there"}}]}`)
	s, logs := newTestServer(t, testConfig(upstream.URL))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-s.Listening():
	case <-time.After(2 * time.Second):
		t.Fatal("server did not start listening")
	}

	resp, err := http.Post("http://"+s.Addr().String()+"/chat", "application/json", strings.NewReader(`{"message":"hello"}`))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"message":"hi there"}`, string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.Contains(t, logs.String(), "Relay listening")
	assert.Contains(t, logs.String(), "Relay stopped")
}

func TestRun_PortInUse(t *testing.T) {
	upstream, _ := stubUpstream(t, http.StatusOK, `{}`)

	first, _ := newTestServer(t, testConfig(upstream.URL))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = first.Run(ctx) }()
	<-first.Listening()

	cfg := testConfig(upstream.URL)
	cfg.HTTP.Port = first.Addr().(*net.TCPAddr).Port
	second, _ := newTestServer(t, cfg)

	err := second.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
}
