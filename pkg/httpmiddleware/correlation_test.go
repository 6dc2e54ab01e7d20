package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/lewisedginton/aiboy_relay/pkg/logger"
)

func TestCorrelationIdMiddleware(t *testing.T) {
	var capturedHeaderID, capturedContextID string
	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedHeaderID = r.Header.Get("X-Correlation-ID")
		capturedContextID = logger.GetCorrelationIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	handler := CorrelationID()(testHandler)

	cases := []struct {
		name     string
		incoming string
	}{
		{"generates new UUID when no correlation ID exists", ""},
		{"ignores valid existing UUID and generates new one", uuid.New().String()},
		{"replaces invalid UUID with new valid one", "not-a-uuid"},
		{"replaces nil UUID with new valid one", "00000000-0000-0000-0000-000000000000"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/chat", nil)
			if tc.incoming != "" {
				req.Header.Set("X-Correlation-ID", tc.incoming)
			}
			recorder := httptest.NewRecorder()

			handler.ServeHTTP(recorder, req)

			if capturedHeaderID == "" || capturedHeaderID == tc.incoming {
				t.Errorf("Expected a fresh correlation ID in header, got %q", capturedHeaderID)
			}
			if capturedHeaderID != capturedContextID {
				t.Errorf("Header ID (%s) should match context ID (%s)", capturedHeaderID, capturedContextID)
			}
			if _, err := uuid.Parse(capturedHeaderID); err != nil {
				t.Errorf("Generated correlation ID is not a valid UUID: %s", capturedHeaderID)
			}
			if got := recorder.Header().Get("X-Correlation-ID"); got != capturedHeaderID {
				t.Errorf("Expected response to echo correlation ID %s, got %s", capturedHeaderID, got)
			}
		})
	}

	t.Run("generates unique IDs for different requests", func(t *testing.T) {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/chat", nil))
		id1 := capturedHeaderID
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/chat", nil))
		id2 := capturedHeaderID

		if id1 == id2 {
			t.Error("Expected different correlation IDs for different requests")
		}
	})
}
