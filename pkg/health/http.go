package health

import (
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/lewisedginton/aiboy_relay/pkg/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Response is the JSON body served by the health endpoints.
type Response struct {
	Status  string                 `json:"status"`            // "healthy" | "unhealthy"
	Checks  map[string]CheckStatus `json:"checks,omitempty"`  // check name -> status
	Message string                 `json:"message,omitempty"` // failure summary
}

// CheckStatus represents the status of an individual check in the HTTP response.
type CheckStatus struct {
	Status  string `json:"status"` // "ok" | "error"
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// LivenessHandler returns 200 while the process is alive, 503 when it should be restarted.
func (h *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := h.CheckLiveness(r.Context())
		h.writeResponse(w, status, err)
	}
}

// ReadinessHandler returns 200 when the relay can serve traffic, 503 otherwise.
func (h *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := h.CheckReadiness(r.Context())
		h.writeResponse(w, status, err)
	}
}

func (h *Checker) writeResponse(w http.ResponseWriter, status *Status, err error) {
	response := Response{Checks: make(map[string]CheckStatus, len(status.Checks))}

	code := http.StatusOK
	response.Status = "healthy"
	if !status.Healthy {
		code = http.StatusServiceUnavailable
		response.Status = "unhealthy"
		if err != nil {
			response.Message = err.Error()
		}
	}

	for _, result := range status.Checks {
		cs := CheckStatus{Status: "ok", Latency: result.Latency.String()}
		if !result.Healthy {
			cs.Status = "error"
			cs.Error = result.Error
		}
		response.Checks[result.Name] = cs
	}

	body, marshalErr := json.Marshal(response)
	if marshalErr != nil {
		if h.logger != nil {
			h.logger.Error("Failed to encode health response", logger.ErrorField(marshalErr))
		}
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}
