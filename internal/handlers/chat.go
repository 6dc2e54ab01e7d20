// Package handlers contains the relay's HTTP handlers.
package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"
	"github.com/lewisedginton/aiboy_relay/internal/relay"
	"github.com/lewisedginton/aiboy_relay/pkg/logger"
	"github.com/tidwall/gjson"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MaxBodyBytes caps the inbound request body.
const MaxBodyBytes = 2 << 20

// ChatResponse is the outbound body of a successful POST /chat.
type ChatResponse struct {
	Message string `json:"message"`
}

// Relayer is the part of relay.Service the handler depends on.
type Relayer interface {
	Chat(ctx context.Context, message string) (string, error)
}

// ChatHandler serves POST /chat.
type ChatHandler struct {
	relay  Relayer
	logger logger.Logger
}

// NewChatHandler creates a ChatHandler. A nil logger discards output.
func NewChatHandler(r Relayer, log logger.Logger) *ChatHandler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &ChatHandler{relay: r, logger: log}
}

// Chat relays one message and answers with the reply. Failures are plain text.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	log := logger.GetLoggerFromContext(r.Context(), h.logger)

	if !isJSONContentType(r.Header.Get("Content-Type")) {
		writeText(w, http.StatusUnsupportedMediaType, "Expected request with `Content-Type: application/json`")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeText(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		writeText(w, http.StatusBadRequest, "Failed to read the request body: "+err.Error())
		return
	}

	message, status, text := parseChatRequest(raw)
	if status != 0 {
		log.Debug("Rejected chat request body",
			logger.IntField("status", status),
			logger.IntField("body_bytes", len(raw)),
		)
		writeText(w, status, text)
		return
	}

	reply, err := h.relay.Chat(r.Context(), message)
	if err != nil {
		status, text := errorResponse(err)
		writeText(w, status, text)
		return
	}

	body, err := json.Marshal(ChatResponse{Message: reply})
	if err != nil {
		log.Error("Failed to encode chat response", logger.ErrorField(err))
		writeText(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// isJSONContentType accepts application/json and any application/*+json type.
func isJSONContentType(ct string) bool {
	if ct == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	if mediaType == "application/json" {
		return true
	}
	return strings.HasPrefix(mediaType, "application/") && strings.HasSuffix(mediaType, "+json")
}

// parseChatRequest extracts the message from a {"message": string} body.
// Syntax errors and invalid UTF-8 are 400; well-formed JSON of the wrong shape is 422.
// A zero status means the body was accepted.
func parseChatRequest(raw []byte) (string, int, string) {
	if !utf8.Valid(raw) {
		return "", http.StatusBadRequest, "Failed to parse the request body as JSON: invalid UTF-8"
	}
	if !gjson.ValidBytes(raw) {
		return "", http.StatusBadRequest, "Failed to parse the request body as JSON: malformed JSON"
	}

	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return "", http.StatusUnprocessableEntity, "Failed to deserialize the JSON body into the target type: expected an object"
	}
	field := doc.Get("message")
	switch {
	case !field.Exists(), field.Type == gjson.Null:
		return "", http.StatusUnprocessableEntity, "Failed to deserialize the JSON body into the target type: missing field `message`"
	case field.Type != gjson.String:
		return "", http.StatusUnprocessableEntity, "Failed to deserialize the JSON body into the target type: message: expected a string"
	}

	message := field.String()
	if !utf8.ValidString(message) {
		return "", http.StatusBadRequest, "Failed to parse the request body as JSON: message is not valid UTF-8"
	}
	return message, 0, ""
}

// errorResponse maps a relay failure to its status code and client-facing text.
func errorResponse(err error) (int, string) {
	var relayErr *relay.Error
	if !errors.As(err, &relayErr) {
		return http.StatusInternalServerError, err.Error()
	}
	switch relayErr.Kind {
	case relay.KindUpstream:
		return http.StatusBadGateway, relayErr.Message
	default:
		return http.StatusInternalServerError, relayErr.Error()
	}
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}
