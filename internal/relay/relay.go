// Package relay forwards one chat message to the completion provider and
// reduces the answer to a single reply string.
package relay

import (
	"context"
	"errors"
	"time"

	"github.com/lewisedginton/aiboy_relay/internal/models/openai"
	"github.com/lewisedginton/aiboy_relay/pkg/logger"
	"github.com/lewisedginton/aiboy_relay/pkg/metrics"
)

// UpstreamErrorMessage is the client-facing text for any non-2xx provider answer.
const UpstreamErrorMessage = "OpenAI API error"

const (
	outcomeOK       = "ok"
	outcomeFallback = "fallback"
)

// Completer issues a single chat completion and returns the raw response body.
type Completer interface {
	CreateChatCompletion(ctx context.Context, system, user string) ([]byte, error)
}

// Config holds the fixed text the relay applies to every request.
type Config struct {
	SystemPrompt    string
	FallbackMessage string
}

// Service relays chat messages. It holds no per-request state.
type Service struct {
	completer Completer
	cfg       Config
	metrics   *metrics.Metrics
	logger    logger.Logger
}

// NewService creates a relay service. m may be nil.
func NewService(completer Completer, cfg Config, m *metrics.Metrics, log logger.Logger) *Service {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Service{completer: completer, cfg: cfg, metrics: m, logger: log}
}

// Chat sends message with the persona prompt and returns the reply text.
// Failures are always *Error.
func (s *Service) Chat(ctx context.Context, message string) (string, error) {
	log := logger.GetLoggerFromContext(ctx, s.logger)
	start := time.Now()

	raw, err := s.completer.CreateChatCompletion(ctx, s.cfg.SystemPrompt, message)
	elapsed := time.Since(start)
	if err != nil {
		relayErr := classify(err)
		s.metrics.ObserveUpstream(relayErr.Kind.String(), elapsed)

		fields := []logger.LogField{
			logger.OutcomeField(relayErr.Kind.String()),
			logger.DurationField("upstream_duration", elapsed),
			logger.ErrorField(err),
		}
		var statusErr *openai.UpstreamStatusError
		if errors.As(err, &statusErr) {
			fields = append(fields, logger.UpstreamStatusField(statusErr.StatusCode))
		}
		log.Error("Completion request failed", fields...)
		return "", relayErr
	}

	content, ok, err := extract(raw)
	if err != nil {
		s.metrics.ObserveUpstream(KindDecode.String(), elapsed)
		log.Error("Completion response is not valid JSON",
			logger.OutcomeField(KindDecode.String()),
			logger.IntField("response_bytes", len(raw)),
		)
		return "", &Error{Kind: KindDecode, Message: "error decoding response body", Err: err}
	}

	outcome := outcomeOK
	if !ok {
		outcome = outcomeFallback
		content = s.cfg.FallbackMessage
		log.Warn("Completion response has no message content, using fallback",
			logger.IntField("response_bytes", len(raw)),
		)
	}
	s.metrics.ObserveUpstream(outcome, elapsed)

	log.Debug("Completion relayed",
		logger.OutcomeField(outcome),
		logger.DurationField("upstream_duration", elapsed),
		logger.IntField("reply_length", len(content)),
	)
	return content, nil
}

func classify(err error) *Error {
	var statusErr *openai.UpstreamStatusError
	if errors.As(err, &statusErr) {
		return &Error{Kind: KindUpstream, Message: UpstreamErrorMessage, Err: err}
	}
	return &Error{Kind: KindTransport, Message: "error sending request", Err: err}
}
