package relay

import "fmt"

// Kind classifies why a relayed request failed.
type Kind int

const (
	// KindTransport covers DNS, connect, TLS, timeout and cancellation failures.
	KindTransport Kind = iota + 1
	// KindUpstream means the provider answered with a non-2xx status.
	KindUpstream
	// KindDecode means a 2xx body was not valid JSON.
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindUpstream:
		return "upstream_status"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Error is returned by Service.Chat. Message never carries upstream response content.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}
