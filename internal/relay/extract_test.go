package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fallback = "Sorry, I couldn't process that request."

func TestExtractContent(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "content present", raw: `{"choices":[{"message":{"role":"assistant","content":"hi there"}}]}`, want: "hi there"},
		{name: "content kept verbatim", raw: `{"choices":[{"message":{"content":"  line1\nline2 é "}}]}`, want: "  line1\nline2 é "},
		{name: "empty string is content", raw: `{"choices":[{"message":{"content":""}}]}`, want: ""},
		{name: "only first choice used", raw: `{"choices":[{"message":{"content":"first"}},{"message":{"content":"second"}}]}`, want: "first"},
		{name: "no choices", raw: `{"id":"cmpl-1"}`, want: fallback},
		{name: "empty choices", raw: `{"choices":[]}`, want: fallback},
		{name: "null content", raw: `{"choices":[{"message":{"content":null}}]}`, want: fallback},
		{name: "numeric content", raw: `{"choices":[{"message":{"content":42}}]}`, want: fallback},
		{name: "object content", raw: `{"choices":[{"message":{"content":{"text":"x"}}}]}`, want: fallback},
		{name: "top level array", raw: `[1,2,3]`, want: fallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractContent([]byte(tt.raw), fallback)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractContent_InvalidJSON(t *testing.T) {
	for _, raw := range []string{"", "not json", `{"choices":[`, "<html>502</html>"} {
		t.Run(raw, func(t *testing.T) {
			_, err := ExtractContent([]byte(raw), fallback)
			assert.ErrorIs(t, err, ErrInvalidJSON)
		})
	}
}
