package relay

import (
	"errors"

	"github.com/tidwall/gjson"
)

const contentPath = "choices.0.message.content"

// ErrInvalidJSON is returned when a completion body is not a JSON document.
var ErrInvalidJSON = errors.New("invalid JSON")

// ExtractContent returns choices[0].message.content from a completion body.
// A valid document without a string at that path yields fallback and no error.
func ExtractContent(raw []byte, fallback string) (string, error) {
	content, ok, err := extract(raw)
	if err != nil {
		return "", err
	}
	if !ok {
		return fallback, nil
	}
	return content, nil
}

func extract(raw []byte) (string, bool, error) {
	if !gjson.ValidBytes(raw) {
		return "", false, ErrInvalidJSON
	}
	res := gjson.GetBytes(raw, contentPath)
	if !res.Exists() || res.Type != gjson.String {
		return "", false, nil
	}
	return res.Str, true, nil
}
