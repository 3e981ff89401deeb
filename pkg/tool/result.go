package tool

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ContentTypeText is the only content type tools produce.
const ContentTypeText = "text"

// Content is one item of a call result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Result is the uniform success envelope of a tool call. IsError marks a
// tool-local failure that the tool chose to report as text.
type Result struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Text returns a result with a single text item.
func Text(text string) *Result {
	return &Result{Content: []Content{{Type: ContentTypeText, Text: text}}}
}

// Textf returns a result with a single formatted text item.
func Textf(format string, args ...any) *Result {
	return Text(fmt.Sprintf(format, args...))
}

// ErrorText returns a tool-local error result.
func ErrorText(format string, args ...any) *Result {
	res := Textf(format, args...)
	res.IsError = true
	return res
}

// JSON returns a result holding v encoded as compact JSON text.
func JSON(v any) (*Result, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return Text(string(data)), nil
}

// String joins the text of every content item.
func (r *Result) String() string {
	if r == nil {
		return ""
	}
	parts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, "\n")
}
