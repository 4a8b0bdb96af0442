package reconcile

import (
	"bytes"
	"encoding/json"
	"regexp"

	"github.com/buger/jsonparser"
)

// Shape is the form a raw service response took.
type Shape int

const (
	// ShapeEnvelope is a chat-completion envelope whose first choice carries
	// the payload as a message content string.
	ShapeEnvelope Shape = iota
	// ShapeDirect is the structured payload at the top level.
	ShapeDirect
	// ShapeText is anything that is not structured data.
	ShapeText
)

func (s Shape) String() string {
	switch s {
	case ShapeEnvelope:
		return "envelope"
	case ShapeDirect:
		return "direct"
	default:
		return "text"
	}
}

// Payload is a decoded response: the shape it arrived in, the working text
// after unwrapping, and whether that text is a structured object.
type Payload struct {
	Shape      Shape
	Text       string
	Structured []byte
}

// fencePattern matches a whole payload wrapped in a fenced code block,
// optionally tagged with a language.
var fencePattern = regexp.MustCompile("(?is)^```[ \\t]*(?:json|javascript|js)?[ \\t]*\\r?\\n?(.*?)\\r?\\n?```$")

// Decode classifies raw by checking, in order, for a chat-completion
// envelope, a direct object, and finally plain text.
func Decode(raw []byte) Payload {
	trimmed := bytes.TrimSpace(raw)

	if isObject(trimmed) {
		content, err := jsonparser.GetString(trimmed, "choices", "[0]", "message", "content")
		if err == nil && content != "" {
			return payloadFrom(ShapeEnvelope, content)
		}
		return Payload{Shape: ShapeDirect, Text: string(trimmed), Structured: trimmed}
	}

	return payloadFrom(ShapeText, string(trimmed))
}

func payloadFrom(shape Shape, text string) Payload {
	p := Payload{Shape: shape, Text: text}
	if working := StripFences([]byte(text)); isObject(working) {
		p.Structured = working
	}
	return p
}

// StripFences removes a leading and trailing fenced-code-block wrapper.
func StripFences(b []byte) []byte {
	trimmed := bytes.TrimSpace(b)
	if m := fencePattern.FindSubmatch(trimmed); m != nil {
		return bytes.TrimSpace(m[1])
	}
	return trimmed
}

func isObject(b []byte) bool {
	return len(b) > 0 && b[0] == '{' && json.Valid(b)
}
