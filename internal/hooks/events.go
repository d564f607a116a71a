// Package hooks implements the interception contract around the
// conversation lifecycle: before-turn, before-model, before-tool, and
// after-tool hook points, each able to short-circuit the exchange.
//
// Host event representations are converted once at the boundary into the
// typed structs below; the guardrail core never inspects host-specific
// objects.
package hooks

import "strings"

// ContentPart is one text segment of a model request or response.
type ContentPart struct {
	Text string
}

// ModelRequest is the outgoing request the before-model hook may rewrite.
type ModelRequest struct {
	Parts []ContentPart
}

// UserText concatenates the request's text segments for screening.
func (r *ModelRequest) UserText() string {
	var sb strings.Builder
	for _, part := range r.Parts {
		if part.Text != "" {
			sb.WriteString(part.Text)
			sb.WriteString(" ")
		}
	}
	return sb.String()
}

// sanitize replaces empty text segments with a single space. The external
// model API rejects fully empty text parts.
func (r *ModelRequest) sanitize() {
	for i := range r.Parts {
		if r.Parts[i].Text == "" {
			r.Parts[i].Text = " "
		}
	}
}

// ModelResponse is a synthesized response returned by a hook to
// short-circuit the model call.
type ModelResponse struct {
	Parts []ContentPart
}

// NewTextResponse builds a single-segment response.
func NewTextResponse(text string) *ModelResponse {
	return &ModelResponse{Parts: []ContentPart{{Text: text}}}
}

// Text flattens the response segments.
func (r *ModelResponse) Text() string {
	var sb strings.Builder
	for _, part := range r.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String()
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	Name string
	Args map[string]any
}

// Host returns the "host" argument when present.
func (t ToolCall) Host() string {
	if h, ok := t.Args["host"].(string); ok {
		return h
	}
	return ""
}

// ToolResult is the structured result of a tool execution, conventionally a
// string-keyed mapping. A non-nil ToolResult returned from the before-tool
// hook replaces the real execution.
type ToolResult map[string]any
