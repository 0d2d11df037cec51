package ai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

var (
	// ErrAPIKeyRequired is returned when an engine is built without a credential.
	ErrAPIKeyRequired = errors.New("ai api key is required")
	// ErrRetrievalWithSchema is returned when a request asks for tool activation
	// and a schema-constrained response at the same time.
	ErrRetrievalWithSchema = errors.New("retrieval tool and response schema are mutually exclusive")
	// ErrEmptyResponse is returned when the engine produced no choices.
	ErrEmptyResponse = errors.New("engine returned no choices")
)

// ContentPart is one entry of a multimodal instruction payload. It is either a
// TextPart or an InlineBinaryPart.
type ContentPart interface {
	contentPart()
}

// TextPart carries plain instruction text.
type TextPart struct {
	Text string
}

// InlineBinaryPart carries a base64 payload with its MIME type. Data never
// contains a data URI header.
type InlineBinaryPart struct {
	Name     string
	MimeType string
	Data     string
}

func (TextPart) contentPart()         {}
func (InlineBinaryPart) contentPart() {}

// Text builds a TextPart.
func Text(text string) TextPart {
	return TextPart{Text: text}
}

// ResponseSchema constrains the engine to a JSON document of the given shape.
type ResponseSchema struct {
	Name   string
	Schema json.RawMessage
}

// GenerateRequest is a single inference call.
type GenerateRequest struct {
	// Operation labels metrics and traces, e.g. "analyze_submission".
	Operation       string
	Parts           []ContentPart
	EnableRetrieval bool
	Schema          *ResponseSchema
}

// Validate rejects requests that combine tool activation with a schema.
func (r GenerateRequest) Validate() error {
	if r.EnableRetrieval && r.Schema != nil {
		return ErrRetrievalWithSchema
	}
	return nil
}

// Engine is an external reasoning engine returning raw response text.
type Engine interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// StripDataURI removes a `data:<mime>;base64,` header from a payload. The MIME
// type found in the header is returned alongside the bare base64 data.
func StripDataURI(payload string) (data string, mimeType string) {
	payload = strings.TrimSpace(payload)
	if !strings.HasPrefix(payload, "data:") {
		if idx := strings.Index(payload, ","); idx >= 0 {
			return payload[idx+1:], ""
		}
		return payload, ""
	}

	idx := strings.Index(payload, ",")
	if idx < 0 {
		return payload, ""
	}

	header := strings.TrimPrefix(payload[:idx], "data:")
	header = strings.TrimSuffix(header, ";base64")
	if semi := strings.Index(header, ";"); semi >= 0 {
		header = header[:semi]
	}

	return payload[idx+1:], header
}
