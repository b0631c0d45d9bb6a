package remote

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Response schemas of the backend endpoints.
const (
	healthSchema = `{
  "type": "object",
  "required": ["status"],
  "properties": {
    "status": {"type": "string"},
    "stt_ready": {"type": "boolean"},
    "tts_ready": {"type": "boolean"},
    "services": {
      "type": "object",
      "properties": {
        "stt": {"type": "boolean"},
        "tts": {"type": "boolean"},
        "llm": {"type": "boolean"}
      }
    }
  },
  "anyOf": [
    {"required": ["stt_ready", "tts_ready"]},
    {"required": ["services"]}
  ]
}`

	transcriptionSchema = `{
  "type": "object",
  "required": ["text"],
  "properties": {
    "text": {"type": "string"},
    "success": {"type": "boolean"},
    "confidence": {"type": ["number", "null"]}
  }
}`

	conversationSchema = `{
  "type": "object",
  "properties": {
    "text_response": {"type": "string"},
    "assistant_text": {"type": "string"},
    "user_text": {"type": "string"},
    "audio_url": {"type": ["string", "null"]},
    "audio_path": {"type": ["string", "null"]}
  },
  "anyOf": [
    {"required": ["text_response"]},
    {"required": ["assistant_text"]}
  ]
}`

	rootSchema = `{
  "type": "object",
  "required": ["version"],
  "properties": {
    "message": {"type": "string"},
    "version": {"type": "string"}
  }
}`
)

// schemaValidator compiles each schema once and validates response bodies.
type schemaValidator struct {
	mu    sync.Mutex
	cache map[string]*gojsonschema.Schema
}

func newSchemaValidator() *schemaValidator {
	return &schemaValidator{cache: make(map[string]*gojsonschema.Schema)}
}

// validate checks body against schemaJSON, returning a MalformedResponseError
// describing every violation.
func (sv *schemaValidator) validate(op, schemaJSON string, body []byte) error {
	schema, err := sv.getSchema(schemaJSON)
	if err != nil {
		return fmt.Errorf("invalid %s response schema: %w", op, err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return &MalformedResponseError{Op: op, Detail: "response is not valid JSON", Cause: err}
	}
	if !result.Valid() {
		msgs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			msgs[i] = desc.String()
		}
		return &MalformedResponseError{Op: op, Detail: strings.Join(msgs, "; ")}
	}
	return nil
}

func (sv *schemaValidator) getSchema(schemaJSON string) (*gojsonschema.Schema, error) {
	sv.mu.Lock()
	defer sv.mu.Unlock()

	if schema, ok := sv.cache[schemaJSON]; ok {
		return schema, nil
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, err
	}
	sv.cache[schemaJSON] = schema
	return schema, nil
}
