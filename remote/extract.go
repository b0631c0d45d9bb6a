package remote

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/jmespath/go-jmespath"
)

// DefaultAssistantTextExpression reads the reply from either field name the
// backend has used for it.
const DefaultAssistantTextExpression = "assistant_text || text_response"

// textExtractor evaluates a JMESPath expression against a JSON body and
// requires a non-empty string result.
type textExtractor struct {
	expr string

	once     sync.Once
	compiled *jmespath.JMESPath
	err      error
}

func newTextExtractor(expr string) *textExtractor {
	return &textExtractor{expr: expr}
}

func (e *textExtractor) compile() (*jmespath.JMESPath, error) {
	e.once.Do(func() {
		e.compiled, e.err = jmespath.Compile(e.expr)
	})
	return e.compiled, e.err
}

// extract returns the trimmed string the expression selects from body.
func (e *textExtractor) extract(op string, body []byte) (string, error) {
	compiled, err := e.compile()
	if err != nil {
		return "", fmt.Errorf("invalid JMESPath expression %q: %w", e.expr, err)
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return "", &MalformedResponseError{Op: op, Detail: "response is not valid JSON", Cause: err}
	}
	result, err := compiled.Search(data)
	if err != nil {
		return "", &MalformedResponseError{Op: op, Detail: fmt.Sprintf("JMESPath error: %v", err), Cause: err}
	}
	text, ok := result.(string)
	if !ok || strings.TrimSpace(text) == "" {
		return "", &MalformedResponseError{Op: op, Detail: fmt.Sprintf("%q selected no text", e.expr)}
	}
	return strings.TrimSpace(text), nil
}
