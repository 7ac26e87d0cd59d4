package tools

import (
	"fmt"

	"github.com/sashabaranov/go-openai"
	lctools "github.com/tmc/langchaingo/tools"
)

// Tool is a model-callable function. Call receives the raw JSON argument
// string produced by the model and returns a JSON-encoded result.
type Tool interface {
	lctools.Tool
	Definition() openai.FunctionDefinition
}

// UpstreamError is a non-2xx answer (or transport failure, Status 0) from a
// remote service a tool depends on.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("upstream request failed: %s", e.Body)
	}
	return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Body)
}

func truncateBody(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
