package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/umputun/podscope/pkg/domain"
)

// markers of a prompt over the model context window, as reported by OpenAI-compatible servers
var contextMarkers = []string{"context_length_exceeded", "maximum context length", "context length", "context window",
	"too many tokens", "prompt is too long", "request too large"}

// classify converts an openai client error into a *domain.StageError
func classify(stage domain.Stage, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := domain.CodeForHTTPStatus(apiErr.HTTPStatusCode)
		if isContextOverflow(apiErr.HTTPStatusCode, fmtCode(apiErr.Code)+" "+apiErr.Message) {
			code = domain.CodeContextTooLarge
		}
		return domain.NewStageError(stage, code, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		code := domain.CodeForHTTPStatus(reqErr.HTTPStatusCode)
		if isContextOverflow(reqErr.HTTPStatusCode, string(reqErr.Body)) {
			code = domain.CodeContextTooLarge
		}
		return domain.NewStageError(stage, code, err)
	}

	return domain.NewStageError(stage, domain.CodeForTransport(err), err)
}

func isContextOverflow(status int, msg string) bool {
	if status != http.StatusBadRequest && status != http.StatusRequestEntityTooLarge {
		return false
	}
	msg = strings.ToLower(msg)
	for _, m := range contextMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return status == http.StatusRequestEntityTooLarge
}

func fmtCode(code any) string {
	if s, ok := code.(string); ok {
		return s
	}
	return ""
}
