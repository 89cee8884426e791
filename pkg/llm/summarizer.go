// Package llm talks to OpenAI-compatible endpoints: chat completions for summaries
// and audio transcriptions for the api transcription backend.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/sashabaranov/go-openai"

	"github.com/umputun/podscope/pkg/config"
	"github.com/umputun/podscope/pkg/domain"
)

// Summarizer produces structured summaries with a chat completion model
type Summarizer struct {
	client    *openai.Client
	config    config.LLMConfig
	systemMsg string
	schema    *jsonschema.Schema
}

// draftSchema is the response shape requested from the model
type draftSchema struct {
	Overview  string   `json:"overview" jsonschema:"description=Narrative summary, two or three paragraphs"`
	Topics    []string `json:"topics" jsonschema:"description=Main topics discussed"`
	Takeaways []string `json:"takeaways" jsonschema:"description=Most important insights and conclusions"`
	Quotes    []string `json:"quotes" jsonschema:"description=Notable direct quotes, may be empty"`
}

// NewSummarizer creates a summarizer for the configured endpoint
func NewSummarizer(cfg config.LLMConfig) *Summarizer {
	clientConfig := openai.DefaultConfig(cfg.Key())
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")
	}
	if cfg.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	// use custom system prompt if provided, otherwise use default
	systemMsg := cfg.SystemPrompt
	if systemMsg == "" {
		systemMsg = defaultSystemPrompt
	}

	s := &Summarizer{client: openai.NewClientWithConfig(clientConfig), config: cfg, systemMsg: systemMsg}
	if cfg.JSONSchema {
		r := jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
		s.schema = r.Reflect(&draftSchema{})
		s.schema.Version = "" // endpoints reject the $schema keyword
		s.schema.ID = ""
	}
	return s
}

// Summarize makes one chat completion call for the request. Errors are *domain.StageError,
// an input over the model context window is reported as context_too_large.
func (s *Summarizer) Summarize(ctx context.Context, req domain.SummaryRequest) (domain.SummaryDraft, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:       s.config.Model,
		Temperature: float32(s.config.Temperature),
		MaxTokens:   s.config.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: s.systemMsg},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(req)},
		},
	}

	// add response format, schema when enabled, plain json object otherwise
	chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	if s.schema != nil {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "summary",
				Schema: s.schema,
				Strict: true,
			},
		}
	}

	resp, err := s.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return domain.SummaryDraft{}, classify(domain.StageSummarize, err)
	}
	if len(resp.Choices) == 0 {
		return domain.SummaryDraft{}, domain.StageErrorf(domain.StageSummarize, domain.CodeUpstream, "no response from llm")
	}
	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonLength && strings.TrimSpace(choice.Message.Content) == "" {
		return domain.SummaryDraft{}, domain.StageErrorf(domain.StageSummarize, domain.CodeContextTooLarge, "no output within the token limit")
	}

	draft, err := parseDraft(choice.Message.Content)
	if err != nil {
		return domain.SummaryDraft{}, domain.NewStageError(domain.StageSummarize, domain.CodeUpstream, err)
	}
	draft.Model = resp.Model
	if draft.Model == "" {
		draft.Model = s.config.Model
	}
	if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
		draft.Usage = &domain.Usage{PromptTokens: int64(resp.Usage.PromptTokens), OutputTokens: int64(resp.Usage.CompletionTokens)}
	}
	return draft, nil
}

// parseDraft extracts the JSON object from the model output, tolerating code fences and chatter around it
func parseDraft(content string) (domain.SummaryDraft, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || start >= end {
		return domain.SummaryDraft{}, fmt.Errorf("no json object found in response")
	}

	var draft domain.SummaryDraft
	if err := json.Unmarshal([]byte(content[start:end+1]), &draft); err != nil {
		return domain.SummaryDraft{}, fmt.Errorf("failed to parse json response: %w", err)
	}
	draft.Overview = strings.TrimSpace(draft.Overview)
	draft.Topics = compact(draft.Topics)
	draft.Takeaways = compact(draft.Takeaways)
	draft.Quotes = compact(draft.Quotes)
	return draft, nil
}

func compact(lines []string) []string {
	res := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			res = append(res, l)
		}
	}
	return res
}
