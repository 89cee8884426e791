package llm

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-pkgz/lgr"
	"github.com/sashabaranov/go-openai"

	"github.com/umputun/podscope/pkg/config"
	"github.com/umputun/podscope/pkg/domain"
)

// maxUploadSize is the audio size accepted by the OpenAI transcription endpoint
const maxUploadSize = 25 << 20

// APITranscriber transcribes audio with the endpoint's audio transcription API
type APITranscriber struct {
	client   *openai.Client
	model    string
	language string
	prompt   string
}

// NewAPITranscriber makes a transcriber using the llm endpoint and the transcription settings
func NewAPITranscriber(llmCfg config.LLMConfig, cfg config.TranscriptionConfig) *APITranscriber {
	clientConfig := openai.DefaultConfig(llmCfg.Key())
	if llmCfg.Endpoint != "" {
		clientConfig.BaseURL = strings.TrimSuffix(llmCfg.Endpoint, "/")
	}
	clientConfig.HTTPClient = &http.Client{Timeout: 30 * time.Minute}

	lang := cfg.Language
	if lang == "auto" {
		lang = ""
	}
	return &APITranscriber{
		client:   openai.NewClientWithConfig(clientConfig),
		model:    cfg.APIModel,
		language: lang,
		prompt:   cfg.InitialPrompt,
	}
}

// Transcribe uploads the audio file and returns its transcript
func (t *APITranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	fi, err := os.Stat(audioPath)
	if err != nil {
		return "", domain.LocalError(domain.StageDerive, err)
	}
	if fi.Size() > maxUploadSize {
		return "", domain.StageErrorf(domain.StageDerive, domain.CodeBadInput, "%s is %s, over the %s upload limit",
			filepath.Base(audioPath), humanize.Bytes(uint64(fi.Size())), humanize.Bytes(maxUploadSize))
	}

	start := time.Now()
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: audioPath,
		Language: t.language,
		Prompt:   t.prompt,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", classify(domain.StageDerive, fmt.Errorf("transcribe %s: %w", filepath.Base(audioPath), err))
	}
	lgr.Printf("[INFO] transcribed %s via api in %v", filepath.Base(audioPath), time.Since(start).Round(time.Second))
	return resp.Text, nil
}
