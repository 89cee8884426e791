// Package derive turns acquired content into plain text: audio is transcribed,
// html pages are reduced to their article text, text files are read as is.
package derive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"
	"golang.org/x/text/unicode/norm"

	"github.com/umputun/podscope/pkg/domain"
)

//go:generate moq -out mocks/transcriber.go -pkg mocks -skip-ensure -fmt goimports . Transcriber

// Transcriber converts an audio file to text
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Extractor pulls readable text out of a document file
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// QualityChecker rejects derived text that is unusable for summarization
type QualityChecker interface {
	Check(text string) error
}

// Router picks the derivation engine by the content file extension
type Router struct {
	Transcriber Transcriber
	HTML        Extractor
	Quality     QualityChecker // defaults to RepetitionChecker
}

var audioExts = map[string]bool{".mp3": true, ".m4a": true, ".aac": true, ".ogg": true, ".opus": true, ".wav": true, ".flac": true}

// Derive returns the NFC-normalized text of the content file
func (r *Router) Derive(ctx context.Context, contentPath string) (string, error) {
	if _, err := os.Stat(contentPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", domain.StageErrorf(domain.StageDerive, domain.CodeInconsistent, "content file %s is missing", contentPath)
		}
		return "", domain.LocalError(domain.StageDerive, err)
	}

	start := time.Now()
	var text string
	var err error
	ext := strings.ToLower(filepath.Ext(contentPath))
	switch {
	case audioExts[ext]:
		if r.Transcriber == nil {
			return "", domain.StageErrorf(domain.StageDerive, domain.CodeEngineUnavailable, "no transcriber configured for %s", ext)
		}
		text, err = r.Transcriber.Transcribe(ctx, contentPath)
	case ext == ".html" || ext == ".htm":
		if r.HTML == nil {
			return "", domain.StageErrorf(domain.StageDerive, domain.CodeEngineUnavailable, "no html extractor configured")
		}
		text, err = r.HTML.Extract(ctx, contentPath)
	case ext == ".txt" || ext == ".md":
		text, err = readPlain(contentPath)
	default:
		return "", domain.StageErrorf(domain.StageDerive, domain.CodeUnsupportedFormat, "no engine for %q files", ext)
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(norm.NFC.String(text))
	if text == "" {
		return "", domain.StageErrorf(domain.StageDerive, domain.CodeBadInput, "no text derived from %s", filepath.Base(contentPath))
	}
	quality := r.Quality
	if quality == nil {
		quality = RepetitionChecker{}
	}
	if err := quality.Check(text); err != nil {
		return "", domain.NewStageError(domain.StageDerive, domain.CodeBadInput, fmt.Errorf("%s: %w", filepath.Base(contentPath), err))
	}

	lgr.Printf("[DEBUG] derived %d bytes of text from %s in %v", len(text), filepath.Base(contentPath), time.Since(start).Round(time.Millisecond))
	return text, nil
}

func readPlain(path string) (string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the store
	if err != nil {
		return "", domain.LocalError(domain.StageDerive, err)
	}
	return string(data), nil
}
