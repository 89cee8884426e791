package derive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-pkgz/lgr"
	"github.com/go-shiori/go-readability"
	"github.com/markusmobius/go-trafilatura"
	"golang.org/x/net/html/charset"

	"github.com/umputun/podscope/pkg/domain"
)

// maxHTMLSize limits the page read into memory
const maxHTMLSize = 16 << 20

// HTMLExtractor extracts article text from a stored html page using trafilatura,
// falling back to readability when trafilatura finds nothing
type HTMLExtractor struct {
	MinLength int // extracted text shorter than this triggers the fallback, default 200
}

// Extract returns the main text of the page at path
func (e HTMLExtractor) Extract(_ context.Context, path string) (string, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // path comes from the store
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", domain.StageErrorf(domain.StageDerive, domain.CodeInconsistent, "page %s is missing", path)
		}
		return "", domain.LocalError(domain.StageDerive, err)
	}
	if len(raw) > maxHTMLSize {
		raw = raw[:maxHTMLSize]
	}

	// pages are stored as downloaded, decode legacy charsets declared in meta tags
	decoded, err := charset.NewReader(bytes.NewReader(raw), "text/html")
	if err != nil {
		return "", domain.NewStageError(domain.StageDerive, domain.CodeMalformed, fmt.Errorf("decode %s: %w", filepath.Base(path), err))
	}
	var page bytes.Buffer
	if _, err = page.ReadFrom(decoded); err != nil {
		return "", domain.NewStageError(domain.StageDerive, domain.CodeMalformed, fmt.Errorf("decode %s: %w", filepath.Base(path), err))
	}

	minLen := e.MinLength
	if minLen <= 0 {
		minLen = 200
	}
	pageURL := &url.URL{Scheme: "file", Path: path}

	opts := trafilatura.Options{
		EnableFallback:  true,
		ExcludeComments: true,
		ExcludeTables:   false,
		IncludeImages:   false,
		IncludeLinks:    false,
		Deduplicate:     true,
		OriginalURL:     pageURL,
	}
	var text string
	result, err := trafilatura.Extract(bytes.NewReader(page.Bytes()), opts)
	if err != nil {
		lgr.Printf("[DEBUG] trafilatura failed on %s: %v", filepath.Base(path), err)
	}
	if err == nil && result != nil {
		text = strings.TrimSpace(result.ContentText)
	}
	if len(text) >= minLen {
		return text, nil
	}

	article, err := readability.FromReader(bytes.NewReader(page.Bytes()), pageURL)
	if err != nil {
		if text != "" {
			return text, nil
		}
		return "", domain.NewStageError(domain.StageDerive, domain.CodeMalformed, fmt.Errorf("extract %s: %w", filepath.Base(path), err))
	}
	if fallback := strings.TrimSpace(article.TextContent); len(fallback) > len(text) {
		lgr.Printf("[DEBUG] readability fallback used for %s", filepath.Base(path))
		text = fallback
	}
	if text == "" {
		return "", domain.StageErrorf(domain.StageDerive, domain.CodeBadInput, "no text content in %s", filepath.Base(path))
	}
	return text, nil
}
