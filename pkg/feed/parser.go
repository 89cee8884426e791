package feed

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"github.com/umputun/podscope/pkg/domain"
)

// maxFeedSize limits the feed document read into memory
const maxFeedSize = 32 << 20

var audioExts = map[string]bool{".mp3": true, ".m4a": true, ".ogg": true, ".opus": true, ".aac": true, ".wav": true, ".flac": true}

// Parser fetches and parses RSS/Atom feeds
type Parser struct {
	client    *http.Client
	userAgent string
	sanitizer *bluemonday.Policy
}

// NewParser creates a new feed parser
func NewParser(timeout time.Duration, userAgent string) *Parser {
	return &Parser{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent: userAgent,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// Fetch retrieves and parses the feed at url. Failures are *domain.StageError with
// timeout, network, not_found, upstream or malformed codes.
func (p *Parser) Fetch(ctx context.Context, url string) (*domain.ParsedFeed, error) {
	body, err := p.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return p.Parse(io.LimitReader(body, maxFeedSize))
}

// Parse parses a feed document
func (p *Parser) Parse(r io.Reader) (*domain.ParsedFeed, error) {
	feed, err := gofeed.NewParser().Parse(r)
	if err != nil {
		return nil, domain.NewStageError(domain.StageFetch, domain.CodeMalformed, fmt.Errorf("parse feed: %w", err))
	}

	result := &domain.ParsedFeed{
		Title:       strings.TrimSpace(feed.Title),
		Description: p.clean(feed.Description),
		Link:        feed.Link,
		Entries:     make([]domain.FeedEntry, 0, len(feed.Items)),
	}

	for _, item := range feed.Items {
		entry := domain.FeedEntry{
			Title:       strings.TrimSpace(item.Title),
			Description: p.clean(item.Description),
			SourceURL:   locator(item),
		}

		// guid is the identity, a feed without guids falls back to the most stable thing it has
		switch {
		case item.GUID != "":
			entry.GUID = strings.TrimSpace(item.GUID)
		case item.Link != "":
			entry.GUID = item.Link
		default:
			entry.GUID = entry.SourceURL
		}

		if item.PublishedParsed != nil {
			t := item.PublishedParsed.UTC()
			entry.Published = &t
		} else if item.UpdatedParsed != nil {
			t := item.UpdatedParsed.UTC()
			entry.Published = &t
		}
		if item.ITunesExt != nil {
			entry.Duration = parseDuration(item.ITunesExt.Duration)
		}

		result.Entries = append(result.Entries, entry)
	}

	return result, nil
}

// fetch retrieves the feed body, the caller closes it
func (p *Parser) fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, domain.NewStageError(domain.StageFetch, domain.CodeBadInput, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", p.userAgent)
	addBrowserHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, domain.NewStageError(domain.StageFetch, domain.CodeForTransport(err), fmt.Errorf("fetch %s: %w", url, err))
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, domain.StageErrorf(domain.StageFetch, domain.CodeForHTTPStatus(resp.StatusCode),
			"fetch %s: unexpected status code %d", url, resp.StatusCode)
	}
	return resp.Body, nil
}

// clean strips markup from feed text
func (p *Parser) clean(s string) string {
	return strings.TrimSpace(html.UnescapeString(p.sanitizer.Sanitize(s)))
}

// locator picks the content to acquire: an audio enclosure, any enclosure, or the item link
func locator(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if strings.HasPrefix(enc.Type, "audio/") || audioExts[strings.ToLower(path.Ext(stripQuery(enc.URL)))] {
			return enc.URL
		}
	}
	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" {
			return enc.URL
		}
	}
	return item.Link
}

func stripQuery(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		return u[:i]
	}
	return u
}

// parseDuration parses itunes:duration, given as seconds, MM:SS or HH:MM:SS
func parseDuration(s string) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	var total int
	for _, part := range strings.Split(s, ":") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second
}
