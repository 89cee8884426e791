// Package acquire stores the raw content of feed items on local disk
package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-pkgz/lgr"

	"github.com/umputun/podscope/pkg/domain"
)

// Options configures a Downloader
type Options struct {
	Dir       string        // root of the content store, files go to <Dir>/<feed id>/
	Timeout   time.Duration // whole transfer, zero means no limit
	UserAgent string
	MaxSize   int64 // bytes, zero means no limit
}

// Downloader streams item content to disk. A download goes to a .part file renamed on completion,
// so a file under its final name is always complete.
type Downloader struct {
	Options
	client *http.Client
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// contentExts maps accepted content types to file extensions
var contentExts = map[string]string{
	"audio/mpeg":            ".mp3",
	"audio/mp3":             ".mp3",
	"audio/mp4":             ".m4a",
	"audio/x-m4a":           ".m4a",
	"audio/aac":             ".aac",
	"audio/ogg":             ".ogg",
	"audio/opus":            ".opus",
	"audio/wav":             ".wav",
	"audio/x-wav":           ".wav",
	"audio/flac":            ".flac",
	"text/html":             ".html",
	"application/xhtml+xml": ".html",
	"text/plain":            ".txt",
	"text/markdown":         ".md",
}

// NewDownloader makes a Downloader
func NewDownloader(opts Options) *Downloader {
	return &Downloader{
		Options: opts,
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Acquire downloads the item's source and returns the local path
func (d *Downloader) Acquire(ctx context.Context, item domain.Item) (string, error) {
	u, err := url.Parse(item.SourceURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", domain.StageErrorf(domain.StageAcquire, domain.CodeBadInput, "invalid source url %q", item.SourceURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.SourceURL, http.NoBody)
	if err != nil {
		return "", domain.NewStageError(domain.StageAcquire, domain.CodeBadInput, err)
	}
	if d.UserAgent != "" {
		req.Header.Set("User-Agent", d.UserAgent)
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return "", domain.NewStageError(domain.StageAcquire, domain.CodeForTransport(err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", domain.StageErrorf(domain.StageAcquire, domain.CodeForHTTPStatus(resp.StatusCode),
			"get %s: status %d", item.SourceURL, resp.StatusCode)
	}
	ext, err := extension(u, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", err
	}
	if d.MaxSize > 0 && resp.ContentLength > d.MaxSize {
		return "", domain.StageErrorf(domain.StageAcquire, domain.CodeBadInput, "content is %s, limit %s",
			humanize.Bytes(uint64(resp.ContentLength)), humanize.Bytes(uint64(d.MaxSize)))
	}

	dir := filepath.Join(d.Dir, strconv.FormatInt(item.FeedID, 10))
	if err = os.MkdirAll(dir, 0o750); err != nil {
		return "", domain.LocalError(domain.StageAcquire, err)
	}
	dest := filepath.Join(dir, fileName(item, u, ext))
	size, err := d.save(resp.Body, dest)
	if err != nil {
		return "", err
	}

	lgr.Printf("[INFO] downloaded %q, %s in %v", item.Title, humanize.Bytes(uint64(size)), time.Since(start).Round(time.Millisecond))
	return dest, nil
}

// Fetch downloads url into dest through the same .part file as Acquire, logging progress of
// long transfers. It serves files that are not feed items, like transcription models.
func (d *Downloader) Fetch(ctx context.Context, rawURL, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return 0, domain.NewStageError(domain.StageAcquire, domain.CodeBadInput, err)
	}
	if d.UserAgent != "" {
		req.Header.Set("User-Agent", d.UserAgent)
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, domain.NewStageError(domain.StageAcquire, domain.CodeForTransport(err), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, domain.StageErrorf(domain.StageAcquire, domain.CodeForHTTPStatus(resp.StatusCode),
			"get %s: status %d", rawURL, resp.StatusCode)
	}

	if err = os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return 0, domain.LocalError(domain.StageAcquire, err)
	}
	body := &progressReader{r: resp.Body, name: filepath.Base(dest), total: resp.ContentLength, every: 10 * time.Second, last: start}
	size, err := d.save(body, dest)
	if err != nil {
		return 0, err
	}
	lgr.Printf("[INFO] fetched %s, %s in %v", filepath.Base(dest), humanize.Bytes(uint64(size)), time.Since(start).Round(time.Millisecond)) //nolint:gosec
	return size, nil
}

// progressReader logs how much of a transfer is done at most once per interval
type progressReader struct {
	r     io.Reader
	name  string
	total int64 // -1 when unknown
	read  int64
	every time.Duration
	last  time.Time
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	p.read += int64(n)
	if time.Since(p.last) >= p.every {
		p.last = time.Now()
		if p.total > 0 {
			lgr.Printf("[INFO] %s: %s of %s", p.name, humanize.Bytes(uint64(p.read)), humanize.Bytes(uint64(p.total))) //nolint:gosec
		} else {
			lgr.Printf("[INFO] %s: %s", p.name, humanize.Bytes(uint64(p.read))) //nolint:gosec
		}
	}
	return n, err
}

// save streams body into dest through a .part file
func (d *Downloader) save(body io.Reader, dest string) (int64, error) {
	part := dest + ".part"
	f, err := os.Create(part) //nolint:gosec // path is built from ids and a sanitized name
	if err != nil {
		return 0, domain.LocalError(domain.StageAcquire, err)
	}
	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(part)
	}

	src := body
	if d.MaxSize > 0 {
		src = io.LimitReader(body, d.MaxSize+1)
	}
	size, err := io.Copy(f, src)
	if err != nil {
		cleanup()
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			return 0, domain.LocalError(domain.StageAcquire, err)
		}
		return 0, domain.NewStageError(domain.StageAcquire, domain.CodeForTransport(err), fmt.Errorf("read body: %w", err))
	}
	if d.MaxSize > 0 && size > d.MaxSize {
		cleanup()
		return 0, domain.StageErrorf(domain.StageAcquire, domain.CodeBadInput, "content exceeds %s", humanize.Bytes(uint64(d.MaxSize)))
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(part)
		return 0, domain.LocalError(domain.StageAcquire, err)
	}
	if err := os.Rename(part, dest); err != nil {
		_ = os.Remove(part)
		return 0, domain.LocalError(domain.StageAcquire, err)
	}
	return size, nil
}

// extension decides the file extension and rejects content the deriver can't handle
func extension(u *url.URL, contentType string) (string, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = ""
	}
	urlExt := strings.ToLower(path.Ext(u.Path))

	if ext, ok := contentExts[mediaType]; ok {
		if strings.HasPrefix(mediaType, "audio/") && urlExt != "" && isAudioExt(urlExt) {
			return urlExt, nil
		}
		return ext, nil
	}
	switch {
	case mediaType == "", mediaType == "application/octet-stream", mediaType == "binary/octet-stream":
		if isAudioExt(urlExt) {
			return urlExt, nil
		}
		if mediaType == "" && (urlExt == ".html" || urlExt == ".htm" || urlExt == ".txt" || urlExt == ".md") {
			return urlExt, nil
		}
	case strings.HasPrefix(mediaType, "audio/") && isAudioExt(urlExt):
		return urlExt, nil
	}
	return "", domain.StageErrorf(domain.StageAcquire, domain.CodeUnsupportedFormat, "unsupported content %q (%s)", mediaType, u.Path)
}

func isAudioExt(ext string) bool {
	switch ext {
	case ".mp3", ".m4a", ".aac", ".ogg", ".opus", ".wav", ".flac":
		return true
	}
	return false
}

// fileName is <item id>-<sanitized base name><ext>
func fileName(item domain.Item, u *url.URL, ext string) string {
	base := strings.TrimSuffix(path.Base(u.Path), path.Ext(u.Path))
	base = strings.Trim(unsafeName.ReplaceAllString(base, "_"), "_.")
	if len(base) > 60 {
		base = base[:60]
	}
	if base == "" {
		return fmt.Sprintf("%d%s", item.ID, ext)
	}
	return fmt.Sprintf("%d-%s%s", item.ID, base, ext)
}
