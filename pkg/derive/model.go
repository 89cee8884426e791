package derive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/go-pkgz/lgr"

	"github.com/umputun/podscope/pkg/domain"
)

// ModelFetcher downloads url into dest, dest appears only when the download is complete
type ModelFetcher interface {
	Fetch(ctx context.Context, url, dest string) (int64, error)
}

// EnsureModel makes sure the whisper model exists at path, downloading it from url on first use.
// An empty url means the model can't be fetched, a missing file is then engine_unavailable.
func EnsureModel(ctx context.Context, path, url string, fetcher ModelFetcher) error {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, fs.ErrNotExist):
		return domain.LocalError(domain.StageDerive, err)
	case url == "" || fetcher == nil:
		return domain.NewStageError(domain.StageDerive, domain.CodeEngineUnavailable, fmt.Errorf("whisper model: %w", err))
	}

	lgr.Printf("[INFO] whisper model %s not found, downloading from %s", filepath.Base(path), url)
	size, err := fetcher.Fetch(ctx, url, path)
	if err != nil {
		return domain.NewStageError(domain.StageDerive, domain.CodeEngineUnavailable, fmt.Errorf("download whisper model: %w", err))
	}
	lgr.Printf("[INFO] whisper model saved to %s, %s", path, humanize.Bytes(uint64(size))) //nolint:gosec // size is non-negative
	return nil
}
