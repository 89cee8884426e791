package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/umputun/podscope/pkg/domain"
)

// textStore keeps derived text as <dir>/<feed id>/<item id>.txt
type textStore struct {
	dir string
}

// write stores the text of item atomically and returns its path
func (s textStore) write(item domain.Item, text string) (string, error) {
	dir := filepath.Join(s.dir, strconv.FormatInt(item.FeedID, 10))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", domain.LocalError(domain.StageDerive, err)
	}
	path := filepath.Join(dir, strconv.FormatInt(item.ID, 10)+".txt")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(text), 0o600); err != nil {
		_ = os.Remove(tmp)
		return "", domain.LocalError(domain.StageDerive, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", domain.LocalError(domain.StageDerive, err)
	}
	return path, nil
}

// readText loads derived text. A missing file of a derived item is an integrity problem, not a disk one.
func readText(path string) (string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the store
	if errors.Is(err, fs.ErrNotExist) {
		return "", domain.StageErrorf(domain.StageSummarize, domain.CodeInconsistent, "text file %s is missing", path)
	}
	if err != nil {
		return "", domain.LocalError(domain.StageSummarize, fmt.Errorf("read text: %w", err))
	}
	return string(data), nil
}

// removeContent deletes an acquired file, a file already gone is fine
func removeContent(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove content %s: %w", path, err)
	}
	return nil
}
