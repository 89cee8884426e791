package pipeline

import (
	"slices"

	"github.com/samber/lo"

	"github.com/umputun/podscope/pkg/domain"
)

// DiffResult is the outcome of comparing a fetched feed with the items already stored for it
type DiffResult struct {
	New        []domain.FeedEntry // unknown guids, in feed order
	Relocated  []domain.FeedEntry // known guids whose source locator changed
	Present    []string           // known guids present in the feed
	Vanished   []string           // known guids absent from the feed, sorted
	Duplicates []string           // guids repeated inside the feed document
	Invalid    int                // entries without guid or locator
	Unchanged  int                // known guids with the same locator
}

// Diff compares feed entries against known items, a map of guid to stored source locator.
// Identity is the guid alone: a known guid with a new locator is relocated, never new.
// Only the first occurrence of a guid inside the document counts.
func Diff(entries []domain.FeedEntry, known map[string]string) DiffResult {
	var res DiffResult
	seen := make(map[string]bool, len(entries))

	for _, e := range entries {
		if e.GUID == "" || e.SourceURL == "" {
			res.Invalid++
			continue
		}
		if seen[e.GUID] {
			res.Duplicates = append(res.Duplicates, e.GUID)
			continue
		}
		seen[e.GUID] = true

		locator, ok := known[e.GUID]
		switch {
		case !ok:
			res.New = append(res.New, e)
		case locator != e.SourceURL:
			res.Relocated = append(res.Relocated, e)
			res.Present = append(res.Present, e.GUID)
		default:
			res.Unchanged++
			res.Present = append(res.Present, e.GUID)
		}
	}

	res.Vanished = lo.Filter(lo.Keys(known), func(guid string, _ int) bool { return !seen[guid] })
	slices.Sort(res.Vanished)
	return res
}
