package pipeline

import (
	"context"
	"time"

	"github.com/umputun/podscope/pkg/domain"
)

//go:generate moq -out mocks/feed_source.go -pkg mocks -skip-ensure -fmt goimports . FeedSource
//go:generate moq -out mocks/acquirer.go -pkg mocks -skip-ensure -fmt goimports . Acquirer
//go:generate moq -out mocks/deriver.go -pkg mocks -skip-ensure -fmt goimports . Deriver
//go:generate moq -out mocks/summarizer.go -pkg mocks -skip-ensure -fmt goimports . Summarizer

// FeedSource fetches and parses a feed document
type FeedSource interface {
	Fetch(ctx context.Context, url string) (*domain.ParsedFeed, error)
}

// Acquirer stores the raw content of an item locally and returns its path
type Acquirer interface {
	Acquire(ctx context.Context, item domain.Item) (string, error)
}

// Deriver turns acquired content into text
type Deriver interface {
	Derive(ctx context.Context, contentPath string) (string, error)
}

// Summarizer is a single call to the summarization engine
type Summarizer interface {
	Summarize(ctx context.Context, req domain.SummaryRequest) (domain.SummaryDraft, error)
}

// FeedStore is the feed part of the store used by the orchestrator
type FeedStore interface {
	GetFeed(ctx context.Context, id int64) (*domain.Feed, error)
	GetFeeds(ctx context.Context) ([]domain.Feed, error)
	UpdateFeedInfo(ctx context.Context, id int64, title, websiteURL, description string) error
	UpdateFeedChecked(ctx context.Context, id int64, checked time.Time) error
}

// ItemStore is the item part of the store. Every call is atomic and touches a single item,
// except SetInFeed which flags many items of one feed.
type ItemStore interface {
	AddItem(ctx context.Context, feedID int64, entry domain.FeedEntry) (*domain.Item, bool, error)
	GetItem(ctx context.Context, id int64) (*domain.Item, error)
	KnownItems(ctx context.Context, feedID int64) (map[string]string, error)
	ListItems(ctx context.Context, filter domain.ItemFilter) ([]domain.Item, error)
	UpdateItemLocator(ctx context.Context, feedID int64, guid, sourceURL string) error
	SetInFeed(ctx context.Context, feedID int64, guids []string, inFeed bool) error
	MarkAcquired(ctx context.Context, id int64, contentPath string) error
	MarkDerived(ctx context.Context, id int64, textPath string) error
	MarkFailed(ctx context.Context, id int64, f domain.Failure) error
	ResetFailed(ctx context.Context, id int64) (domain.Status, error)
	ResetToAcquired(ctx context.Context, id int64) error
}

// SummaryStore stores summaries, marking the item summarized in the same write.
// An already summarized item takes a new summary only with resummarize set.
type SummaryStore interface {
	PutSummary(ctx context.Context, s *domain.Summary, resummarize bool) error
}

// RunLocker holds feeds for the duration of a run. A key is a feed id, or the negated id of
// a detached item. Keys are taken all or none, a false return means another run holds one.
// A hold whose heartbeat is older than staleAfter belongs to a dead run and is taken over.
type RunLocker interface {
	AcquireRunLock(ctx context.Context, runID string, keys []int64, staleAfter time.Duration) (bool, error)
	RefreshRunLock(ctx context.Context, runID string) error
	ReleaseRunLock(ctx context.Context, runID string) error
}
