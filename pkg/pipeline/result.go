package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/umputun/podscope/pkg/domain"
)

// Phase is the step a run is in
type Phase string

// run phases, in order
const (
	PhaseDiffing     Phase = "diffing"
	PhaseAcquiring   Phase = "acquiring"
	PhaseDeriving    Phase = "deriving"
	PhaseSummarizing Phase = "summarizing"
	PhaseDone        Phase = "done"
)

var (
	// ErrEmptyScope is returned when the scope names nothing to process
	ErrEmptyScope = errors.New("empty scope")
	// ErrRunInProgress is returned when a feed in scope is already being processed
	ErrRunInProgress = errors.New("run already in progress")
)

// Scope selects what a run works on. The zero value means all subscribed feeds.
type Scope struct {
	FeedID int64
	ItemID int64 // takes precedence over FeedID, diffing is skipped
}

func (s Scope) String() string {
	switch {
	case s.ItemID != 0:
		return fmt.Sprintf("item %d", s.ItemID)
	case s.FeedID != 0:
		return fmt.Sprintf("feed %d", s.FeedID)
	}
	return "all feeds"
}

// Options are the force flags of a run
type Options struct {
	RetryFailed bool // reset failed items in scope to the status before the failed stage
	Rederive    bool // send derived and summarized items in scope back for derivation
	Resummarize bool // summarize already summarized items again, adding a new summary record
	AcquireOnly bool // stop after acquisition
}

// ItemFailure is a per-item failure reported by a run
type ItemFailure struct {
	ItemID   int64
	FeedID   int64
	Title    string
	Failure  domain.Failure
	Attempts int
}

// FeedError is a feed that could not be fetched or parsed during a run
type FeedError struct {
	FeedID int64
	URL    string
	Err    error
}

// RunResult is the aggregate report of a run
type RunResult struct {
	RunID      string
	StartedAt  time.Time
	Duration   time.Duration
	Feeds      int // feeds diffed
	NewItems   int
	Relocated  int // known items with an updated source locator
	Unchanged  int // known items found unchanged in their feed
	Acquired   int
	Derived    int
	Summarized int
	Failed     int
	Skipped    int // items not dispatched because the run was cancelled or aborted
	Failures   []ItemFailure
	Integrity  []ItemFailure // items left untouched because their stored state is inconsistent, not counted as failed
	FeedErrors []FeedError
}

// Empty reports whether the run found nothing to do
func (r *RunResult) Empty() bool {
	return r.NewItems == 0 && r.Relocated == 0 && r.Acquired == 0 && r.Derived == 0 &&
		r.Summarized == 0 && r.Failed == 0 && len(r.Integrity) == 0 && len(r.FeedErrors) == 0
}

func (r *RunResult) String() string {
	return fmt.Sprintf("feeds: %d, new: %d, relocated: %d, unchanged: %d, acquired: %d, derived: %d, "+
		"summarized: %d, failed: %d, integrity: %d, skipped: %d, feed errors: %d, took %v",
		r.Feeds, r.NewItems, r.Relocated, r.Unchanged, r.Acquired, r.Derived,
		r.Summarized, r.Failed, len(r.Integrity), r.Skipped, len(r.FeedErrors), r.Duration.Round(time.Millisecond))
}

// RunError is a run-fatal condition, distinct from per-item failures
type RunError struct {
	Phase Phase
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run aborted while %s: %v", e.Phase, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }
