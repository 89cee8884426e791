package domain

import "time"

// Status is the pipeline stage an item has reached
type Status string

// item statuses, in happy-path order
const (
	StatusNew        Status = "new"
	StatusAcquired   Status = "acquired"
	StatusDerived    Status = "derived"
	StatusSummarized Status = "summarized"
	StatusFailed     Status = "failed"
)

// Rank orders statuses along the happy path. Failed ranks below everything.
func (s Status) Rank() int {
	switch s {
	case StatusNew:
		return 1
	case StatusAcquired:
		return 2
	case StatusDerived:
		return 3
	case StatusSummarized:
		return 4
	default:
		return 0
	}
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	return s == StatusFailed || s.Rank() > 0
}

// Short returns a compact tag used in listings
func (s Status) Short() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusAcquired:
		return "acq"
	case StatusDerived:
		return "txt"
	case StatusSummarized:
		return "done"
	case StatusFailed:
		return "err"
	}
	return "?"
}

// Stage names a unit of work in the pipeline
type Stage string

// pipeline stages
const (
	StageFetch     Stage = "fetch"
	StageAcquire   Stage = "acquire"
	StageDerive    Stage = "derive"
	StageSummarize Stage = "summarize"
)

// Input returns the status an item must have for the stage to run on it
func (s Stage) Input() Status {
	switch s {
	case StageAcquire:
		return StatusNew
	case StageDerive:
		return StatusAcquired
	case StageSummarize:
		return StatusDerived
	}
	return ""
}

// Output returns the status an item reaches when the stage succeeds
func (s Stage) Output() Status {
	switch s {
	case StageAcquire:
		return StatusAcquired
	case StageDerive:
		return StatusDerived
	case StageSummarize:
		return StatusSummarized
	}
	return ""
}

// Item is a single episode or article tracked through the pipeline
type Item struct {
	ID           int64
	FeedID       int64 // zero when the feed was removed without purge
	GUID         string
	Title        string
	Description  string
	SourceURL    string
	Published    *time.Time
	Duration     time.Duration
	Status       Status
	Failure      *Failure
	ContentPath  string
	TextPath     string
	InFeed       bool
	DiscoveredAt time.Time
	AcquiredAt   *time.Time
	DerivedAt    *time.Time
	SummarizedAt *time.Time
}

// ItemFilter selects items for listing and stage passes. Zero values mean no restriction.
type ItemFilter struct {
	FeedID   int64
	ItemID   int64
	Statuses []Status
	Limit    int
}

// StatusCounts holds the number of items per status
type StatusCounts map[Status]int

// Total returns the sum over all statuses
func (c StatusCounts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}
