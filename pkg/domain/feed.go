package domain

import "time"

// Feed represents a subscribed feed
type Feed struct {
	ID          int64
	URL         string
	Title       string
	WebsiteURL  string
	Description string
	LastChecked *time.Time
	CreatedAt   time.Time
}

// DisplayName returns the feed title, or its URL when the title is unknown
func (f Feed) DisplayName() string {
	if f.Title != "" {
		return f.Title
	}
	return f.URL
}

// ParsedFeed is the result of fetching and parsing a feed document
type ParsedFeed struct {
	Title       string
	Link        string
	Description string
	Entries     []FeedEntry
}

// FeedEntry is one item as it appears in the upstream feed
type FeedEntry struct {
	GUID        string
	Title       string
	Description string
	SourceURL   string
	Published   *time.Time
	Duration    time.Duration
}
