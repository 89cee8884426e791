package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/umputun/podscope/pkg/domain"
)

// FeedRepository handles feed-related database operations
type FeedRepository struct {
	db *sqlx.DB
}

// feedSQL represents a feed for SQL operations
type feedSQL struct {
	ID          int64      `db:"id"`
	URL         string     `db:"url"`
	Title       string     `db:"title"`
	WebsiteURL  string     `db:"website_url"`
	Description string     `db:"description"`
	LastChecked *time.Time `db:"last_checked"`
	CreatedAt   time.Time  `db:"created_at"`
}

// NewFeedRepository creates a new feed repository
func NewFeedRepository(db *sqlx.DB) *FeedRepository {
	return &FeedRepository{db: db}
}

// CreateFeed inserts a feed unless one with the same URL exists.
// Returns the stored feed and whether it was created by this call.
func (r *FeedRepository) CreateFeed(ctx context.Context, feed *domain.Feed) (*domain.Feed, bool, error) {
	row := &feedSQL{
		URL:         feed.URL,
		Title:       feed.Title,
		WebsiteURL:  feed.WebsiteURL,
		Description: feed.Description,
		CreatedAt:   time.Now().UTC(),
	}

	var created bool
	err := withLockRetry(ctx, func() error {
		res, err := r.db.NamedExecContext(ctx, `
			INSERT INTO feeds (url, title, website_url, description, created_at)
			VALUES (:url, :title, :website_url, :description, :created_at)
			ON CONFLICT(url) DO NOTHING`, row)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		created = n > 0
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("create feed: %w", err)
	}

	stored, err := r.GetFeedByURL(ctx, feed.URL)
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

// GetFeed retrieves a feed by ID
func (r *FeedRepository) GetFeed(ctx context.Context, id int64) (*domain.Feed, error) {
	var row feedSQL
	if err := r.db.GetContext(ctx, &row, "SELECT * FROM feeds WHERE id = ?", id); err != nil {
		return nil, notFound(err, fmt.Sprintf("get feed %d", id))
	}
	return r.toDomainFeed(&row), nil
}

// GetFeedByURL retrieves a feed by its URL
func (r *FeedRepository) GetFeedByURL(ctx context.Context, url string) (*domain.Feed, error) {
	var row feedSQL
	if err := r.db.GetContext(ctx, &row, "SELECT * FROM feeds WHERE url = ?", url); err != nil {
		return nil, notFound(err, fmt.Sprintf("get feed by url %q", url))
	}
	return r.toDomainFeed(&row), nil
}

// FindFeed resolves a user-supplied reference: numeric ID, exact URL, or a case-insensitive title fragment
func (r *FeedRepository) FindFeed(ctx context.Context, ref string) (*domain.Feed, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return r.GetFeed(ctx, id)
	}
	if f, err := r.GetFeedByURL(ctx, ref); err == nil {
		return f, nil
	}

	var rows []feedSQL
	err := r.db.SelectContext(ctx, &rows,
		"SELECT * FROM feeds WHERE LOWER(title) LIKE '%' || LOWER(?) || '%' ORDER BY id", ref)
	if err != nil {
		return nil, fmt.Errorf("find feed %q: %w", ref, err)
	}
	switch len(rows) {
	case 0:
		return nil, fmt.Errorf("find feed %q: %w", ref, ErrNotFound)
	case 1:
		return r.toDomainFeed(&rows[0]), nil
	}
	titles := make([]string, len(rows))
	for i, row := range rows {
		titles[i] = row.Title
	}
	return nil, fmt.Errorf("find feed %q, matches %s: %w", ref, strings.Join(titles, ", "), ErrAmbiguous)
}

// GetFeeds retrieves all feeds ordered by ID
func (r *FeedRepository) GetFeeds(ctx context.Context) ([]domain.Feed, error) {
	var rows []feedSQL
	if err := r.db.SelectContext(ctx, &rows, "SELECT * FROM feeds ORDER BY id"); err != nil {
		return nil, fmt.Errorf("get feeds: %w", err)
	}
	feeds := make([]domain.Feed, len(rows))
	for i := range rows {
		feeds[i] = *r.toDomainFeed(&rows[i])
	}
	return feeds, nil
}

// UpdateFeedInfo refreshes the descriptive fields reported by the upstream feed
func (r *FeedRepository) UpdateFeedInfo(ctx context.Context, id int64, title, websiteURL, description string) error {
	return withLockRetry(ctx, func() error {
		_, err := r.db.ExecContext(ctx, `
			UPDATE feeds
			SET title = CASE WHEN ? != '' THEN ? ELSE title END,
			    website_url = ?,
			    description = ?
			WHERE id = ?`, title, title, websiteURL, description, id)
		if err != nil {
			return fmt.Errorf("update feed info: %w", err)
		}
		return nil
	})
}

// UpdateFeedChecked records the time of the last successful diff pass
func (r *FeedRepository) UpdateFeedChecked(ctx context.Context, id int64, checked time.Time) error {
	return withLockRetry(ctx, func() error {
		if _, err := r.db.ExecContext(ctx, "UPDATE feeds SET last_checked = ? WHERE id = ?", checked.UTC(), id); err != nil {
			return fmt.Errorf("update feed checked: %w", err)
		}
		return nil
	})
}

// DeleteFeed removes a feed. With purge its items and summaries are deleted and the artifact
// paths of those items are returned for cleanup, otherwise items are detached and kept.
func (r *FeedRepository) DeleteFeed(ctx context.Context, id int64, purge bool) (artifacts []string, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if purge {
		var paths []struct {
			Content string `db:"content_path"`
			Text    string `db:"text_path"`
		}
		if err = tx.SelectContext(ctx, &paths, "SELECT content_path, text_path FROM items WHERE feed_id = ?", id); err != nil {
			return nil, fmt.Errorf("collect artifacts: %w", err)
		}
		for _, p := range paths {
			for _, path := range []string{p.Content, p.Text} {
				if path != "" {
					artifacts = append(artifacts, path)
				}
			}
		}
		if _, err = tx.ExecContext(ctx, "DELETE FROM items WHERE feed_id = ?", id); err != nil {
			return nil, fmt.Errorf("delete items: %w", err)
		}
	} else {
		if _, err = tx.ExecContext(ctx, "UPDATE items SET feed_id = NULL WHERE feed_id = ?", id); err != nil {
			return nil, fmt.Errorf("detach items: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM feeds WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("delete feed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = fmt.Errorf("delete feed %d: %w", id, ErrNotFound)
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return artifacts, nil
}

// toDomainFeed converts feedSQL to domain.Feed
func (r *FeedRepository) toDomainFeed(f *feedSQL) *domain.Feed {
	return &domain.Feed{
		ID:          f.ID,
		URL:         f.URL,
		Title:       f.Title,
		WebsiteURL:  f.WebsiteURL,
		Description: f.Description,
		LastChecked: f.LastChecked,
		CreatedAt:   f.CreatedAt,
	}
}
