package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/umputun/podscope/pkg/domain"
)

// ItemRepository handles item-related database operations
type ItemRepository struct {
	db *sqlx.DB
}

// itemSQL represents an item for SQL operations
type itemSQL struct {
	ID           int64      `db:"id"`
	FeedID       *int64     `db:"feed_id"`
	GUID         string     `db:"guid"`
	Title        string     `db:"title"`
	Description  string     `db:"description"`
	SourceURL    string     `db:"source_url"`
	Published    *time.Time `db:"published"`
	DurationSecs int64      `db:"duration_secs"`
	Status       string     `db:"status"`

	// failure details, empty unless status is failed
	FailStage  string `db:"fail_stage"`
	FailKind   string `db:"fail_kind"`
	FailCode   string `db:"fail_code"`
	FailReason string `db:"fail_reason"`

	// artifacts
	ContentPath string `db:"content_path"`
	TextPath    string `db:"text_path"`

	InFeed       bool       `db:"in_feed"`
	DiscoveredAt time.Time  `db:"discovered_at"`
	AcquiredAt   *time.Time `db:"acquired_at"`
	DerivedAt    *time.Time `db:"derived_at"`
	SummarizedAt *time.Time `db:"summarized_at"`
}

// NewItemRepository creates a new item repository
func NewItemRepository(db *sqlx.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// AddItem inserts a new item for the feed entry. An item with the same guid in the same feed
// is never duplicated, the existing one is returned with created=false.
func (r *ItemRepository) AddItem(ctx context.Context, feedID int64, entry domain.FeedEntry) (*domain.Item, bool, error) {
	row := &itemSQL{
		FeedID:       &feedID,
		GUID:         entry.GUID,
		Title:        entry.Title,
		Description:  entry.Description,
		SourceURL:    entry.SourceURL,
		Published:    entry.Published,
		DurationSecs: int64(entry.Duration / time.Second),
		DiscoveredAt: time.Now().UTC(),
	}

	var created bool
	err := withLockRetry(ctx, func() error {
		res, err := r.db.NamedExecContext(ctx, `
			INSERT INTO items (feed_id, guid, title, description, source_url, published, duration_secs, discovered_at)
			VALUES (:feed_id, :guid, :title, :description, :source_url, :published, :duration_secs, :discovered_at)
			ON CONFLICT(feed_id, guid) DO NOTHING`, row)
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
		return nil, false, fmt.Errorf("add item %q: %w", entry.GUID, err)
	}

	var stored itemSQL
	if err := r.db.GetContext(ctx, &stored, "SELECT * FROM items WHERE feed_id = ? AND guid = ?", feedID, entry.GUID); err != nil {
		return nil, false, notFound(err, fmt.Sprintf("get item %q", entry.GUID))
	}
	return r.toDomainItem(&stored), created, nil
}

// GetItem retrieves an item by ID
func (r *ItemRepository) GetItem(ctx context.Context, id int64) (*domain.Item, error) {
	var row itemSQL
	if err := r.db.GetContext(ctx, &row, "SELECT * FROM items WHERE id = ?", id); err != nil {
		return nil, notFound(err, fmt.Sprintf("get item %d", id))
	}
	return r.toDomainItem(&row), nil
}

// KnownItems returns guid to source locator for every item of the feed
func (r *ItemRepository) KnownItems(ctx context.Context, feedID int64) (map[string]string, error) {
	var rows []struct {
		GUID      string `db:"guid"`
		SourceURL string `db:"source_url"`
	}
	if err := r.db.SelectContext(ctx, &rows, "SELECT guid, source_url FROM items WHERE feed_id = ?", feedID); err != nil {
		return nil, fmt.Errorf("get known items: %w", err)
	}
	res := make(map[string]string, len(rows))
	for _, row := range rows {
		res[row.GUID] = row.SourceURL
	}
	return res, nil
}

// ListItems returns items matching the filter, newest first
func (r *ItemRepository) ListItems(ctx context.Context, filter domain.ItemFilter) ([]domain.Item, error) {
	var where []string
	var args []any
	if filter.FeedID != 0 {
		where = append(where, "feed_id = ?")
		args = append(args, filter.FeedID)
	}
	if filter.ItemID != 0 {
		where = append(where, "id = ?")
		args = append(args, filter.ItemID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		in, inArgs, err := sqlx.In("status IN (?)", statuses)
		if err != nil {
			return nil, fmt.Errorf("build status filter: %w", err)
		}
		where = append(where, in)
		args = append(args, inArgs...)
	}

	query := "SELECT * FROM items"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY COALESCE(published, discovered_at) DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var rows []itemSQL
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	items := make([]domain.Item, len(rows))
	for i := range rows {
		items[i] = *r.toDomainItem(&rows[i])
	}
	return items, nil
}

// CountByStatus returns item counts per status, for one feed or for all when feedID is zero
func (r *ItemRepository) CountByStatus(ctx context.Context, feedID int64) (domain.StatusCounts, error) {
	query := "SELECT status, COUNT(*) AS cnt FROM items"
	var args []any
	if feedID != 0 {
		query += " WHERE feed_id = ?"
		args = append(args, feedID)
	}
	query += " GROUP BY status"

	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"cnt"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("count items by status: %w", err)
	}
	res := domain.StatusCounts{}
	for _, row := range rows {
		res[domain.Status(row.Status)] = row.Count
	}
	return res, nil
}

// UpdateItemLocator changes the source locator of a known item in place
func (r *ItemRepository) UpdateItemLocator(ctx context.Context, feedID int64, guid, sourceURL string) error {
	return withLockRetry(ctx, func() error {
		_, err := r.db.ExecContext(ctx, "UPDATE items SET source_url = ? WHERE feed_id = ? AND guid = ?", sourceURL, feedID, guid)
		if err != nil {
			return fmt.Errorf("update item locator: %w", err)
		}
		return nil
	})
}

// SetInFeed marks items of the feed as present or absent in the upstream document
func (r *ItemRepository) SetInFeed(ctx context.Context, feedID int64, guids []string, inFeed bool) error {
	if len(guids) == 0 {
		return nil
	}
	query, args, err := sqlx.In("UPDATE items SET in_feed = ? WHERE feed_id = ? AND guid IN (?)", inFeed, feedID, guids)
	if err != nil {
		return fmt.Errorf("build in_feed update: %w", err)
	}
	return withLockRetry(ctx, func() error {
		if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...); err != nil {
			return fmt.Errorf("set in_feed: %w", err)
		}
		return nil
	})
}

// MarkAcquired moves a new item to acquired, recording the content location
func (r *ItemRepository) MarkAcquired(ctx context.Context, id int64, contentPath string) error {
	if contentPath == "" {
		return fmt.Errorf("mark item %d acquired: empty content path: %w", id, ErrStatusConflict)
	}
	return r.transition(ctx, id, `
		UPDATE items
		SET status = 'acquired', content_path = ?, acquired_at = ?
		WHERE id = ? AND status = 'new'`, contentPath, time.Now().UTC(), id)
}

// MarkDerived moves an acquired item to derived, recording the text location
func (r *ItemRepository) MarkDerived(ctx context.Context, id int64, textPath string) error {
	if textPath == "" {
		return fmt.Errorf("mark item %d derived: empty text path: %w", id, ErrStatusConflict)
	}
	return r.transition(ctx, id, `
		UPDATE items
		SET status = 'derived', text_path = ?, derived_at = ?
		WHERE id = ? AND status = 'acquired'`, textPath, time.Now().UTC(), id)
}

// MarkFailed moves an item to failed and records the reason. Artifacts of completed stages are kept.
func (r *ItemRepository) MarkFailed(ctx context.Context, id int64, f domain.Failure) error {
	return r.transition(ctx, id, `
		UPDATE items
		SET status = 'failed', fail_stage = ?, fail_kind = ?, fail_code = ?, fail_reason = ?
		WHERE id = ? AND status != 'failed'`,
		string(f.Stage), string(f.Kind), string(f.Code), f.Message, id)
}

// ResetFailed returns a failed item to the status preceding the stage that failed and clears the reason
func (r *ItemRepository) ResetFailed(ctx context.Context, id int64) (domain.Status, error) {
	item, err := r.GetItem(ctx, id)
	if err != nil {
		return "", err
	}
	if item.Status != domain.StatusFailed || item.Failure == nil {
		return "", fmt.Errorf("reset item %d in status %s: %w", id, item.Status, ErrStatusConflict)
	}

	target := item.Failure.ResumeStatus()
	// artifacts must stay consistent with the status the item returns to
	contentPath, textPath := item.ContentPath, item.TextPath
	if target.Rank() < domain.StatusAcquired.Rank() {
		contentPath = ""
	}
	if target.Rank() < domain.StatusDerived.Rank() {
		textPath = ""
	}
	if target == domain.StatusAcquired && contentPath == "" {
		target = domain.StatusNew
	}
	if target == domain.StatusDerived && textPath == "" {
		target = domain.StatusAcquired
		if contentPath == "" {
			target = domain.StatusNew
		}
	}

	err = r.transition(ctx, id, `
		UPDATE items
		SET status = ?, content_path = ?, text_path = ?,
		    fail_stage = '', fail_kind = '', fail_code = '', fail_reason = ''
		WHERE id = ? AND status = 'failed'`, string(target), contentPath, textPath, id)
	if err != nil {
		return "", err
	}
	return target, nil
}

// ResetToAcquired sends a derived or summarized item back for derivation. Summary history is kept.
func (r *ItemRepository) ResetToAcquired(ctx context.Context, id int64) error {
	return r.transition(ctx, id, `
		UPDATE items
		SET status = 'acquired', text_path = '', derived_at = NULL, summarized_at = NULL
		WHERE id = ? AND status IN ('derived', 'summarized') AND content_path != ''`, id)
}

// transition runs a guarded status update and reports ErrStatusConflict when no row matched
func (r *ItemRepository) transition(ctx context.Context, id int64, query string, args ...any) error {
	return withLockRetry(ctx, func() error {
		res, err := r.db.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("update item %d: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update item %d: %w", id, err)
		}
		if n == 0 {
			return fmt.Errorf("update item %d: %w", id, ErrStatusConflict)
		}
		return nil
	})
}

// toDomainItem converts itemSQL to domain.Item
func (r *ItemRepository) toDomainItem(row *itemSQL) *domain.Item {
	item := &domain.Item{
		ID:           row.ID,
		GUID:         row.GUID,
		Title:        row.Title,
		Description:  row.Description,
		SourceURL:    row.SourceURL,
		Published:    row.Published,
		Duration:     time.Duration(row.DurationSecs) * time.Second,
		Status:       domain.Status(row.Status),
		ContentPath:  row.ContentPath,
		TextPath:     row.TextPath,
		InFeed:       row.InFeed,
		DiscoveredAt: row.DiscoveredAt,
		AcquiredAt:   row.AcquiredAt,
		DerivedAt:    row.DerivedAt,
		SummarizedAt: row.SummarizedAt,
	}
	if row.FeedID != nil {
		item.FeedID = *row.FeedID
	}
	if row.FailStage != "" {
		item.Failure = &domain.Failure{
			Stage:   domain.Stage(row.FailStage),
			Kind:    domain.FailureKind(row.FailKind),
			Code:    domain.ErrorCode(row.FailCode),
			Message: row.FailReason,
		}
	}
	return item
}
