package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/umputun/podscope/pkg/domain"
)

// SummaryRepository stores immutable summary records, many per item
type SummaryRepository struct {
	db *sqlx.DB
}

type summarySQL struct {
	ID           int64      `db:"id"`
	ItemID       int64      `db:"item_id"`
	Overview     string     `db:"overview"`
	Topics       stringsSQL `db:"topics"`
	Takeaways    stringsSQL `db:"takeaways"`
	Quotes       stringsSQL `db:"quotes"`
	Gaps         stringsSQL `db:"gaps"`
	Windows      int        `db:"windows"`
	Content      string     `db:"content"`
	Model        string     `db:"model"`
	PromptTokens *int64     `db:"prompt_tokens"`
	OutputTokens *int64     `db:"output_tokens"`
	CreatedAt    time.Time  `db:"created_at"`
}

// NewSummaryRepository creates a new summary repository
func NewSummaryRepository(db *sqlx.DB) *SummaryRepository {
	return &SummaryRepository{db: db}
}

// PutSummary stores a new summary and marks its item summarized in one transaction.
// The item must be derived, or already summarized when resummarize is set. A summary for
// an item in any other status is refused with ErrStatusConflict.
func (r *SummaryRepository) PutSummary(ctx context.Context, s *domain.Summary, resummarize bool) error {
	row := &summarySQL{
		ItemID:       s.ItemID,
		Overview:     s.Overview,
		Topics:       s.Topics,
		Takeaways:    s.Takeaways,
		Quotes:       s.Quotes,
		Gaps:         s.Gaps,
		Windows:      s.Windows,
		Content:      s.Content,
		Model:        s.Model,
		PromptTokens: s.PromptTokens,
		OutputTokens: s.OutputTokens,
		CreatedAt:    time.Now().UTC(),
	}

	from := domain.StatusDerived
	if resummarize {
		from = domain.StatusSummarized
	}

	return withLockRetry(ctx, func() (err error) {
		tx, err := r.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer func() {
			if err != nil {
				_ = tx.Rollback()
			}
		}()

		res, err := tx.ExecContext(ctx, `
			UPDATE items SET status = 'summarized', summarized_at = ?
			WHERE id = ? AND status = ?`, row.CreatedAt, s.ItemID, string(from))
		if err != nil {
			return fmt.Errorf("update item %d: %w", s.ItemID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("put summary for item %d: %w", s.ItemID, ErrStatusConflict)
		}

		ins, err := tx.NamedExecContext(ctx, `
			INSERT INTO summaries (item_id, overview, topics, takeaways, quotes, gaps, windows,
			                       content, model, prompt_tokens, output_tokens, created_at)
			VALUES (:item_id, :overview, :topics, :takeaways, :quotes, :gaps, :windows,
			        :content, :model, :prompt_tokens, :output_tokens, :created_at)`, row)
		if err != nil {
			return fmt.Errorf("insert summary: %w", err)
		}
		if s.ID, err = ins.LastInsertId(); err != nil {
			return fmt.Errorf("get summary id: %w", err)
		}

		if err = tx.Commit(); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		s.CreatedAt = row.CreatedAt
		return nil
	})
}

// CurrentSummary returns the most recently created summary of the item
func (r *SummaryRepository) CurrentSummary(ctx context.Context, itemID int64) (*domain.Summary, error) {
	var row summarySQL
	err := r.db.GetContext(ctx, &row, "SELECT * FROM summaries WHERE item_id = ? ORDER BY id DESC LIMIT 1", itemID)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("current summary of item %d", itemID))
	}
	return r.toDomainSummary(&row), nil
}

// SummaryHistory returns all summaries of the item, newest first
func (r *SummaryRepository) SummaryHistory(ctx context.Context, itemID int64) ([]domain.Summary, error) {
	var rows []summarySQL
	if err := r.db.SelectContext(ctx, &rows, "SELECT * FROM summaries WHERE item_id = ? ORDER BY id DESC", itemID); err != nil {
		return nil, fmt.Errorf("summary history of item %d: %w", itemID, err)
	}
	res := make([]domain.Summary, len(rows))
	for i := range rows {
		res[i] = *r.toDomainSummary(&rows[i])
	}
	return res, nil
}

func (r *SummaryRepository) toDomainSummary(row *summarySQL) *domain.Summary {
	return &domain.Summary{
		ID:           row.ID,
		ItemID:       row.ItemID,
		Overview:     row.Overview,
		Topics:       row.Topics,
		Takeaways:    row.Takeaways,
		Quotes:       row.Quotes,
		Gaps:         row.Gaps,
		Windows:      row.Windows,
		Content:      row.Content,
		Model:        row.Model,
		PromptTokens: row.PromptTokens,
		OutputTokens: row.OutputTokens,
		CreatedAt:    row.CreatedAt,
	}
}
