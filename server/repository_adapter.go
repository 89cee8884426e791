package server

import (
	"context"

	"github.com/umputun/podscope/pkg/domain"
	"github.com/umputun/podscope/pkg/repository"
)

// RepositoryAdapter adapts repositories to the server.Store interface
type RepositoryAdapter struct {
	repos *repository.Repositories
}

// NewRepositoryAdapter creates a new repository adapter
func NewRepositoryAdapter(repos *repository.Repositories) *RepositoryAdapter {
	return &RepositoryAdapter{repos: repos}
}

// GetFeeds returns all subscribed feeds
func (r *RepositoryAdapter) GetFeeds(ctx context.Context) ([]domain.Feed, error) {
	return r.repos.Feed.GetFeeds(ctx)
}

// GetFeed returns a feed by id
func (r *RepositoryAdapter) GetFeed(ctx context.Context, id int64) (*domain.Feed, error) {
	return r.repos.Feed.GetFeed(ctx, id)
}

// GetItem returns an item by id
func (r *RepositoryAdapter) GetItem(ctx context.Context, id int64) (*domain.Item, error) {
	return r.repos.Item.GetItem(ctx, id)
}

// ListItems returns items matching the filter
func (r *RepositoryAdapter) ListItems(ctx context.Context, filter domain.ItemFilter) ([]domain.Item, error) {
	return r.repos.Item.ListItems(ctx, filter)
}

// CountByStatus returns item counts per status, feedID zero counts all items
func (r *RepositoryAdapter) CountByStatus(ctx context.Context, feedID int64) (domain.StatusCounts, error) {
	return r.repos.Item.CountByStatus(ctx, feedID)
}

// CurrentSummary returns the latest summary of the item
func (r *RepositoryAdapter) CurrentSummary(ctx context.Context, itemID int64) (*domain.Summary, error) {
	return r.repos.Summary.CurrentSummary(ctx, itemID)
}

// SummaryHistory returns every summary of the item, newest first
func (r *RepositoryAdapter) SummaryHistory(ctx context.Context, itemID int64) ([]domain.Summary, error) {
	return r.repos.Summary.SummaryHistory(ctx, itemID)
}
