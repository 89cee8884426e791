package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/podscope/pkg/domain"
	"github.com/umputun/podscope/pkg/pipeline"
	"github.com/umputun/podscope/pkg/repository"
	"github.com/umputun/podscope/pkg/scheduler"
	"github.com/umputun/podscope/server/mocks"
)

var errNotFound = fmt.Errorf("get item 42: %w", repository.ErrNotFound)

func testSummary(id, itemID int64) domain.Summary {
	draft := domain.SummaryDraft{Overview: "Iterators landed in Go.", Topics: []string{"golang"},
		Takeaways: []string{"Use iter.Seq"}, Quotes: []string{"finally"}, Model: "gpt-4o-mini"}
	s := domain.NewSummary(itemID, draft)
	s.ID = id
	s.CreatedAt = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return *s
}

func TestServer_statusHandler(t *testing.T) {
	store := &mocks.StoreMock{
		CountByStatusFunc: func(_ context.Context, feedID int64) (domain.StatusCounts, error) {
			assert.Zero(t, feedID)
			return domain.StatusCounts{domain.StatusNew: 1, domain.StatusSummarized: 3, domain.StatusFailed: 1}, nil
		},
	}

	t.Run("without scheduler", func(t *testing.T) {
		srv := New(Config{Version: "1.2.3"}, store, nil)
		w := serve(t, srv, "/api/v1/status")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var status map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
		assert.Equal(t, "ok", status["status"])
		assert.Equal(t, "1.2.3", status["version"])
		assert.NotEmpty(t, status["time"])
		assert.InDelta(t, 5, status["total"], 0.001)
		assert.Equal(t, map[string]any{"new": 1.0, "summarized": 3.0, "failed": 1.0}, status["items"])
		assert.NotContains(t, status, "schedule")
	})

	t.Run("with last run", func(t *testing.T) {
		sched := &mocks.SchedulerMock{LastRunFunc: func() *scheduler.LastRun {
			return &scheduler.LastRun{StartedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
				Result: &pipeline.RunResult{RunID: "run-1", NewItems: 2, Summarized: 2, Failed: 1, Duration: 1500 * time.Millisecond,
					Integrity: []pipeline.ItemFailure{{ItemID: 7}}}}
		}}
		srv := New(Config{}, store, sched)
		w := serve(t, srv, "/api/v1/status")
		require.Equal(t, http.StatusOK, w.Code)

		var status struct {
			Schedule string          `json:"schedule"`
			LastRun  lastRunResponse `json:"last_run"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
		assert.Equal(t, "enabled", status.Schedule)
		assert.Equal(t, "run-1", status.LastRun.RunID)
		assert.Equal(t, 2, status.LastRun.NewItems)
		assert.Equal(t, 1, status.LastRun.Failed)
		assert.Equal(t, 1, status.LastRun.Integrity)
		assert.Equal(t, "1.5s", status.LastRun.Duration)
		assert.Len(t, sched.LastRunCalls(), 1)
	})

	t.Run("store error", func(t *testing.T) {
		failing := &mocks.StoreMock{CountByStatusFunc: func(context.Context, int64) (domain.StatusCounts, error) {
			return nil, errors.New("database is closed")
		}}
		w := serve(t, New(Config{}, failing, nil), "/api/v1/status")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"error":"failed to count items"}`, w.Body.String())
	})
}

func TestServer_feedsHandler(t *testing.T) {
	checked := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store := &mocks.StoreMock{
		GetFeedsFunc: func(context.Context) ([]domain.Feed, error) {
			return []domain.Feed{
				{ID: 1, URL: "https://example.com/go.xml", Title: "Go Time", LastChecked: &checked},
				{ID: 2, URL: "https://example.com/blog.xml"},
			}, nil
		},
		CountByStatusFunc: func(_ context.Context, feedID int64) (domain.StatusCounts, error) {
			if feedID == 1 {
				return domain.StatusCounts{domain.StatusSummarized: 10}, nil
			}
			return domain.StatusCounts{}, nil
		},
	}

	w := serve(t, New(Config{}, store, nil), "/api/v1/feeds")
	require.Equal(t, http.StatusOK, w.Code)

	var feeds []feedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &feeds))
	require.Len(t, feeds, 2)
	assert.Equal(t, "Go Time", feeds[0].Title)
	assert.Equal(t, map[string]int{"summarized": 10}, feeds[0].Items)
	require.NotNil(t, feeds[0].LastChecked)
	assert.True(t, checked.Equal(*feeds[0].LastChecked))
	assert.Empty(t, feeds[1].Items)
	assert.Nil(t, feeds[1].LastChecked)
	assert.Len(t, store.CountByStatusCalls(), 2)
}

func TestServer_feedItemsHandler(t *testing.T) {
	var gotFilter domain.ItemFilter
	store := &mocks.StoreMock{
		GetFeedFunc: func(_ context.Context, id int64) (*domain.Feed, error) {
			if id != 1 {
				return nil, fmt.Errorf("get feed %d: %w", id, repository.ErrNotFound)
			}
			return &domain.Feed{ID: 1}, nil
		},
		ListItemsFunc: func(_ context.Context, filter domain.ItemFilter) ([]domain.Item, error) {
			gotFilter = filter
			return []domain.Item{
				{ID: 11, FeedID: 1, GUID: "ep-2", Title: "Episode 2", Status: domain.StatusFailed, Duration: 90 * time.Second,
					Failure: &domain.Failure{Stage: domain.StageAcquire, Kind: domain.KindPermanentRemote,
						Code: domain.CodeNotFound, Message: "404"}},
				{ID: 10, FeedID: 1, GUID: "ep-1", Title: "Episode 1", Status: domain.StatusSummarized, InFeed: true},
			}, nil
		},
	}
	srv := New(Config{}, store, nil)

	tests := []struct {
		name     string
		path     string
		code     int
		statuses []domain.Status
		limit    int
	}{
		{"default", "/api/v1/feeds/1/items", http.StatusOK, nil, defaultItemsLimit},
		{"filtered", "/api/v1/feeds/1/items?status=failed,%20new&limit=5", http.StatusOK,
			[]domain.Status{domain.StatusFailed, domain.StatusNew}, 5},
		{"limit capped", "/api/v1/feeds/1/items?limit=50000", http.StatusOK, nil, maxItemsLimit},
		{"bad status", "/api/v1/feeds/1/items?status=done", http.StatusBadRequest, nil, 0},
		{"bad limit", "/api/v1/feeds/1/items?limit=-1", http.StatusBadRequest, nil, 0},
		{"bad id", "/api/v1/feeds/abc/items", http.StatusBadRequest, nil, 0},
		{"unknown feed", "/api/v1/feeds/7/items", http.StatusNotFound, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotFilter = domain.ItemFilter{}
			w := serve(t, srv, tt.path)
			require.Equal(t, tt.code, w.Code, w.Body.String())
			if tt.code != http.StatusOK {
				assert.Contains(t, w.Body.String(), `"error"`)
				return
			}
			assert.Equal(t, domain.ItemFilter{FeedID: 1, Statuses: tt.statuses, Limit: tt.limit}, gotFilter)

			var items []itemResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
			require.Len(t, items, 2)
			assert.Equal(t, "failed", items[0].Status)
			assert.Equal(t, int64(90), items[0].DurationSecs)
			require.NotNil(t, items[0].Failure)
			assert.Equal(t, failureResponse{Stage: "acquire", Kind: string(domain.KindPermanentRemote), Code: "not_found",
				Message: "404"}, *items[0].Failure)
			assert.Nil(t, items[1].Failure)
			assert.True(t, items[1].InFeed)
		})
	}
}

func TestServer_itemHandler(t *testing.T) {
	store := &mocks.StoreMock{
		GetItemFunc: func(_ context.Context, id int64) (*domain.Item, error) {
			if id == 42 {
				return nil, errNotFound
			}
			// detached item, its feed was removed
			return &domain.Item{ID: id, GUID: "g", Title: "Orphan", Status: domain.StatusDerived}, nil
		},
	}
	srv := New(Config{}, store, nil)

	w := serve(t, srv, "/api/v1/items/5")
	require.Equal(t, http.StatusOK, w.Code)
	var item map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &item))
	assert.InDelta(t, 5, item["id"], 0.001)
	assert.Equal(t, "derived", item["status"])
	assert.NotContains(t, item, "feed_id")
	assert.NotContains(t, item, "failure")

	w = serve(t, srv, "/api/v1/items/42")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(t, srv, "/api/v1/items/0")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_summaryHandler(t *testing.T) {
	summary := testSummary(3, 7)
	store := &mocks.StoreMock{
		CurrentSummaryFunc: func(_ context.Context, itemID int64) (*domain.Summary, error) {
			if itemID != 7 {
				return nil, fmt.Errorf("current summary of item %d: %w", itemID, repository.ErrNotFound)
			}
			return &summary, nil
		},
	}
	srv := New(Config{}, store, nil)

	t.Run("json", func(t *testing.T) {
		w := serve(t, srv, "/api/v1/items/7/summary")
		require.Equal(t, http.StatusOK, w.Code)
		var res summaryResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		assert.Equal(t, int64(3), res.ID)
		assert.Equal(t, "Iterators landed in Go.", res.Overview)
		assert.Equal(t, []string{"golang"}, res.Topics)
		assert.Equal(t, 1, res.Windows)
		assert.Equal(t, "gpt-4o-mini", res.Model)
		assert.Nil(t, res.PromptTokens, "usage not reported")
		assert.Equal(t, summary.Content, res.Content)
	})

	t.Run("markdown", func(t *testing.T) {
		w := serve(t, srv, "/api/v1/items/7/summary?format=md")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/markdown; charset=utf-8", w.Header().Get("Content-Type"))
		assert.Equal(t, summary.Content, w.Body.String())
	})

	t.Run("html", func(t *testing.T) {
		w := serve(t, srv, "/api/v1/items/7/summary?format=html")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
		body := w.Body.String()
		assert.Contains(t, body, "<h2>Summary</h2>")
		assert.Contains(t, body, "<li>golang</li>")
		assert.Contains(t, body, "<blockquote>")
	})

	t.Run("unknown format", func(t *testing.T) {
		w := serve(t, srv, "/api/v1/items/7/summary?format=pdf")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("not summarized", func(t *testing.T) {
		w := serve(t, srv, "/api/v1/items/8/summary")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestServer_summaryHandlerRawHTML(t *testing.T) {
	summary := domain.Summary{ID: 1, ItemID: 1, Content: "## Summary\n\n<script>alert(1)</script> text\n"}
	store := &mocks.StoreMock{CurrentSummaryFunc: func(context.Context, int64) (*domain.Summary, error) { return &summary, nil }}

	w := serve(t, New(Config{}, store, nil), "/api/v1/items/1/summary?format=html")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "<script>")
}

func TestServer_summariesHandler(t *testing.T) {
	store := &mocks.StoreMock{
		GetItemFunc: func(_ context.Context, id int64) (*domain.Item, error) {
			if id == 42 {
				return nil, errNotFound
			}
			return &domain.Item{ID: id}, nil
		},
		SummaryHistoryFunc: func(_ context.Context, itemID int64) ([]domain.Summary, error) {
			if itemID == 8 {
				return []domain.Summary{}, nil
			}
			return []domain.Summary{testSummary(5, itemID), testSummary(2, itemID)}, nil
		},
	}
	srv := New(Config{}, store, nil)

	w := serve(t, srv, "/api/v1/items/7/summaries")
	require.Equal(t, http.StatusOK, w.Code)
	var res []summaryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res, 2)
	assert.Equal(t, int64(5), res[0].ID, "newest first")
	assert.Equal(t, int64(2), res[1].ID)

	w = serve(t, srv, "/api/v1/items/8/summaries")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String())

	w = serve(t, srv, "/api/v1/items/42/summaries")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Len(t, store.SummaryHistoryCalls(), 2, "history not queried for unknown item")
}
