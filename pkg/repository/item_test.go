package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/podscope/pkg/domain"
)

func TestItemRepository_AddItem(t *testing.T) {
	repos := setupTestDB(t)
	ctx := context.Background()
	f := createTestFeed(t, repos, "https://example.com/a.xml")

	published := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	entry := domain.FeedEntry{GUID: "ep-1", Title: "Episode 1", Description: "desc",
		SourceURL: "https://example.com/ep1.mp3", Published: &published, Duration: 95 * time.Minute}

	item, created, err := repos.Item.AddItem(ctx, f.ID, entry)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, f.ID, item.FeedID)
	assert.Equal(t, domain.StatusNew, item.Status)
	assert.Equal(t, "Episode 1", item.Title)
	assert.Equal(t, 95*time.Minute, item.Duration)
	assert.True(t, item.InFeed)
	assert.Nil(t, item.Failure)
	require.NotNil(t, item.Published)
	assert.True(t, published.Equal(*item.Published))

	// same guid never duplicates
	again, created, err := repos.Item.AddItem(ctx, f.ID, domain.FeedEntry{GUID: "ep-1", Title: "changed", SourceURL: "x"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, item.ID, again.ID)
	assert.Equal(t, "Episode 1", again.Title)

	// same guid in another feed is a different item
	other := createTestFeed(t, repos, "https://example.com/b.xml")
	item2, created, err := repos.Item.AddItem(ctx, other.ID, entry)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, item.ID, item2.ID)
}

func TestItemRepository_AddItemConcurrent(t *testing.T) {
	repos := setupTestDB(t)
	ctx := context.Background()
	f := createTestFeed(t, repos, "https://example.com/a.xml")

	var wg sync.WaitGroup
	ids := make([]int64, 10)
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			item, _, err := repos.Item.AddItem(ctx, f.ID, domain.FeedEntry{GUID: "same", SourceURL: "u"})
			assert.NoError(t, err)
			if item != nil {
				ids[i] = item.ID
			}
		}()
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	counts, err := repos.Item.CountByStatus(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Total())
}

func TestItemRepository_KnownItemsAndLocator(t *testing.T) {
	repos := setupTestDB(t)
	ctx := context.Background()
	f := createTestFeed(t, repos, "https://example.com/a.xml")

	for i := 1; i <= 3; i++ {
		_, _, err := repos.Item.AddItem(ctx, f.ID, domain.FeedEntry{GUID: fmt.Sprintf("g%d", i),
			SourceURL: fmt.Sprintf("https://example.com/%d.mp3", i)})
		require.NoError(t, err)
	}

	known, err := repos.Item.KnownItems(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"g1": "https://example.com/1.mp3",
		"g2": "https://example.com/2.mp3",
		"g3": "https://example.com/3.mp3",
	}, known)

	require.NoError(t, repos.Item.UpdateItemLocator(ctx, f.ID, "g2", "https://cdn.example.com/2.mp3"))
	known, err = repos.Item.KnownItems(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/2.mp3", known["g2"])

	require.NoError(t, repos.Item.SetInFeed(ctx, f.ID, []string{"g1", "g3"}, false))
	require.NoError(t, repos.Item.SetInFeed(ctx, f.ID, nil, false))
	items, err := repos.Item.ListItems(ctx, domain.ItemFilter{FeedID: f.ID})
	require.NoError(t, err)
	inFeed := map[string]bool{}
	for _, it := range items {
		inFeed[it.GUID] = it.InFeed
	}
	assert.Equal(t, map[string]bool{"g1": false, "g2": true, "g3": false}, inFeed)
}

func TestItemRepository_ListItems(t *testing.T) {
	repos := setupTestDB(t)
	ctx := context.Background()
	f1 := createTestFeed(t, repos, "https://example.com/a.xml")
	f2 := createTestFeed(t, repos, "https://example.com/b.xml")

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []int64
	for i := range 4 {
		pub := base.Add(time.Duration(i) * time.Hour)
		item, _, err := repos.Item.AddItem(ctx, f1.ID, domain.FeedEntry{GUID: fmt.Sprintf("a%d", i), SourceURL: "u", Published: &pub})
		require.NoError(t, err)
		ids = append(ids, item.ID)
	}
	_, _, err := repos.Item.AddItem(ctx, f2.ID, domain.FeedEntry{GUID: "b0", SourceURL: "u"})
	require.NoError(t, err)
	require.NoError(t, repos.Item.MarkAcquired(ctx, ids[0], "/c/0"))
	require.NoError(t, repos.Item.MarkFailed(ctx, ids[1], domain.Failure{Stage: domain.StageAcquire, Code: domain.CodeNotFound}))

	t.Run("all", func(t *testing.T) {
		items, err := repos.Item.ListItems(ctx, domain.ItemFilter{})
		require.NoError(t, err)
		assert.Len(t, items, 5)
	})

	t.Run("by feed, newest first", func(t *testing.T) {
		items, err := repos.Item.ListItems(ctx, domain.ItemFilter{FeedID: f1.ID})
		require.NoError(t, err)
		require.Len(t, items, 4)
		assert.Equal(t, "a3", items[0].GUID)
		assert.Equal(t, "a0", items[3].GUID)
	})

	t.Run("by status", func(t *testing.T) {
		items, err := repos.Item.ListItems(ctx, domain.ItemFilter{Statuses: []domain.Status{domain.StatusAcquired, domain.StatusFailed}})
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.ElementsMatch(t, []int64{ids[0], ids[1]}, []int64{items[0].ID, items[1].ID})
	})

	t.Run("by item and limit", func(t *testing.T) {
		items, err := repos.Item.ListItems(ctx, domain.ItemFilter{ItemID: ids[2]})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "a2", items[0].GUID)

		items, err = repos.Item.ListItems(ctx, domain.ItemFilter{FeedID: f1.ID, Limit: 2})
		require.NoError(t, err)
		assert.Len(t, items, 2)
	})

	t.Run("counts", func(t *testing.T) {
		counts, err := repos.Item.CountByStatus(ctx, f1.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCounts{domain.StatusNew: 2, domain.StatusAcquired: 1, domain.StatusFailed: 1}, counts)

		all, err := repos.Item.CountByStatus(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, 5, all.Total())
	})
}

func TestItemRepository_Transitions(t *testing.T) {
	repos := setupTestDB(t)
	ctx := context.Background()
	f := createTestFeed(t, repos, "https://example.com/a.xml")
	item, _, err := repos.Item.AddItem(ctx, f.ID, domain.FeedEntry{GUID: "g", SourceURL: "u"})
	require.NoError(t, err)

	// no forward skip
	require.ErrorIs(t, repos.Item.MarkDerived(ctx, item.ID, "/t/1.txt"), ErrStatusConflict)
	s := domain.NewSummary(item.ID, domain.SummaryDraft{Overview: "o"})
	require.ErrorIs(t, repos.Summary.PutSummary(ctx, s, false), ErrStatusConflict)

	// artifacts are required
	require.ErrorIs(t, repos.Item.MarkAcquired(ctx, item.ID, ""), ErrStatusConflict)

	require.NoError(t, repos.Item.MarkAcquired(ctx, item.ID, "/c/1.mp3"))
	// a second acquisition of the same item is a conflict
	err = repos.Item.MarkAcquired(ctx, item.ID, "/c/other.mp3")
	require.ErrorIs(t, err, ErrStatusConflict)
	assert.Equal(t, domain.KindDataIntegrity, domain.KindOf(err))

	require.NoError(t, repos.Item.MarkDerived(ctx, item.ID, "/t/1.txt"))
	got, err := repos.Item.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDerived, got.Status)
	assert.Equal(t, "/c/1.mp3", got.ContentPath)
	assert.Equal(t, "/t/1.txt", got.TextPath)

	_, err = repos.Item.GetItem(ctx, 999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestItemRepository_FailAndReset(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		advance     func(t *testing.T, repos *Repositories, id int64)
		stage       domain.Stage
		wantStatus  domain.Status
		wantContent string
		wantText    string
	}{
		{name: "acquire failure resumes at new", advance: func(*testing.T, *Repositories, int64) {},
			stage: domain.StageAcquire, wantStatus: domain.StatusNew},
		{name: "derive failure resumes at acquired", advance: func(t *testing.T, repos *Repositories, id int64) {
			require.NoError(t, repos.Item.MarkAcquired(ctx, id, "/c/1"))
		}, stage: domain.StageDerive, wantStatus: domain.StatusAcquired, wantContent: "/c/1"},
		{name: "summarize failure resumes at derived", advance: func(t *testing.T, repos *Repositories, id int64) {
			require.NoError(t, repos.Item.MarkAcquired(ctx, id, "/c/1"))
			require.NoError(t, repos.Item.MarkDerived(ctx, id, "/t/1"))
		}, stage: domain.StageSummarize, wantStatus: domain.StatusDerived, wantContent: "/c/1", wantText: "/t/1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repos := setupTestDB(t)
			f := createTestFeed(t, repos, "https://example.com/a.xml")
			item, _, err := repos.Item.AddItem(ctx, f.ID, domain.FeedEntry{GUID: "g", SourceURL: "u"})
			require.NoError(t, err)
			tt.advance(t, repos, item.ID)

			failure := domain.Failure{Stage: tt.stage, Kind: domain.KindPermanentRemote, Code: domain.CodeBadInput, Message: "broken"}
			require.NoError(t, repos.Item.MarkFailed(ctx, item.ID, failure))
			require.ErrorIs(t, repos.Item.MarkFailed(ctx, item.ID, failure), ErrStatusConflict)

			got, err := repos.Item.GetItem(ctx, item.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.StatusFailed, got.Status)
			require.NotNil(t, got.Failure)
			assert.Equal(t, failure, *got.Failure)

			status, err := repos.Item.ResetFailed(ctx, item.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, status)

			got, err = repos.Item.GetItem(ctx, item.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Nil(t, got.Failure)
			assert.Equal(t, tt.wantContent, got.ContentPath)
			assert.Equal(t, tt.wantText, got.TextPath)

			_, err = repos.Item.ResetFailed(ctx, item.ID)
			require.ErrorIs(t, err, ErrStatusConflict)
		})
	}
}

func TestItemRepository_ResetToAcquired(t *testing.T) {
	repos := setupTestDB(t)
	ctx := context.Background()
	f := createTestFeed(t, repos, "https://example.com/a.xml")
	item, _, err := repos.Item.AddItem(ctx, f.ID, domain.FeedEntry{GUID: "g", SourceURL: "u"})
	require.NoError(t, err)

	require.ErrorIs(t, repos.Item.ResetToAcquired(ctx, item.ID), ErrStatusConflict)

	require.NoError(t, repos.Item.MarkAcquired(ctx, item.ID, "/c/1"))
	require.NoError(t, repos.Item.MarkDerived(ctx, item.ID, "/t/1"))
	s := domain.NewSummary(item.ID, domain.SummaryDraft{Overview: "o", Topics: []string{"t"}, Takeaways: []string{"k"}})
	require.NoError(t, repos.Summary.PutSummary(ctx, s, false))

	require.NoError(t, repos.Item.ResetToAcquired(ctx, item.ID))
	got, err := repos.Item.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAcquired, got.Status)
	assert.Empty(t, got.TextPath)
	assert.Nil(t, got.SummarizedAt)

	// history survives the redo
	history, err := repos.Summary.SummaryHistory(ctx, item.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
