package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/umputun/podscope/pkg/domain"
	"github.com/umputun/podscope/pkg/repository"
)

// Deps are the store and the collaborators used by the orchestrator
type Deps struct {
	Feeds      FeedStore
	Items      ItemStore
	Summaries  SummaryStore
	Locks      RunLocker // nil holds feeds in this process only
	Source     FeedSource
	Acquirer   Acquirer
	Deriver    Deriver
	Summarizer Summarizer
}

// Config holds the run settings. Zero values are replaced by defaults in New.
type Config struct {
	FetchLimit      int
	AcquireLimit    int
	DeriveLimit     int // a local compute-bound engine should get 1
	SummarizeLimit  int
	Retry           RetryPolicy
	Chunk           ChunkConfig
	Counter         Counter
	Splitter        Splitter
	TextDir         string
	MarkUnpublished bool          // flag items that vanished from their feed
	CleanupContent  bool          // delete acquired files once the item is summarized
	LockTTL         time.Duration // a run lock not refreshed for this long is taken over, default 10m
}

// Orchestrator drives feeds and items through the pipeline:
// diffing, acquiring, deriving and summarizing, one strict batch per stage.
type Orchestrator struct {
	Deps
	cfg     Config
	reducer *Reducer
	texts   textStore
}

// New makes an Orchestrator
func New(deps Deps, cfg Config) *Orchestrator {
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = 4
	}
	if cfg.AcquireLimit <= 0 {
		cfg.AcquireLimit = 2
	}
	if cfg.DeriveLimit <= 0 {
		cfg.DeriveLimit = 1
	}
	if cfg.SummarizeLimit <= 0 {
		cfg.SummarizeLimit = 2
	}
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.TextDir == "" {
		cfg.TextDir = filepath.Join("data", "text")
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	if deps.Locks == nil {
		deps.Locks = newFeedLocker()
	}

	return &Orchestrator{
		Deps: deps,
		cfg:  cfg,
		reducer: NewReducer(deps.Summarizer, ReducerConfig{
			Chunk:    cfg.Chunk,
			Limit:    cfg.SummarizeLimit,
			Retry:    cfg.Retry,
			Counter:  cfg.Counter,
			Splitter: cfg.Splitter,
		}),
		texts: textStore{dir: cfg.TextDir},
	}
}

// target is a resolved scope
type target struct {
	feeds []domain.Feed
	item  *domain.Item
}

// Run makes one pass over the scope. Per-item failures are reported in the result and never
// abort the run. Run-fatal conditions are returned as *RunError together with the partial result.
// Cancelling ctx stops dispatching, items already in flight finish and are persisted.
func (o *Orchestrator) Run(ctx context.Context, scope Scope, opts Options) (*RunResult, error) {
	res := &RunResult{RunID: uuid.NewString(), StartedAt: time.Now()}
	lgr.Printf("[INFO] run %s started for %s", res.RunID, scope)
	// store writes outlive cancellation, a finished stage result is always recorded
	storeCtx := context.WithoutCancel(ctx)

	done := func(phase Phase, err error) (*RunResult, error) {
		res.Duration = time.Since(res.StartedAt)
		if err != nil {
			lgr.Printf("[WARN] run %s aborted while %s: %v", res.RunID, phase, err)
			return res, &RunError{Phase: phase, Err: err}
		}
		lgr.Printf("[INFO] run %s done, %s", res.RunID, res)
		return res, nil
	}

	tgt, err := o.resolve(storeCtx, scope)
	if err != nil {
		return done(PhaseDiffing, err)
	}
	release, err := o.lock(storeCtx, res.RunID, lockKeys(tgt))
	if err != nil {
		return done(PhaseDiffing, fmt.Errorf("%s: %w", scope, err))
	}
	defer release()

	if tgt.item == nil {
		if err := o.diffFeeds(ctx, storeCtx, tgt.feeds, res); err != nil {
			return done(PhaseDiffing, err)
		}
		if err := ctx.Err(); err != nil {
			return done(PhaseDiffing, err)
		}
	}
	if err := o.resetForRedo(storeCtx, tgt, opts); err != nil {
		return done(PhaseDiffing, err)
	}

	if err := o.acquirePass(ctx, storeCtx, tgt, res); err != nil {
		return done(PhaseAcquiring, err)
	}
	if opts.AcquireOnly {
		return done(PhaseDone, nil)
	}
	if err := o.derivePass(ctx, storeCtx, tgt, res); err != nil {
		return done(PhaseDeriving, err)
	}
	if err := o.summarizePass(ctx, storeCtx, tgt, opts, res); err != nil {
		return done(PhaseSummarizing, err)
	}
	return done(PhaseDone, nil)
}

// resolve turns a scope into the feeds or the item it names
func (o *Orchestrator) resolve(ctx context.Context, scope Scope) (target, error) {
	switch {
	case scope.ItemID != 0:
		item, err := o.Items.GetItem(ctx, scope.ItemID)
		if errors.Is(err, repository.ErrNotFound) {
			return target{}, fmt.Errorf("item %d: %w", scope.ItemID, ErrEmptyScope)
		}
		if err != nil {
			return target{}, fmt.Errorf("get item %d: %w", scope.ItemID, err)
		}
		return target{item: item}, nil
	case scope.FeedID != 0:
		feed, err := o.Feeds.GetFeed(ctx, scope.FeedID)
		if errors.Is(err, repository.ErrNotFound) {
			return target{}, fmt.Errorf("feed %d: %w", scope.FeedID, ErrEmptyScope)
		}
		if err != nil {
			return target{}, fmt.Errorf("get feed %d: %w", scope.FeedID, err)
		}
		return target{feeds: []domain.Feed{*feed}}, nil
	}

	feeds, err := o.Feeds.GetFeeds(ctx)
	if err != nil {
		return target{}, fmt.Errorf("get feeds: %w", err)
	}
	if len(feeds) == 0 {
		return target{}, fmt.Errorf("no subscribed feeds: %w", ErrEmptyScope)
	}
	return target{feeds: feeds}, nil
}

// lockKeys are feed ids, a detached item is keyed by its negated id
func lockKeys(t target) []int64 {
	if t.item != nil {
		if t.item.FeedID == 0 {
			return []int64{-t.item.ID}
		}
		return []int64{t.item.FeedID}
	}
	return lo.Map(t.feeds, func(f domain.Feed, _ int) int64 { return f.ID })
}

// items lists the items of the target currently in one of statuses
func (o *Orchestrator) items(ctx context.Context, t target, statuses ...domain.Status) ([]domain.Item, error) {
	if t.item != nil {
		item, err := o.Items.GetItem(ctx, t.item.ID)
		if err != nil {
			return nil, fmt.Errorf("get item %d: %w", t.item.ID, err)
		}
		if !slices.Contains(statuses, item.Status) {
			return nil, nil
		}
		return []domain.Item{*item}, nil
	}

	var res []domain.Item
	for _, f := range t.feeds {
		items, err := o.Items.ListItems(ctx, domain.ItemFilter{FeedID: f.ID, Statuses: statuses})
		if err != nil {
			return nil, fmt.Errorf("list items of feed %d: %w", f.ID, err)
		}
		res = append(res, items...)
	}
	return res, nil
}

// diffFeeds fetches every feed and records new and relocated items. A feed that can't be fetched
// is reported and the run goes on with the others.
func (o *Orchestrator) diffFeeds(ctx, storeCtx context.Context, feeds []domain.Feed, res *RunResult) error {
	runner := Runner[domain.Feed, *domain.ParsedFeed]{Name: "fetch", Limit: o.cfg.FetchLimit, Retry: o.cfg.Retry}
	fetch := func(ctx context.Context, f domain.Feed) (*domain.ParsedFeed, error) {
		return o.Source.Fetch(ctx, f.URL)
	}
	_, err := runner.Run(ctx, feeds, fetch, func(r Result[domain.Feed, *domain.ParsedFeed]) error {
		if r.Err != nil {
			lgr.Printf("[WARN] failed to fetch feed %s after %d attempts: %v", r.Input.DisplayName(), r.Attempts, r.Err)
			res.FeedErrors = append(res.FeedErrors, FeedError{FeedID: r.Input.ID, URL: r.Input.URL, Err: r.Err})
			return nil
		}
		res.Feeds++
		return o.applyDiff(storeCtx, r.Input, r.Value, res)
	})
	return err
}

// applyDiff records the difference between a fetched feed and the stored items of that feed
func (o *Orchestrator) applyDiff(ctx context.Context, feed domain.Feed, parsed *domain.ParsedFeed, res *RunResult) error {
	if err := o.Feeds.UpdateFeedInfo(ctx, feed.ID, parsed.Title, parsed.Link, parsed.Description); err != nil {
		return fmt.Errorf("update feed %d: %w", feed.ID, err)
	}
	known, err := o.Items.KnownItems(ctx, feed.ID)
	if err != nil {
		return fmt.Errorf("known items of feed %d: %w", feed.ID, err)
	}

	diff := Diff(parsed.Entries, known)
	if len(diff.Duplicates) > 0 {
		lgr.Printf("[WARN] feed %s repeats guids %v, first occurrence used", feed.DisplayName(), diff.Duplicates)
	}
	if diff.Invalid > 0 {
		lgr.Printf("[WARN] feed %s has %d entries without guid or locator, skipped", feed.DisplayName(), diff.Invalid)
	}

	for _, e := range diff.Relocated {
		if err := o.Items.UpdateItemLocator(ctx, feed.ID, e.GUID, e.SourceURL); err != nil {
			return fmt.Errorf("update locator of %s: %w", e.GUID, err)
		}
		lgr.Printf("[DEBUG] item %s of feed %s moved to %s", e.GUID, feed.DisplayName(), e.SourceURL)
		res.Relocated++
	}
	for _, e := range diff.New {
		_, created, err := o.Items.AddItem(ctx, feed.ID, e)
		if err != nil {
			return fmt.Errorf("add item %s: %w", e.GUID, err)
		}
		if created {
			res.NewItems++
		}
	}
	res.Unchanged += diff.Unchanged

	if o.cfg.MarkUnpublished {
		if err := o.Items.SetInFeed(ctx, feed.ID, diff.Vanished, false); err != nil {
			return fmt.Errorf("flag vanished items of feed %d: %w", feed.ID, err)
		}
		if err := o.Items.SetInFeed(ctx, feed.ID, diff.Present, true); err != nil {
			return fmt.Errorf("flag present items of feed %d: %w", feed.ID, err)
		}
	}

	if err := o.Feeds.UpdateFeedChecked(ctx, feed.ID, time.Now().UTC()); err != nil {
		return fmt.Errorf("update feed %d checked time: %w", feed.ID, err)
	}
	lgr.Printf("[INFO] feed %s: %d new, %d relocated, %d unchanged", feed.DisplayName(),
		len(diff.New), len(diff.Relocated), diff.Unchanged)
	return nil
}

// resetForRedo applies the explicit redo flags before the stage passes
func (o *Orchestrator) resetForRedo(ctx context.Context, t target, opts Options) error {
	if opts.RetryFailed {
		failed, err := o.items(ctx, t, domain.StatusFailed)
		if err != nil {
			return err
		}
		for _, item := range failed {
			status, err := o.Items.ResetFailed(ctx, item.ID)
			if err != nil {
				if domain.KindOf(err) == domain.KindDataIntegrity {
					lgr.Printf("[WARN] can't reset item %d: %v", item.ID, err)
					continue
				}
				return fmt.Errorf("reset failed item %d: %w", item.ID, err)
			}
			lgr.Printf("[DEBUG] item %d reset to %s", item.ID, status)
		}
	}

	if opts.Rederive {
		done, err := o.items(ctx, t, domain.StatusDerived, domain.StatusSummarized)
		if err != nil {
			return err
		}
		for _, item := range done {
			if err := o.Items.ResetToAcquired(ctx, item.ID); err != nil {
				if domain.KindOf(err) == domain.KindDataIntegrity {
					lgr.Printf("[WARN] can't send item %d back for derivation: %v", item.ID, err)
					continue
				}
				return fmt.Errorf("reset item %d to acquired: %w", item.ID, err)
			}
		}
	}
	return nil
}

func (o *Orchestrator) acquirePass(ctx, storeCtx context.Context, t target, res *RunResult) error {
	items, err := o.items(storeCtx, t, domain.StatusNew)
	if err != nil {
		return err
	}
	st := stage[string]{
		o: o, stage: domain.StageAcquire, limit: o.cfg.AcquireLimit, retry: o.cfg.Retry, counter: &res.Acquired,
		work: o.Acquirer.Acquire,
		commit: func(ctx context.Context, item domain.Item, path string) error {
			return o.Items.MarkAcquired(ctx, item.ID, path)
		},
	}
	return st.run(ctx, storeCtx, items, res)
}

func (o *Orchestrator) derivePass(ctx, storeCtx context.Context, t target, res *RunResult) error {
	items, err := o.items(storeCtx, t, domain.StatusAcquired)
	if err != nil {
		return err
	}
	st := stage[string]{
		o: o, stage: domain.StageDerive, limit: o.cfg.DeriveLimit, counter: &res.Derived,
		work: func(ctx context.Context, item domain.Item) (string, error) {
			return o.Deriver.Derive(ctx, item.ContentPath)
		},
		commit: func(ctx context.Context, item domain.Item, text string) error {
			path, err := o.texts.write(item, text)
			if err != nil {
				return err
			}
			return o.Items.MarkDerived(ctx, item.ID, path)
		},
	}
	return st.run(ctx, storeCtx, items, res)
}

func (o *Orchestrator) summarizePass(ctx, storeCtx context.Context, t target, opts Options, res *RunResult) error {
	statuses := []domain.Status{domain.StatusDerived}
	if opts.Resummarize {
		statuses = append(statuses, domain.StatusSummarized)
	}
	items, err := o.items(storeCtx, t, statuses...)
	if err != nil {
		return err
	}
	st := stage[domain.SummaryDraft]{
		o: o, stage: domain.StageSummarize, limit: o.cfg.SummarizeLimit, counter: &res.Summarized,
		work: func(ctx context.Context, item domain.Item) (domain.SummaryDraft, error) {
			text, err := readText(item.TextPath)
			if err != nil {
				return domain.SummaryDraft{}, err
			}
			return o.reducer.Summarize(ctx, item.Title, text)
		},
		commit: func(ctx context.Context, item domain.Item, draft domain.SummaryDraft) error {
			resummarize := item.Status == domain.StatusSummarized
			if err := o.Summaries.PutSummary(ctx, domain.NewSummary(item.ID, draft), resummarize); err != nil {
				return err
			}
			if o.cfg.CleanupContent {
				if err := removeContent(item.ContentPath); err != nil {
					lgr.Printf("[WARN] %v", err)
				}
			}
			return nil
		},
	}
	return st.run(ctx, storeCtx, items, res)
}

// stage is one batch pass: work runs through a Runner, commit persists each success.
// Engine retries of the summarize stage happen inside the reducer, so its pass has no retry policy.
type stage[Out any] struct {
	o       *Orchestrator
	stage   domain.Stage
	limit   int
	retry   RetryPolicy
	counter *int
	work    func(context.Context, domain.Item) (Out, error)
	commit  func(context.Context, domain.Item, Out) error
}

func (s stage[Out]) run(ctx, storeCtx context.Context, items []domain.Item, res *RunResult) error {
	if len(items) == 0 {
		return nil
	}
	lgr.Printf("[INFO] %s: %d items", s.stage, len(items))
	runner := Runner[domain.Item, Out]{Name: string(s.stage), Limit: s.limit, Retry: s.retry}

	results, err := runner.Run(ctx, items, s.work, func(r Result[domain.Item, Out]) error {
		if r.Err != nil {
			return s.o.fail(storeCtx, s.stage, r.Input, r.Err, r.Attempts, res)
		}
		if err := s.commit(storeCtx, r.Input, r.Value); err != nil {
			switch domain.KindOf(err) {
			case domain.KindDataIntegrity:
				lgr.Printf("[WARN] %s result of item %d not recorded: %v", s.stage, r.Input.ID, err)
				res.Integrity = append(res.Integrity, ItemFailure{ItemID: r.Input.ID, FeedID: r.Input.FeedID,
					Title: r.Input.Title, Failure: *domain.FailureFrom(s.stage, err), Attempts: r.Attempts})
				return nil
			case domain.KindLocalResource:
				return s.o.fail(storeCtx, s.stage, r.Input, err, r.Attempts, res)
			}
			return fmt.Errorf("record %s of item %d: %w", s.stage, r.Input.ID, err)
		}
		*s.counter++
		lgr.Printf("[DEBUG] item %d %q: %s done", r.Input.ID, r.Input.Title, s.stage)
		return nil
	})

	res.Skipped += lo.CountBy(results, func(r Result[domain.Item, Out]) bool { return r.Skipped })
	if err != nil {
		return err
	}
	return ctx.Err()
}

// fail records a per-item failure. Only a local resource failure is returned, it is run-fatal.
func (o *Orchestrator) fail(ctx context.Context, stg domain.Stage, item domain.Item, err error, attempts int, res *RunResult) error {
	f := domain.FailureFrom(stg, err)
	rec := ItemFailure{ItemID: item.ID, FeedID: item.FeedID, Title: item.Title, Failure: *f, Attempts: attempts}
	if f.Kind == domain.KindDataIntegrity {
		// left as is for a person to look at
		res.Integrity = append(res.Integrity, rec)
		lgr.Printf("[WARN] item %d %q needs attention: %s", item.ID, item.Title, f)
		return nil
	}
	res.Failed++
	res.Failures = append(res.Failures, rec)
	lgr.Printf("[WARN] item %d %q: %s", item.ID, item.Title, f)

	// a forced re-summarization keeps the summary the item already has
	if stg != domain.StageSummarize || item.Status != domain.StatusSummarized {
		if mErr := o.Items.MarkFailed(ctx, item.ID, *f); mErr != nil {
			if domain.KindOf(mErr) != domain.KindDataIntegrity {
				return fmt.Errorf("mark item %d failed: %w", item.ID, mErr)
			}
			lgr.Printf("[WARN] item %d not marked failed: %v", item.ID, mErr)
		}
	}

	if f.Kind == domain.KindLocalResource {
		return fmt.Errorf("%s of item %d: %w", stg, item.ID, err)
	}
	return nil
}
