package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/podscope/pkg/domain"
)

// ChunkConfig sets the sizes used to decide on and perform chunked summarization, in Counter units
type ChunkConfig struct {
	Capacity int // largest text sent in a single call
	Window   int // target window size
	Overlap  int // units repeated at the start of the next window
}

// DefaultChunkConfig keeps about 5% overlap between windows
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{Capacity: 24000, Window: 8000, Overlap: 400}
}

// ReducerConfig configures a Reducer
type ReducerConfig struct {
	Chunk    ChunkConfig
	Limit    int // engine calls in flight, shared by all items using the reducer
	Retry    RetryPolicy
	Counter  Counter
	Splitter Splitter
}

// Reducer summarizes texts of any size. Texts within capacity take one engine call, longer
// texts are split into overlapping windows summarized in parallel and merged by a final call.
type Reducer struct {
	engine   Summarizer
	chunk    ChunkConfig
	limit    int
	retry    RetryPolicy
	counter  Counter
	splitter Splitter
	sem      chan struct{}
}

// NewReducer makes a Reducer calling engine, missing config values are set to defaults
func NewReducer(engine Summarizer, cfg ReducerConfig) *Reducer {
	def := DefaultChunkConfig()
	if cfg.Chunk.Capacity <= 0 {
		cfg.Chunk.Capacity = def.Capacity
	}
	if cfg.Chunk.Window <= 0 {
		cfg.Chunk.Window = min(def.Window, cfg.Chunk.Capacity)
	}
	if cfg.Chunk.Overlap < 0 || cfg.Chunk.Overlap >= cfg.Chunk.Window {
		cfg.Chunk.Overlap = cfg.Chunk.Window / 20
	}
	if cfg.Counter == nil {
		cfg.Counter = WordCounter{}
	}
	if cfg.Splitter == nil {
		cfg.Splitter = BoundarySplitter{}
	}
	limit := max(cfg.Limit, 1)
	return &Reducer{
		engine:   engine,
		chunk:    cfg.Chunk,
		limit:    limit,
		retry:    cfg.Retry,
		counter:  cfg.Counter,
		splitter: cfg.Splitter,
		sem:      make(chan struct{}, limit),
	}
}

// Summarize produces a structured summary of text. Both paths return the same draft shape,
// the chunked path also sets Windows and discloses windows that could not be summarized in Gaps.
func (r *Reducer) Summarize(ctx context.Context, title, text string) (domain.SummaryDraft, error) {
	if strings.TrimSpace(text) == "" {
		return domain.SummaryDraft{}, domain.StageErrorf(domain.StageSummarize, domain.CodeBadInput, "empty text")
	}

	size := r.counter.Count(text)
	if size <= r.chunk.Capacity {
		draft, err := r.call(ctx, domain.SummaryRequest{Mode: domain.ModeFull, Title: title, Text: text})
		if err == nil {
			draft.Windows = 1
			return draft, nil
		}
		if domain.CodeOf(err) != domain.CodeContextTooLarge {
			return domain.SummaryDraft{}, err
		}
		lgr.Printf("[INFO] %q rejected as too large for a single call (%d units), summarizing in windows", title, size)
	}
	return r.chunked(ctx, title, text)
}

func (r *Reducer) chunked(ctx context.Context, title, text string) (domain.SummaryDraft, error) {
	windows := r.splitter.Split(text, r.chunk.Window, r.chunk.Overlap)
	n := len(windows)
	if n == 0 {
		return domain.SummaryDraft{}, domain.StageErrorf(domain.StageSummarize, domain.CodeBadInput, "no text to split")
	}
	lgr.Printf("[DEBUG] %q split into %d windows", title, n)

	reqs := make([]domain.SummaryRequest, n)
	for i, w := range windows {
		reqs[i] = domain.SummaryRequest{Mode: domain.ModePartial, Title: title, Text: w, Part: i + 1, Parts: n}
	}
	runner := Runner[domain.SummaryRequest, domain.SummaryDraft]{Limit: r.limit, Retry: r.retry}
	results, err := runner.Run(ctx, reqs, r.invoke, nil)
	if err != nil {
		return domain.SummaryDraft{}, err
	}

	var sb strings.Builder
	var gaps []string
	var lastErr error
	usage := usageTotal{complete: true}
	for _, res := range results {
		fmt.Fprintf(&sb, "### Part %d/%d\n\n", res.Index+1, n)
		if res.Err == nil && !res.Skipped {
			sb.WriteString(res.Value.Markdown())
			sb.WriteString("\n")
			usage.add(res.Value.Usage)
			continue
		}
		reason := "not dispatched"
		if res.Err != nil {
			reason = res.Err.Error()
			lastErr = res.Err
		}
		gap := fmt.Sprintf("part %d/%d not summarized: %s", res.Index+1, n, reason)
		gaps = append(gaps, gap)
		fmt.Fprintf(&sb, "[gap: %s]\n\n", gap)
	}

	if len(gaps) == n {
		if lastErr == nil {
			lastErr = errors.New("no window was summarized")
		}
		return domain.SummaryDraft{}, fmt.Errorf("all %d windows failed: %w", n, lastErr)
	}
	if len(gaps) > 0 {
		lgr.Printf("[WARN] %q: %d of %d windows not summarized, merging the rest", title, len(gaps), n)
	}

	draft, err := r.call(ctx, domain.SummaryRequest{Mode: domain.ModeMerge, Title: title, Text: sb.String(), Parts: n})
	if err != nil {
		return domain.SummaryDraft{}, fmt.Errorf("merge %d partial summaries: %w", n, err)
	}
	usage.add(draft.Usage)
	draft.Usage = usage.result()
	draft.Windows = n
	draft.Gaps = gaps
	return draft, nil
}

// call makes one engine call with retries
func (r *Reducer) call(ctx context.Context, req domain.SummaryRequest) (draft domain.SummaryDraft, err error) {
	_, err = r.retry.Do(ctx, func(ctx context.Context) error {
		d, e := r.invoke(ctx, req)
		if e != nil {
			return e
		}
		draft = d
		return nil
	})
	return draft, err
}

// invoke makes one engine call within the shared concurrency limit and validates its output
func (r *Reducer) invoke(ctx context.Context, req domain.SummaryRequest) (domain.SummaryDraft, error) {
	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return domain.SummaryDraft{}, ctx.Err()
	}
	draft, err := r.engine.Summarize(ctx, req)
	<-r.sem
	if err != nil {
		return domain.SummaryDraft{}, err
	}
	if err := draft.Validate(); err != nil {
		// incomplete drafts are retried as upstream failures
		return domain.SummaryDraft{}, domain.NewStageError(domain.StageSummarize, domain.CodeUpstream, err)
	}
	return draft, nil
}

// usageTotal sums token usage over calls, the total is unknown if any call did not report it
type usageTotal struct {
	domain.Usage
	complete bool
}

func (u *usageTotal) add(v *domain.Usage) {
	if v == nil {
		u.complete = false
		return
	}
	u.PromptTokens += v.PromptTokens
	u.OutputTokens += v.OutputTokens
}

func (u *usageTotal) result() *domain.Usage {
	if !u.complete {
		return nil
	}
	res := u.Usage
	return &res
}
