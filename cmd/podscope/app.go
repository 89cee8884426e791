package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/podscope/pkg/acquire"
	"github.com/umputun/podscope/pkg/config"
	"github.com/umputun/podscope/pkg/derive"
	"github.com/umputun/podscope/pkg/feed"
	"github.com/umputun/podscope/pkg/llm"
	"github.com/umputun/podscope/pkg/pipeline"
	"github.com/umputun/podscope/pkg/repository"
)

// app holds the opened store and the config shared by commands
type app struct {
	cfg   *config.Config
	repos *repository.Repositories
	out   io.Writer
}

func newApp(ctx context.Context, cfg *config.Config, out io.Writer) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	repos, err := repository.NewRepositories(ctx, repository.Config{
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &app{cfg: cfg, repos: repos, out: out}, nil
}

func (a *app) close() {
	if err := a.repos.Close(); err != nil {
		lgr.Printf("[WARN] failed to close database: %v", err)
	}
}

func (a *app) feedParser() *feed.Parser {
	return feed.NewParser(a.cfg.Fetch.Timeout, a.cfg.Fetch.UserAgent)
}

// orchestrator wires the collaborators for a run, cpuPercent overrides the configured whisper share
func (a *app) orchestrator(cpuPercent int) *pipeline.Orchestrator {
	c := a.cfg
	deps := pipeline.Deps{
		Feeds:     a.repos.Feed,
		Items:     a.repos.Item,
		Summaries: a.repos.Summary,
		Locks:     a.repos.Lock,
		Source:    a.feedParser(),
		Acquirer: acquire.NewDownloader(acquire.Options{
			Dir:       c.ContentDir(),
			Timeout:   c.Download.Timeout,
			UserAgent: c.Fetch.UserAgent,
			MaxSize:   c.Download.MaxSize,
		}),
		Deriver:    &derive.Router{Transcriber: a.transcriber(cpuPercent), HTML: derive.HTMLExtractor{}},
		Summarizer: llm.NewSummarizer(c.LLM),
	}

	return pipeline.New(deps, pipeline.Config{
		FetchLimit:     c.Fetch.Concurrency,
		AcquireLimit:   c.Download.Concurrency,
		DeriveLimit:    c.Transcription.Concurrency,
		SummarizeLimit: c.LLM.Concurrency,
		Retry: pipeline.RetryPolicy{
			Attempts:  c.Pipeline.RetryAttempts,
			BaseDelay: c.Pipeline.RetryDelay,
			MaxDelay:  c.Pipeline.RetryMaxDelay,
			Jitter:    0.2,
		},
		Chunk:           pipeline.ChunkConfig{Capacity: c.LLM.Chunk.Capacity, Window: c.LLM.Chunk.Window, Overlap: c.LLM.Chunk.Overlap},
		TextDir:         c.TextDir(),
		MarkUnpublished: c.Pipeline.MarkUnpublished,
		CleanupContent:  c.Pipeline.CleanupContent,
	})
}

// transcriber returns the configured speech to text engine, nil when the local engine is missing.
// Audio items then fail with engine_unavailable while text and html items still go through.
func (a *app) transcriber(cpuPercent int) derive.Transcriber {
	t := a.cfg.Transcription
	if t.Backend == "api" {
		return llm.NewAPITranscriber(a.cfg.LLM, t)
	}

	if cpuPercent <= 0 {
		cpuPercent = t.CPUPercent
	}
	w := derive.NewWhisper(derive.WhisperOptions{
		FFmpeg:        t.FFmpeg,
		Binary:        t.WhisperBinary,
		Model:         a.cfg.ModelPath(),
		ModelURL:      a.cfg.ModelDownloadURL(),
		Fetcher:       acquire.NewDownloader(acquire.Options{UserAgent: a.cfg.Fetch.UserAgent}),
		CPUPercent:    min(cpuPercent, 100),
		Language:      t.Language,
		InitialPrompt: t.InitialPrompt,
	})
	if err := w.Available(); err != nil {
		lgr.Printf("[WARN] local transcription disabled: %v", err)
		return nil
	}
	return w
}
