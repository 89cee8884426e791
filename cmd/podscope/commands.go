package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"gopkg.in/yaml.v3"

	"github.com/umputun/podscope/pkg/config"
	"github.com/umputun/podscope/pkg/domain"
	"github.com/umputun/podscope/pkg/pipeline"
	"github.com/umputun/podscope/pkg/repository"
	"github.com/umputun/podscope/pkg/scheduler"
	"github.com/umputun/podscope/server"
)

// add subscribes to the feed at url and records its current entries as new items
func (a *app) add(ctx context.Context, url string) error {
	if existing, err := a.repos.Feed.GetFeedByURL(ctx, url); err == nil {
		fmt.Fprintf(a.out, "already subscribed to %s (id %d)\n", existing.DisplayName(), existing.ID)
		return nil
	}

	parsed, err := a.feedParser().Fetch(ctx, url)
	if err != nil {
		return fmt.Errorf("fetch feed %s: %w", url, err)
	}
	f, created, err := a.repos.Feed.CreateFeed(ctx, &domain.Feed{URL: url, Title: parsed.Title,
		WebsiteURL: parsed.Link, Description: parsed.Description})
	if err != nil {
		return err
	}
	if !created {
		fmt.Fprintf(a.out, "already subscribed to %s (id %d)\n", f.DisplayName(), f.ID)
		return nil
	}

	diff := pipeline.Diff(parsed.Entries, nil)
	if len(diff.Duplicates) > 0 {
		lgr.Printf("[WARN] feed %s repeats guids %v, first occurrence used", f.DisplayName(), diff.Duplicates)
	}
	if diff.Invalid > 0 {
		lgr.Printf("[WARN] feed %s has %d entries without guid or locator, skipped", f.DisplayName(), diff.Invalid)
	}
	added := 0
	for _, entry := range diff.New {
		if _, isNew, err := a.repos.Item.AddItem(ctx, f.ID, entry); err != nil {
			return err
		} else if isNew {
			added++
		}
	}
	if err := a.repos.Feed.UpdateFeedChecked(ctx, f.ID, time.Now()); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "subscribed to %s (id %d), %d items\n", f.DisplayName(), f.ID, added)
	return nil
}

// remove unsubscribes from a feed. With purge its items, summaries and files are deleted,
// otherwise items stay in the store detached from any feed.
func (a *app) remove(ctx context.Context, ref string, purge bool) error {
	f, err := a.repos.Feed.FindFeed(ctx, ref)
	if err != nil {
		return err
	}
	artifacts, err := a.repos.Feed.DeleteFeed(ctx, f.ID, purge)
	if err != nil {
		return err
	}
	if !purge {
		fmt.Fprintf(a.out, "unsubscribed from %s, items kept\n", f.DisplayName())
		return nil
	}

	removed := 0
	for _, path := range artifacts {
		switch err := os.Remove(path); {
		case err == nil:
			removed++
		case !errors.Is(err, fs.ErrNotExist):
			lgr.Printf("[WARN] failed to remove %s: %v", path, err)
		}
	}
	feedDir := strconv.FormatInt(f.ID, 10)
	for _, dir := range []string{filepath.Join(a.cfg.ContentDir(), feedDir), filepath.Join(a.cfg.TextDir(), feedDir)} {
		if err := os.RemoveAll(dir); err != nil {
			lgr.Printf("[WARN] failed to remove %s: %v", dir, err)
		}
	}
	fmt.Fprintf(a.out, "unsubscribed from %s, purged items and %d files\n", f.DisplayName(), removed)
	return nil
}

// list prints the feeds with item counts, or the items of one feed
func (a *app) list(ctx context.Context, cmd ListCmd) error {
	if cmd.Args.Feed == "" {
		return a.listFeeds(ctx)
	}

	f, err := a.repos.Feed.FindFeed(ctx, cmd.Args.Feed)
	if err != nil {
		return err
	}
	filter := domain.ItemFilter{FeedID: f.ID, Limit: cmd.Limit}
	for _, s := range cmd.Status {
		st := domain.Status(s)
		if !st.Valid() {
			return fmt.Errorf("unknown status %q", s)
		}
		filter.Statuses = append(filter.Statuses, st)
	}
	items, err := a.repos.Item.ListItems(ctx, filter)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%s (id %d)\n", f.DisplayName(), f.ID)
	for _, item := range items {
		date := item.DiscoveredAt
		if item.Published != nil {
			date = *item.Published
		}
		line := fmt.Sprintf("%s %4d  %s  %s", statusTag(item.Status), item.ID, date.Format("2006-01-02"), item.Title)
		if !item.InFeed {
			line += " (gone from feed)"
		}
		if item.Failure != nil {
			line += "\n" + strings.Repeat(" ", 8) + color.New(color.FgRed).Sprint(item.Failure.String())
		}
		fmt.Fprintln(a.out, line)
	}
	return nil
}

func (a *app) listFeeds(ctx context.Context) error {
	feeds, err := a.repos.Feed.GetFeeds(ctx)
	if err != nil {
		return err
	}
	if len(feeds) == 0 {
		fmt.Fprintln(a.out, "no feeds, add one with: podscope add <url>")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tNEW\tACQ\tTXT\tDONE\tERR\tCHECKED")
	for _, f := range feeds {
		counts, err := a.repos.Item.CountByStatus(ctx, f.ID)
		if err != nil {
			return err
		}
		checked := "never"
		if f.LastChecked != nil {
			checked = humanize.Time(*f.LastChecked)
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n", f.ID, f.DisplayName(),
			counts[domain.StatusNew], counts[domain.StatusAcquired], counts[domain.StatusDerived],
			counts[domain.StatusSummarized], counts[domain.StatusFailed], checked)
	}
	return tw.Flush()
}

// sync makes one pipeline run over the selected scope and prints its report
func (a *app) sync(ctx context.Context, cmd SyncCmd) error {
	scope := pipeline.Scope{ItemID: cmd.Item}
	if cmd.Args.Feed != "" && cmd.Item == 0 {
		f, err := a.repos.Feed.FindFeed(ctx, cmd.Args.Feed)
		if err != nil {
			return err
		}
		scope.FeedID = f.ID
	}
	if cmd.CPU < 0 || cmd.CPU > 100 {
		return fmt.Errorf("--cpu must be within 1-100, got %d", cmd.CPU)
	}

	opts := pipeline.Options{
		RetryFailed: cmd.RetryFailed,
		Rederive:    cmd.Redo,
		Resummarize: cmd.Resummarize,
		AcquireOnly: cmd.DownloadOnly,
	}
	res, err := a.orchestrator(cmd.CPU).Run(ctx, scope, opts)
	if res != nil {
		a.printReport(res)
	}
	if errors.Is(err, pipeline.ErrEmptyScope) && scope == (pipeline.Scope{}) {
		fmt.Fprintln(a.out, "no feeds, add one with: podscope add <url>")
		return nil
	}
	return err
}

func (a *app) printReport(res *pipeline.RunResult) {
	fmt.Fprintf(a.out, "run %s: %s\n", res.RunID, res)
	for _, fe := range res.FeedErrors {
		fmt.Fprintf(a.out, "  %s feed %d %s: %v\n", color.New(color.FgRed).Sprint("[err]"), fe.FeedID, fe.URL, fe.Err)
	}
	for _, f := range res.Failures {
		fmt.Fprintf(a.out, "  %s item %d %q: %s, %d attempts\n", statusTag(domain.StatusFailed), f.ItemID, f.Title,
			f.Failure.String(), f.Attempts)
	}
	for _, f := range res.Integrity {
		fmt.Fprintf(a.out, "  %s item %d %q: %s, left as is\n", color.New(color.FgYellow).Sprint("[chk]"), f.ItemID, f.Title,
			f.Failure.String())
	}
}

// show prints the current summary of an item, its derived text or its summary history
func (a *app) show(ctx context.Context, cmd ShowCmd) error {
	item, err := a.repos.Item.GetItem(ctx, cmd.Args.Item)
	if err != nil {
		return err
	}

	if cmd.Text {
		if item.TextPath == "" {
			return fmt.Errorf("item %d has no text yet, status %s", item.ID, item.Status)
		}
		data, err := os.ReadFile(item.TextPath)
		if err != nil {
			return fmt.Errorf("read text of item %d: %w", item.ID, err)
		}
		fmt.Fprintln(a.out, strings.TrimSpace(string(data)))
		return nil
	}

	fmt.Fprintf(a.out, "%s %s\n", statusTag(item.Status), color.New(color.Bold).Sprint(item.Title))
	fmt.Fprintf(a.out, "item %d, feed %d, %s\n", item.ID, item.FeedID, item.SourceURL)
	if item.Failure != nil {
		fmt.Fprintln(a.out, color.New(color.FgRed).Sprint(item.Failure.String()))
	}

	if cmd.History {
		history, err := a.repos.Summary.SummaryHistory(ctx, item.ID)
		if err != nil {
			return err
		}
		if len(history) == 0 {
			fmt.Fprintln(a.out, "\nno summaries yet")
		}
		for i := range history {
			fmt.Fprintf(a.out, "\n%s\n\n%s", summaryHeader(&history[i]), history[i].Content)
		}
		return nil
	}

	s, err := a.repos.Summary.CurrentSummary(ctx, item.ID)
	if errors.Is(err, repository.ErrNotFound) {
		fmt.Fprintln(a.out, "\nno summary yet")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "\n%s\n\n%s", summaryHeader(s), s.Content)
	return nil
}

// serve runs the HTTP API and, when enabled, the periodic sync until ctx is cancelled
func (a *app) serve(ctx context.Context, cmd ServeCmd, debug bool) error {
	listen := a.cfg.Server.Listen
	if cmd.Listen != "" {
		listen = cmd.Listen
	}
	if err := a.repos.Ping(ctx); err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}

	var sched server.Scheduler
	if a.cfg.Schedule.Enabled || cmd.Schedule {
		s := scheduler.New(a.orchestrator(0), a.cfg.Schedule.Interval)
		s.Start(ctx)
		defer s.Stop()
		sched = s
	}

	srv := server.New(server.Config{Listen: listen, Timeout: a.cfg.Server.Timeout, Version: revision, Debug: debug},
		server.NewRepositoryAdapter(a.repos), sched)
	return srv.Run(ctx)
}

// runConfig prints the effective config, or sets key to value and saves the file
func runConfig(cfg *config.Config, path string, cmd ConfCmd, out io.Writer) error {
	key, value := cmd.Args.Key, cmd.Args.Value
	switch {
	case key == "":
		data, err := maskedConfig(cfg)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		_, err = out.Write(data)
		return err
	case value == "":
		return fmt.Errorf("value for %s is required", key)
	}

	if err := cfg.Set(key, value); err != nil {
		return err
	}
	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s = %s saved to %s\n", key, value, path)
	return nil
}

func summaryHeader(s *domain.Summary) string {
	parts := []string{fmt.Sprintf("summary #%d", s.ID), s.CreatedAt.Local().Format("2006-01-02 15:04")}
	if s.Model != "" {
		parts = append(parts, s.Model)
	}
	if s.PromptTokens != nil && s.OutputTokens != nil {
		parts = append(parts, fmt.Sprintf("%s+%s tokens", humanize.Comma(*s.PromptTokens), humanize.Comma(*s.OutputTokens)))
	}
	if s.Windows > 1 {
		parts = append(parts, fmt.Sprintf("%d parts", s.Windows))
	}
	if len(s.Gaps) > 0 {
		parts = append(parts, fmt.Sprintf("%d gaps", len(s.Gaps)))
	}
	return color.New(color.FgCyan).Sprint(strings.Join(parts, ", "))
}

func statusTag(s domain.Status) string {
	tag := fmt.Sprintf("[%s]", s.Short())
	switch s {
	case domain.StatusSummarized:
		return color.New(color.FgGreen).Sprint(tag)
	case domain.StatusFailed:
		return color.New(color.FgRed).Sprint(tag)
	}
	return tag
}

// maskedConfig returns a copy of cfg safe to print
func maskedConfig(cfg *config.Config) ([]byte, error) {
	c := *cfg
	if c.LLM.APIKey != "" {
		c.LLM.APIKey = "****"
	}
	return yaml.Marshal(&c)
}
