package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/umputun/podscope/pkg/config"
)

// Opts with all CLI options
type Opts struct {
	Config  string `short:"c" long:"config" env:"PODSCOPE_CONFIG" default:"podscope.yml" description:"config file"`
	Verbose bool   `short:"v" long:"verbose" description:"show progress logs"`

	// common options
	Debug   bool `long:"dbg" env:"DEBUG" description:"debug mode"`
	Version bool `short:"V" long:"version" description:"show version info"`
	NoColor bool `long:"no-color" env:"NO_COLOR" description:"disable color output"`

	Add    AddCmd    `command:"add" description:"subscribe to a feed"`
	Remove RemoveCmd `command:"remove" alias:"rm" description:"unsubscribe from a feed"`
	List   ListCmd   `command:"list" alias:"ls" description:"list feeds, or items of one feed"`
	Sync   SyncCmd   `command:"sync" description:"fetch, download, transcribe and summarize"`
	Show   ShowCmd   `command:"show" description:"show the summary or text of an item"`
	Serve  ServeCmd  `command:"serve" description:"run the read-only HTTP API"`
	Conf   ConfCmd   `command:"config" description:"print the config, or set a value"`
}

// AddCmd subscribes to a feed
type AddCmd struct {
	Args struct {
		URL string `positional-arg-name:"url" description:"feed url"`
	} `positional-args:"yes" required:"yes"`
}

// RemoveCmd unsubscribes from a feed
type RemoveCmd struct {
	Purge bool `long:"purge" description:"delete items, summaries and files of the feed"`
	Args  struct {
		Feed string `positional-arg-name:"feed" description:"feed id, url or title"`
	} `positional-args:"yes" required:"yes"`
}

// ListCmd lists feeds or the items of one feed
type ListCmd struct {
	Status []string `short:"s" long:"status" description:"show only items with this status"`
	Limit  int      `short:"n" long:"limit" default:"50" description:"max items to show"`
	Args   struct {
		Feed string `positional-arg-name:"feed" description:"feed id, url or title"`
	} `positional-args:"yes"`
}

// SyncCmd runs the pipeline once
type SyncCmd struct {
	Item         int64 `long:"item" description:"process a single item"`
	RetryFailed  bool  `long:"retry-failed" description:"retry failed items"`
	Redo         bool  `long:"redo" description:"derive the text again and resummarize"`
	Resummarize  bool  `long:"resummarize" description:"summarize already summarized items again"`
	DownloadOnly bool  `long:"download-only" description:"stop after downloading"`
	CPU          int   `long:"cpu" description:"share of cpu threads for local transcription, percent"`
	Args         struct {
		Feed string `positional-arg-name:"feed" description:"feed id, url or title"`
	} `positional-args:"yes"`
}

// ShowCmd prints an item summary, text or summary history
type ShowCmd struct {
	Text    bool `long:"text" description:"print the derived text"`
	History bool `long:"history" description:"print all summaries, newest first"`
	Args    struct {
		Item int64 `positional-arg-name:"item-id"`
	} `positional-args:"yes" required:"yes"`
}

// ServeCmd runs the HTTP API
type ServeCmd struct {
	Listen   string `short:"l" long:"listen" description:"listen address, overrides server.listen"`
	Schedule bool   `long:"schedule" description:"sync periodically, overrides schedule.enabled"`
}

// ConfCmd prints or changes the config file
type ConfCmd struct {
	Args struct {
		Key   string `positional-arg-name:"key" description:"dotted key, e.g. llm.model"`
		Value string `positional-arg-name:"value"`
	} `positional-args:"yes"`
}

var revision = "unknown"

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	// handle termination signals
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		lgr.Print("[INFO] termination signal received")
		cancel()
	}()

	err := execute(ctx, os.Args[1:], os.Stdout)
	cancel()
	if err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		var flagsErr *flags.Error
		if !errors.As(err, &flagsErr) { // parser already printed its own errors
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

// execute parses args and runs the selected command, writing user output to out
func execute(ctx context.Context, args []string, out io.Writer) error {
	var opts Opts
	parser := flags.NewParser(&opts, flags.Default)
	parser.SubcommandsOptional = true
	if _, err := parser.ParseArgs(args); err != nil {
		return err
	}

	if opts.Version {
		fmt.Fprintf(out, "Version: %s\nGolang: %s\n", revision, runtime.Version())
		return nil
	}
	if parser.Active == nil {
		parser.WriteHelp(out)
		return errors.New("no command given")
	}
	if opts.NoColor {
		color.NoColor = true
	}
	setupLog(opts.Debug, opts.Verbose)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if key := cfg.LLM.Key(); key != "" {
		setupLog(opts.Debug, opts.Verbose, key)
	}

	if parser.Active.Name == "config" {
		return runConfig(cfg, opts.Config, opts.Conf, out)
	}

	a, err := newApp(ctx, cfg, out)
	if err != nil {
		return err
	}
	defer a.close()

	switch parser.Active.Name {
	case "add":
		return a.add(ctx, opts.Add.Args.URL)
	case "remove":
		return a.remove(ctx, opts.Remove.Args.Feed, opts.Remove.Purge)
	case "list":
		return a.list(ctx, opts.List)
	case "sync":
		return a.sync(ctx, opts.Sync)
	case "show":
		return a.show(ctx, opts.Show)
	case "serve":
		return a.serve(ctx, opts.Serve, opts.Debug)
	}
	return fmt.Errorf("unknown command %q", parser.Active.Name)
}

func setupLog(dbg, verbose bool, secs ...string) {
	logOpts := []lgr.Option{lgr.Out(io.Discard), lgr.Err(io.Discard)}
	switch {
	case dbg:
		logOpts = []lgr.Option{lgr.Debug, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError, lgr.Out(os.Stderr)}
	case verbose:
		logOpts = []lgr.Option{lgr.Out(os.Stderr), lgr.Err(os.Stderr)}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))
	if len(secs) > 0 {
		logOpts = append(logOpts, lgr.Secret(secs...))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
