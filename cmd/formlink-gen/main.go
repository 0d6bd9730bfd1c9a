// Command formlink-gen runs one form generation from the command line and
// prints its events, or watches the events of a running generation.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/kyashrathore/formlink-sub001/internal/adapter/litellm"
	flnats "github.com/kyashrathore/formlink-sub001/internal/adapter/nats"
	"github.com/kyashrathore/formlink-sub001/internal/adapter/postgres"
	"github.com/kyashrathore/formlink-sub001/internal/config"
	"github.com/kyashrathore/formlink-sub001/internal/domain/agentevent"
	"github.com/kyashrathore/formlink-sub001/internal/domain/agentstate"
	"github.com/kyashrathore/formlink-sub001/internal/logger"
	"github.com/kyashrathore/formlink-sub001/internal/port/broadcast"
	"github.com/kyashrathore/formlink-sub001/internal/resilience"
	"github.com/kyashrathore/formlink-sub001/internal/service"
)

type options struct {
	configPath string
	prompt     string
	formID     string
	userID     string
	watch      bool
	listModels bool
	jsonOut    bool
	publish    bool
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func parseOptions(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("formlink-gen", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", config.DefaultConfigFile, "path to YAML config file")
	fs.StringVar(&o.prompt, "prompt", "", `form request; "-" reads it from stdin`)
	fs.StringVar(&o.formID, "form", "", "form id (default: a new UUID)")
	fs.StringVar(&o.userID, "user", "cli", "user id recorded on the form")
	fs.BoolVar(&o.watch, "watch", false, "print the live events of -form instead of generating")
	fs.BoolVar(&o.listModels, "list-models", false, "list the models the completion proxy serves")
	fs.BoolVar(&o.jsonOut, "json", false, "print JSON lines even on a terminal")
	fs.BoolVar(&o.publish, "publish", false, "also publish events to NATS")
	if err := fs.Parse(args); err != nil {
		return o, err
	}

	switch {
	case o.listModels:
	case o.watch:
		if o.formID == "" {
			return o, errors.New("-watch needs -form")
		}
	case o.prompt == "":
		return o, errors.New("-prompt is required")
	}
	if o.formID == "" {
		o.formID = uuid.NewString()
	}
	return o, nil
}

func run(args []string) error {
	opts, err := parseOptions(args)
	if err != nil {
		return err
	}
	cfg, err := config.LoadFrom(opts.configPath)
	if err != nil {
		return err
	}

	// Logs go to stderr so stdout carries only events.
	cfg.Logging.Async = false
	log, closeLog := logger.NewWithWriter(cfg.Logging, os.Stderr)
	defer closeLog.Close()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := newPrinter(os.Stdout, opts.jsonOut || !term.IsTerminal(int(os.Stdout.Fd())))

	llm := litellm.NewClient(cfg.LiteLLM.URL, cfg.LiteLLM.MasterKey)
	switch {
	case opts.listModels:
		return listModels(ctx, llm, os.Stdout)
	case opts.watch:
		return watch(ctx, cfg, opts.formID, out)
	}

	prompt := opts.prompt
	if prompt == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read prompt: %w", err)
		}
		prompt = string(b)
	}

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	llm.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
	llm.SetPool(resilience.NewPool(cfg.Agent.CompletionParallel))
	llm.SetCallTimeout(cfg.LiteLLM.Timeout)

	events := postgres.NewEventStore(pool)
	sinks := []broadcast.Sink{service.PersistEvents(events)}
	if opts.publish {
		queue, err := flnats.Connect(ctx, cfg.NATS.URL, cfg.NATS.Stream, cfg.NATS.SubjectPrefix)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = queue.Drain() }()
		sinks = append(sinks, flnats.NewEventSink(queue, cfg.NATS.SubjectPrefix))
	}

	orch := service.NewOrchestrator(llm, postgres.NewStore(pool), cfg.Agent, nil)
	gen := service.NewGenerationService(orch, events, nil, sinks...)

	final, err := gen.Generate(ctx, service.GenerateRequest{
		FormID:    opts.formID,
		UserID:    opts.userID,
		InputType: agentstate.InputPrompt,
		Input:     strings.TrimSpace(prompt),
	}, out)
	if err != nil {
		return err
	}
	if final.Status == agentstate.StatusFailed {
		return fmt.Errorf("generation failed for form %s", final.FormID)
	}
	return nil
}

func listModels(ctx context.Context, llm *litellm.Client, w io.Writer) error {
	models, err := llm.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	for _, m := range models {
		fmt.Fprintln(w, m.ModelName)
	}
	return nil
}

// watch prints the live events of one form until its terminal snapshot
// arrives or the process is interrupted.
func watch(ctx context.Context, cfg *config.Config, formID string, out *printer) error {
	queue, err := flnats.Connect(ctx, cfg.NATS.URL, cfg.NATS.Stream, cfg.NATS.SubjectPrefix)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	done := make(chan struct{})
	var closed bool
	cancel, err := flnats.WatchForm(ctx, queue, cfg.NATS.SubjectPrefix, formID, func(ev agentevent.Event) error {
		if err := out.Send(ctx, ev); err != nil {
			return err
		}
		if ev.IsTerminal() && !closed {
			closed = true
			close(done)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", formID, err)
	}
	defer cancel()

	fmt.Fprintf(os.Stderr, "watching form %s\n", formID)
	select {
	case <-done:
	case <-ctx.Done():
	}
	return nil
}
