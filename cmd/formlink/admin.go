package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kyashrathore/formlink-sub001/internal/adapter/postgres"
	"github.com/kyashrathore/formlink-sub001/internal/config"
)

// runAdmin dispatches admin subcommands.
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "migrate":
		return runAdminMigrate(args[1:])
	case "rollback":
		return runAdminRollback(args[1:])
	case "version":
		return runAdminVersion(args[1:])
	case "tasks":
		return runAdminTasks(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: formlink admin <command> [options]

Commands:
  migrate      Apply pending database migrations
  rollback     Roll back the most recent migrations
  version      Print the current migration version
  tasks        List the tasks of a form and its current version
  help         Show this help message

Examples:
  formlink admin migrate
  formlink admin rollback --steps 2
  formlink admin tasks --form f_123
`)
}

func loadAdminConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func runAdminMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadAdminConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return err
	}
	return printVersion(ctx, cfg.Postgres.DSN)
}

func runAdminRollback(args []string) error {
	fs := flag.NewFlagSet("rollback", flag.ContinueOnError)
	steps := fs.Int("steps", 1, "number of migrations to roll back")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *steps < 1 {
		return fmt.Errorf("--steps must be >= 1")
	}
	cfg, err := loadAdminConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	if err := postgres.RollbackMigrations(ctx, cfg.Postgres.DSN, *steps); err != nil {
		return err
	}
	return printVersion(ctx, cfg.Postgres.DSN)
}

func runAdminVersion(args []string) error {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadAdminConfig()
	if err != nil {
		return err
	}
	return printVersion(context.Background(), cfg.Postgres.DSN)
}

func printVersion(ctx context.Context, dsn string) error {
	v, err := postgres.MigrationVersion(ctx, dsn)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Migration version: %d\n", v)
	return nil
}

func runAdminTasks(args []string) error {
	fs := flag.NewFlagSet("tasks", flag.ContinueOnError)
	formID := fs.String("form", "", "form id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *formID == "" {
		return fmt.Errorf("--form is required")
	}
	cfg, err := loadAdminConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	store := postgres.NewStore(pool)

	if f, err := store.GetForm(ctx, *formID); err == nil {
		fmt.Fprintf(os.Stderr, "Form %s %q, current version %s\n", f.ID, f.Title, orNone(f.CurrentVersionID))
	}

	tasks, err := store.ListTasks(ctx, *formID)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ORDER\tID\tTYPE\tSTATUS\tTITLE")
	for i := range tasks {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			tasks[i].Order, tasks[i].ID, tasks[i].TaskType(), tasks[i].Status, tasks[i].Title())
	}
	return w.Flush()
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
