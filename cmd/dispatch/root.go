package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/dispatch/internal/config"
	"github.com/JaimeStill/dispatch/internal/infrastructure"
)

type rootFlags struct {
	db      string
	store   string
	verbose int
	output  string
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "dispatch",
		Short: "Multi-format intake triage",
		Long: `dispatch classifies emails, JSON payloads and PDF documents, extracts
their fields, resolves a priority and routes each request to an action.

Configuration is read from config.toml and DISPATCH_* variables, as for the
server. Records are written to the configured store (sqlite by default).

Examples:
  dispatch process invoice.pdf complaint.eml   # process files
  dispatch process --json '{"order_id": 1}'    # process an inline payload
  dispatch list --priority HIGH                # list high priority records
  dispatch show <id>                           # show a record and its trace`,
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&flags.db, "db", "", "SQLite database path (overrides pipeline.sqlite_path)")
	pf.StringVar(&flags.store, "store", "", "Record store: memory, sqlite or postgres")
	pf.CountVarP(&flags.verbose, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	pf.StringVarP(&flags.output, "output", "o", "table", "Output format: table or json")

	root.AddCommand(
		newProcessCmd(flags),
		newShowCmd(flags),
		newListCmd(flags),
	)
	return root
}

// app is a started Infrastructure for the lifetime of one command.
type app struct {
	cfg   *config.Config
	infra *infrastructure.Infrastructure
}

func openApp(cmd *cobra.Command, flags *rootFlags) (*app, error) {
	switch flags.output {
	case "table", "json":
	default:
		return nil, fmt.Errorf("unknown output format %q", flags.output)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if flags.store != "" {
		cfg.Pipeline.Store = flags.store
	}
	if flags.db != "" {
		cfg.Pipeline.SQLitePath = flags.db
	}

	level := slog.LevelWarn
	switch {
	case flags.verbose >= 2:
		level = slog.LevelDebug
	case flags.verbose == 1:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	infra, err := infrastructure.NewWithLogger(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := infra.Start(); err != nil {
		infra.Close()
		return nil, err
	}
	infra.Lifecycle.WaitForStartup()

	return &app{cfg: cfg, infra: infra}, nil
}

func (a *app) close() error {
	return a.infra.Lifecycle.Shutdown(a.cfg.ShutdownTimeoutDuration())
}
