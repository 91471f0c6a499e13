// Command teamwork runs multi-agent workflows defined in YAML files.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hupe1980/teamwork/config"
	"github.com/hupe1980/teamwork/core"
	"github.com/hupe1980/teamwork/logging"
	"github.com/hupe1980/teamwork/runner"
	"github.com/hupe1980/teamwork/snapshot"
	"github.com/hupe1980/teamwork/workflow"
)

type globalFlags struct {
	db       string
	logLevel string
	envFile  string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "teamwork",
		Short: "Multi-agent workflow runner",
		Long:  "Teamwork runs a team of LLM agents, coordinated by a supervisor, until a workflow is complete.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnv(flags.envFile)
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&flags.db, "db", defaultDBPath(), "SQLite database for run snapshots")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file to load if present")

	rootCmd.AddCommand(newRunCommand(flags))
	rootCmd.AddCommand(newResumeCommand(flags))
	rootCmd.AddCommand(newListCommand(flags))
	rootCmd.AddCommand(newHistoryCommand(flags))

	return rootCmd
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "teamwork.db"
	}
	return filepath.Join(home, ".teamwork", "runs.db")
}

func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

func newLogger(level string, w io.Writer) (*logging.TeamworkLogger, error) {
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := logging.DefaultLoggerConfig()
	cfg.Level = lvl
	cfg.Output = w
	cfg.Component = "teamwork"
	return logging.NewLogger(cfg), nil
}

func openStore(path string) (*snapshot.SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	store, err := snapshot.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

// session bundles what run and resume share.
type session struct {
	app    *app
	store  *snapshot.SQLiteStore
	runner *runner.Runner
}

func (s *session) Close() {
	_ = s.app.Close()
	_ = s.store.Close()
}

func openSession(ctx context.Context, cmd *cobra.Command, flags *globalFlags, file string) (*session, error) {
	cfg, err := config.Load(file)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow: %w", err)
	}

	logger, err := newLogger(flags.logLevel, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	store, err := openStore(flags.db)
	if err != nil {
		return nil, err
	}

	a, err := build(ctx, cfg, nil, workflow.LogObserver{Logger: logger}, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	r := runner.New(a.workflow, func(o *runner.Options) {
		o.Store = store
		o.Logger = logger
	})

	return &session{app: a, store: store, runner: r}, nil
}

func newRunCommand(flags *globalFlags) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a workflow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			s, err := openSession(ctx, cmd, flags, file)
			if err != nil {
				return err
			}
			defer s.Close()

			runID, final, err := s.runner.Run(ctx)
			fmt.Fprintf(cmd.ErrOrStderr(), "run %s\n", runID)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), workflow.Solution(final))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "workflow.yaml", "workflow definition")

	return cmd
}

func newResumeCommand(flags *globalFlags) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Resume an interrupted run from its latest snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			s, err := openSession(ctx, cmd, flags, file)
			if err != nil {
				return err
			}
			defer s.Close()

			final, err := s.runner.Resume(ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), workflow.Solution(final))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "workflow.yaml", "workflow definition")

	return cmd
}

func newListCommand(flags *globalFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(flags.db)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tWORKFLOW\tSTATUS\tAGENT\tSTEPS\tUPDATED")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", r.ID, r.Workflow, r.Status, r.Agent, r.Steps, r.UpdatedAt.Local().Format(time.DateTime))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs")

	return cmd
}

func newHistoryCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "history <run-id>",
		Short: "Show the recorded transitions of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(flags.db)
			if err != nil {
				return err
			}
			defer store.Close()

			snaps, err := store.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STEP\tEVENT\tAGENT\tDEPTH\tSTATUS")
			for _, s := range snaps {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", s.Step, s.Event, s.Agent, s.Depth, s.State.Status)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			last := snaps[len(snaps)-1]
			if last.State.Status == core.StatusFinished {
				fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", workflow.Solution(last.State))
			}
			return nil
		},
	}
}
