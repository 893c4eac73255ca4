// Package askdb implements the askdb command line. The binary in cmd/askdb
// is a thin wrapper around Run so the whole surface stays testable with fake
// IO, a fake provider, and a fake engine.
package askdb

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/query"
	"github.com/askdb/askdb/internal/storage"
)

// Options carries the process-level dependencies. Zero fields get sensible
// defaults; the New* hooks exist so tests can swap the provider, the database
// engine, and the object store without network or files.
type Options struct {
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
	Lookup  config.LookupFunc
	Version string

	NewEngine   func(ctx context.Context, target string, cfg config.Config) (query.Engine, error)
	NewProvider func(cfg config.Config) (nl2sql.Provider, error)
	NewStore    func(ctx context.Context, cfg config.Config) (storage.ObjectStore, error)
}

// Run executes the CLI and returns the process exit code: 0 on success, 1 on
// runtime failure, 2 on usage or configuration errors.
func Run(ctx context.Context, args []string, opts Options) int {
	r := newRunner(opts)
	root := r.newRootCommand()
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	_, _ = fmt.Fprintf(r.stderr, "askdb: %v\n", err)
	var usage *usageError
	if errors.As(err, &usage) || !r.started {
		return 2
	}
	return 1
}

type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

type runner struct {
	opts   Options
	lookup config.LookupFunc
	stdin  *bufio.Reader
	stdout io.Writer
	stderr io.Writer

	// started flips once a command body runs, separating runtime failures
	// from flag and argument errors for the exit code.
	started bool
}

func newRunner(opts Options) *runner {
	stdout := opts.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	var stdin io.Reader = opts.Stdin
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &runner{
		opts:   opts,
		lookup: lookup,
		stdin:  bufio.NewReader(stdin),
		stdout: stdout,
		stderr: stderr,
	}
}

func (r *runner) newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "askdb [flags] DATABASE",
		Short: "Ask a local database questions in plain language",
		Long: "askdb answers plain-language questions against a local database by asking\n" +
			"a remote model for read-only SQL and running it here. Only the schema\n" +
			"summary, your question, and error text ever leave the machine; row data\n" +
			"stays local. DATABASE is a file path, a postgres:// DSN, or an s3:// URL.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          r.runSession,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "path to a YAML config file")
	flags.String("provider", "", "generation provider (openai or gemini)")
	flags.StringP("model", "m", "", "model name (provider default when empty)")
	flags.IntP("revisions", "r", 3, "maximum repair revisions per question")
	flags.BoolP("yes", "y", false, "execute candidate statements without asking")
	flags.String("driver", "", "database driver (sqlite, duckdb, postgres; inferred when empty)")
	flags.Int("row-limit", 100, "cap on returned rows, 0 disables the cap")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (text or json)")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")
	flags.Bool("no-narrate", false, "skip the database narration at session start")
	flags.String("transcript", "", "directory for Parquet run transcripts")
	flags.Bool("export-s3", false, "upload run transcripts to the configured object store")

	ask := &cobra.Command{
		Use:   "ask [flags] DATABASE",
		Short: "Answer a single question and exit",
		Args:  cobra.ExactArgs(1),
		RunE:  r.runAsk,
	}
	ask.Flags().StringP("question", "q", "", "the question to answer")
	ask.Flags().String("export", "", "write the result as CSV to this file")

	narrate := &cobra.Command{
		Use:   "narrate DATABASE",
		Short: "Print the schema summary and a plain-language narration",
		Args:  cobra.ExactArgs(1),
		RunE:  r.runNarrate,
	}

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the askdb version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := r.opts.Version
			if v == "" {
				v = "dev"
			}
			_, _ = fmt.Fprintf(r.stdout, "askdb %s\n", v)
			return nil
		},
	}

	root.AddCommand(ask, narrate, version)
	return root
}

func (r *runner) runSession(cmd *cobra.Command, args []string) error {
	r.started = true
	ctx := cmd.Context()

	s, err := r.newSession(ctx, cmd, args[0])
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.prepare(ctx); err != nil {
		return err
	}
	s.printBanner()
	if !s.noNarrate {
		s.narrate(ctx)
	}
	return s.repl(ctx)
}

func (r *runner) runAsk(cmd *cobra.Command, args []string) error {
	r.started = true
	ctx := cmd.Context()

	question, _ := cmd.Flags().GetString("question")
	question = strings.TrimSpace(question)
	if question == "" {
		return &usageError{fmt.Errorf("a question is required (use -q)")}
	}

	s, err := r.newSession(ctx, cmd, args[0])
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.prepare(ctx); err != nil {
		return err
	}

	res := s.runIntent(ctx, question)
	switch res.Outcome {
	case nl2sql.OutcomeSucceeded:
		return nil
	case nl2sql.OutcomeAborted:
		if res.Err != nil {
			return res.Err
		}
		return fmt.Errorf("aborted")
	default:
		return fmt.Errorf("no working statement after %d attempts: %v", len(res.Attempts), res.Err)
	}
}

func (r *runner) runNarrate(cmd *cobra.Command, args []string) error {
	r.started = true
	ctx := cmd.Context()

	s, err := r.newSession(ctx, cmd, args[0])
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.prepare(ctx); err != nil {
		return err
	}
	renderSchema(s.stdout, s.schemaText)

	text, err := s.provider.Complete(ctx, nl2sql.BuildNarrationPrompt(s.schemaText))
	if err != nil {
		return fmt.Errorf("narrate: %w", err)
	}
	renderNarration(s.stdout, strings.TrimSpace(text))
	return nil
}

// loadConfig layers flag overrides on top of the file and environment
// configuration. Only flags the user actually set override the lower layers.
func (r *runner) loadConfig(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	flags := cmd.Flags()

	configPath, _ := flags.GetString("config")
	cfg, err := config.LoadWithFile("askdb", configPath, r.lookup)
	if err != nil {
		return config.Config{}, nil, &usageError{err}
	}

	if flags.Changed("provider") {
		cfg.Provider.Kind, _ = flags.GetString("provider")
	}
	if flags.Changed("model") {
		cfg.Provider.Model, _ = flags.GetString("model")
	}
	if flags.Changed("revisions") {
		cfg.Loop.MaxRevisions, _ = flags.GetInt("revisions")
	}
	if flags.Changed("yes") {
		cfg.Loop.AutoApprove, _ = flags.GetBool("yes")
	}
	if flags.Changed("driver") {
		cfg.Query.Driver, _ = flags.GetString("driver")
	}
	if flags.Changed("row-limit") {
		cfg.Query.RowLimit, _ = flags.GetInt("row-limit")
	}
	if flags.Changed("log-level") {
		raw, _ := flags.GetString("log-level")
		level, err := config.ParseLogLevel(raw)
		if err != nil {
			return config.Config{}, nil, &usageError{err}
		}
		cfg.Observability.LogLevel = level
	}
	if flags.Changed("log-format") {
		raw, _ := flags.GetString("log-format")
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "json":
			cfg.Observability.LogJSON = true
		case "text":
			cfg.Observability.LogJSON = false
		default:
			return config.Config{}, nil, &usageError{fmt.Errorf("invalid log format: %q", raw)}
		}
	}
	if flags.Changed("metrics-addr") {
		cfg.Observability.MetricsAddr, _ = flags.GetString("metrics-addr")
	}

	if err := config.Validate(cfg); err != nil {
		return config.Config{}, nil, &usageError{err}
	}
	return cfg, observability.NewLogger(cfg, r.stderr), nil
}

func (r *runner) newSession(ctx context.Context, cmd *cobra.Command, target string) (*session, error) {
	cfg, logger, err := r.loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	if cfg.Observability.MetricsAddr != "" {
		go func() {
			if err := observability.ServeMetrics(ctx, cfg.Observability.MetricsAddr, logger); err != nil {
				logger.Error("metrics listener failed", slog.Any("error", err))
			}
		}()
	}

	newProvider := r.opts.NewProvider
	if newProvider == nil {
		newProvider = buildProvider
	}
	provider, err := newProvider(cfg)
	if err != nil {
		return nil, &usageError{err}
	}
	if isTerminal(r.opts.Stdin) {
		provider = &providerWithSpinner{Provider: provider, stderr: r.stderr}
	}

	newEngine := r.opts.NewEngine
	if newEngine == nil {
		newEngine = openEngine
	}
	engine, err := newEngine(ctx, target, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", target, err)
	}

	newStore := r.opts.NewStore
	if newStore == nil {
		newStore = newObjectStore
	}

	flags := cmd.Flags()
	noNarrate, _ := flags.GetBool("no-narrate")
	transcriptDir, _ := flags.GetString("transcript")
	exportS3, _ := flags.GetBool("export-s3")
	exportPath := ""
	if flags.Lookup("export") != nil {
		exportPath, _ = flags.GetString("export")
	}

	return &session{
		cfg:           cfg,
		logger:        logger,
		engine:        engine,
		provider:      provider,
		target:        target,
		stdin:         r.stdin,
		stdout:        r.stdout,
		stderr:        r.stderr,
		noNarrate:     noNarrate,
		transcriptDir: transcriptDir,
		exportPath:    exportPath,
		exportS3:      exportS3,
		newStore:      newStore,
	}, nil
}

// isTerminal reports whether the reader is an interactive terminal.
func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

func buildProvider(cfg config.Config) (nl2sql.Provider, error) {
	modelCfg := nl2sql.ModelConfig{
		Model:               cfg.Provider.Model,
		Temperature:         cfg.Provider.Temperature,
		MaxOutputTokens:     cfg.Provider.MaxOutputTokens,
		Timeout:             cfg.Provider.Timeout,
		MaxTransientRetries: cfg.Provider.MaxRetries,
	}
	switch cfg.Provider.Kind {
	case config.ProviderGemini:
		return nl2sql.NewGeminiProvider(nl2sql.GeminiConfig{
			BaseURL:     cfg.Provider.BaseURL,
			APIKey:      cfg.Provider.APIKey,
			ModelConfig: modelCfg,
		})
	default:
		return nl2sql.NewOpenAIProvider(nl2sql.OpenAIConfig{
			BaseURL:     cfg.Provider.BaseURL,
			APIKey:      cfg.Provider.APIKey,
			ModelConfig: modelCfg,
		})
	}
}
