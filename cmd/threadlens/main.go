// Package main provides the threadlens CLI entry point.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gauthierbraillon/threadlens/internal/analysis"
	"github.com/gauthierbraillon/threadlens/internal/channel"
	"github.com/gauthierbraillon/threadlens/internal/config"
	"github.com/gauthierbraillon/threadlens/internal/display"
	"github.com/gauthierbraillon/threadlens/internal/extractor"
	"github.com/gauthierbraillon/threadlens/internal/llm"
	"github.com/gauthierbraillon/threadlens/internal/page"
	"github.com/gauthierbraillon/threadlens/internal/reconcile"
	"github.com/gauthierbraillon/threadlens/pkg/credential"
)

var version = "dev"

// cliContextID identifies the single analysis context of a CLI invocation.
const cliContextID = "cli"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveVersion prefers a version injected via ldflags, then the module
// version recorded by go install.
func resolveVersion(ldflags string, info *debug.BuildInfo) string {
	if ldflags != "" && ldflags != "dev" {
		return ldflags
	}
	if info != nil && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

func buildInfo() *debug.BuildInfo {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}
	return info
}

// getConfigDir returns the configuration directory path.
func getConfigDir() string {
	if dir := os.Getenv("THREADLENS_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "threadlens")
}

// getConfigPath returns the YAML file to load, or "" when there is none.
// An explicitly named file must exist; the default one is optional.
func getConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv("THREADLENS_CONFIG"); path != "" {
		return path
	}
	path := filepath.Join(getConfigDir(), "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

// load reads the configuration once for the running command and builds
// its logger.
func (g *globalFlags) load(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(getConfigPath(g.configPath), credential.NewStore(getConfigDir()))
	if err != nil {
		return config.Config{}, nil, err
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	logger, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, g.logFormat)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q: must be 'text' or 'json'", format)
	}
}

// newRootCmd creates the root command for threadlens CLI.
func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:     "threadlens",
		Short:   "Analyze the replies of an X/Twitter thread",
		Long:    "Threadlens extracts the most engaging replies from an X/Twitter thread page and asks a chat-completions service to summarize and categorize them.",
		Version: resolveVersion(version, buildInfo()),
	}

	rootCmd.SetVersionTemplate("threadlens version {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "text", "Log format (text or json)")

	rootCmd.AddCommand(newExtractCmd(flags))
	rootCmd.AddCommand(newAnalyzeCmd(flags))
	rootCmd.AddCommand(newServeCmd(flags))
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newConfigCmd(flags))

	return rootCmd
}

// newExtractCmd creates the extract subcommand.
func newExtractCmd(flags *globalFlags) *cobra.Command {
	var limit int
	var asJSON, showStats bool

	cmd := &cobra.Command{
		Use:   "extract <file|url|->",
		Short: "List the ranked replies of a thread page",
		Long:  "Extract the visible, deduplicated replies of a thread page ranked by engagement, without contacting the analysis service.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cfg, logger, err := flags.load(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("limit") {
				limit = cfg.MaxComments
			}

			loader, err := page.NewLoader(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			doc, err := loader.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load thread page: %w", err)
			}

			ext := extractor.New(extractor.WithLimit(limit), extractor.WithLogger(logger))
			comments, stats := ext.Extract(doc)

			if showStats {
				fmt.Fprintf(cmd.ErrOrStderr(),
					"scanned %d, kept %d (hidden %d, duplicate %d, empty %d, short %d, media-only %d, promoted %d)\n",
					stats.Scanned, stats.Kept, stats.Hidden, stats.Duplicate, stats.Empty, stats.Short, stats.MediaOnly, stats.Promoted)
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), comments)
			}
			fmt.Fprint(cmd.OutOrStdout(), display.NewTerminalFormatter().FormatComments(comments))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "Maximum number of replies (0 for no cap, default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print replies as JSON")
	cmd.Flags().BoolVar(&showStats, "stats", false, "Print extraction counts to stderr")

	return cmd
}

// newAnalyzeCmd creates the analyze subcommand.
func newAnalyzeCmd(flags *globalFlags) *cobra.Command {
	var limit, retries int
	var timeout time.Duration
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "analyze <file|url|->",
		Short: "Summarize and categorize the replies of a thread page",
		Long:  "Extract the top replies of a thread page and send them to the configured chat-completions endpoint. Press Ctrl-C to cancel a running analysis.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cfg, logger, err := flags.load(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("limit") {
				limit = cfg.MaxComments
			}
			if !cmd.Flags().Changed("timeout") {
				timeout = cfg.Timeout
			}
			if !cmd.Flags().Changed("retries") {
				retries = cfg.MaxRetries
			}

			loader, err := page.NewLoader(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			stderr := cmd.ErrOrStderr()
			orch := newOrchestrator(cfg, logger, retries,
				analysis.WithTimeout(timeout),
				analysis.WithObserver(func(e analysis.Event) {
					fmt.Fprintf(stderr, "[%3d%%] %s\n", e.Progress, strings.ReplaceAll(e.Phase.String(), "_", " "))
				}),
			)

			source := extractor.PageSource{
				Loader:    loader,
				Extractor: extractor.New(extractor.WithLimit(limit), extractor.WithLogger(logger)),
			}
			outcome := orch.Analyze(ctx, cliContextID, source)

			switch outcome.Phase {
			case analysis.PhaseCompleted:
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), outcome.Result)
				}
				fmt.Fprint(cmd.OutOrStdout(), display.NewTerminalFormatter().FormatResult(*outcome.Result))
				return nil
			case analysis.PhaseCancelled:
				if outcome.Err != nil {
					return outcome.Err
				}
				fmt.Fprintln(stderr, "Analysis cancelled.")
				return nil
			default:
				return outcome.Err
			}
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "Maximum number of replies to analyze (0 for no cap, default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", config.DefaultTimeout, "How long to wait for the analysis service (0 disables)")
	cmd.Flags().IntVar(&retries, "retries", 0, "Retries for transient service failures")

	return cmd
}

// newServeCmd creates the serve subcommand.
func newServeCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve ANALYZE and CANCEL requests over stdio",
		Long:  "Run the JSON-RPC 2.0 message channel on stdin/stdout. Each ANALYZE supersedes the connection's running analysis; CANCEL stops it.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cfg, logger, err := flags.load(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			orch := newOrchestrator(cfg, logger, cfg.MaxRetries, analysis.WithTimeout(cfg.Timeout))
			server := channel.NewServer(orch, logger.With("component", "channel"))
			return server.Serve(ctx, channel.Stdio(cmd.InOrStdin(), cmd.OutOrStdout()))
		},
	}

	return cmd
}

func newOrchestrator(cfg config.Config, logger *slog.Logger, retries int, opts ...analysis.Option) *analysis.Orchestrator {
	client := llm.NewClient(
		llm.WithMaxRetries(retries),
		llm.WithLogger(logger.With("component", "llm")),
	)
	opts = append([]analysis.Option{
		analysis.WithLogger(logger.With("component", "analysis")),
		analysis.WithReconciler(reconcile.New(reconcile.WithLogger(logger.With("component", "reconcile")))),
	}, opts...)
	return analysis.New(llm.NewBuilder(cfg.Settings()), client, opts...)
}

// newAuthCmd creates the auth subcommand.
func newAuthCmd() *cobra.Command {
	var remove bool

	cmd := &cobra.Command{
		Use:   "auth <api-key>",
		Short: "Store the API key of the analysis service",
		Long:  "Save the analysis service API key to the config directory (file mode 0600), or remove it with --remove.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := credential.NewStore(getConfigDir())

			if remove {
				if err := store.Delete(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "API key removed.")
				return nil
			}

			if len(args) == 0 {
				return errors.New("missing API key: usage 'threadlens auth <api-key>'")
			}
			if err := store.Save(args[0]); err != nil {
				return fmt.Errorf("failed to save API key: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "API key saved.")
			fmt.Fprintf(cmd.OutOrStdout(), "Stored in: %s\n", store.Path())
			return nil
		},
	}

	cmd.Flags().BoolVar(&remove, "remove", false, "Remove the stored API key")

	return cmd
}

// newConfigCmd creates the config subcommand.
func newConfigCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long:  "Print the configuration threadlens would use, after the config file, .env, environment and stored API key are applied.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := flags.load(cmd)
			if err != nil {
				return err
			}

			timeout := cfg.Timeout.String()
			if cfg.Timeout == 0 {
				timeout = "disabled"
			}
			configFile := getConfigPath(flags.configPath)
			if configFile == "" {
				configFile = "(none)"
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config directory: %s\n", getConfigDir())
			fmt.Fprintf(out, "Config file:      %s\n", configFile)
			fmt.Fprintf(out, "Endpoint:         %s\n", orNotSet(cfg.Endpoint))
			fmt.Fprintf(out, "API key:          %s\n", credential.Mask(cfg.Credential))
			fmt.Fprintf(out, "Model:            %s\n", cfg.Model)
			fmt.Fprintf(out, "Max comments:     %d\n", cfg.MaxComments)
			fmt.Fprintf(out, "Timeout:          %s\n", timeout)
			fmt.Fprintf(out, "Temperature:      %g\n", cfg.Temperature)
			fmt.Fprintf(out, "Max tokens:       %d\n", cfg.MaxTokens)
			fmt.Fprintf(out, "Max retries:      %d\n", cfg.MaxRetries)
			fmt.Fprintf(out, "Log level:        %s\n", cfg.LogLevel)
			return nil
		},
	}

	return cmd
}

func orNotSet(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
