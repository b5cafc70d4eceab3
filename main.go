package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/lexandro/assetref-mcp/config"
	"github.com/lexandro/assetref-mcp/index"
	"github.com/lexandro/assetref-mcp/register"
	"github.com/lexandro/assetref-mcp/replace"
	"github.com/lexandro/assetref-mcp/tools"
	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	flagRoot        string
	flagExcludes    []string
	flagRipgrep     string
	flagWorkers     int
	flagLogLevel    string
	flagLogFile     string
	flagDrainPeriod int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "assetref-mcp",
	Short: "Reference index and exact find/replace over text-serialized asset files",
	Long: "assetref-mcp keeps a persistent index of the references between asset files, " +
		"answers reverse lookups from it and performs revertible literal replacements. " +
		"Without a subcommand it serves the MCP tools on stdio.",
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runServe,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagRoot, "root", "", "project root directory (default: current working directory)")
	flags.StringArrayVar(&flagExcludes, "exclude", nil, "extra exclude glob (repeatable)")
	flags.StringVar(&flagRipgrep, "rg", "", "path to the rg binary (default: in-process search)")
	flags.IntVar(&flagWorkers, "workers", 0, "parallel workers (default: number of CPUs)")
	flags.StringVar(&flagLogLevel, "log-level", "", "log level: debug|info|warn|error")
	flags.StringVar(&flagLogFile, "log-file", "", "log file path (default: <data dir>/assetref-mcp.log)")

	serveCmd.Flags().IntVar(&flagDrainPeriod, "drain-interval", 0, "seconds between change log drains, 0 keeps the configured value")

	rootCmd.AddCommand(serveCmd, rebuildCmd, syncCmd, refsCmd, grepCmd, replaceCmd, registerCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the MCP tools on stdio (default)",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	if flagDrainPeriod > 0 {
		cfg.DrainIntervalSeconds = flagDrainPeriod
	}

	logger.Info("starting assetref-mcp",
		"version", version,
		"root", cfg.Root,
		"assetRoot", cfg.AssetRoot,
		"index", cfg.IndexPath(),
	)

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.serve(ctx, version)
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the reference index from a full scan",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, false, func(ctx context.Context, a *app) error {
			if _, err := a.resolver.Refresh(); err != nil {
				return fmt.Errorf("resolving identifiers: %w", err)
			}
			result, err := a.rebuilder.RebuildAndWait(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d files, %d references in %s\n",
				result.Files, result.Tokens, result.Duration.Round(time.Millisecond))
			return nil
		})
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Apply the pending change log to the reference index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, false, func(ctx context.Context, a *app) error {
			if _, err := a.resolver.Refresh(); err != nil {
				return fmt.Errorf("resolving identifiers: %w", err)
			}
			if err := a.refs.Load(a.cfg.IndexPath()); err != nil {
				return err
			}
			result, err := a.processor.DrainAndWait()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d updated, %d removed, %d stale, %d discarded, %d failed\n",
				result.Updated, result.Removed, result.Stale, result.Discarded, result.Failed)
			return nil
		})
	},
}

var (
	flagGuid   string
	flagFileID int64
)

var refsCmd = &cobra.Command{
	Use:   "refs",
	Short: "List the files that reference an asset",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagGuid == "" {
			return fmt.Errorf("--guid is required")
		}
		return withApp(cmd, true, func(ctx context.Context, a *app) error {
			query := index.AssetToken(flagGuid)
			if cmd.Flags().Changed("file-id") {
				query = index.ComponentToken(flagFileID, flagGuid)
			}
			files, err := a.query.Find(query)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tools.FormatFileInfos(query, files))
			return nil
		})
	},
}

func init() {
	refsCmd.Flags().StringVar(&flagGuid, "guid", "", "identifier of the referenced asset")
	refsCmd.Flags().Int64Var(&flagFileID, "file-id", 0, "local id of the referenced sub-object")
}

var grepCmd = &cobra.Command{
	Use:   "grep TEXT",
	Short: "List the asset files containing a literal string",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, false, func(ctx context.Context, a *app) error {
			files, err := a.session.FindString(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tools.FormatFileInfos(args[0], files))
			return nil
		})
	},
}

var replaceCmd = &cobra.Command{
	Use:   "replace OLD NEW",
	Short: "Replace a literal string in every asset file containing it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, true, func(ctx context.Context, a *app) error {
			if _, err := a.session.FindString(ctx, args[0]); err != nil {
				return err
			}
			a.session.SetReplacement(args[1])

			done := make(chan replace.BulkResult, 1)
			a.session.ReplaceAll(func(result replace.BulkResult) { done <- result })
			result := <-done

			fmt.Fprintf(cmd.OutOrStdout(), "Replaced %d occurrences in %d files\n", result.Occurrences, result.Files)
			return result.Err
		})
	},
}

var registerCmd = &cobra.Command{
	Use:   "register project|user [directory] [-- server args...]",
	Short: "Register this binary as an MCP server in .mcp.json or ~/.claude.json",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var serverArgs []string
		if dash := cmd.ArgsLenAtDash(); dash >= 0 {
			serverArgs = args[dash:]
			args = args[:dash]
		}
		if len(args) == 0 || len(args) > 2 {
			return fmt.Errorf("expected a scope and an optional directory, got %v", args)
		}
		opts := register.Options{
			ServerName: register.DeriveServerName(os.Args[0]),
			Scope:      args[0],
			ServerArgs: serverArgs,
		}
		if len(args) == 2 {
			if opts.Scope != register.ScopeProject {
				return fmt.Errorf("a directory is only accepted for the %q scope", register.ScopeProject)
			}
			opts.Directory = args[1]
		}

		configPath, err := register.Register(opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Registered %q in %s\n", opts.ServerName, configPath)
		return nil
	},
}

// withApp runs fn against a fully built app. With load set the persisted
// index is brought up to date first.
func withApp(cmd *cobra.Command, load bool, fn func(ctx context.Context, a *app) error) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if load {
		if err := a.load(ctx); err != nil {
			return err
		}
	}
	return fn(ctx, a)
}

// setup loads the configuration, applies the command-line overrides and
// opens the logger.
func setup(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	root := flagRoot
	if root == "" {
		var err error
		root, err = os.Getwd()
		if err != nil {
			return config.Config{}, nil, fmt.Errorf("getting working directory: %w", err)
		}
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("resolving root %s: %w", root, err)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return config.Config{}, nil, err
	}
	applyFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := ensureDataDir(cfg); err != nil {
		return config.Config{}, nil, err
	}

	// Never stdout: it carries the MCP stdio transport.
	return cfg, setupLogger(cfg.LogLevel, cfg.LogPath()), nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	cfg.Exclude = append(cfg.Exclude, flagExcludes...)
	if flags.Changed("rg") {
		cfg.RipgrepPath = flagRipgrep
	}
	if flags.Changed("workers") {
		cfg.Workers = flagWorkers
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if flags.Changed("log-file") {
		cfg.LogFile = flagLogFile
	}
}

// setupLogger creates an slog.Logger writing to a file, or to stderr when
// the file cannot be opened.
func setupLogger(level string, logFile string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	writer := os.Stderr
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cannot open log file %s: %v, falling back to stderr\n", logFile, err)
		} else {
			writer = f
		}
	}

	handler := slog.NewTextHandler(writer, &slog.HandlerOptions{Level: logLevel})
	return slog.New(handler)
}
