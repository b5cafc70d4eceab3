package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/lexandro/assetref-mcp/assets"
	"github.com/lexandro/assetref-mcp/assettype"
	"github.com/lexandro/assetref-mcp/changelog"
	"github.com/lexandro/assetref-mcp/config"
	"github.com/lexandro/assetref-mcp/ignore"
	"github.com/lexandro/assetref-mcp/index"
	"github.com/lexandro/assetref-mcp/rebuild"
	"github.com/lexandro/assetref-mcp/replace"
	"github.com/lexandro/assetref-mcp/runner"
	"github.com/lexandro/assetref-mcp/search"
	"github.com/lexandro/assetref-mcp/server"
	"github.com/lexandro/assetref-mcp/tools"
	"github.com/lexandro/assetref-mcp/watcher"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// app holds the wired components of one project.
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	startTime time.Time

	ignorer   *ignore.Matcher
	resolver  *assets.MetaResolver
	refs      *index.ReferenceIndex
	changeLog *changelog.Log
	runner    *runner.Runner
	invoker   search.Invoker
	searcher  string

	processor *changelog.Processor
	rebuilder *rebuild.Rebuilder
	query     *index.QueryEngine
	session   *replace.Session
	recorder  *recorder

	drains sync.WaitGroup // drains scheduled by reconcile
}

// newApp builds every component from cfg. Nothing is scanned yet; call load.
func newApp(cfg config.Config, logger *slog.Logger) (*app, error) {
	scanner, err := index.NewTokenScanner(cfg.TokenPattern)
	if err != nil {
		return nil, fmt.Errorf("compiling token pattern: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, startTime: time.Now()}

	for ext, t := range cfg.Types {
		assettype.Default.Register(ext, assettype.Type(t))
	}

	a.ignorer = ignore.NewMatcher(ignore.MatcherOptions{
		RootDir:  cfg.Root,
		Excludes: cfg.Exclude,
	})
	a.resolver = assets.NewMetaResolver(cfg.Root, a.ignorer)
	a.refs = index.NewReferenceIndex(cfg.IndexPath())
	a.changeLog = changelog.NewLog(cfg.ChangeLogPath())
	a.runner = runner.New(cfg.Workers, logger)

	if cfg.RipgrepPath != "" {
		a.invoker = search.NewRipgrep(cfg.RipgrepPath, logger)
		a.searcher = "ripgrep (" + cfg.RipgrepPath + ")"
	} else {
		a.invoker = search.NewNative(a.ignorer)
		a.searcher = "native"
	}

	a.processor = changelog.NewProcessor(changelog.ProcessorOptions{
		RootDir:   cfg.Root,
		AssetRoot: cfg.AssetRoot,
		Log:       a.changeLog,
		Index:     a.refs,
		Resolver:  a.resolver,
		Scanner:   scanner,
		Ignorer:   a.ignorer,
		Runner:    a.runner,
		Logger:    logger,
	})
	a.rebuilder = rebuild.New(rebuild.Options{
		RootDir:     cfg.Root,
		SearchRoot:  cfg.AssetPath(),
		Index:       a.refs,
		Log:         a.changeLog,
		Resolver:    a.resolver,
		Invoker:     a.invoker,
		Pattern:     cfg.TokenPattern,
		MatchPrefix: cfg.MatchPrefix,
		Extensions:  cfg.Extensions,
		Excludes:    cfg.Exclude,
		Logger:      logger,
	})
	a.query = index.NewQueryEngine(a.refs, a.resolver, cfg.Root, logger)
	a.recorder = newRecorder(cfg.Root, cfg.AssetRoot, cfg.Extensions, a.changeLog, a.resolver, a.ignorer, logger)
	a.session = replace.NewSession(replace.Options{
		RootDir:    cfg.Root,
		SearchRoot: cfg.AssetPath(),
		Excludes:   cfg.Exclude,
		Invoker:    a.invoker,
		Runner:     a.runner,
		Notify:     a.reconcile,
		Logger:     logger,
	})
	return a, nil
}

// load resolves identifiers and brings the reference index up to date: the
// persisted index plus pending changes, or a full rebuild when there is no
// usable index.
func (a *app) load(ctx context.Context) error {
	count, err := a.resolver.Refresh()
	if err != nil {
		return fmt.Errorf("resolving identifiers: %w", err)
	}
	a.logger.Info("identifiers resolved", "count", count)

	persisted := assets.Exists(a.cfg.IndexPath())
	if persisted {
		if err := a.refs.Load(a.cfg.IndexPath()); err != nil {
			a.logger.Warn("persisted index unusable, rebuilding", "path", a.cfg.IndexPath(), "error", err)
			persisted = false
		}
	}
	if !persisted {
		_, err := a.rebuilder.RebuildAndWait(ctx)
		return err
	}

	_, err = a.processor.DrainAndWait()
	return err
}

// reconcile is the replace session's notifier: rewritten files are logged
// as updates and a drain is scheduled.
func (a *app) reconcile(paths []string) {
	entries, err := a.recorder.recordEdits(paths)
	if err != nil {
		a.logger.Warn("logging edited files failed", "files", len(paths), "error", err)
		return
	}
	if len(entries) == 0 {
		return
	}
	a.drains.Add(1)
	a.processor.Drain(func(result changelog.DrainResult, err error) {
		defer a.drains.Done()
		logDrain(a.logger, result, err)
	})
}

// serve runs the MCP server on stdio with live change recording.
func (a *app) serve(ctx context.Context, version string) error {
	if err := a.load(ctx); err != nil {
		return err
	}

	fileWatcher, err := watcher.NewWatcher(watcher.Options{
		RootDir: a.cfg.Root,
		Ignore:  a.ignorer,
		Logger:  a.logger,
	})
	if err != nil {
		a.logger.Warn("failed to start file watcher, continuing without live updates", "error", err)
	} else {
		go fileWatcher.Start()
		go a.recorder.run(fileWatcher.Events())
		defer fileWatcher.Close()
		a.logger.Info("file watcher started", "dirs", fileWatcher.WatchedDirs())
	}

	stop := make(chan struct{})
	defer close(stop)
	if a.cfg.DrainIntervalSeconds > 0 {
		go runPeriodicSync(time.Duration(a.cfg.DrainIntervalSeconds)*time.Second, a.processor, a.logger, stop)
	}

	mcpServer := server.Setup(version, a.handlers())

	a.logger.Info("MCP server starting on stdio")
	if err := mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("running MCP server: %w", err)
	}
	return nil
}

func (a *app) handlers() server.Handlers {
	return server.Handlers{
		Refs:       &tools.RefsHandler{Query: a.query, Session: a.session, Logger: a.logger},
		FindString: &tools.FindStringHandler{Session: a.session, Logger: a.logger},
		Replace:    &tools.ReplaceHandler{Session: a.session, Logger: a.logger},
		Revert:     &tools.RevertHandler{Session: a.session, Logger: a.logger},
		Rebuild: &tools.RebuildHandler{
			Logger: a.logger,
			DoRebuild: func(ctx context.Context) (rebuild.Result, error) {
				// Ignore files or sidecars may have changed since startup.
				a.ignorer.Reload()
				if _, err := a.resolver.Refresh(); err != nil {
					return rebuild.Result{}, fmt.Errorf("resolving identifiers: %w", err)
				}
				return a.rebuilder.RebuildAndWait(ctx)
			},
		},
		Sync: &tools.SyncHandler{Logger: a.logger, DoSync: a.processor.DrainAndWait},
		Status: &tools.StatusHandler{
			Index:     a.refs,
			Resolver:  a.resolver,
			ChangeLog: a.changeLog,
			Session:   a.session,
			Searcher:  a.searcher,
			StartTime: a.startTime,
			RootDir:   a.cfg.Root,
			Logger:    a.logger,
		},
	}
}

// close waits for scheduled drains and releases the query engine.
func (a *app) close() {
	a.drains.Wait()
	if err := a.query.Close(); err != nil {
		a.logger.Warn("closing query engine", "error", err)
	}
}

// ensureDataDir creates the directory holding the index and change log.
func ensureDataDir(cfg config.Config) error {
	if err := os.MkdirAll(cfg.DataPath(), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	return nil
}
