package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/starford/folio/internal/cache"
	"github.com/starford/folio/internal/logging"
	"github.com/starford/folio/internal/remote"
	"github.com/starford/folio/internal/storage"
	"github.com/starford/folio/internal/workspace"
)

// env is the opened workspace shared by every command.
type env struct {
	logger *slog.Logger
	cache  *cache.Cache
	store  *workspace.Store
	root   storage.Dir
	remote *remote.Adapter
}

func (a *application) init() error {
	if a.config == nil {
		return errors.New("config is required")
	}
	if a.logger == nil {
		a.logger = logging.New(os.Stderr, a.config.App.LogFormat, a.config.App.LogLevel)
	}
	if a.version == "" {
		a.version = "dev"
	}
	if a.out == nil {
		a.out = os.Stdout
	}
	return nil
}

// open builds the cache, the posts store and the optional remote adapter,
// then loads the local workspace.
func (a *application) open(ctx context.Context) (*env, error) {
	cfg, logger := a.config, a.logger

	c, err := cache.Open(cfg.Cache.Path,
		cache.WithLogger(logger),
		cache.WithAppStateTTL(cfg.Cache.AppStateTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}
	e := &env{logger: logger, cache: c}

	overrides, err := cfg.Workspace.Multiplicities()
	if err != nil {
		e.close()
		return nil, err
	}
	e.store = workspace.New(c, logger,
		workspace.WithReadConcurrency(cfg.Workspace.ReadConcurrency),
		workspace.WithIncludeEmptyDirs(cfg.Workspace.IncludeEmptyDirs),
		workspace.WithMultiplicity(overrides),
	)

	if cfg.Remote.Enabled {
		factory := remote.NewFactory(cfg.Remote.ClientOptions(), cfg.Remote.MaxPages)
		e.remote = remote.NewAdapter(factory, c, logger,
			remote.WithBatchSize(cfg.Remote.BatchSize),
			remote.WithMultiplicity(overrides),
		)
	}

	root, err := e.openRoot(ctx, cfg.Workspace.Root)
	if err != nil {
		e.close()
		return nil, err
	}
	e.root = root

	logger.Info("Opening workspace", slog.String("workspace", root.Name()))
	if err := e.store.Initialize(ctx, root); err != nil {
		e.close()
		return nil, fmt.Errorf("open workspace: %w", err)
	}
	return e, nil
}

// openRoot opens the configured directory and remembers it, or falls back
// to the last workspace saved in the cache.
func (e *env) openRoot(ctx context.Context, configured string) (storage.Dir, error) {
	if configured == "" {
		dir, ref, ok := e.cache.LoadCurrentHandle(ctx, cache.OSResolver{})
		if !ok {
			return nil, errors.New("no workspace root configured and none saved")
		}
		e.logger.Info("Reopening saved workspace", slog.String("location", ref.Location))
		return dir, nil
	}

	if err := os.MkdirAll(configured, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace dir: %w", err)
	}
	abs, err := filepath.Abs(configured)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace dir: %w", err)
	}
	dir, err := storage.OpenOS(abs)
	if err != nil {
		return nil, fmt.Errorf("open workspace dir: %w", err)
	}
	ref := cache.HandleRef{Kind: cache.HandleLocal, Location: abs, Name: dir.Name()}
	e.cache.SaveCurrentHandle(ctx, ref)
	e.cache.SaveRecentHandle(ctx, ref.Name, ref)
	return dir, nil
}

// connectRemote mirrors the configured repository. Failures are logged;
// the local workspace keeps working.
func (e *env) connectRemote(ctx context.Context, cfg RemoteConfig) {
	if e.remote == nil {
		return
	}
	target := cfg.Target()
	e.cache.SaveRecentHandle(ctx, target.Key(), cache.HandleRef{
		Kind:     cache.HandleRemote,
		Location: target.Key(),
		Name:     target.Repo,
	})
	if err := e.remote.Connect(ctx, target); err != nil {
		e.logger.Warn("remote connect failed",
			slog.String("target", target.Key()), slog.String("error", err.Error()))
		return
	}
	st := e.remote.Snapshot()
	e.logger.Info("Remote loaded",
		slog.String("target", target.Key()),
		slog.Int("posts", len(st.Posts)),
		slog.Bool("truncated", st.Truncated))
}

// close flushes pending cache writes before closing the database.
func (e *env) close() {
	if e.remote != nil {
		e.remote.Close()
	}
	if e.store != nil {
		e.store.Close()
	}
	if err := e.cache.Close(); err != nil {
		e.logger.Warn("cache close failed", slog.String("error", err.Error()))
	}
}
