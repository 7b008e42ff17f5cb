// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/folio/internal/api"
	"github.com/starford/folio/internal/mcpserver"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/postservice"
	"github.com/starford/folio/internal/remote"
	"github.com/starford/folio/internal/schema"
	"github.com/starford/folio/internal/sse"
	"github.com/starford/folio/internal/workspace"
)

const snapshotThrottle = 250 * time.Millisecond

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if err := app.init(); err != nil {
		return err
	}

	cfg, logger := app.config, app.logger
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("workspace_root", cfg.Workspace.Root),
		slog.String("cache_path", cfg.Cache.Path),
		slog.Bool("remote_enabled", cfg.Remote.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	e, err := app.open(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	broker := sse.NewBroker(snapshotThrottle)
	defer broker.Close()
	stopForwarding := forwardSnapshots(broker, e.store, e.remote)
	defer stopForwarding()

	svc := postservice.New(e.store, e.cache, broker)
	var rw api.RemoteWorkspace
	if e.remote != nil {
		rw = e.remote
	}
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, rw)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if e.store.Snapshot().IsLoading {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"loading"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		e.connectRemote(gCtx, cfg.Remote)
		return nil
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools over stdio. Logs go to stderr.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if err := app.init(); err != nil {
		return err
	}
	slog.SetDefault(app.logger)

	e, err := app.open(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	srv := mcpserver.New(postservice.New(e.store, e.cache, nil), app.version)
	app.logger.Info("Starting MCP server on stdio")
	return srv.ServeStdio()
}

// Scan loads the workspace and prints its file tree.
func Scan(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if err := app.init(); err != nil {
		return err
	}

	e, err := app.open(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	var b strings.Builder
	writeTree(&b, e.store.Snapshot().FileTree, 0)
	_, err = fmt.Fprint(app.out, b.String())
	return err
}

func writeTree(b *strings.Builder, nodes []models.FileTreeNode, depth int) {
	for _, n := range nodes {
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(n.Name)
		if n.IsDirectory {
			b.WriteString("/")
		}
		b.WriteString("\n")
		writeTree(b, n.Children, depth+1)
	}
}

// Schema loads the workspace and prints the inferred attribute schema as JSON.
func Schema(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if err := app.init(); err != nil {
		return err
	}

	e, err := app.open(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	enc := json.NewEncoder(app.out)
	enc.SetIndent("", "  ")
	return enc.Encode(schema.Analyze(e.store.Snapshot().Posts))
}

// forwardSnapshots publishes store and remote snapshots to broker until the
// returned func is called. remote may be nil.
func forwardSnapshots(broker *sse.Broker, store *workspace.Store, rem *remote.Adapter) (stop func()) {
	stops := []func(){store.Subscribe(func(s models.WorkspaceState) {
		broker.PublishSnapshot(sse.Snapshot(s))
	})}
	if rem != nil {
		stops = append(stops, rem.Subscribe(func(s remote.State) {
			broker.PublishRemoteSnapshot(sse.RemoteSnapshotData{
				SnapshotData: sse.Snapshot(s.WorkspaceState),
				Loaded:       s.Loaded,
				Total:        s.Total,
				Truncated:    s.Truncated,
			})
		}))
	}
	return func() {
		for _, fn := range stops {
			fn()
		}
	}
}
