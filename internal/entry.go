// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
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

	"github.com/starford/ansuz/internal/api"
	"github.com/starford/ansuz/internal/graph"
	"github.com/starford/ansuz/internal/mcpserver"
	"github.com/starford/ansuz/internal/metaindex"
	"github.com/starford/ansuz/internal/noteservice"
	"github.com/starford/ansuz/internal/search"
	"github.com/starford/ansuz/internal/vault"
	"github.com/starford/ansuz/internal/ws"
)

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("search_strategy", cfg.Search.Strategy),
		slog.String("log_level", cfg.App.LogLevel.String()))

	store, idx, g, searcher, svc, err := buildCore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	// WebSocket hub, fed by engine events.
	hub := ws.NewHub(2 * time.Second)
	defer hub.Close()
	wireHubEvents(idx, hub)

	apiRouter := api.NewRouter(svc, g, searcher, store, cfg.Auth.AuthEnabled(), cfg.Auth.Token, hub)

	// Build chi router.
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
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	grp, gCtx := errgroup.WithContext(ctx)

	// Consume store change events into the metadata engine.
	grp.Go(func() error {
		return idx.Run(gCtx)
	})

	// Watch the vault directory for external edits.
	grp.Go(func() error {
		if err := vault.Watch(gCtx, store, logger); err != nil {
			logger.Warn("vault watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	// Start HTTP server.
	grp.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	grp.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := grp.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools over stdio. Logs go to stderr so stdout
// stays clean for the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	store, _, g, searcher, svc, err := buildCore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	srv := mcpserver.New(store, svc, g, searcher)
	logger.Info("MCP server starting on stdio", slog.String("vault_path", cfg.Vault.Path))
	return srv.ServeStdio()
}

// buildCore wires the store, metadata engine, graph, search strategy, and
// note service shared by the HTTP and MCP entry points. The engine comes
// back fully initialized.
func buildCore(ctx context.Context, cfg *Config, logger *slog.Logger) (*vault.FS, *metaindex.Engine, *graph.Engine, search.Engine, *noteservice.Service, error) {
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("create vault dir: %w", err)
	}

	store, err := vault.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("init vault: %w", err)
	}

	idx := metaindex.NewEngine(store, logger)
	idx.SetBatchWindow(cfg.Index.BatchWindow())
	if err := idx.Initialize(ctx); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("init index: %w", err)
	}

	g := graph.New(idx)

	var searcher search.Engine
	switch cfg.Search.Strategy {
	case SearchStrategyLinear:
		searcher = search.NewLinear(store, idx)
	default:
		indexed := search.NewIndexed(store, idx, search.IndexedOptions{
			MinTokenLen:  cfg.Search.MinTokenLen,
			CacheTTL:     cfg.Search.CacheTTL(),
			CacheEntries: cfg.Search.CacheEntries,
		})
		// Keep the inverted index in step with the metadata engine.
		idx.On(metaindex.KindChanged, func(ev metaindex.Event) {
			if ch, ok := ev.(metaindex.ChangedEvent); ok {
				indexed.MarkDirty(ch.File.Path)
			}
		})
		idx.On(metaindex.KindDeleted, func(ev metaindex.Event) {
			if del, ok := ev.(metaindex.DeletedEvent); ok {
				indexed.MarkDeleted(del.Path)
			}
		})
		searcher = indexed
	}

	svc := noteservice.NewService(store, idx, g)
	return store, idx, g, searcher, svc, nil
}

// wireHubEvents forwards engine notifications to connected WebSocket
// clients. A changed file with no previous hash is a creation.
func wireHubEvents(idx *metaindex.Engine, hub *ws.Hub) {
	idx.On(metaindex.KindChanged, func(ev metaindex.Event) {
		ch, ok := ev.(metaindex.ChangedEvent)
		if !ok || !strings.HasSuffix(ch.File.Path, ".md") {
			return
		}
		kind := "updated"
		if ch.OldHash == "" {
			kind = "created"
		}
		hub.PublishNoteEvent(kind, ch.File.Path)
	})
	idx.On(metaindex.KindDeleted, func(ev metaindex.Event) {
		if del, ok := ev.(metaindex.DeletedEvent); ok {
			hub.PublishNoteEvent("deleted", del.Path)
		}
	})
	idx.On(metaindex.KindBatchComplete, func(ev metaindex.Event) {
		if batch, ok := ev.(metaindex.BatchCompleteEvent); ok {
			hub.Publish(ws.Event{Type: "index.batch", Data: map[string]any{
				"files":       batch.FilesProcessed,
				"duration_ms": batch.Duration.Milliseconds(),
			}})
		}
	})
}
