// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/stepsheet/internal/api"
	"github.com/starford/stepsheet/internal/docservice"
	"github.com/starford/stepsheet/internal/inbox"
	"github.com/starford/stepsheet/internal/mcpserver"
	"github.com/starford/stepsheet/internal/session"
	"github.com/starford/stepsheet/internal/sse"
	"github.com/starford/stepsheet/internal/storage"
	"github.com/starford/stepsheet/internal/workspace"
)

var errConfigRequired = errors.New("config is required")

// newLogger builds the process logger: JSON lines by default, or
// human-readable output through charmbracelet/log for log_format text.
func newLogger(cfg ApplicationConfig, w io.Writer) *slog.Logger {
	if cfg.LogFormat == LogFormatText {
		return slog.New(charmlog.NewWithOptions(w, charmlog.Options{
			Level:           charmLevel(cfg.LogLevel),
			ReportTimestamp: true,
			TimeFormat:      time.TimeOnly,
		}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
}

func charmLevel(l slog.Level) charmlog.Level {
	switch {
	case l <= slog.LevelDebug:
		return charmlog.DebugLevel
	case l <= slog.LevelInfo:
		return charmlog.InfoLevel
	case l <= slog.LevelWarn:
		return charmlog.WarnLevel
	default:
		return charmlog.ErrorLevel
	}
}

// core holds the components shared by every front end.
type core struct {
	store    storage.Provider
	tracker  *workspace.Tracker
	sessions *session.Manager
	broker   *sse.Broker
	svc      *docservice.Service
	logger   *slog.Logger
}

func openCore(ctx context.Context, cfg *Config, logger *slog.Logger) (*core, error) {
	store, err := storage.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	broker := sse.NewBroker(2 * time.Second)

	tracker, err := workspace.Load(ctx, store,
		workspace.WithAutosaveDelay(cfg.Editor.AutosaveDelay),
		workspace.WithDeletedLimit(cfg.Editor.DeletedHistoryLimit),
		workspace.WithLogger(logger),
		workspace.WithOnSaved(broker.WorkspaceSaved),
	)
	if err != nil {
		broker.Close()
		_ = store.Close()
		return nil, fmt.Errorf("load workspace: %w", err)
	}

	sessions := session.NewManager(tracker, broker,
		session.WithHistoryLimit(cfg.Editor.HistoryLimit),
		session.WithLogger(logger),
	)

	return &core{
		store:    store,
		tracker:  tracker,
		sessions: sessions,
		broker:   broker,
		svc:      docservice.NewService(tracker, sessions, logger),
		logger:   logger,
	}, nil
}

// close flushes open sessions and pending workspace changes, then releases
// the store.
func (c *core) close(ctx context.Context) error {
	var errs []error
	if err := c.sessions.CloseAll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close sessions: %w", err))
	}
	if err := c.tracker.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush workspace: %w", err))
	}
	c.broker.Close()
	if err := c.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	out := app.logOut
	if out == nil {
		out = os.Stdout
	}
	logger := newLogger(cfg.App, out)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_driver", cfg.Store.Driver),
		slog.String("store_path", cfg.Store.Path),
		slog.Bool("inbox_enabled", cfg.Inbox.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	c, err := openCore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	apiRouter := api.NewRouter(c.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, c.broker)

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

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	// runCtx is cancelled on a shutdown signal so every goroutine in the
	// group observes it, not only the HTTP server.
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	g, gCtx := errgroup.WithContext(runCtx)

	// Import documents dropped into the inbox directory.
	if cfg.Inbox.Enabled {
		g.Go(func() error {
			err := inbox.Watch(gCtx, inbox.Config{
				Dir:    cfg.Inbox.Path,
				Folder: cfg.Inbox.Folder,
				Ignore: cfg.Inbox.Ignore,
			}, c.tracker, logger, c.broker.FilesImported)
			if err != nil {
				logger.Error("inbox watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
			stop()
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

	waitErr := g.Wait()

	// The store is released only after the inbox watcher and all HTTP
	// handlers have returned.
	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.close(closeCtx); err != nil {
		logger.Error("Workspace shutdown error", slog.String("error", err.Error()))
	}

	if waitErr != nil {
		logger.Error("Application error", slog.String("error", waitErr.Error()))
		return waitErr
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools over stdin/stdout until the client disconnects.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	out := app.logOut
	if out == nil {
		out = os.Stderr
	}
	logger := newLogger(cfg.App, out)
	slog.SetDefault(logger)

	c, err := openCore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	logger.Info("MCP server starting", slog.String("version", app.version))
	serveErr := mcpserver.New(c.svc, app.version).ServeStdio()

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.close(closeCtx); err != nil {
		logger.Error("Workspace shutdown error", slog.String("error", err.Error()))
	}
	return serveErr
}
