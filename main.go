package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/project-fusion/fusion-backend/config"
	"github.com/project-fusion/fusion-backend/health"
	"github.com/project-fusion/fusion-backend/router"
	"github.com/project-fusion/fusion-backend/telemetry"
)

func main() {
	if err := run(context.Background()); err != nil {
		log.Fatalln(err)
	}
}

func run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader()
	cfg, err := loader.Load()
	if err != nil {
		return errors.Wrap(err, "loading config")
	}

	level := new(slog.LevelVar)
	lvl, _ := config.ParseLevel(cfg.Log.Level)
	level.Set(lvl)

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry, cfg.Service.Name)
	if err != nil {
		return errors.Wrap(err, "setting up telemetry")
	}

	logger := telemetry.NewLogger(os.Stdout, cfg.Log, level, cfg.Service.Name, cfg.Telemetry.Enabled)
	slog.SetDefault(logger)
	logger.Info("config loaded", "file", loader.ConfigFile())

	loader.Watch(func(e fsnotify.Event, next *config.Config) {
		if l, err := config.ParseLevel(next.Log.Level); err == nil {
			level.Set(l)
		}
		logger.Info("config reloaded", "file", e.Name, "op", e.Op.String(), "log_level", level.Level().String())
	}, func(err error) {
		logger.Warn("ignoring config change", "error", err)
	})

	rr := router.New(
		router.WithLogger(logger),
		router.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
	)
	if err := setupRouter(rr, cfg, logger); err != nil {
		return errors.Wrap(err, "registering routes")
	}
	logger.Info("router loaded", "routes", len(rr.Routes()))

	serveErr := startServer(ctx, rr, cfg.Server, logger)

	flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := shutdownTelemetry(flushCtx); err != nil {
		logger.Warn("flushing telemetry", "error", err)
	}

	return serveErr
}

func setupRouter(rr *router.Router, cfg *config.Config, logger *slog.Logger) error {
	rr.Use(
		telemetry.Middleware(cfg.Service.Name),
		router.Recover(logger),
		router.RequestID(),
		router.Logging(logger),
		router.CORS(router.CORSOptions{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           cfg.CORS.MaxAge,
		}),
	)

	return rr.Handle(http.MethodGet, health.Path, health.Handler(cfg.Service.Message))
}

func startServer(ctx context.Context, handler http.Handler, cfg config.Server, logger *slog.Logger) error {
	srv := &http.Server{
		Handler:      handler,
		Addr:         cfg.Addr,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info("server running", "addr", cfg.Addr)
		serverErrCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "serving http")
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutting down server")
	}
	return nil
}
