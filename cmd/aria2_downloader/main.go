package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/aria2_downloader/internal/config"
	"github.com/italolelis/aria2_downloader/internal/dc"
	"github.com/italolelis/aria2_downloader/internal/dc/aria2"
	"github.com/italolelis/aria2_downloader/internal/download"
	"github.com/italolelis/aria2_downloader/internal/events"
	"github.com/italolelis/aria2_downloader/internal/http/rest"
	"github.com/italolelis/aria2_downloader/internal/logctx"
	"github.com/italolelis/aria2_downloader/internal/notifier"
	"github.com/italolelis/aria2_downloader/internal/storage"
	"github.com/italolelis/aria2_downloader/internal/storage/sqlite"
	"github.com/italolelis/aria2_downloader/internal/telemetry"
	"github.com/italolelis/aria2_downloader/internal/tracker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	handler := logctx.NewTraceHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	logger := slog.New(handler)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("aria2 downloader starting...", "log_level", cfg.LogLevel, "build_mode", cfg.BuildMode, "version", version)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	defer func() {
		if err := tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		logger.Error("DB error", "err", err)

		return err
	}
	defer database.Close()

	downloads := sqlite.NewInstrumentedDownloadRepository(database, tel)
	settings := sqlite.NewSettingsRepository(database, storage.Settings{DownloadDir: cfg.DownloadDir})

	// =========================================================================
	// Start Download Daemon Client
	daemon := dc.NewInstrumentedDaemon(
		aria2.NewClient(cfg.Aria2.RPCURL, cfg.Aria2.Secret, cfg.Aria2.Timeout),
		tel,
		"aria2",
	)

	if err := daemon.Authenticate(ctx); err != nil {
		return fmt.Errorf("authentication error: %w", err)
	}

	// =========================================================================
	// Start Application State
	bus := events.NewBus()
	defer bus.Close()

	notif := buildNotifier(cfg)
	setupNotifications(ctx, bus, notif)

	submitter := download.NewSubmitter(daemon, settings, downloads, bus, notif,
		download.WithDevelopment(cfg.IsDevelopment()),
		download.WithTelemetry(tel),
	)

	// =========================================================================
	// Start Tracker
	tracker.New(downloads, daemon, bus, tel, cfg.TrackerInterval, cfg.TrackerParallel).Watch(ctx)

	// =========================================================================
	// Start API Service

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	server := setupServer(ctx, cfg, tel, rest.NewDownloadsHandler(
		cfg.API.Username,
		cfg.API.Password,
		submitter,
		downloads,
		settings,
	))

	go func() {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)
		serverErrors <- server.ListenAndServe()
	}()

	logger.Info("waiting for downloads...",
		"rpc_url", cfg.Aria2.RPCURL,
		"download_dir", cfg.DownloadDir,
		"tracker_interval", cfg.TrackerInterval.String(),
	)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return ctx.Err()
	}
}

func buildNotifier(cfg *config.Config) notifier.Notifier {
	if cfg.DiscordWebhookURL != "" {
		return notifier.NewDiscordNotifier(cfg.DiscordWebhookURL)
	}

	return notifier.LogNotifier{Level: slog.LevelInfo}
}

// setupNotifications announces added and finished downloads.
func setupNotifications(ctx context.Context, bus *events.Bus, notif notifier.Notifier) {
	logger := logctx.LoggerFromContext(ctx)

	ch, unsubscribe := bus.Subscribe(64)

	go func() {
		defer unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-ch:
				if !ok {
					return
				}

				message := notificationFor(event)
				if message == "" {
					continue
				}

				if err := notif.Notify(ctx, message); err != nil {
					logger.Error("failed to send notification", "download_id", event.Download.ID, "err", err)
				}
			}
		}
	}()
}

func notificationFor(event events.Event) string {
	d := event.Download

	switch {
	case event.Type == events.DownloadAdded:
		return "⬇️ Download added: " + d.Name + " (" + d.ID + ")"
	case d.DownloadStatus == storage.StatusComplete:
		return "✅ Download finished: " + d.Name + " (" + d.ID + ")"
	case d.DownloadStatus == storage.StatusError:
		return "❌ Download failed: " + d.Name + " (" + d.ID + ")"
	default:
		return ""
	}
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(ctx context.Context, cfg *config.Config, tel *telemetry.Telemetry, h *rest.DownloadsHandler) *http.Server {
	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)

	r.Handle("/metrics", tel.Handler())
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Mount("/", h.Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      otelhttp.NewHandler(r, "aria2_downloader"),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
