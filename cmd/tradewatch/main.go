package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"tradewatch/internal/backend"
	"tradewatch/internal/cfg"
	"tradewatch/internal/dashboard"
	"tradewatch/internal/metrics"
	"tradewatch/internal/notify"
	"tradewatch/internal/storage"
	"tradewatch/internal/stream"
)

func main() {
	// .env is optional, used in local development only
	_ = godotenv.Load()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	setupLogging(c.LogLevel)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	startMetricsServer(ctx, c)

	archive := initializeStorage(c)
	if archive != nil {
		defer archive.Close()
	}

	api := backend.New(c.BackendURL, c.RESTTimeout)
	dispatcher := notify.NewDispatcher()
	dispatcher.AddHandler(logNotification)
	if archive != nil {
		dispatcher.AddHandler(func(n notify.Notification) {
			if err := archive.StoreNotification(n); err != nil {
				log.Warn().Err(err).Msg("notification archive write failed")
			}
		})
	}

	client := stream.NewClient(stream.Config{
		StreamURL: c.StreamURL,
		Budget: stream.RetryBudget{
			Max:      c.MaxReconnects,
			Interval: c.ReconnectInterval,
		},
		RefreshInterval: c.RefreshInterval,
		MaxSignals:      c.MaxSignals,
		Fetcher:         api,
		Dispatcher:      dispatcher,
		Metrics:         m,
	})

	if archive != nil {
		startSignalArchiver(client, archive)
	}

	client.Open()
	defer client.Close()

	dash := dashboard.NewServer(client, api, archive, c.DashboardPort)
	if err := dash.Start(); err != nil {
		log.Fatal().Err(err).Msg("dashboard start failed")
	}
	defer dash.Stop()

	log.Info().
		Str("backend", c.BackendURL).
		Str("stream", c.StreamURL).
		Int("dashboardPort", c.DashboardPort).
		Msg("tradewatch started")

	waitForShutdown(ctx, cancel)
}

// setupLogging configures the global zerolog level
func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// initializeStorage opens the history archive if DATA_PATH is configured
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath != "" {
		archive, err := storage.New(c.DataPath)
		if err != nil {
			log.Warn().Err(err).Msg("storage initialization failed, continuing without history")
			return nil
		}
		return archive
	}
	return nil
}

// startSignalArchiver records every signal snapshot change to the archive.
func startSignalArchiver(client *stream.Client, archive *storage.Store) {
	seen := make(map[int64]time.Time)
	client.Subscribe(func(snap stream.Snapshot) {
		for _, rec := range snap.Signals {
			if at, ok := seen[rec.ID]; ok && at.Equal(rec.CreatedAt) {
				continue
			}
			seen[rec.ID] = rec.CreatedAt
			if err := archive.StoreSignal(rec); err != nil {
				log.Warn().Err(err).Int64("id", rec.ID).Msg("signal archive write failed")
			}
		}
	})
}

func logNotification(n notify.Notification) {
	log.Info().
		Str("kind", n.Kind).
		Str("severity", string(n.Severity)).
		Bool("sticky", n.Sticky).
		Msg(n.Message)
}

// startMetricsServer starts the Prometheus metrics HTTP server
func startMetricsServer(ctx context.Context, c cfg.Settings) {
	go func() {
		mux := http.NewServeMux()

		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		mux.Handle("/metrics", promhttp.Handler())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", c.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		go func() {
			<-ctx.Done()
			if err := server.Shutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to shutdown metrics server")
			}
		}()

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

// waitForShutdown blocks until a shutdown signal arrives
func waitForShutdown(ctx context.Context, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel()
}
