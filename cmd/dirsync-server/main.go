// dirsync server
//
// Receives files uploaded by dirsync-client and rebuilds the client's
// directory tree below the upload root:
// - never overwrites: a colliding name gets a timestamp suffix
// - restores the client's creation and modification times
// - local filesystem or S3 storage
// - email alerts on failed uploads
// - Prometheus metrics on a separate listener
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/dirsync/internal/alert"
	"github.com/fruitsalade/dirsync/internal/auth"
	"github.com/fruitsalade/dirsync/internal/config"
	"github.com/fruitsalade/dirsync/internal/logging"
	"github.com/fruitsalade/dirsync/internal/metrics"
	"github.com/fruitsalade/dirsync/internal/receiver"
	"github.com/fruitsalade/dirsync/internal/storage"
)

var version = "dev"

func main() {
	configPath := flag.String("config", config.PathFromEnv(config.DefaultPath), "path to the JSON configuration file")
	flag.Parse()

	cfg, err := config.LoadServer(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}

	if err := logging.Init(logging.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.OutputPaths(),
	}); err != nil {
		fmt.Fprintln(os.Stderr, "logging init error:", err)
		os.Exit(1)
	}
	defer logging.Sync()

	logging.Info("starting dirsync server",
		zap.String("version", version),
		zap.String("listen", cfg.ListenAddr()),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("metrics", cfg.MetricsAddr))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notifier, err := alert.New(cfg.Mail)
	if err != nil {
		logging.Fatal("mail alert init failed", zap.Error(err))
	}

	backend, err := storage.New(ctx, cfg)
	if err != nil {
		logging.Fatal("storage init failed", zap.Error(err))
	}
	defer backend.Close()

	opts := receiver.Options{
		MaxUploadSize: cfg.MaxUploadSize,
		SpoolDir:      cfg.SpoolDir,
		Version:       version,
	}
	if cfg.AuthSecret != "" {
		opts.Verifier = auth.NewVerifier(cfg.AuthSecret)
		logging.Info("upload authentication enabled")
	}
	srv := receiver.NewServer(backend, notifier, opts)

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler()}
		go func() {
			logging.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logging.Error("metrics listener failed", zap.Error(err))
			}
		}()
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 30 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logging.Info("accepting uploads",
			zap.String("addr", cfg.ListenAddr()),
			zap.String("upload_dir", cfg.UploadDir))
		serveErr <- httpServer.ListenAndServe()
	}()

	notifier.Notify("Server started", fmt.Sprintf("dirsync server is running on %s", cfg.ListenAddr()))

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal("upload listener failed", zap.Error(err))
		}
	case <-ctx.Done():
		logging.Info("signal received, draining in-flight uploads")
		drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := httpServer.Shutdown(drainCtx); err != nil {
			logging.Error("graceful shutdown failed", zap.Error(err))
		}
		cancel()
	}
	if metricsServer != nil {
		metricsServer.Close()
	}

	alert.Wait(notifier)
	logging.Info("server stopped")
}
