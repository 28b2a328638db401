// dirsync client
//
// Walks a source directory on a cron schedule and uploads every file to a
// dirsync server, optionally deleting each file once the server has
// stored it. Failed files stay in place and are retried on the next run.
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

	"go.uber.org/zap"

	"github.com/fruitsalade/dirsync/internal/alert"
	"github.com/fruitsalade/dirsync/internal/auth"
	"github.com/fruitsalade/dirsync/internal/config"
	"github.com/fruitsalade/dirsync/internal/logging"
	"github.com/fruitsalade/dirsync/internal/metrics"
	"github.com/fruitsalade/dirsync/internal/scheduler"
	"github.com/fruitsalade/dirsync/internal/transfer"
	"github.com/fruitsalade/dirsync/internal/walker"
	"github.com/fruitsalade/dirsync/pkg/client"
)

var version = "dev"

func main() {
	configPath := flag.String("config", config.PathFromEnv(config.DefaultPath), "path to the JSON configuration file")
	once := flag.Bool("once", false, "run a single transfer and exit")
	flag.Parse()

	cfg, err := config.LoadClient(*configPath)
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

	logging.Info("starting dirsync client",
		zap.String("version", version),
		zap.String("source", cfg.SourcePath),
		zap.String("server", cfg.ServerURL),
		zap.String("schedule", cfg.CronSchedule),
		zap.Bool("dry_run", cfg.DryRun),
		zap.Bool("delete_source_file", cfg.DeleteSourceFile))

	notifier, err := alert.New(cfg.Mail)
	if err != nil {
		logging.Fatal("mail alert init failed", zap.Error(err))
	}

	clientCfg := client.Config{
		ServerURL: cfg.ServerURL,
		Timeout:   cfg.UploadTimeout.Std(),
		DryRun:    cfg.DryRun,
	}
	if cfg.AuthSecret != "" {
		host, _ := os.Hostname()
		clientCfg.Tokens = auth.NewSigner(cfg.AuthSecret, host)
	}
	uploader := client.New(clientCfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := uploader.WaitForServer(ctx); err != nil {
		logging.Warn("server not reachable, continuing anyway", zap.Error(err))
	}
	if ctx.Err() != nil {
		logging.Info("interrupted before the first run")
		return
	}

	runner := transfer.NewRunner(uploader, transfer.Options{
		DryRun:           cfg.DryRun,
		DeleteSourceFile: cfg.DeleteSourceFile,
	})
	job := func() {
		// Runs are not cancelled mid-flight; shutdown waits for them.
		_, err := runner.Run(context.Background(), cfg.SourcePath)
		var te *walker.TraversalError
		if errors.As(err, &te) {
			notifier.Notify("Transfer aborted", fmt.Sprintf("Cannot read source directory %s\nCause: %v", te.Root, te.Err))
		}
	}

	var guard transfer.Guard
	sched := scheduler.New(cfg.Schedule, &guard, job)

	if *once {
		sched.Trigger()
		alert.Wait(notifier)
		return
	}

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

	sched.Start()
	if cfg.RunOnStart {
		sched.RunNow()
	}

	<-ctx.Done()
	logging.Info("signal received, waiting for the active run")

	sched.Stop()
	if metricsServer != nil {
		metricsServer.Close()
	}
	alert.Wait(notifier)
	logging.Info("client stopped")
}
