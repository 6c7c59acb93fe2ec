package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-chip-donations/config"
)

var (
	workerMode bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Poll CHIP for pending transactions that were never settled by a webhook or return",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"reconcile",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.ReconcileInterval },
			requireSharedLocker,
			func(app *application, ctx context.Context) error {
				return app.reconcile.RunReconcileBatch(ctx)
			},
		)
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().BoolVar(&workerMode, "worker", false, "Run continuously using configured interval")
}

// requireSharedLocker refuses the in-process lock for the sweep. The sweep
// runs in its own process, so it only serializes with the webhook and return
// handlers of the serving replicas through redis.
func requireSharedLocker(cfg *config.Config) error {
	if cfg.Reconcile.LockBackend != config.LockBackendRedis {
		return fmt.Errorf("reconcile requires RECONCILE_LOCK_BACKEND=%s, got %s", config.LockBackendRedis, cfg.Reconcile.LockBackend)
	}
	return nil
}

func runCommand(
	name string,
	intervalResolver func(cfg *config.Config) time.Duration,
	check func(cfg *config.Config) error,
	fn func(app *application, ctx context.Context) error,
) {
	app, cleanup := mustCreateApplication()
	defer cleanup()

	if check != nil {
		if err := check(app.cfg); err != nil {
			logrus.WithError(err).WithField("job", name).Fatal("Refusing to run job")
		}
	}

	if workerMode {
		runWorker(name, intervalResolver(app.cfg), app, fn)
		return
	}

	ctx := context.Background()
	runJob(name, func() error { return fn(app, ctx) })
}

func runWorker(
	name string,
	interval time.Duration,
	app *application,
	fn func(app *application, ctx context.Context) error,
) {
	if interval <= 0 {
		logrus.WithField("job", name).Fatal("invalid worker interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runJob(name, func() error { return fn(app, ctx) })

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-quit:
			logrus.WithField("job", name).Info("Worker shutdown requested")
			return
		case <-ticker.C:
			runJob(name, func() error { return fn(app, ctx) })
		}
	}
}

func runJob(name string, fn func() error) {
	start := time.Now()
	err := fn()
	latency := time.Since(start)
	if err != nil {
		logrus.WithError(err).WithField("job", name).WithField("latency", latency.String()).Error("job_failed")
		return
	}
	logrus.WithField("job", name).WithField("latency", latency.String()).Info("job_completed")
}
