// Command luxanalytics-demo wires the luxanalytics library into a runnable
// host: it loads configuration, starts a Pipeline, tracks a handful of
// synthetic events on a timer, and serves the debug/health HTTP surface
// until it receives a termination signal.
//
// It is a reference host, not a facade the library depends on — an
// embedding application is expected to call the luxanalytics package
// directly rather than shell out to this binary.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/KimMachineGun/automemlimit"
	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"

	luxanalytics "github.com/luxardolabs/luxanalytics-go"
	"github.com/luxardolabs/luxanalytics-go/internal/config"
	agenterrors "github.com/luxardolabs/luxanalytics-go/internal/errors"
	"github.com/luxardolabs/luxanalytics-go/internal/health"
	"github.com/luxardolabs/luxanalytics-go/internal/keystore"
	"github.com/luxardolabs/luxanalytics-go/internal/queue"
	"github.com/luxardolabs/luxanalytics-go/pkg/model"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("luxanalytics-demo exited with error", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dsn string
	var healthPort int
	var trackInterval time.Duration

	cmd := &cobra.Command{
		Use:   "luxanalytics-demo",
		Short: "Run a luxanalytics Pipeline against a collection endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), dsn, healthPort, trackInterval)
		},
	}

	cmd.Flags().StringVar(&dsn, "dsn", "", "DSN (https://{public_id}@{host}/{project_id}); overrides LUXANALYTICS_* env vars when set")
	cmd.Flags().IntVar(&healthPort, "health-port", 9090, "port for the /healthz, /readyz, /metrics, and /debug surface")
	cmd.Flags().DurationVar(&trackInterval, "track-interval", 5*time.Second, "interval between synthetic demo events")

	return cmd
}

func run(ctx context.Context, dsn string, healthPort int, trackInterval time.Duration) error {
	cfg, err := loadConfig(dsn)
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		slog.Info("shutdown signal received", "signal", sig)
		cancel()
	}()

	slog.Info("luxanalytics-demo starting",
		"endpoint_url", cfg.EndpointURL,
		"project_id", cfg.ProjectID,
		"auto_flush_interval", cfg.AutoFlushInterval,
	)

	keyDir := os.Getenv("LUXANALYTICS_KEY_DIR")
	if keyDir == "" {
		keyDir = "./luxanalytics-data"
	}
	keyStore := keystore.NewFileKeyStore(keyDir)
	blobStore := queue.NewFileBlobStore(keyDir + "/queue.blob")

	pipeline := luxanalytics.New(
		luxanalytics.WithKeyStore(keyStore),
		luxanalytics.WithBlobStore(blobStore),
		luxanalytics.WithContextSource(staticContextSource{"device_type": "demo-host"}),
	)

	if err := pipeline.Initialize(ctx, cfg); err != nil {
		slog.Error("failed to initialize pipeline", "error", err)
		os.Exit(1)
	}
	pipeline.RegisterObserver(loggingObserver{})

	healthSrv := health.NewServer(healthPort, pipeline.Metrics(), pipeline, pipeline, pipeline, true)
	if err := healthSrv.Start(); err != nil {
		slog.Error("failed to start health server", "error", err)
		os.Exit(1)
	}

	runDemoLoop(ctx, pipeline, trackInterval)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := healthSrv.Stop(shutdownCtx); err != nil {
		slog.Error("health server shutdown error", "error", err)
	}
	pipeline.Shutdown(shutdownCtx)

	slog.Info("luxanalytics-demo stopped")
	return nil
}

func runDemoLoop(ctx context.Context, pipeline *luxanalytics.Pipeline, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	n := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n++
			if err := pipeline.Track(ctx, "demo_tick", map[string]string{"tick": time.Now().UTC().Format(time.RFC3339)}); err != nil {
				slog.Warn("track failed", "error", err)
			}
			if n%6 == 0 {
				pipeline.Flush(ctx)
			}
		}
	}
}

func loadConfig(dsn string) (config.Config, error) {
	var cfg config.Config
	var err error
	if dsn != "" {
		cfg, err = config.FromDSN(dsn)
	} else {
		cfg = config.Load()
	}
	if err != nil {
		return config.Config{}, err
	}
	if verr := cfg.Validate(); verr != nil {
		return config.Config{}, verr
	}
	return cfg, nil
}

// staticContextSource is a fixed ContextSource for the demo host, which has
// no device/app runtime to introspect.
type staticContextSource map[string]string

func (s staticContextSource) Context() map[string]string { return s }

// loggingObserver logs every pipeline transition at debug level, demonstrating
// the Observer surface without requiring a real metrics backend.
type loggingObserver struct{}

func (loggingObserver) EventQueued(event model.Event) {
	slog.Debug("event queued", "id", event.ID, "name", event.Name)
}

func (loggingObserver) EventsSent(events []model.QueuedEvent) {
	slog.Debug("events sent", "count", len(events))
}

func (loggingObserver) EventsFailed(events []model.QueuedEvent, errorKind string) {
	slog.Debug("events failed", "count", len(events), "error_kind", errorKind)
}

func (loggingObserver) EventsDropped(count int, reason agenterrors.OverflowStrategy) {
	slog.Warn("events dropped", "count", count, "reason", reason)
}

func (loggingObserver) EventsExpired(events []model.QueuedEvent) {
	slog.Debug("events expired", "count", len(events))
}
