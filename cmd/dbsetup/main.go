package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dcablorh/txsense/internal/config"
	"github.com/dcablorh/txsense/internal/services"
	"github.com/dcablorh/txsense/pkg/logger"
	"github.com/dcablorh/txsense/pkg/ratelimiter"
	"github.com/dcablorh/txsense/pkg/storage"

	"go.uber.org/zap"
)

// indexer is implemented by stores that keep secondary indexes
type indexer interface {
	EnsureIndexes(ctx context.Context) error
}

func main() {
	var (
		initDB      = flag.Bool("init", false, "Create the store schema and indexes")
		healthCheck = flag.Bool("health", false, "Run a store health check")
		list        = flag.Bool("list", false, "List identities with a stored rate window")
		inspect     = flag.Bool("inspect", false, "Show the rate window of -identity")
		reset       = flag.Bool("reset", false, "Forget the rate window of -identity")
		resetAll    = flag.Bool("reset-all", false, "Forget every stored rate window")
		all         = flag.Bool("all", false, "Run init and health (full setup)")
		identity    = flag.String("identity", ratelimiter.LocalIdentity, "Identity for -inspect and -reset")
	)
	flag.Parse()

	if !*initDB && !*healthCheck && !*list && !*inspect && !*reset && !*resetAll && !*all {
		fmt.Println("Rate Window Store Utility")
		fmt.Println("Usage:")
		fmt.Println("  -init       Create the store schema and indexes")
		fmt.Println("  -health     Run a store health check")
		fmt.Println("  -list       List identities with a stored rate window")
		fmt.Println("  -inspect    Show the rate window of -identity")
		fmt.Println("  -reset      Forget the rate window of -identity")
		fmt.Println("  -reset-all  Forget every stored rate window")
		fmt.Println("  -all        Run full setup (init + health)")
		fmt.Println()
		fmt.Println("Environment Variables:")
		fmt.Println("  STORAGE_DRIVER           sqlite, mongo or memory")
		fmt.Println("  STORAGE_SQLITE_PATH      SQLite database file")
		fmt.Println("  MONGODB_URI              MongoDB connection string")
		fmt.Println("  MONGODB_DATABASE         Database name")
		fmt.Println("  RATE_LIMIT_STORAGE_KEY   Base key of the rate windows")
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(&logger.Config{
		Level:       cfg.Logging.Level,
		Environment: "development",
		OutputPaths: []string{"stderr"},
		Service:     "txsense-dbsetup",
	}); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.GetLogger()
	defer func() { _ = log.Sync() }()

	ctx := context.Background()

	log.Info("Opening rate window store", zap.String("driver", cfg.Storage.Driver))
	store, err := storage.Open(ctx, storage.Options{
		Driver:          cfg.Storage.Driver,
		SQLitePath:      cfg.Storage.SQLitePath,
		MongoURI:        cfg.Storage.MongoURI,
		MongoDatabase:   cfg.Storage.MongoDatabase,
		MongoCollection: cfg.Storage.MongoCollection,
		ConnectTimeout:  cfg.Storage.ConnectTimeout,
	})
	if err != nil {
		log.Fatal("Failed to open store", zap.Error(err))
	}
	defer store.Close()

	window := ratelimiter.New(store, cfg.RateLimit.Requests, cfg.RateLimit.Window,
		ratelimiter.WithKey(cfg.RateLimit.StorageKey))

	if *initDB || *all {
		if err := initializeStore(ctx, store); err != nil {
			log.Fatal("Store initialization failed", zap.Error(err))
		}
	}

	if *healthCheck || *all {
		if err := runHealthCheck(ctx, store, cfg.Storage.Driver, os.Stdout); err != nil {
			log.Fatal("Health check failed", zap.Error(err))
		}
	}

	if *list {
		if err := listWindows(ctx, window, os.Stdout); err != nil {
			log.Fatal("Listing rate windows failed", zap.Error(err))
		}
	}

	if *inspect {
		inspectWindow(ctx, window, *identity, time.Now(), os.Stdout)
	}

	if *reset {
		if err := window.Reset(ctx, *identity); err != nil {
			log.Fatal("Reset failed", zap.String("identity", *identity), zap.Error(err))
		}
		log.Info("Rate window reset", zap.String("identity", *identity))
	}

	if *resetAll {
		n, err := resetAllWindows(ctx, window)
		if err != nil {
			log.Fatal("Reset failed", zap.Error(err))
		}
		log.Info("Rate windows reset", zap.Int("count", n))
	}

	log.Info("Store setup completed successfully")
}

// initializeStore creates indexes where the backend keeps them. Opening the
// store already created the SQLite table.
func initializeStore(ctx context.Context, store storage.Store) error {
	log := logger.GetLogger()

	ix, ok := store.(indexer)
	if !ok {
		log.Info("Store needs no indexes")
		return nil
	}
	if err := ix.EnsureIndexes(ctx); err != nil {
		return err
	}
	log.Info("Store indexes created")
	return nil
}

// runHealthCheck pings the store and round-trips a probe value
func runHealthCheck(ctx context.Context, store storage.Store, driver string, out io.Writer) error {
	check := services.NewHealthChecker(nil, store, driver).CheckStorage(ctx)

	status := "✓"
	if check.Status != services.HealthStatusHealthy {
		status = "✗"
	}
	fmt.Fprintf(out, "%s %s: %s (%v)\n", status, check.Service, check.Status, check.ResponseTime)
	if check.Message != "" {
		fmt.Fprintf(out, "    %s\n", check.Message)
	}

	if check.Status == services.HealthStatusUnhealthy {
		return fmt.Errorf("health check failed for %s", check.Service)
	}
	return nil
}

func listWindows(ctx context.Context, window *ratelimiter.SlidingWindow, out io.Writer) error {
	identities, err := window.Identities(ctx)
	if err != nil {
		return err
	}
	if len(identities) == 0 {
		fmt.Fprintln(out, "No rate windows stored")
		return nil
	}
	for _, identity := range identities {
		fmt.Fprintf(out, "%-40s %d in window\n", identity, len(window.Snapshot(ctx, identity)))
	}
	return nil
}

func inspectWindow(ctx context.Context, window *ratelimiter.SlidingWindow, identity string, now time.Time, out io.Writer) {
	timestamps := window.Snapshot(ctx, identity)
	decision := window.Check(ctx, identity)

	fmt.Fprintf(out, "Identity:  %s\n", identity)
	fmt.Fprintf(out, "Window:    %d requests per %s\n", window.Limit(), window.Window())
	fmt.Fprintf(out, "Used:      %d\n", len(timestamps))
	fmt.Fprintf(out, "Remaining: %d\n", decision.Remaining)
	if !decision.Allowed {
		fmt.Fprintf(out, "Blocked:   retry in %ds\n", decision.WaitSeconds)
	}
	for _, ts := range timestamps {
		at := time.UnixMilli(ts)
		fmt.Fprintf(out, "  %s (%s ago)\n", at.UTC().Format(time.RFC3339), now.Sub(at).Round(time.Second))
	}
}

func resetAllWindows(ctx context.Context, window *ratelimiter.SlidingWindow) (int, error) {
	identities, err := window.Identities(ctx)
	if err != nil {
		return 0, err
	}
	for _, identity := range identities {
		if err := window.Reset(ctx, identity); err != nil {
			return 0, fmt.Errorf("failed to reset %s: %w", identity, err)
		}
	}
	return len(identities), nil
}
