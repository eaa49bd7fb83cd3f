// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/tejzpr/clipgraph/internal/config"
	"github.com/tejzpr/clipgraph/internal/database"
	"github.com/tejzpr/clipgraph/internal/embeddings"
	"github.com/tejzpr/clipgraph/internal/graph"
	"github.com/tejzpr/clipgraph/internal/importer"
	"github.com/tejzpr/clipgraph/internal/locking"
	"github.com/tejzpr/clipgraph/internal/logger"
	"github.com/tejzpr/clipgraph/internal/server"
	"github.com/tejzpr/clipgraph/pkg/scheduler"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Version is set at build time via ldflags
var Version string

// app holds the wired components shared by every run mode
type app struct {
	cfg      *config.Config
	db       *gorm.DB
	embedder *embeddings.Service
	locker   locking.Locker
	lease    *locking.LeaseLocker
	svc      *graph.Service
	importer *importer.Importer
	log      *zap.Logger
}

func main() {
	// stdout carries the MCP stream in stdio mode
	log.SetOutput(os.Stderr)

	httpMode := flag.Bool("http", false, "Run in HTTP server mode (default: stdio for MCP)")
	configPath := flag.String("config", "", "Path to config file")
	dbType := flag.String("db-type", "", "Database type (sqlite or postgres)")
	dbPath := flag.String("db-path", "", "Database path (for sqlite)")
	dbDSN := flag.String("db-dsn", "", "Database DSN (for postgres)")
	port := flag.Int("port", 0, "Server port (HTTP mode only)")
	owner := flag.String("owner", "", "Owner identity for stdio, import and HTTP requests without an owner header")
	recalculate := flag.String("recalculate", "", "Recalculate edges for a graph id, or 'all' for every graph")
	threshold := flag.String("threshold", "", "Similarity threshold for --recalculate or --import (0..1)")
	importPath := flag.String("import", "", "Import clips from a YAML or Markdown file")
	graphID := flag.String("graph", "", "Target graph id for --import (default: owner's default graph)")
	showVersion := flag.Bool("version", false, "Print version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Clipgraph Server\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Server Mode:\n")
		fmt.Fprintf(os.Stderr, "  %s                         Start MCP server (stdio)\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --http                  Start HTTP server\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nMaintenance:\n")
		fmt.Fprintf(os.Stderr, "  %s --recalculate <graph-id>           Rebuild one graph's edges\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --recalculate all                  Rebuild every graph (deprecated)\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --import clips.yaml [--graph id]   Import clips from a file\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  CLIPGRAPH_DB_TYPE     Database type (sqlite or postgres)\n")
		fmt.Fprintf(os.Stderr, "  CLIPGRAPH_DB_PATH     SQLite database path\n")
		fmt.Fprintf(os.Stderr, "  CLIPGRAPH_DB_DSN      PostgreSQL connection string\n")
		fmt.Fprintf(os.Stderr, "  CLIPGRAPH_PORT        Server port (HTTP mode only)\n")
		fmt.Fprintf(os.Stderr, "  CLIPGRAPH_OWNER       Default owner identity\n")
		fmt.Fprintf(os.Stderr, "  CLIPGRAPH_LOG_ENV     Logging mode (development or production)\n")
		fmt.Fprintf(os.Stderr, "  OPENAI_API_KEY        Embedding API key (name set by embeddings.api_key_env)\n")
	}

	flag.Parse()

	if *showVersion {
		fmt.Println(versionString())
		return
	}

	if *recalculate != "" && *importPath != "" {
		log.Fatal("ERROR: --recalculate and --import cannot be used together")
	}
	if *httpMode && (*recalculate != "" || *importPath != "") {
		log.Fatal("ERROR: --http cannot be combined with --recalculate or --import")
	}
	if *graphID != "" && *importPath == "" {
		log.Fatal("ERROR: --graph requires --import")
	}

	var thresholdValue *float64
	if *threshold != "" {
		v, err := strconv.ParseFloat(*threshold, 64)
		if err != nil {
			log.Fatalf("ERROR: invalid --threshold %q: %v", *threshold, err)
		}
		thresholdValue = &v
	}

	// .env is optional
	_ = godotenv.Load()

	cfg := loadConfig(*configPath)
	applyEnvOverrides(cfg)
	applyCLIOverrides(cfg, *dbType, *dbPath, *dbDSN, *port, *owner)

	if err := config.Validate(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := logger.Init(cfg.Logging.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	a, err := newApp(cfg, logger.Get())
	if err != nil {
		logger.Get().Fatal("Failed to start", zap.Error(err))
	}
	defer func() {
		if err := database.Close(a.db); err != nil {
			a.log.Warn("Failed to close database", zap.Error(err))
		}
	}()

	switch {
	case *recalculate != "":
		err = a.runRecalculate(*recalculate, thresholdValue)
	case *importPath != "":
		err = a.runImport(*importPath, *graphID, thresholdValue)
	case *httpMode:
		err = a.runHTTP()
	default:
		err = a.runStdio()
	}
	if err != nil {
		a.log.Error("Exited with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func versionString() string {
	if Version == "" {
		return "clipgraph (dev)"
	}
	return "clipgraph " + Version
}

// loadConfig reads the config file, falling back to built-in defaults
func loadConfig(path string) *config.Config {
	if path != "" {
		cfg, err := config.LoadFromPath(path)
		if err != nil {
			log.Printf("Warning: Failed to load config from %s: %v", path, err)
			log.Println("Using defaults")
			return config.DefaultConfig()
		}
		log.Printf("Loaded configuration from %s", path)
		return cfg
	}

	cfg, err := config.Load()
	if err != nil {
		log.Printf("Warning: Failed to load default config: %v", err)
		log.Println("Using built-in defaults")
		return config.DefaultConfig()
	}
	return cfg
}

// newApp connects the database and wires the graph engine
func newApp(cfg *config.Config, log *zap.Logger) (*app, error) {
	db, err := database.Connect(&database.Config{
		Type:        cfg.Database.Type,
		SQLitePath:  cfg.Database.SQLitePath,
		PostgresDSN: cfg.Database.PostgresDSN,
		LogLevel:    database.ParseLogLevel(cfg.Database.LogLevel),
	})
	if err != nil {
		return nil, err
	}
	log.Info("Connected to database", zap.String("type", cfg.Database.Type))

	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := embeddings.MigrateCache(db); err != nil {
		return nil, fmt.Errorf("failed to migrate embedding cache: %w", err)
	}
	if err := locking.MigrateLocks(db); err != nil {
		return nil, fmt.Errorf("failed to migrate locks: %w", err)
	}

	a := &app{cfg: cfg, db: db, log: log}

	if client := newEmbeddingClient(cfg, log); client != nil {
		a.embedder = embeddings.NewService(db, client, embeddings.Options{
			Timeout:     time.Duration(cfg.Embeddings.TimeoutSeconds) * time.Second,
			BatchSize:   cfg.Embeddings.BatchSize,
			Concurrency: cfg.Embeddings.Concurrency,
		}, log.Named("embeddings"))
		log.Info("Embeddings enabled",
			zap.String("provider", cfg.Embeddings.Provider),
			zap.String("model", a.embedder.ModelName()))
	}

	if cfg.Locking.Mode == config.LockingModeDatabase {
		a.lease = locking.NewLeaseLocker(db).
			WithTTL(time.Duration(cfg.Locking.LeaseTTLSeconds) * time.Second)
		a.locker = a.lease
	} else {
		a.locker = locking.NewKeyedMutex()
	}

	store := graph.NewStore(db).WithDefaultProtection(cfg.Graph.ProtectDefault)
	opts := graph.Options{
		ConnectThreshold:     cfg.Graph.ConnectThreshold,
		RecalculateThreshold: cfg.Graph.RecalculateThreshold,
		AnalyzeThreshold:     cfg.Graph.AnalyzeThreshold,
		GeneratedThreshold:   cfg.Graph.GeneratedThreshold,
	}

	var embedder graph.Embedder
	if a.embedder != nil {
		embedder = a.embedder
	}
	a.svc = graph.NewService(store, embedder, a.locker, opts, log.Named("graph"))
	a.importer = importer.New(a.svc, log.Named("importer"))
	return a, nil
}

// newEmbeddingClient returns nil when embeddings are disabled or unconfigured
func newEmbeddingClient(cfg *config.Config, log *zap.Logger) embeddings.Client {
	ec := cfg.Embeddings
	if !ec.Enabled {
		log.Info("Embeddings disabled; items will be stored without edges")
		return nil
	}

	apiKey := os.Getenv(ec.APIKeyEnv)
	if apiKey == "" && ec.Provider != config.EmbeddingProviderLocal {
		log.Warn("Embedding API key not set; embeddings disabled", zap.String("env", ec.APIKeyEnv))
		return nil
	}

	switch ec.Provider {
	case config.EmbeddingProviderAzure:
		return embeddings.NewAzureClient(ec.BaseURL, apiKey, ec.Model, ec.Dimensions)
	case config.EmbeddingProviderLocal:
		return embeddings.NewLocalClient(ec.BaseURL, apiKey, ec.Model, ec.Dimensions)
	default:
		return embeddings.NewOpenAIClient(ec.BaseURL, apiKey, ec.Model, ec.Dimensions)
	}
}

// newScheduler registers the periodic maintenance this configuration needs
func (a *app) newScheduler() *scheduler.Scheduler {
	interval := time.Duration(a.cfg.Locking.CleanupIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	sched := scheduler.NewScheduler(interval, a.log.Named("scheduler"))

	if a.lease != nil {
		sched.AddTask("expired-leases", a.lease.CleanupExpired)
	}
	if a.embedder != nil && a.cfg.Embeddings.CacheMaxAgeDays > 0 {
		maxAge := time.Duration(a.cfg.Embeddings.CacheMaxAgeDays) * 24 * time.Hour
		sched.AddTask("embedding-cache", func(ctx context.Context) (int64, error) {
			return a.embedder.PruneCache(ctx, maxAge)
		})
	}
	return sched
}

// runRecalculate rebuilds edges for one graph, or for every graph when target is "all"
func (a *app) runRecalculate(target string, threshold *float64) error {
	graphID := target
	if target == "all" {
		graphID = ""
	}

	result, err := a.svc.Recalculate(context.Background(), graphID, threshold)
	if err != nil {
		return fmt.Errorf("recalculation failed: %w", err)
	}
	result.GraphData = nil

	a.log.Info("Recalculation completed",
		zap.Int("graphs", result.GraphsProcessed),
		zap.Int("items", result.ItemsCompared),
		zap.Int("edges", result.EdgesCreated),
		zap.Int("skippedPairs", result.SkippedPairs),
		zap.Float64("threshold", result.Threshold))
	return printJSON(result)
}

// runImport loads clips from path into the owner's graph
func (a *app) runImport(path, graphID string, threshold *float64) error {
	docs, err := importer.LoadFile(path)
	if err != nil {
		return err
	}
	if threshold != nil {
		for i := range docs {
			if docs[i].Threshold == nil {
				docs[i].Threshold = threshold
			}
		}
	}

	summary, err := a.importer.Import(context.Background(), a.cfg.Server.DefaultOwner, graphID, docs)
	if err != nil {
		return err
	}
	return printJSON(summary)
}

// runStdio serves MCP over stdin/stdout for the configured owner
func (a *app) runStdio() error {
	owner := a.cfg.Server.DefaultOwner
	if _, err := a.svc.EnsureDefaultGraph(context.Background(), owner); err != nil {
		return fmt.Errorf("failed to prepare default graph: %w", err)
	}

	sched := a.newScheduler()
	sched.Start()
	defer sched.Stop()

	mcpServer := server.NewMCPServer(a.svc, a.importer, owner)
	a.log.Info("MCP server ready (stdio mode)", zap.String("owner", owner))
	return mcpServer.ServeStdio()
}

// runHTTP serves the REST API until SIGINT or SIGTERM
func (a *app) runHTTP() error {
	if a.cfg.Logging.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	httpServer := server.NewHTTPServer(a.svc, a.db, a.cfg.Server.DefaultOwner, a.log.Named("http"))

	sched := a.newScheduler()
	sched.Start()
	defer sched.Stop()

	addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("HTTP server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-quit:
	}

	a.log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		a.log.Error("Server forced to shutdown", zap.Error(err))
	}

	a.log.Info("Server exited")
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// applyEnvOverrides applies environment variable overrides to configuration
func applyEnvOverrides(cfg *config.Config) {
	if dbType := getEnv("CLIPGRAPH_DB_TYPE", "DB_TYPE"); dbType != "" {
		cfg.Database.Type = dbType
		log.Printf("Database type from ENV: %s", dbType)
	}

	if dbPath := getEnv("CLIPGRAPH_DB_PATH", "DB_PATH"); dbPath != "" {
		cfg.Database.SQLitePath = dbPath
		log.Printf("Database path from ENV")
	}

	if dbDSN := getEnv("CLIPGRAPH_DB_DSN", "DB_DSN"); dbDSN != "" {
		cfg.Database.PostgresDSN = dbDSN
		log.Printf("Database DSN from ENV (hidden)")
	}

	if portStr := getEnv("CLIPGRAPH_PORT", "PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			cfg.Server.Port = port
			log.Printf("Port from ENV: %d", port)
		}
	}

	if owner := getEnv("CLIPGRAPH_OWNER"); owner != "" {
		cfg.Server.DefaultOwner = owner
		log.Printf("Owner from ENV: %s", owner)
	}

	if env := getEnv("CLIPGRAPH_LOG_ENV"); env != "" {
		cfg.Logging.Env = env
	}
}

// applyCLIOverrides applies command-line flag overrides to configuration
func applyCLIOverrides(cfg *config.Config, dbType, dbPath, dbDSN string, port int, owner string) {
	if dbType != "" {
		cfg.Database.Type = dbType
		log.Printf("Database type from CLI: %s", dbType)
	}

	if dbPath != "" {
		cfg.Database.SQLitePath = dbPath
		log.Printf("Database path from CLI")
	}

	if dbDSN != "" {
		cfg.Database.PostgresDSN = dbDSN
		log.Printf("Database DSN from CLI (hidden)")
	}

	if port > 0 {
		cfg.Server.Port = port
		log.Printf("Port from CLI: %d", port)
	}

	if owner != "" {
		cfg.Server.DefaultOwner = owner
		log.Printf("Owner from CLI: %s", owner)
	}
}

// getEnv tries multiple environment variable names and returns the first non-empty value
func getEnv(names ...string) string {
	for _, name := range names {
		if val := os.Getenv(name); val != "" {
			return val
		}
	}
	return ""
}
