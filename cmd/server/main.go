package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/civicpulse/fundraise-monitor/internal/api"
	"github.com/civicpulse/fundraise-monitor/internal/attribution"
	"github.com/civicpulse/fundraise-monitor/internal/config"
	"github.com/civicpulse/fundraise-monitor/internal/domain"
	"github.com/civicpulse/fundraise-monitor/internal/pkg/distlock"
	"github.com/civicpulse/fundraise-monitor/internal/pkg/logger"
	"github.com/civicpulse/fundraise-monitor/internal/reconcile"
	"github.com/civicpulse/fundraise-monitor/internal/repository/postgres"
	"github.com/civicpulse/fundraise-monitor/internal/rollup"
	"github.com/civicpulse/fundraise-monitor/internal/spend"
	"github.com/civicpulse/fundraise-monitor/internal/storage"
	"github.com/civicpulse/fundraise-monitor/internal/warehouse"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
)

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale processes occupying the port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	slash := strings.Index(rest, "/")
	if slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

// channelMap converts a config mapping table into classifier form.
func channelMap(m map[string]string) map[string]domain.Channel {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]domain.Channel, len(m))
	for k, v := range m {
		out[k] = domain.Channel(v)
	}
	return out
}

func main() {
	log.Println("CivicPulse fundraise-monitor server (cmd/server/main.go)")
	logger.SetLevelFromEnv()

	// Load configuration
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}

	// Pre-flight check: verify the target port is available
	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}
	log.Printf("Pre-flight check passed: port %d is available", port)

	// Postgres: transactions, spend rows, and the rollup functions
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime())

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Database unreachable at %s: %v", extractHost(cfg.Database.URL), err)
	}
	pingCancel()
	log.Printf("Connected to database at %s", extractHost(cfg.Database.URL))

	// Rollup gateway, optionally fronted by the redis cache
	var rdb *redis.Client
	var gateway reconcile.RollupSource = rollup.NewPostgresGateway(db)
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		gateway = rollup.NewCachedGateway(rollup.NewPostgresGateway(db), rdb, cfg.Rollup.CacheTTL())
		log.Printf("Rollup cache enabled (redis %s, ttl %s)", cfg.Redis.Addr, cfg.Rollup.CacheTTL())
	}

	txnRepo := postgres.NewTransactionRepo(db, cfg.Rollup.MaxRawRows)

	// Spend sources: ingested rows plus live platform APIs when enabled
	spendSources := []spend.Source{postgres.NewSpendRepo(db)}
	if cfg.Spend.Meta.Enabled {
		spendSources = append(spendSources, spend.NewMetaAdsClient(spend.MetaConfig{
			BaseURL:     cfg.Spend.Meta.BaseURL,
			AccessToken: cfg.Spend.Meta.AccessToken,
			AccountID:   cfg.Spend.Meta.AdAccountID,
		}))
		log.Println("Meta ads spend source enabled")
	}
	if cfg.Spend.SMS.Enabled {
		spendSources = append(spendSources, spend.NewSMSCostClient(spend.SMSConfig{
			BaseURL: cfg.Spend.SMS.BaseURL,
			APIKey:  cfg.Spend.SMS.APIKey,
		}))
		log.Println("SMS cost spend source enabled")
	}

	// Attribution classifier with operator mapping tables from config
	classifier := attribution.NewClassifier(
		attribution.WithRefcodeMap(channelMap(cfg.Attribution.Refcodes)),
		attribution.WithCampaignMap(channelMap(cfg.Attribution.Campaigns)),
		attribution.WithFormMap(channelMap(cfg.Attribution.Forms)),
	)

	orchestratorOpts := []reconcile.Option{
		reconcile.WithSpendSource(spend.NewMultiSource(spendSources...)),
		reconcile.WithDonorHistory(postgres.NewDonorRepo(db)),
		reconcile.WithDefaultTimezone(cfg.Orgs.DefaultTimezone),
	}

	// Snapshot archive (write-behind)
	var archive *storage.SnapshotArchive
	if cfg.Storage.Enabled {
		initCtx, initCancel := context.WithTimeout(context.Background(), 10*time.Second)
		archive, err = storage.NewSnapshotArchive(initCtx,
			cfg.Storage.DynamoDBTable, cfg.Storage.S3Bucket,
			cfg.Storage.AWSRegion, cfg.Storage.GetAWSProfile())
		initCancel()
		if err != nil {
			log.Printf("Warning: snapshot archive unavailable: %v", err)
		} else {
			orchestratorOpts = append(orchestratorOpts,
				reconcile.WithArchive(archive),
				// Redis lock across replicas when available, PG advisory otherwise
				reconcile.WithArchiveLock(func(key string) distlock.DistLock {
					return distlock.NewLock(rdb, db, key, 30*time.Second)
				}))
			log.Printf("Snapshot archive enabled (s3://%s, table %s)",
				cfg.Storage.S3Bucket, cfg.Storage.DynamoDBTable)
		}
	}

	orchestrator := reconcile.NewOrchestrator(gateway, txnRepo, classifier, orchestratorOpts...)

	handlers := api.NewHandlers(orchestrator, cfg.Orgs.TimezoneFor)
	if archive != nil {
		handlers.SetSnapshotReader(archive)
	}

	// Warehouse audit source
	if cfg.Warehouse.Enabled {
		wh, err := warehouse.NewClient(warehouse.Config{
			Account:   cfg.Warehouse.Account,
			User:      cfg.Warehouse.User,
			Password:  cfg.Warehouse.Password,
			Database:  cfg.Warehouse.Database,
			Schema:    cfg.Warehouse.Schema,
			Warehouse: cfg.Warehouse.Warehouse,
		})
		if err != nil {
			log.Printf("Warning: warehouse unavailable: %v", err)
		} else {
			defer wh.Close()
			handlers.SetAuditor(warehouse.NewAuditor(wh, gateway))
			log.Println("Warehouse audit source enabled")
		}
	}

	router := api.SetupRoutes(handlers)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	log.Println("All services initialized — server is ready")

	<-done
	log.Println("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if err := db.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Println("Server stopped")
}
