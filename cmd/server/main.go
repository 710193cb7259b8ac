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

	"github.com/clientflow/journey-insights/internal/api"
	"github.com/clientflow/journey-insights/internal/comparison"
	"github.com/clientflow/journey-insights/internal/config"
	"github.com/clientflow/journey-insights/internal/domain"
	"github.com/clientflow/journey-insights/internal/dropoff"
	"github.com/clientflow/journey-insights/internal/realtime"
	"github.com/clientflow/journey-insights/internal/repository/memory"
	"github.com/clientflow/journey-insights/internal/repository/postgres"
	"github.com/clientflow/journey-insights/internal/service/journey"
	"github.com/clientflow/journey-insights/internal/session"
	"github.com/clientflow/journey-insights/internal/timing"

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

func main() {
	log.Println("Journey Insights server (cmd/server/main.go)")

	// Load configuration
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
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

	// Session record store: Postgres when configured, in-process otherwise
	var db *sql.DB
	var repo journey.Repository = memory.NewJourneyRepo()
	if cfg.Database.Enabled && cfg.Database.URL != "" {
		dbURL := cfg.Database.URL
		sep := "?"
		if strings.Contains(dbURL, "?") {
			sep = "&"
		}
		if !strings.Contains(dbURL, "connect_timeout") {
			dbURL += sep + "connect_timeout=5"
			sep = "&"
		}
		dbURL += sep + "options=-c%20statement_timeout%3D15000"
		log.Printf("DB URL host portion: ...@%s/...", extractHost(dbURL))

		db, err = sql.Open("postgres", dbURL)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := db.PingContext(pingCtx); err != nil {
			log.Printf("Warning: database unreachable at startup: %v", err)
		}
		pingCancel()
		repo = postgres.NewJourneyRepo(db)
		log.Println("Session records backed by PostgreSQL")
	} else {
		log.Println("No database configured — session records are in-process only")
	}
	journeys := journey.NewService(repo)

	// Redis mirror for the realtime cache
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("Warning: redis unreachable at startup: %v", err)
		} else {
			log.Printf("Redis connected: %s", cfg.Redis.Addr)
		}
		pingCancel()
	}

	// Session tracker and realtime hub. Every closed session is persisted
	// and folded into the live metrics, whichever path closed it.
	var hub *realtime.Hub
	tracker := session.NewTracker(
		session.WithIdleTimeout(cfg.Tracking.IdleTimeout()),
		session.WithSweepInterval(cfg.Tracking.SweepInterval()),
		session.WithCloseFunc(func(s domain.JourneySession) {
			journeys.RecordClosure(s)
			if hub != nil {
				hub.RecordSessionClosed(s)
			}
		}),
	)
	hub = realtime.NewHub(tracker, redisClient,
		realtime.WithBufferConfig(cfg.Realtime.BufferMaxSize, cfg.Realtime.FlushInterval()))
	tracker.Start()
	hub.Start()

	// Analysis engines
	detector := dropoff.NewDetector(dropoff.Config{
		MinSampleSize:       cfg.Analytics.MinSampleSize,
		ConfidenceThreshold: cfg.Analytics.ConfidenceThreshold,
		ConfidenceLevel:     cfg.Analytics.ConfidenceLevel,
	}, nil)
	orchestrator := comparison.NewOrchestrator(timing.NewComparator(timing.Config{
		SignificanceThreshold: cfg.Analytics.SignificanceThreshold,
		EffectSizeThreshold:   cfg.Analytics.EffectSizeThreshold,
		ConfidenceLevel:       cfg.Analytics.ConfidenceLevel,
	}))

	// API server
	handlers := api.NewHandlers(tracker, journeys, detector, orchestrator, hub)
	handlers.SetAnalyticsConfig(cfg.Analytics)
	handlers.SetHealthChecker(api.NewHealthChecker(db, redisClient))
	server := api.NewServer(cfg.Server, handlers)

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", host, port)
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	log.Println("All services initialized — server is ready")

	<-done
	log.Println("Shutting down...")

	// Stop background loops; the hub flushes its remaining events.
	tracker.Stop()
	hub.Stop()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if db != nil {
		db.Close()
	}
	if redisClient != nil {
		redisClient.Close()
	}

	log.Println("Server stopped")
}
