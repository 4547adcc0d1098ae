package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crew-staffing/internal/auth"
	"crew-staffing/internal/config"
	"crew-staffing/internal/handler"
	"crew-staffing/internal/metrics"
	"crew-staffing/internal/repository"
	"crew-staffing/internal/service"
	"crew-staffing/internal/telemetry"
	"crew-staffing/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	dbPath := flag.String("db", cfg.DBPath, "path to SQLite database")
	port := flag.String("port", cfg.Port, "HTTP server port")
	policyFile := flag.String("policy", cfg.PolicyFile, "path to YAML policy defaults")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx := context.Background()
	shutdownTracing, err := telemetry.Setup(ctx, "crew-staffing-api", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}
	defer shutdownTracing(context.Background())

	defaults, err := config.LoadPolicyDefaults(*policyFile)
	if err != nil {
		log.Fatalf("failed to load policy defaults: %v", err)
	}

	// Initialize repository
	repo, err := repository.NewSQLiteRepository(*dbPath)
	if err != nil {
		log.Fatalf("failed to initialize repository: %v", err)
	}
	defer repo.Close()

	verifier, err := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		log.Fatalf("failed to initialize verifier: %v", err)
	}

	metricsInstance := metrics.NewMetrics()
	hub := websocket.NewHub(verifier)
	rateLimiter := service.NewRateLimiter(cfg.NudgesPerMinute)

	// Initialize services
	campaignService := service.NewCampaignService(repo, repo, defaults, rateLimiter, hub, metricsInstance)
	escalationService := service.NewEscalationService(repo, hub, metricsInstance)
	tickService := service.NewTickService(repo, repo, service.NewFactReader(repo, repo), hub, metricsInstance)

	staffingHandler := handler.NewStaffingHandler(campaignService, escalationService, tickService, verifier, metricsInstance)

	// CORS middleware - sets headers for all responses
	corsMiddleware := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next(w, r)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/staffing", corsMiddleware(staffingHandler.Action))
	mux.HandleFunc("/campaigns/", corsMiddleware(staffingHandler.GetCampaign))
	mux.HandleFunc("/metrics", corsMiddleware(staffingHandler.GetMetrics))
	mux.HandleFunc("/ws", hub.ServeWS)

	server := &http.Server{
		Addr:              ":" + *port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("API server starting on port %s", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-sigChan
	log.Println("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("error closing server: %v", err)
	}
	log.Println("server stopped")
}
