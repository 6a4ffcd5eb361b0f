package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"consult-settlement/internal/clients"
	"consult-settlement/internal/config"
	"consult-settlement/internal/repository"
	"consult-settlement/internal/service"
	"consult-settlement/internal/transport/auth"
	"consult-settlement/internal/transport/rest"
	"consult-settlement/internal/transport/websocket"
	"consult-settlement/pkg/database/postgres"

	"github.com/go-chi/chi/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using system env or defaults")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := config.Load()

	db := mustInitPostgres(cfg.Postgres)
	defer postgres.Close(db)

	redisClient := mustInitRedis(cfg.Redis)
	defer redisClient.Close()

	// statement files go to S3 when configured, local disk otherwise
	var statementStorage service.StatementStorage
	var localStorage *clients.StorageClient
	if cfg.S3.Enabled {
		s3Client, err := clients.NewS3Client(ctx, clients.S3Config{
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Bucket:          cfg.S3.Bucket,
			UseSSL:          cfg.S3.UseSSL,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			PublicBaseURL:   cfg.S3.PublicBaseURL,
		})
		if err != nil {
			log.Fatalf("s3 init error: %v", err)
		}
		statementStorage = s3Client
	} else {
		var err error
		localStorage, err = clients.NewLocalStorage(cfg.Statements.ExportDir, cfg.Statements.FilesPublicPrefix, cfg.Statements.ExternalURL)
		if err != nil {
			log.Fatalf("storage init error: %v", err)
		}
		statementStorage = localStorage
	}

	wsHub := websocket.NewHub()
	go wsHub.Run(ctx)
	wsClient := clients.NewWebSocketClient(wsHub)

	paymentRepo := repository.NewPaymentRepository(db)
	escrowRepo := repository.NewEscrowRepository(db)
	refundRepo := repository.NewRefundRepository(db)
	payoutRepo := repository.NewPayoutRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	tokenRepo := repository.NewServiceTokenRepository(db)
	txManager := repository.NewTxManager(db)

	pricingClient := clients.NewPricingClient(cfg.Collaborators.PricingURL, cfg.Collaborators.Timeout)
	riskClient := clients.NewRiskClient(cfg.Collaborators.RiskURL, cfg.Collaborators.Timeout)
	completionClient := clients.NewCompletionClient(cfg.Collaborators.EngagementURL, cfg.Collaborators.Timeout)

	auditTrail := service.NewAuditTrail(auditRepo)
	payoutSvc := service.NewPayoutService(payoutRepo, txManager)
	escrowSvc := service.NewEscrowService(escrowRepo, paymentRepo, payoutSvc, auditTrail, txManager, wsClient)
	ledgerSvc := service.NewLedgerService(
		paymentRepo, refundRepo, escrowSvc,
		pricingClient, riskClient, completionClient,
		auditTrail, txManager, wsClient, redisClient,
		cfg.Escrow.AutoReleaseBuffer,
	)
	disputeGate := service.NewDisputeGate(escrowSvc, redisClient)
	statementSvc := service.NewStatementService(ctx, payoutRepo, redisClient, statementStorage, wsClient)

	sweeper := service.NewSweeper(escrowSvc, paymentRepo, completionClient, ledgerSvc, cfg.Escrow.SweepInterval)
	go sweeper.Run(ctx)

	tokenMiddleware := auth.TokenMiddleware(tokenRepo)

	handler := rest.NewHandler(ledgerSvc, escrowSvc, disputeGate, payoutSvc, statementSvc)
	router := handler.InitRouterWithAuth(tokenMiddleware)

	// public root router; auth-protected routes are mounted underneath so
	// /files and /health stay open
	root := chi.NewRouter()

	root.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","ws_sessions":%d}`, wsHub.SessionCount())
	})

	if localStorage != nil {
		root.Get("/files/{file}", func(w http.ResponseWriter, r *http.Request) {
			file := filepath.Base(chi.URLParam(r, "file"))
			path := filepath.Join(localStorage.BaseDir, file)
			if _, err := os.Stat(path); err != nil {
				if os.IsNotExist(err) {
					http.NotFound(w, r)
					return
				}
				http.Error(w, "failed to access file", http.StatusInternalServerError)
				return
			}

			// strip the random prefix so the download keeps its original name
			orig := file
			if idx := strings.IndexByte(file, '_'); idx >= 0 {
				orig = file[idx+1:]
			}
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", orig))

			http.ServeFile(w, r, path)
		})
	}

	router.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		userID, err := auth.GetUserID(r.Context())
		if err != nil {
			// fallback for tests: allow ?user_id=N
			userIDStr := r.URL.Query().Get("user_id")
			if userIDStr == "" {
				http.Error(w, "user_id required", http.StatusBadRequest)
				return
			}
			parsed, err2 := strconv.ParseInt(userIDStr, 10, 64)
			if err2 != nil {
				http.Error(w, "invalid user_id", http.StatusBadRequest)
				return
			}
			userID = parsed
		}

		log.Printf("ws connected: user_id=%d", userID)
		wsHub.HandleWebSocket(w, r, userID)
	})

	root.Mount("/", router)

	corsHandler := withCORS(root)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      corsHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on :%s\n", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			srvErr <- err
			return
		}
		srvErr <- nil
	}()

	// old statement files are useless once the redis status expires
	if localStorage != nil {
		go func() {
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := localStorage.CleanupOlderThan(30 * time.Minute); err != nil {
						log.Printf("storage cleanup error: %v", err)
					}
				}
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-srvErr:
		if err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}
	case sig := <-stop:
		log.Printf("shutdown signal received: %v", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		// stop the hub and the sweeper
		cancel()

		postgres.Close(db)
		redisClient.Close()

		log.Println("shutdown complete")
	}
}

func mustInitPostgres(cfg config.PostgresConfig) *sql.DB {
	db, err := postgres.NewPostgresConnection(postgres.ConnectionInfo{
		Host:         cfg.Host,
		Port:         cfg.Port,
		Username:     cfg.User,
		DBName:       cfg.DBName,
		SSLMode:      cfg.SSLMode,
		Password:     cfg.Password,
		MaxOpenConns: 20,
		MaxIdleConns: 10,
	})
	if err != nil {
		log.Fatalf("postgres init error: %v", err)
	}
	return db
}

func mustInitRedis(cfg config.RedisConfig) *clients.RedisClient {
	client, err := clients.NewRedisClient(clients.RedisConfig{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: time.Duration(cfg.DialTimeout) * time.Second,
		Timeout:     time.Duration(cfg.Timeout) * time.Second,
		Prefix:      cfg.Prefix,
	})
	if err != nil {
		log.Fatalf("redis init error: %v", err)
	}
	return client
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")

			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
