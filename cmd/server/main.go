package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/akashjainn/stocksense-sub000/internal/metrics"
	"github.com/akashjainn/stocksense-sub000/internal/position"
	"github.com/akashjainn/stocksense-sub000/internal/premium"
	"github.com/akashjainn/stocksense-sub000/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })

			ttl := 30 * time.Second
			if v := os.Getenv("CACHE_TTL_SECONDS"); v != "" {
				if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
					ttl = time.Duration(secs) * time.Second
				}
			}
			st = store.NewCachedStore(st, rdb, ttl)
			slog.Info("Redis cache enabled", "ttl", ttl.String())
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Premium allocator ---
	epsilon := premium.DefaultEpsilon
	if v := os.Getenv("ALLOCATION_EPSILON"); v != "" {
		if e, err := decimal.NewFromString(v); err == nil && e.IsPositive() {
			epsilon = e
		}
	}
	allocator := premium.NewAllocator(epsilon)

	// --- WebSocket hub ---
	wsHub := position.NewWSHub()
	go wsHub.Run()

	// --- Accounting service ---
	svc := position.NewService(st, allocator, wsHub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"position-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for position lifecycle events.
		r.Get("/ws", wsHub.HandleWS)

		// Lot management and snapshots.
		r.Post("/lots", svc.CreateLot)
		r.Get("/lots/{lotID}", svc.GetLot)
		r.Get("/lots/{lotID}/snapshot", svc.GetLotSnapshot)
		r.Get("/accounts/{accountID}/lots", svc.ListLotSnapshots)
		r.Get("/accounts/{accountID}/options", svc.ListOptionPositions)

		// Short option lifecycle.
		r.Post("/options", svc.OpenOption)
		r.Post("/options/{positionID}/close", svc.CloseOption)
		r.Post("/options/{positionID}/assign-call", svc.AssignCall)
		r.Post("/options/{positionID}/assign-put", svc.AssignPut)
		r.Post("/options/{positionID}/expire", svc.ExpireOption)
		r.Post("/options/{positionID}/recompute-status", svc.RecomputeStatus)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("position-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down position-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("position-engine stopped")
}
