package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	goRecover "github.com/MrEthical07/goRecover"
	"github.com/MrEthical07/goRecover/api"
	boltcred "github.com/MrEthical07/goRecover/credstore/bolt"
	pgcred "github.com/MrEthical07/goRecover/credstore/postgres"
)

var (
	port        int
	redisAddr   string
	redisDB     int
	postgresDSN string
	credBackend string
	dataDir     string
	jwtKeyEnv   string
	minLength   int
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the password recovery server",
	RunE: func(cmd *cobra.Command, args []string) error {
		jwtKey := os.Getenv(jwtKeyEnv)
		if jwtKey == "" {
			return fmt.Errorf("signing key environment variable %s is not set", jwtKeyEnv)
		}

		rdb := redis.NewClient(&redis.Options{Addr: redisAddr, DB: redisDB})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			return fmt.Errorf("failed to reach redis at %s: %w", redisAddr, err)
		}

		db, err := pgcred.Open(postgresDSN)
		if err != nil {
			return fmt.Errorf("failed to open postgres: %w", err)
		}
		defer db.Close()

		var credStore goRecover.CredentialStore
		switch credBackend {
		case "postgres":
			credStore = pgcred.NewStore(db)
		case "bolt":
			if err := os.MkdirAll(dataDir, 0o700); err != nil {
				return fmt.Errorf("failed to create data directory: %w", err)
			}
			boltStore, err := boltcred.NewStoreFromFile(dataDir+"/credentials.db", nil)
			if err != nil {
				return fmt.Errorf("failed to open credential storage: %w", err)
			}
			defer boltStore.Close()
			credStore = boltStore
		default:
			return fmt.Errorf("unknown credential backend %q (want postgres or bolt)", credBackend)
		}

		cfg := goRecover.DefaultConfig()
		cfg.Password.MinLength = minLength
		cfg.Token.Key = []byte(jwtKey)

		engine, err := goRecover.New().
			WithConfig(cfg).
			WithRedis(rdb).
			WithUserProvider(pgcred.NewUserStore(db)).
			WithCredentialStore(credStore).
			WithAuditSink(goRecover.NewJSONWriterSink(os.Stdout)).
			Build()
		if err != nil {
			return fmt.Errorf("failed to build engine: %w", err)
		}
		defer engine.Close()

		a := api.New(engine)

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		r.Mount("/api/v1", a.Router())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		fmt.Printf("Starting server on port %d (credentials: %s)...\n", port, credBackend)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			fmt.Printf("\nReceived %s, shutting down...\n", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on")
	serverCmd.Flags().StringVar(&redisAddr, "redis-addr", "localhost:6379", "Redis address for sessions and rate limits")
	serverCmd.Flags().IntVar(&redisDB, "redis-db", 0, "Redis database number")
	serverCmd.Flags().StringVar(&postgresDSN, "postgres-dsn", "postgres://localhost:5432/gorecover", "Postgres DSN for the user directory")
	serverCmd.Flags().StringVar(&credBackend, "cred-store", "postgres", "Credential store backend: postgres or bolt")
	serverCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Directory for bolt credential storage")
	serverCmd.Flags().StringVar(&jwtKeyEnv, "jwt-key-env", "GORECOVER_JWT_KEY", "Environment variable holding the HS256 signing key")
	serverCmd.Flags().IntVar(&minLength, "min-password-length", 8, "Minimum accepted password length")
}
