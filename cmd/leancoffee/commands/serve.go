package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mcdev12/leancoffee/internal/board"
	"github.com/mcdev12/leancoffee/internal/config"
	"github.com/mcdev12/leancoffee/internal/gateway"
	"github.com/mcdev12/leancoffee/internal/server"
	"github.com/mcdev12/leancoffee/internal/store"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Lean Coffee server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "path to yaml config file")
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	st, closeStore, err := setupStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	gwConfig := gateway.DefaultConfig()
	gwConfig.ExclusiveRooms = cfg.Realtime.ExclusiveRooms
	gwConfig.PingInterval = time.Duration(cfg.Realtime.PingIntervalSec) * time.Second
	gwConfig.SendBufferSize = cfg.Realtime.SendBufferSize
	gwConfig.BroadcastBuffer = cfg.Realtime.BroadcastBuffer

	registry := gateway.NewRegistry(gwConfig)
	app := board.NewApp(st, registry)
	relay := gateway.NewRelay(app, registry)
	wsHandler := gateway.NewHandler(registry, relay)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go registry.Start(ctx)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: server.New(app, st, wsHandler).Handler(cfg.Server.CORSOrigins),
	}

	go func() {
		log.Info().
			Int("port", cfg.Server.Port).
			Str("store_backend", cfg.Store.Backend).
			Msg("leancoffee server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func setupStore(cfg *config.Config) (store.Store, func(), error) {
	switch cfg.Store.Backend {
	case "postgres":
		st, err := store.NewPostgresStore(cfg.Store.Postgres.DSN())
		if err != nil {
			return nil, nil, err
		}
		log.Info().
			Str("host", cfg.Store.Postgres.Host).
			Str("database", cfg.Store.Postgres.Database).
			Msg("connected to postgres")
		return st, func() { st.Close() }, nil

	case "redis":
		st := store.NewRedisStore(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		}, clockwork.NewRealClock())
		if err := st.Ping(context.Background()); err != nil {
			st.Close()
			return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		log.Info().Str("addr", cfg.Store.Redis.Addr).Msg("connected to redis")
		return st, func() { st.Close() }, nil

	default:
		return store.NewMemoryStore(clockwork.NewRealClock()), func() {}, nil
	}
}
