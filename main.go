package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/frontier-mc/frontier/internal/api"
	"github.com/frontier-mc/frontier/internal/config"
	"github.com/frontier-mc/frontier/internal/data"
	"github.com/frontier-mc/frontier/internal/logging"
	"github.com/frontier-mc/frontier/internal/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)
	if err := runServer(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func runServer(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var fetcher data.Fetcher = data.NewYahooClient(cfg.Data.YahooBaseURL, cfg.Data.FetchRPS, cfg.Data.FetchTimeout, log)

	if cfg.Storage.RedisAddr != "" {
		client, err := data.NewRedisClient(ctx, cfg.Storage.RedisAddr, cfg.Storage.RedisPassword, cfg.Storage.RedisDB)
		if err != nil {
			log.Warn().Err(err).Msg("price cache disabled")
		} else {
			defer client.Close()
			fetcher = data.NewCachedFetcher(fetcher, client, cfg.Storage.PriceCacheTTL, log)
			log.Info().Str("addr", cfg.Storage.RedisAddr).Dur("ttl", cfg.Storage.PriceCacheTTL).Msg("price cache enabled")
		}
	}

	store, err := storage.Open(cfg.Storage.DBPath, log)
	if err != nil {
		return fmt.Errorf("open run history: %w", err)
	}
	defer store.Close()

	server := api.NewServer(cfg, fetcher, store, log)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
