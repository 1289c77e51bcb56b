package main

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
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"masjidbox-bridge/config"
	"masjidbox-bridge/internal/api"
	"masjidbox-bridge/internal/db"
	"masjidbox-bridge/internal/masjidbox"
	"masjidbox-bridge/internal/platform"
	"masjidbox-bridge/internal/publish"
	"masjidbox-bridge/internal/setup"
	"masjidbox-bridge/internal/store"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Config file (default: $CONFIG_PATH or ./config/config.yaml)")
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from %s: %w", path, err)
	}
	cfg.ApplyEnv()
	configureLogging(cfg.Log)
	log.Info().Str("path", path).Msg("configuration loaded")
	return cfg, nil
}

func runServe(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		return err
	}
	log.Info().Msg("database initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)

	client := masjidbox.NewClient(cfg.MasjidBox.HTTPProxy)
	client.BaseURL = cfg.MasjidBox.BaseURL
	plat := platform.New(ctx, client)

	if cfg.MQTT.Enabled {
		mqttClient, err := publish.Connect(cfg.MQTT)
		if err != nil {
			return err
		}
		defer mqttClient.Disconnect(250)

		workers := publish.NewWorkerPool(cfg.MQTT.Workers, mqttClient, publish.Topics{
			DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
			TopicPrefix:     cfg.MQTT.TopicPrefix,
		})
		workers.Start(ctx)
		plat.AddObserver(workers)
	}

	ttl := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	handler := api.NewHandler(appStore, plat, cache.New(ttl, 2*ttl))

	if created := setup.NewFlow(appStore).Seed(ctx, cfg.Places); created > 0 {
		log.Info().Int("created", created).Msg("seed places configured")
	}
	if _, err := plat.LoadStored(ctx, appStore); err != nil {
		return err
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(handler, cfg.Server),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutdown signal received, stopping services")
	case err := <-serveErr:
		plat.Shutdown()
		return fmt.Errorf("HTTP server ListenAndServe: %w", err)
	}

	plat.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server Shutdown: %w", err)
	}

	log.Info().Msg("server gracefully stopped")
	return nil
}
