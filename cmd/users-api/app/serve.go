package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/synthetic-users-api/internal/app"
	"github.com/stacklok/synthetic-users-api/internal/config"
	"github.com/stacklok/synthetic-users-api/internal/versions"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the users API server",
	Long: `Start the users API server.

The configuration file (--config) is optional. Without it the server generates
1,000,000 users in the background on the first request. Flags and USERS_API_*
environment variables override values from the file.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second // Kubernetes-friendly shutdown time
)

func init() {
	serveCmd.Flags().String("address", ":8080", "Address to listen on")
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format)")
	serveCmd.Flags().Int("dataset-size", 0, "Number of users to generate (overrides dataset.size)")
	serveCmd.Flags().Bool("eager", false, "Generate the dataset at startup instead of on the first request")

	for _, name := range []string{"address", "config", "dataset-size", "eager"} {
		if err := viper.BindPFlag(name, serveCmd.Flags().Lookup(name)); err != nil {
			slog.Error("Failed to bind flag", "flag", name, "error", err)
			os.Exit(1)
		}
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// loadServeConfig loads the optional configuration file and applies flag and environment overrides
func loadServeConfig() (*config.Config, error) {
	var opts []config.Option
	if path := viper.GetString("config"); path != "" {
		opts = append(opts, config.WithConfigPath(path))
	}

	cfg, err := config.LoadConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if size := viper.GetInt("dataset-size"); size != 0 {
		cfg.Dataset.Size = size
	}
	if viper.GetBool("eager") {
		cfg.Dataset.Startup = config.StartupEager
	}
	if cfg.Telemetry != nil && cfg.Telemetry.ServiceVersion == "" {
		cfg.Telemetry.ServiceVersion = versions.GetVersionInfo().Version
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadServeConfig()
	if err != nil {
		return err
	}

	address := viper.GetString("address")
	slog.Info("Starting users API server",
		"address", address,
		"dataset_size", cfg.Dataset.Size,
		"policy", cfg.Dataset.Policy,
		"startup", cfg.Dataset.Startup)

	usersApp, err := app.NewUsersApp(ctx,
		app.WithConfig(cfg),
		app.WithAddress(address),
	)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- usersApp.Start()
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-errChan:
		if err != nil {
			slog.Error("Server failed", "error", err)
			_ = usersApp.Stop(defaultGracefulTimeout)
			return err
		}
	}

	return usersApp.Stop(defaultGracefulTimeout)
}
