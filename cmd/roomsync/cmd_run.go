package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"roomsync/internal/app"
	"roomsync/internal/config"
)

type runOptions struct {
	configPath string
	envFile    string
	name       string
	title      string
	moderator  bool
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the relay and serve the overlay API",
		Long: "run loads configuration (file > ROOMSYNC_* environment > defaults), connects to the relay\n" +
			"and serves the loopback API until interrupted. --name and --title seed the identity\n" +
			"for headless runs; the overlay normally pushes it through PUT /api/page.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runApp(ctx, opts, cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", os.Getenv("ROOMSYNC_CONFIG_FILE"), "JSON configuration file")
	cmd.Flags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	cmd.Flags().StringVar(&opts.name, "name", "", "display name to register with")
	cmd.Flags().StringVar(&opts.title, "title", "", "presentation title the session fingerprint is derived from")
	cmd.Flags().BoolVar(&opts.moderator, "moderator", false, "start with moderator rights")
	return cmd
}

// ARCHITECTURAL DISCOVERY: Separate run function enables testing and error handling
func runApp(ctx context.Context, opts runOptions, logOut io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log, logOut)
	if err != nil {
		return err
	}

	application, err := app.NewApplication(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	if opts.name != "" {
		application.Page().Update(opts.title, opts.name+" Vous")
	}
	application.Page().SetModerator(opts.moderator)

	return application.Run(ctx)
}

func loadConfig(opts runOptions) (*config.Config, error) {
	if opts.envFile != "" {
		// A missing dotenv file is normal outside development
		if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", opts.envFile, err)
		}
	}

	cfg, err := config.LoadConfigWithPrecedence(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.LogConfig, out io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(out, handlerOpts)), nil
	}
	return slog.New(slog.NewTextHandler(out, handlerOpts)), nil
}
