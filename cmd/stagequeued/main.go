package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"stagequeue/internal/config"
	"stagequeue/internal/daemon"
	"stagequeue/internal/logging"
	"stagequeue/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFlag string
	var bindFlag string

	cmd := &cobra.Command{
		Use:           "stagequeued",
		Short:         "Run the stagequeue daemon in the foreground",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(strings.TrimSpace(configFlag))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if bind := strings.TrimSpace(bindFlag); bind != "" {
				cfg.Paths.APIBind = bind
			}
			return run(cmd.Context(), cfg, path, exists)
		},
	}

	cmd.Flags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	cmd.Flags().StringVar(&bindFlag, "bind", "", "Override paths.api_bind")
	return cmd
}

// run serves until ctx ends.
func run(ctx context.Context, cfg *config.Config, configPath string, configExists bool) error {
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if !configExists {
		logger.Info("config file not found; using defaults", logging.String("path", configPath))
	}

	st, err := store.Open(cfg.DatabasePath(), logger)
	if err != nil {
		return fmt.Errorf("open request store: %w", err)
	}

	d, err := daemon.New(cfg, st, logger)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("stagequeued shutting down")
	return nil
}
