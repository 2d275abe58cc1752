package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Firdavs28033/tg-monitoring-back/internal/app"
	"github.com/Firdavs28033/tg-monitoring-back/internal/config"
	"github.com/Firdavs28033/tg-monitoring-back/internal/ingest"
	"github.com/Firdavs28033/tg-monitoring-back/internal/logger"
)

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "ingest",
		Short:         "Collect messages from Telegram groups into MongoDB",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Config file path (optional, environment variables override it).")
	cmd.AddCommand(newCheckCmd(&configPath))
	return cmd
}

// newCheckCmd 只校验配置和账号，不连接任何服务
func newCheckCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and list usable accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger.Init(cfg.LogLevel)

			usable := 0
			for _, acc := range cfg.Accounts {
				if err := acc.Validate(); err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: skipped (%v)\n", acc.Name, err)
					continue
				}
				usable++
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d groups\n", acc.Name, len(acc.Groups))
			}
			if usable == 0 {
				return ingest.ErrNoAccounts
			}
			return nil
		},
	}
}

func run(parent context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.L().Errorf("Failed to load config: %v", err)
		return err
	}
	logger.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		logger.L().Errorf("Failed to initialize: %v", err)
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := application.Close(closeCtx); err != nil {
			logger.L().Errorf("Shutdown error: %v", err)
		}
	}()

	if err := application.Run(ctx); err != nil {
		if errors.Is(err, ingest.ErrNoAccounts) {
			logger.L().Error("No account has complete credentials, nothing to do")
		} else {
			logger.L().Errorf("Ingestion stopped: %v", err)
		}
		return err
	}

	logger.L().Info("Shutdown complete")
	return nil
}
