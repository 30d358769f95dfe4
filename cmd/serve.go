// File: cmd/serve.go
package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/shoptalk-labs/shoptalk/internal/actions"
	"github.com/shoptalk-labs/shoptalk/internal/commerce"
	"github.com/shoptalk-labs/shoptalk/internal/config"
	"github.com/shoptalk-labs/shoptalk/internal/engine"
	"github.com/shoptalk-labs/shoptalk/internal/judge"
	"github.com/shoptalk-labs/shoptalk/internal/llmclient"
	"github.com/shoptalk-labs/shoptalk/internal/observability"
	"github.com/shoptalk-labs/shoptalk/internal/ratelimit"
	"github.com/shoptalk-labs/shoptalk/internal/registry"
	"github.com/shoptalk-labs/shoptalk/internal/server"
)

// newServeCmd creates and configures the `serve` command.
func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Starts the conversational commerce API server",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("server.address", cmd.Flags().Lookup("address")); err != nil {
				return err
			}
			return viper.BindPFlag("actions.path", cmd.Flags().Lookup("actions"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return fmt.Errorf("failed to finalize config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, cfg, logger)
		},
	}

	serveCmd.Flags().String("address", "", "listen address (overrides server.address)")
	serveCmd.Flags().String("actions", "", "action config file (overrides actions.path)")
	return serveCmd
}

// runServe wires the full service graph and blocks until shutdown.
func runServe(ctx context.Context, cfg config.Interface, logger *zap.Logger) error {
	j := judge.New(cfg.Judge(), logger)

	limiter := ratelimit.New(cfg.RateLimit(), logger)
	defer limiter.Close()

	recorder := registry.NewPerfRecorder(logger)
	reg := registry.New(j, recorder, cfg.Engine().ToolCacheSize, logger)

	commerceClient := commerce.NewHTTPClient(cfg.Commerce(), logger)

	var llm llmclient.Client
	if cfg.LLM().APIKey != "" {
		router, err := llmclient.NewFromConfig(ctx, cfg.LLM(), logger)
		if err != nil {
			return fmt.Errorf("initializing model clients: %w", err)
		}
		llm = router
	} else {
		logger.Warn("No LLM API key configured; running with deterministic fallbacks")
	}

	loader := actions.NewLoader(cfg.Actions(), reg, actions.Builtins(commerceClient), logger)
	if err := loader.Load(); err != nil {
		return fmt.Errorf("loading actions: %w", err)
	}
	if err := loader.Watch(); err != nil {
		return fmt.Errorf("starting action watcher: %w", err)
	}
	defer loader.Close()

	eng := engine.New(cfg.Engine(), reg, j, limiter, llm, logger)
	defer eng.Close()

	srv := server.New(cfg.Server(), eng, limiter, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("Shutdown signal received, draining connections")
		if err := srv.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}
