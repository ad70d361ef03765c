package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/agentvault/decision-engine/internal/config"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/httpapi"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/metrics"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/vault"
)

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the decision API over HTTP",
		Long: `Serve the decision API.

Examples:
  engine serve --addr :8080
  AGENTVAULT_STORAGE_PATH=engine.db AGENTVAULT_VAULT_ADDR=localhost:50051 engine serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engine, err := newEngine(cfg, logger, store, metrics.New(reg))
	if err != nil {
		return err
	}

	var opts []httpapi.Option
	if cfg.Vault.Addr != "" {
		client, err := vault.NewGRPCClient(cfg.Vault.Addr)
		if err != nil {
			return err
		}
		defer client.Close()
		opts = append(opts, httpapi.WithVault(vault.WithTimeout(client, cfg.Vault.Timeout)))
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      httpapi.NewRouter(httpapi.New(engine, logger, opts...), reg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("decision engine listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("storage", cfg.Storage.Path),
			zap.String("vault", cfg.Vault.Addr),
			zap.String("version_id", engine.VersionID()),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Int("pending_decisions", engine.Pending()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
