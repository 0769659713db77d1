package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"settlement-reconciliation-service/cmd/reconciler/config"
	"settlement-reconciliation-service/internal/api"
	"settlement-reconciliation-service/internal/reconciler"
	"settlement-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// serveCmd runs the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the reconciliation HTTP API",
	Long: `Serve exposes the reconciliation engine over HTTP.

Endpoints:
  POST /api/reconcile   multipart form with orders_file and settlements_file
  GET  /api/health      liveness probe
  GET  /metrics         Prometheus metrics

Engine settings (threshold, fx_alert_pct, duplicate_policy, market_rates) come
from the config file and RECONCILER_* environment variables.

Examples:
  reconciler serve
  reconciler serve --addr 127.0.0.1:9000 --max-upload-mb 64
  RECONCILER_THRESHOLD=1.00 reconciler serve --log-format json`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", api.DefaultConfig().Addr, "listen address")
	serveCmd.Flags().Int("max-upload-mb", int(api.DefaultConfig().MaxUploadBytes>>20), "maximum upload size in MiB")

	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	viper.BindPFlag("server.max_upload_mb", serveCmd.Flags().Lookup("max-upload-mb"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	reconcilerConfig, err := settings.ReconcilerConfig()
	if err != nil {
		return err
	}

	serverConfig, err := settings.ServerConfig()
	if err != nil {
		return err
	}

	service, err := reconciler.NewReconciliationService(reconcilerConfig)
	if err != nil {
		return err
	}

	log := logger.GetGlobalLogger().WithComponent("serve")
	log.WithFields(logger.Fields{
		"threshold":        reconcilerConfig.Engine.DiscrepancyThreshold.String(),
		"duplicate_policy": reconcilerConfig.Engine.Matching.DuplicatePolicy,
		"market_rates":     reconcilerConfig.Engine.Rates.String(),
	}).Info("Engine configured")

	server := api.NewServer(serverConfig, service)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if err := server.Shutdown(context.Background()); err != nil {
			return err
		}
		return <-errCh
	}
}
