package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"settlement-reconciliation-service/cmd/reconciler/config"
	"settlement-reconciliation-service/internal/reconciler"
	"settlement-reconciliation-service/internal/reporter"
	"settlement-reconciliation-service/pkg/errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the reconcile command
var (
	ordersFile      string
	settlementsFile string
	outputFormat    string
	outputFile      string
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile an order ledger with a settlement report",
	Long: `Reconcile joins merchant orders with processor settlements on transaction_id,
computes the expected USD amount of every settlement, flags differences above
the threshold and reports processor, currency, large-discrepancy and FX rate
patterns.

Orders CSV columns:
  transaction_id, order_date, customer_currency, original_amount, payment_processor

Settlements CSV columns:
  transaction_id, settlement_date, usd_amount_received, fx_rate_applied, fees_deducted

Examples:
  # Console summary
  reconciler reconcile --orders-file orders.csv --settlements-file settlements.csv

  # Full JSON result written to a file
  reconciler reconcile --orders-file orders.csv --settlements-file settlements.csv \
    --output-format json --output-file result.json

  # Stricter threshold, custom market rates and rejecting duplicate ids
  reconciler reconcile --orders-file orders.csv --settlements-file settlements.csv \
    --threshold 0.10 --rates-file rates.yaml --duplicate-policy reject`,

	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	// Required flags
	reconcileCmd.Flags().StringVar(&ordersFile, "orders-file", "", "path to the order ledger CSV file (required)")
	reconcileCmd.Flags().StringVar(&settlementsFile, "settlements-file", "", "path to the settlement report CSV file (required)")

	// Output flags
	reconcileCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv, msgpack")
	reconcileCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")

	// Engine flags
	reconcileCmd.Flags().String("threshold", "0.50", "flag matched transactions whose |difference| exceeds this many USD")
	reconcileCmd.Flags().String("fx-alert-pct", "3", "FX deviation percentage above which a rate is considered adverse")
	reconcileCmd.Flags().String("duplicate-policy", "first", "duplicate transaction_id handling: first, last, reject")
	reconcileCmd.Flags().Bool("skip-invalid-rows", false, "skip rows that fail to parse instead of aborting")
	reconcileCmd.Flags().String("rates-file", "", "yaml, json or toml file with market reference rates")

	// Bind flags to viper
	viper.BindPFlag("orders_file", reconcileCmd.Flags().Lookup("orders-file"))
	viper.BindPFlag("settlements_file", reconcileCmd.Flags().Lookup("settlements-file"))
	viper.BindPFlag("output_format", reconcileCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("output_file", reconcileCmd.Flags().Lookup("output-file"))
	viper.BindPFlag("threshold", reconcileCmd.Flags().Lookup("threshold"))
	viper.BindPFlag("fx_alert_pct", reconcileCmd.Flags().Lookup("fx-alert-pct"))
	viper.BindPFlag("duplicate_policy", reconcileCmd.Flags().Lookup("duplicate-policy"))
	viper.BindPFlag("skip_invalid_rows", reconcileCmd.Flags().Lookup("skip-invalid-rows"))
	viper.BindPFlag("rates_file", reconcileCmd.Flags().Lookup("rates-file"))
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	// Get values from viper (allows override from config file and environment)
	ordersFile = viper.GetString("orders_file")
	settlementsFile = viper.GetString("settlements_file")
	outputFormat = viper.GetString("output_format")
	outputFile = viper.GetString("output_file")

	// Validate required flags
	if ordersFile == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "orders-file", nil, nil)
	}
	if settlementsFile == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "settlements-file", nil, nil)
	}

	// Validate file existence
	if err := validateFileExists(ordersFile); err != nil {
		return err
	}
	if err := validateFileExists(settlementsFile); err != nil {
		return err
	}

	// Validate output format
	if _, err := config.ReportConfig(outputFormat); err != nil {
		return err
	}

	// Validate output file directory exists if specified
	if outputFile != "" {
		dir := filepath.Dir(outputFile)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return errors.FileError(errors.CodeFileNotFound, dir, err).
				WithSuggestion("create the output directory first")
		}
	}

	return nil
}

func validateFileExists(filePath string) error {
	if filePath == "" {
		return errors.ValidationError(errors.CodeMissingField, "file path", nil, nil)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, filePath, err)
	}
	if err != nil {
		return errors.FileError(errors.CodeFileUnreadable, filePath, err)
	}

	if info.IsDir() {
		return errors.FileError(errors.CodeFileUnreadable, filePath, fmt.Errorf("%s is a directory, expected a file", filePath))
	}

	// Check if file is readable
	file, err := os.Open(filePath)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err)
	}
	file.Close()

	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
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

	service, err := reconciler.NewReconciliationService(reconcilerConfig)
	if err != nil {
		return err
	}

	result, err := service.ReconcileFiles(ctx, ordersFile, settlementsFile)
	if err != nil {
		return err
	}

	reportConfig, err := config.ReportConfig(outputFormat)
	if err != nil {
		return err
	}

	generator, err := reporter.NewSafeReportGenerator(reportConfig, nil)
	if err != nil {
		return err
	}

	if outputFile != "" {
		written, err := generator.WriteReportFile(result, outputFile)
		if err != nil {
			return err
		}
		if written != outputFile {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: could not write to %s, report saved to %s\n", outputFile, written)
		}
	} else if err := generator.GenerateReportSafely(result, cmd.OutOrStdout()); err != nil {
		return err
	}

	if viper.GetBool("verbose") {
		fmt.Fprintf(cmd.ErrOrStderr(), "Reconciled %d orders and %d settlements: %d matched, %d flagged, $%s total discrepancy, %d alerts\n",
			result.TotalOrders, result.TotalSettlements, result.Matched, result.FlaggedCount,
			result.TotalDiscrepancyUSD.StringFixed(2), len(result.PatternAlerts))
	}

	return nil
}
