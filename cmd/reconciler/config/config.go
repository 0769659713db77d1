// Package config turns viper settings (flags, RECONCILER_ environment
// variables and an optional config file) into the configuration structs of
// the reconciler, reporter, API server and logger.
//
// Example config file:
//
//	threshold: 0.50
//	fx_alert_pct: 3
//	duplicate_policy: first
//	market_rates:
//	  MXN: 17.50
//	  BRL: 5.00
//	server:
//	  addr: ":8000"
package config

import (
	"fmt"
	"strings"
	"time"

	"settlement-reconciliation-service/internal/api"
	"settlement-reconciliation-service/internal/fxrates"
	"settlement-reconciliation-service/internal/matcher"
	"settlement-reconciliation-service/internal/reconciler"
	"settlement-reconciliation-service/internal/reporter"
	"settlement-reconciliation-service/pkg/errors"
	"settlement-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable the CLI reads
const EnvPrefix = "RECONCILER"

// Settings is the flat view of everything configurable from outside
type Settings struct {
	Threshold       string            `mapstructure:"threshold"`
	FXAlertPct      string            `mapstructure:"fx_alert_pct"`
	DuplicatePolicy string            `mapstructure:"duplicate_policy"`
	SkipInvalidRows bool              `mapstructure:"skip_invalid_rows"`
	NearMatches     bool              `mapstructure:"near_matches"`
	MinFlagged      int               `mapstructure:"min_flagged"`
	MarketRates     map[string]string `mapstructure:"market_rates"`
	RatesFile       string            `mapstructure:"rates_file"`

	Log    LogSettings    `mapstructure:"log"`
	Server ServerSettings `mapstructure:"server"`
}

// LogSettings configures the global logger
type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// ServerSettings configures the HTTP API
type ServerSettings struct {
	Addr            string        `mapstructure:"addr"`
	MaxUploadMB     int           `mapstructure:"max_upload_mb"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// SetDefaults registers every known key with its default so that
// environment variables are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("threshold", "0.50")
	v.SetDefault("fx_alert_pct", "3")
	v.SetDefault("duplicate_policy", string(matcher.DuplicateFirst))
	v.SetDefault("skip_invalid_rows", false)
	v.SetDefault("near_matches", true)
	v.SetDefault("min_flagged", 2)
	v.SetDefault("market_rates", map[string]string{})
	v.SetDefault("rates_file", "")

	v.SetDefault("log.level", string(logger.InfoLevel))
	v.SetDefault("log.format", string(logger.TextFormat))
	v.SetDefault("log.file", "")

	server := api.DefaultConfig()
	v.SetDefault("server.addr", server.Addr)
	v.SetDefault("server.max_upload_mb", int(server.MaxUploadBytes>>20))
	v.SetDefault("server.request_timeout", server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", server.ShutdownTimeout)
	v.SetDefault("server.allowed_origins", server.AllowedOrigins)
}

// ConfigureEnv makes v read RECONCILER_* variables, with nested keys
// separated by underscores (RECONCILER_SERVER_ADDR).
func ConfigureEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// Load reads the settings held by v
func Load(v *viper.Viper) (*Settings, error) {
	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "settings", nil, err)
	}
	return &settings, nil
}

// ReconcilerConfig builds the reconciliation service configuration
func (s *Settings) ReconcilerConfig() (*reconciler.Config, error) {
	config := reconciler.DefaultConfig()
	engine := config.Engine

	threshold, err := parseDecimal("threshold", s.Threshold)
	if err != nil {
		return nil, err
	}
	engine.DiscrepancyThreshold = threshold

	fxAlert, err := parseDecimal("fx_alert_pct", s.FXAlertPct)
	if err != nil {
		return nil, err
	}
	engine.FXReasonPct = fxAlert
	engine.Patterns.FXDeviationPct = fxAlert

	if s.MinFlagged > 0 {
		engine.Patterns.MinFlagged = s.MinFlagged
	}

	policy, err := matcher.ParseDuplicatePolicy(s.DuplicatePolicy)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "duplicate_policy", s.DuplicatePolicy, err)
	}
	engine.Matching.DuplicatePolicy = policy
	engine.Matching.DetectNearMatches = s.NearMatches

	rates, err := s.RateTable()
	if err != nil {
		return nil, err
	}
	engine.Rates = rates

	config.Orders.SkipInvalidRows = s.SkipInvalidRows
	config.Settlements.SkipInvalidRows = s.SkipInvalidRows

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "reconciler", nil, err)
	}
	return config, nil
}

// RateTable returns the market reference rates. Rates from rates_file are
// applied first, then market_rates; both override the built-in table per
// currency.
func (s *Settings) RateTable() (*fxrates.RateTable, error) {
	merged := make(map[string]string)
	for code, rate := range fxrates.DefaultRates() {
		merged[code] = rate.String()
	}

	if s.RatesFile != "" {
		fileRates, err := LoadRatesFile(s.RatesFile)
		if err != nil {
			return nil, err
		}
		for code, rate := range fileRates {
			merged[strings.ToUpper(code)] = rate
		}
	}

	for code, rate := range s.MarketRates {
		merged[strings.ToUpper(code)] = rate
	}

	table, err := fxrates.ParseRates(merged)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "market_rates", s.MarketRates, err)
	}
	return table, nil
}

// LoadRatesFile reads a yaml, json or toml file holding a market_rates
// table, or a bare currency-to-rate mapping.
func LoadRatesFile(path string) (map[string]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "rates_file", path, err).
			WithSuggestion("provide a yaml, json or toml file mapping currency codes to rates")
	}

	raw := v.GetStringMapString("market_rates")
	if len(raw) == 0 {
		raw = make(map[string]string)
		for _, key := range v.AllKeys() {
			raw[key] = v.GetString(key)
		}
	}
	if len(raw) == 0 {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "rates_file", path, nil)
	}
	return raw, nil
}

// ReportConfig builds the report configuration for the given output format
func ReportConfig(format string) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()
	config.Format = reporter.OutputFormat(strings.ToLower(strings.TrimSpace(format)))

	switch config.Format {
	case reporter.FormatConsole:
		config.IncludeDiagnostics = true
	case reporter.FormatCSV:
		config.CSVHeaders = true
		config.CSVDelimiter = ','
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "output_format", format, err).
			WithSuggestion("use one of: console, json, csv, msgpack")
	}
	return config, nil
}

// ServerConfig builds the HTTP server configuration
func (s *Settings) ServerConfig() (*api.Config, error) {
	config := &api.Config{
		Addr:            s.Server.Addr,
		MaxUploadBytes:  int64(s.Server.MaxUploadMB) << 20,
		RequestTimeout:  s.Server.RequestTimeout,
		ShutdownTimeout: s.Server.ShutdownTimeout,
		AllowedOrigins:  s.Server.AllowedOrigins,
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "server", nil, err)
	}
	return config, nil
}

// LoggerConfig builds the logger configuration. verbose forces debug level.
func (s *Settings) LoggerConfig(verbose bool) (*logger.Config, error) {
	config := logger.DefaultConfig()
	config.Level = logger.Level(strings.ToLower(s.Log.Level))
	config.Format = logger.Format(strings.ToLower(s.Log.Format))
	if s.Log.File != "" {
		config.Output = logger.FileOutput
		config.File = s.Log.File
	}
	if verbose {
		config.Level = logger.DebugLevel
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "log", nil, err)
	}
	return config, nil
}

func parseDecimal(setting, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, errors.ConfigurationError(errors.CodeInvalidConfig, setting, value, err).
			WithSuggestion(fmt.Sprintf("%s must be a decimal number", setting))
	}
	if d.IsNegative() {
		return decimal.Zero, errors.ConfigurationError(errors.CodeInvalidConfig, setting, value, nil).
			WithSuggestion(fmt.Sprintf("%s cannot be negative", setting))
	}
	return d, nil
}
