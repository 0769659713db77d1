package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"settlement-reconciliation-service/internal/matcher"
	"settlement-reconciliation-service/internal/reporter"
	"settlement-reconciliation-service/pkg/errors"
	"settlement-reconciliation-service/pkg/logger"

	"github.com/spf13/viper"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	ConfigureEnv(v)
	return v
}

func loadSettings(t *testing.T, v *viper.Viper) *Settings {
	t.Helper()
	settings, err := Load(v)
	if err != nil {
		t.Fatalf("failed to load settings: %v", err)
	}
	return settings
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestReconcilerConfig_Defaults(t *testing.T) {
	settings := loadSettings(t, newViper(t))

	config, err := settings.ReconcilerConfig()
	if err != nil {
		t.Fatalf("failed to build reconciler config: %v", err)
	}

	engine := config.Engine
	if engine.DiscrepancyThreshold.String() != "0.5" {
		t.Errorf("expected threshold 0.5, got %s", engine.DiscrepancyThreshold)
	}
	if engine.FXReasonPct.String() != "3" || engine.Patterns.FXDeviationPct.String() != "3" {
		t.Errorf("expected fx alert pct 3, got %s / %s", engine.FXReasonPct, engine.Patterns.FXDeviationPct)
	}
	if engine.Patterns.MinFlagged != 2 {
		t.Errorf("expected min flagged 2, got %d", engine.Patterns.MinFlagged)
	}
	if engine.Matching.DuplicatePolicy != matcher.DuplicateFirst {
		t.Errorf("expected duplicate policy first, got %s", engine.Matching.DuplicatePolicy)
	}
	if !engine.Matching.DetectNearMatches {
		t.Error("expected near match detection enabled by default")
	}
	if config.Orders.SkipInvalidRows || config.Settlements.SkipInvalidRows {
		t.Error("expected invalid rows to abort by default")
	}

	expectedRates := map[string]string{"MXN": "17.5", "BRL": "5", "IDR": "15500", "KES": "130", "COP": "4000"}
	for code, want := range expectedRates {
		rate, ok := engine.Rates.Rate(code)
		if !ok {
			t.Errorf("expected default rate for %s", code)
			continue
		}
		if rate.String() != want {
			t.Errorf("expected %s rate %s, got %s", code, want, rate)
		}
	}
}

func TestReconcilerConfig_ConfigFile(t *testing.T) {
	path := writeFile(t, "reconciler.yaml", `threshold: 1.25
fx_alert_pct: 5
duplicate_policy: reject
skip_invalid_rows: true
near_matches: false
min_flagged: 3
market_rates:
  mxn: 18.00
  ARS: 900
`)

	v := newViper(t)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("failed to read config file: %v", err)
	}

	config, err := loadSettings(t, v).ReconcilerConfig()
	if err != nil {
		t.Fatalf("failed to build reconciler config: %v", err)
	}

	engine := config.Engine
	if engine.DiscrepancyThreshold.String() != "1.25" {
		t.Errorf("expected threshold 1.25, got %s", engine.DiscrepancyThreshold)
	}
	if engine.Patterns.FXDeviationPct.String() != "5" {
		t.Errorf("expected fx alert pct 5, got %s", engine.Patterns.FXDeviationPct)
	}
	if engine.Matching.DuplicatePolicy != matcher.DuplicateReject {
		t.Errorf("expected duplicate policy reject, got %s", engine.Matching.DuplicatePolicy)
	}
	if engine.Matching.DetectNearMatches {
		t.Error("expected near match detection disabled")
	}
	if engine.Patterns.MinFlagged != 3 {
		t.Errorf("expected min flagged 3, got %d", engine.Patterns.MinFlagged)
	}
	if !config.Orders.SkipInvalidRows || !config.Settlements.SkipInvalidRows {
		t.Error("expected skip_invalid_rows to apply to both parsers")
	}

	if rate, _ := engine.Rates.Rate("MXN"); rate.String() != "18" {
		t.Errorf("expected overridden MXN rate 18, got %s", rate)
	}
	if rate, ok := engine.Rates.Rate("ARS"); !ok || rate.String() != "900" {
		t.Errorf("expected added ARS rate 900, got %s", rate)
	}
	if rate, _ := engine.Rates.Rate("BRL"); rate.String() != "5" {
		t.Errorf("expected default BRL rate 5, got %s", rate)
	}
}

func TestReconcilerConfig_EnvOverride(t *testing.T) {
	t.Setenv("RECONCILER_THRESHOLD", "2.00")
	t.Setenv("RECONCILER_DUPLICATE_POLICY", "last")

	config, err := loadSettings(t, newViper(t)).ReconcilerConfig()
	if err != nil {
		t.Fatalf("failed to build reconciler config: %v", err)
	}

	if config.Engine.DiscrepancyThreshold.String() != "2" {
		t.Errorf("expected threshold 2 from environment, got %s", config.Engine.DiscrepancyThreshold)
	}
	if config.Engine.Matching.DuplicatePolicy != matcher.DuplicateLast {
		t.Errorf("expected duplicate policy last from environment, got %s", config.Engine.Matching.DuplicatePolicy)
	}
}

func TestReconcilerConfig_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    interface{}
		contains string
	}{
		{"non numeric threshold", "threshold", "abc", "threshold"},
		{"negative threshold", "threshold", "-1", "threshold cannot be negative"},
		{"non numeric fx alert", "fx_alert_pct", "three", "fx_alert_pct"},
		{"unknown duplicate policy", "duplicate_policy", "newest", "duplicate_policy"},
		{"non positive market rate", "market_rates", map[string]string{"MXN": "0"}, "market_rates"},
		{"missing rates file", "rates_file", "/non/existent/rates.yaml", "rates_file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper(t)
			v.Set(tt.key, tt.value)

			_, err := loadSettings(t, v).ReconcilerConfig()
			if err == nil {
				t.Fatal("expected error but got none")
			}

			reconcilerErr, ok := errors.AsReconcilerError(err)
			if !ok {
				t.Fatalf("expected ReconcilerError, got %v", err)
			}
			if reconcilerErr.Category != errors.CategoryConfiguration {
				t.Errorf("expected configuration error, got %s", reconcilerErr.Category)
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("expected error to contain %q, got: %v", tt.contains, err)
			}
		})
	}
}

func TestLoadRatesFile(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		expected map[string]string
		wantErr  bool
	}{
		{
			name:     "yaml market_rates table",
			file:     "rates.yaml",
			content:  "market_rates:\n  MXN: 17.25\n  BRL: 5.1\n",
			expected: map[string]string{"mxn": "17.25", "brl": "5.1"},
		},
		{
			name:     "bare json mapping",
			file:     "rates.json",
			content:  `{"KES": "129.5"}`,
			expected: map[string]string{"kes": "129.5"},
		},
		{
			name:     "toml market_rates table",
			file:     "rates.toml",
			content:  "[market_rates]\nCOP = \"3950\"\n",
			expected: map[string]string{"cop": "3950"},
		},
		{
			name:    "empty file",
			file:    "rates.yaml",
			content: "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)

			rates, err := LoadRatesFile(path)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error but got rates %v", rates)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if len(rates) != len(tt.expected) {
				t.Errorf("expected %d rates, got %v", len(tt.expected), rates)
			}
			for code, want := range tt.expected {
				if rates[code] != want {
					t.Errorf("expected %s rate %s, got %s", code, want, rates[code])
				}
			}
		})
	}
}

func TestReportConfig(t *testing.T) {
	tests := []struct {
		format   string
		expected reporter.OutputFormat
		wantErr  bool
	}{
		{"console", reporter.FormatConsole, false},
		{"json", reporter.FormatJSON, false},
		{"CSV", reporter.FormatCSV, false},
		{" msgpack ", reporter.FormatMsgpack, false},
		{"xml", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			config, err := ReportConfig(tt.format)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for format %q", tt.format)
				} else if !strings.Contains(err.Error(), "console, json, csv, msgpack") {
					t.Errorf("expected suggestion listing formats, got: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if config.Format != tt.expected {
				t.Errorf("expected format %s, got %s", tt.expected, config.Format)
			}
		})
	}
}

func TestServerConfig(t *testing.T) {
	v := newViper(t)
	v.Set("server.addr", "127.0.0.1:9000")
	v.Set("server.max_upload_mb", 4)
	v.Set("server.request_timeout", "5s")

	config, err := loadSettings(t, v).ServerConfig()
	if err != nil {
		t.Fatalf("failed to build server config: %v", err)
	}

	if config.Addr != "127.0.0.1:9000" {
		t.Errorf("expected addr 127.0.0.1:9000, got %s", config.Addr)
	}
	if config.MaxUploadBytes != 4<<20 {
		t.Errorf("expected 4 MiB upload limit, got %d", config.MaxUploadBytes)
	}
	if config.RequestTimeout != 5*time.Second {
		t.Errorf("expected 5s request timeout, got %s", config.RequestTimeout)
	}
	if config.ShutdownTimeout != 15*time.Second {
		t.Errorf("expected default 15s shutdown timeout, got %s", config.ShutdownTimeout)
	}

	v.Set("server.max_upload_mb", 0)
	if _, err := loadSettings(t, v).ServerConfig(); err == nil {
		t.Error("expected error for zero upload limit")
	}
}

func TestLoggerConfig(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "reconciler.log")

	tests := []struct {
		name           string
		level          string
		format         string
		file           string
		verbose        bool
		expectedLevel  logger.Level
		expectedOutput logger.Output
		wantErr        bool
	}{
		{"defaults", "info", "text", "", false, logger.InfoLevel, logger.DefaultConfig().Output, false},
		{"verbose forces debug", "warn", "json", "", true, logger.DebugLevel, logger.DefaultConfig().Output, false},
		{"file output", "error", "json", logFile, false, logger.ErrorLevel, logger.FileOutput, false},
		{"upper case level", "WARN", "TEXT", "", false, logger.WarnLevel, logger.DefaultConfig().Output, false},
		{"invalid level", "loud", "text", "", false, "", "", true},
		{"invalid format", "info", "xml", "", false, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := &Settings{Log: LogSettings{Level: tt.level, Format: tt.format, File: tt.file}}

			config, err := settings.LoggerConfig(tt.verbose)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if config.Level != tt.expectedLevel {
				t.Errorf("expected level %s, got %s", tt.expectedLevel, config.Level)
			}
			if config.Output != tt.expectedOutput {
				t.Errorf("expected output %s, got %s", tt.expectedOutput, config.Output)
			}
			if tt.file != "" && config.File != tt.file {
				t.Errorf("expected file %s, got %s", tt.file, config.File)
			}
		})
	}
}
