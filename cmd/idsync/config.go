// Config loading for the idsync CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/mesh-intelligence/idsync/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	// Config keys.
	cfgKeyDataDir          = "data_dir"
	cfgKeyDataset          = "dataset"
	cfgKeyIncludeDeleted   = "include_deleted"
	cfgKeyIncludeSkipped   = "include_skipped"
	cfgKeyReportItemsLimit = "report_items_limit"
	cfgKeyPendingTTL       = "pending.ttl"
	cfgKeyMaxAttempts      = "pending.max_attempts"
	cfgKeyAllowPartial     = "pending.allow_partial"
	cfgKeyRetentionDays    = "pending.retention_days"
	cfgKeyApplyBaseURL     = "apply.base_url"
	cfgKeyApplyTimeout     = "apply.timeout"
	cfgKeyCreateRetries    = "apply.create_retries"
	cfgKeySecretsFile      = "secrets.file"
	cfgKeySecretsEnvPrefix = "secrets.env_prefix"

	defaultDataset         = "employees"
	defaultSecretEnvPrefix = "IDSYNC_SECRET_"
)

// defaultConfigYAML is the content written to config.yaml on first run.
const defaultConfigYAML = `# idsync configuration

# Dataset reconciled by default (overridable by --dataset flag)
dataset: employees

# Data directory (optional; overridable by --data-dir flag)
# data_dir:

# Deferred link resolution
pending:
  ttl: 2m
  max_attempts: 5
  allow_partial: false
  retention_days: 14

# Target identity system
apply:
  base_url: http://localhost:8080
  timeout: 30s
  create_retries: 3

# Secret sources for apply (first hit wins: file, then env)
secrets:
  env_prefix: IDSYNC_SECRET_
  # file: secrets.json
`

// runConfig is the loaded viper instance, set by PersistentPreRunE.
var runConfig *viper.Viper

// loadConfig reads config.yaml from the resolved config directory using
// Viper. It creates the config directory and a default config.yaml on first
// run. A missing config.yaml is not an error.
func loadConfig(configDir string) (*viper.Viper, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyDataset, defaultDataset)
	v.SetDefault(cfgKeyPendingTTL, types.DefaultPendingTTL)
	v.SetDefault(cfgKeyMaxAttempts, types.DefaultMaxAttempts)
	v.SetDefault(cfgKeyRetentionDays, types.DefaultRetentionDays)
	v.SetDefault(cfgKeyReportItemsLimit, types.DefaultReportItemsLimit)
	v.SetDefault(cfgKeyApplyTimeout, types.DefaultApplyTimeout)
	v.SetDefault(cfgKeyCreateRetries, types.DefaultCreateRetries)
	v.SetDefault(cfgKeySecretsEnvPrefix, defaultSecretEnvPrefix)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// ensureDefaultConfigFile creates a default config.yaml if the file does
// not exist in the config directory.
func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)

	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

// buildRunConfig assembles the engine configuration from config.yaml and
// the global flags.
func buildRunConfig() (types.Config, error) {
	dataDir, err := resolveDataDir()
	if err != nil {
		return types.Config{}, fmt.Errorf("resolve data dir: %w", err)
	}

	dataset := flagDataset
	if dataset == "" {
		dataset = runConfig.GetString(cfgKeyDataset)
	}

	cfg := types.Config{
		DataDir:          dataDir,
		Dataset:          dataset,
		IncludeDeleted:   runConfig.GetBool(cfgKeyIncludeDeleted),
		IncludeSkipped:   runConfig.GetBool(cfgKeyIncludeSkipped),
		ReportItemsLimit: runConfig.GetInt(cfgKeyReportItemsLimit),
		Pending: types.PendingSettings{
			TTL:           runConfig.GetDuration(cfgKeyPendingTTL),
			MaxAttempts:   runConfig.GetInt(cfgKeyMaxAttempts),
			AllowPartial:  runConfig.GetBool(cfgKeyAllowPartial),
			RetentionDays: runConfig.GetInt(cfgKeyRetentionDays),
		},
		Apply: types.ApplySettings{
			BaseURL:       runConfig.GetString(cfgKeyApplyBaseURL),
			Timeout:       runConfig.GetDuration(cfgKeyApplyTimeout),
			CreateRetries: runConfig.GetInt(cfgKeyCreateRetries),
		},
	}
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return types.Config{}, err
	}
	return cfg, nil
}
