package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"lsp-proxy/src/config"
	"lsp-proxy/src/internal/common"
	"lsp-proxy/src/server/storage"
)

// LoadConfigWithFallback loads the explicit path, then the default path, then
// the built-in defaults. An explicit path that fails to load is an error.
func LoadConfigWithFallback(configPath string) (*config.Config, error) {
	if configPath != "" {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
		return cfg, nil
	}

	defaultConfigPath := config.GetDefaultConfigPath()
	if _, err := os.Stat(defaultConfigPath); err == nil {
		cfg, err := config.LoadConfig(defaultConfigPath)
		if err == nil {
			return cfg, nil
		}
		common.CLILogger.Warn("Failed to load default config from %s, using defaults: %v", defaultConfigPath, err)
	}

	cfg := config.GetDefaultConfig()
	config.ApplyEnvOverrides(cfg)
	return cfg, nil
}

// InitConfig writes the default configuration
func InitConfig(path string, overwrite bool) error {
	if path == "" {
		path = config.GetDefaultConfigPath()
	}
	if _, err := os.Stat(path); err == nil && !overwrite {
		return fmt.Errorf("%s already exists, use --%s to overwrite", path, FlagForce)
	}
	if err := config.GenerateDefaultConfig(path); err != nil {
		return err
	}
	common.CLILogger.Info("Wrote configuration to %s", path)
	return nil
}

// ShowConfig prints the effective configuration as YAML. Secrets are masked.
func ShowConfig(w io.Writer, configPath string) error {
	cfg, err := LoadConfigWithFallback(configPath)
	if err != nil {
		return err
	}

	shown := *cfg
	storageCfg := *cfg.Storage
	if storageCfg.SecretKey != "" {
		storageCfg.SecretKey = "********"
	}
	shown.Storage = &storageCfg

	data, err := yaml.Marshal(&shown)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// buildStorage opens the durable project store named by the configuration
func buildStorage(cfg *config.StorageConfig) (storage.Storage, error) {
	switch cfg.Backend {
	case config.StorageBackendS3:
		return storage.NewS3Storage(storage.S3Config{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Prefix:    cfg.Prefix,
			PathStyle: cfg.PathStyle,
			UseSSL:    cfg.UseSSL,
		})
	case config.StorageBackendLocal:
		return storage.NewLocalStorage(cfg.Root)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// checkStorage lists the root so misconfigured credentials surface at startup
func checkStorage(ctx context.Context, store storage.Storage) error {
	_, err := store.ListFiles(ctx, "")
	return err
}
