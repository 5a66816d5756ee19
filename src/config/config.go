package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"lsp-proxy/src/internal/constants"
	"lsp-proxy/src/internal/registry"
	"lsp-proxy/src/internal/security"
)

const (
	StorageBackendS3    = "s3"
	StorageBackendLocal = "local"
)

// Config is the gateway configuration
type Config struct {
	Listen         string                   `yaml:"listen"`
	BaseDirectory  string                   `yaml:"base_directory"`
	LogLevel       string                   `yaml:"log_level"`
	AllowedOrigins []string                 `yaml:"allowed_origins,omitempty"`
	Storage        *StorageConfig           `yaml:"storage"`
	Redis          *RedisConfig             `yaml:"redis"`
	Timeouts       *TimeoutConfig           `yaml:"timeouts"`
	Servers        map[string]*ServerConfig `yaml:"servers"`
}

// ServerConfig contains configuration for a single LSP server, keyed by file extension
type ServerConfig struct {
	Command    string   `yaml:"command"`
	Args       []string `yaml:"args,omitempty"`
	LanguageID string   `yaml:"language_id,omitempty"`
}

// StorageConfig selects the durable project store
type StorageConfig struct {
	Backend   string `yaml:"backend"`
	Root      string `yaml:"root,omitempty"`
	Bucket    string `yaml:"bucket,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
	Region    string `yaml:"region,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
	PathStyle bool   `yaml:"path_style,omitempty"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// RedisConfig points at the fast document store
type RedisConfig struct {
	URL string `yaml:"url"`
}

// TimeoutConfig bounds language server operations
type TimeoutConfig struct {
	Request    time.Duration `yaml:"request"`
	Initialize time.Duration `yaml:"initialize"`
	Shutdown   time.Duration `yaml:"shutdown"`
}

// LoadConfig loads configuration from a YAML file. Missing sections take
// their defaults and environment overrides are applied last.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	applyDefaults(&config)
	ApplyEnvOverrides(&config)

	// Validate config
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(config *Config, path string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateDefaultConfig generates a default configuration file
func GenerateDefaultConfig(path string) error {
	return SaveConfig(GetDefaultConfig(), path)
}

// GetDefaultConfigPath returns the default configuration file path
func GetDefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".lsp-proxy", "config.yaml")
}

// GetDefaultConfig returns the built-in configuration with every known language server
func GetDefaultConfig() *Config {
	config := &Config{}
	applyDefaults(config)
	return config
}

func applyDefaults(config *Config) {
	if config.Listen == "" {
		config.Listen = constants.DefaultListenAddr
	}
	if config.BaseDirectory == "" {
		config.BaseDirectory = constants.DefaultBaseDirectory
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.Storage == nil {
		config.Storage = &StorageConfig{}
	}
	if config.Storage.Backend == "" {
		config.Storage.Backend = StorageBackendLocal
	}
	if config.Storage.Backend == StorageBackendLocal && config.Storage.Root == "" {
		config.Storage.Root = constants.DefaultStorageRoot
	}
	if config.Redis == nil {
		config.Redis = &RedisConfig{}
	}
	if config.Redis.URL == "" {
		config.Redis.URL = constants.DefaultRedisURL
	}
	if config.Timeouts == nil {
		config.Timeouts = &TimeoutConfig{}
	}
	if config.Timeouts.Request <= 0 {
		config.Timeouts.Request = constants.DefaultRequestTimeout
	}
	if config.Timeouts.Initialize <= 0 {
		config.Timeouts.Initialize = constants.DefaultInitializeTimeout
	}
	if config.Timeouts.Shutdown <= 0 {
		config.Timeouts.Shutdown = constants.ProcessShutdownTimeout
	}
	if config.Servers == nil {
		config.Servers = make(map[string]*ServerConfig)
		for ext, lang := range registry.DefaultLanguages() {
			config.Servers[ext] = &ServerConfig{
				Command:    lang.Command,
				Args:       lang.Args,
				LanguageID: lang.LanguageID,
			}
		}
	}
}

// ApplyEnvOverrides lets deployment environments point the gateway at their
// stores without editing the file.
func ApplyEnvOverrides(config *Config) {
	if v := os.Getenv("REDIS_URL"); v != "" {
		config.Redis.URL = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		config.Storage.Backend = StorageBackendS3
		config.Storage.Bucket = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		config.Storage.Region = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		config.Storage.AccessKey = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		config.Storage.SecretKey = v
	}
	if v := os.Getenv("S3_ENDPOINT"); v != "" {
		config.Storage.Endpoint = v
		config.Storage.PathStyle = true
	}
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if len(config.Servers) == 0 {
		return fmt.Errorf("servers configuration is required")
	}
	for ext, serverConfig := range config.Servers {
		if serverConfig == nil || serverConfig.Command == "" {
			return fmt.Errorf("command is required for extension %s", ext)
		}
		if err := security.ValidateCommand(serverConfig.Command, serverConfig.Args); err != nil {
			return fmt.Errorf("extension %s: %w", ext, err)
		}
	}

	switch strings.ToLower(config.LogLevel) {
	case "debug", "info", "warn", "warning", "error", "fatal":
	default:
		return fmt.Errorf("unknown log level %q", config.LogLevel)
	}

	switch config.Storage.Backend {
	case StorageBackendS3:
		if config.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the s3 backend")
		}
	case StorageBackendLocal:
		if config.Storage.Root == "" {
			return fmt.Errorf("storage.root is required for the local backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", config.Storage.Backend)
	}

	if config.Redis.URL == "" {
		return fmt.Errorf("redis.url is required")
	}
	return nil
}

// Languages returns the launch table, filling language ids from the registry
func (c *Config) Languages() map[string]registry.LanguageInfo {
	out := make(map[string]registry.LanguageInfo, len(c.Servers))
	for ext, sc := range c.Servers {
		if sc == nil {
			continue
		}
		languageID := sc.LanguageID
		if languageID == "" {
			languageID = "text"
			if known, ok := registry.GetLanguageByExtension(ext); ok {
				languageID = known.LanguageID
			}
		}
		out[ext] = registry.LanguageInfo{
			Extension:  ext,
			LanguageID: languageID,
			Command:    sc.Command,
			Args:       append([]string(nil), sc.Args...),
		}
	}
	return out
}

// Extensions lists the configured extensions in sorted order
func (c *Config) Extensions() []string {
	exts := make([]string, 0, len(c.Servers))
	for ext := range c.Servers {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
