package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/n6/config.yaml",
	"/etc/n6/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config
// file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These are applied first, then overridden by the config file and finally
// by environment variables.
func defaultConfig() *Config {
	return &Config{
		Broker: BrokerConfig{
			Host:               "127.0.0.1",
			Port:               5671,
			VHost:              "/",
			HeartbeatInterval:  30 * time.Second,
			SSL:                true,
			ReconnectDelay:     2 * time.Second,
			CircuitBreakerName: "broker",
		},
		Aggregator: AggregatorConfig{
			DBPath:                  "/data/n6/aggregator.state",
			TimeTolerance:           600 * time.Second,
			AggregateWait:           12 * time.Hour,
			SourceInactivityTimeout: 24 * time.Hour,
			Tick:                    time.Hour,
		},
		Enricher: EnricherConfig{
			DNSPort:         53,
			DNSTimeout:      3 * time.Second,
			ResolveFQDNToIP: true,
		},
		AuthDB: AuthDBConfig{
			ReloadInterval: time.Minute,
		},
		Notifier: NotifierConfig{
			DefaultNotificationsLanguage: "EN",
			MaxBusinessDayLookback:       366,
			RedisHost:                    "127.0.0.1",
			RedisPort:                    6379,
			RedisSave:                    "",
		},
		Recorder: RecorderConfig{
			DuckDBPath:     "/data/n6/events.duckdb",
			DedupCacheSize: 100000,
			DedupCacheTTL:  24 * time.Hour,
			WALPath:        "/data/n6/recorder.wal",
		},
		EventDB: EventDBConfig{
			DuckDBPath:  "/data/n6/events.duckdb",
			MaxPageSize: 1000,
		},
		BrokerAuth: BrokerAuthConfig{
			ListenAddr:     ":8080",
			AutoReload:     true,
			ReloadInterval: 30 * time.Second,
			CacheEnabled:   true,
			CacheTTL:       5 * time.Minute,
		},
		Counter: CounterConfig{
			RedisHost: "127.0.0.1",
			RedisPort: 6379,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    9090,
			Timeout: 30 * time.Second,
		},
	}
}

// LoadWithKoanf loads configuration using koanf v2 with layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML config file (if it exists)
//  3. Environment variables: override any setting
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// N6_BROKER_HOST -> broker.host, N6_AGGREGATOR_DBPATH -> aggregator.dbpath, etc.
	envProvider := env.Provider("N6_", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file, preferring CONFIG_PATH, then
// falling back to DefaultConfigPaths.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths lists config paths that arrive from the environment as
// comma-separated strings but must be unmarshaled as slices.
var sliceConfigPaths = []string{
	"enricher.excluded_ips",
	"notifier.regular_days_off",
	"notifier.movable_days_off_by_easter_offset",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps N6_-prefixed environment variable names (the env
// provider passes the full name, prefix included) to koanf dotted paths, e.g.
// N6_BROKER_HOST -> broker.host, N6_AGGREGATOR_TIME_TOLERANCE -> aggregator.time_tolerance.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, "N6_"))
	parts := strings.SplitN(key, "_", 2)
	if len(parts) != 2 {
		return ""
	}
	section, field := parts[0], parts[1]
	switch section {
	case "broker", "aggregator", "enricher", "authdb", "notifier",
		"recorder", "eventdb", "brokerauth", "counter", "logging", "server":
		return section + "." + field
	default:
		return ""
	}
}

// GetKoanfInstance returns a fresh Koanf instance for advanced usage (e.g.
// hot-reload scenarios with caller-provided mutex protection).
func GetKoanfInstance() *koanf.Koanf {
	return koanf.New(".")
}

// WatchConfigFile sets up a file watcher for hot-reload capability. The
// caller is responsible for mutex protection when accessing configuration
// during reloads.
func WatchConfigFile(path string, callback func()) error {
	provider := file.Provider(path)
	return provider.Watch(func(event interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
