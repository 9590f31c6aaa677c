package config

import (
	"fmt"
	"time"
)

// Config is the root configuration object. Every stage binary loads the
// same struct and only reads the sub-struct(s) it needs.
type Config struct {
	Broker     BrokerConfig     `koanf:"broker"`
	Aggregator AggregatorConfig `koanf:"aggregator"`
	Enricher   EnricherConfig   `koanf:"enricher"`
	AuthDB     AuthDBConfig     `koanf:"authdb"`
	Notifier   NotifierConfig   `koanf:"notifier"`
	Recorder   RecorderConfig   `koanf:"recorder"`
	EventDB    EventDBConfig    `koanf:"eventdb"`
	BrokerAuth BrokerAuthConfig `koanf:"brokerauth"`
	Counter    CounterConfig    `koanf:"counter"`
	Logging    LoggingConfig    `koanf:"logging"`
	Server     ServerConfig     `koanf:"server"`
}

// BrokerConfig is the AMQP 0-9-1 connection surface shared by every stage
// ("Broker client" in the config surface).
type BrokerConfig struct {
	Host               string        `koanf:"host"`
	Port               int           `koanf:"port"`
	VHost              string        `koanf:"vhost"`
	Username           string        `koanf:"username"`
	Password           string        `koanf:"password"`
	HeartbeatInterval  time.Duration `koanf:"heartbeat_interval"`
	SSL                bool          `koanf:"ssl"`
	SSLCACerts         string        `koanf:"ssl_ca_certs"`
	SSLCertfile        string        `koanf:"ssl_certfile"`
	SSLKeyfile         string        `koanf:"ssl_keyfile"`
	ReconnectDelay     time.Duration `koanf:"reconnect_delay"`
	CircuitBreakerName string        `koanf:"circuit_breaker_name"`
}

// AggregatorConfig drives C4. Tick sets the flush-loop interval.
// AggregateWait and SourceInactivityTimeout are loaded and validated, but
// the aggregator uses its package constants of the same names; these two
// fields do not change its windows.
type AggregatorConfig struct {
	DBPath                  string        `koanf:"dbpath"`
	TimeTolerance           time.Duration `koanf:"time_tolerance"`
	AggregateWait           time.Duration `koanf:"aggregate_wait"`
	SourceInactivityTimeout time.Duration `koanf:"source_inactivity_timeout"`
	Tick                    time.Duration `koanf:"tick"`
}

// EnricherConfig drives C5.
type EnricherConfig struct {
	DNSHost           string        `koanf:"dnshost"`
	DNSPort           int           `koanf:"dnsport"`
	DNSTimeout        time.Duration `koanf:"dns_timeout"`
	GeoIPPath         string        `koanf:"geoippath"`
	ASNDatabaseFile   string        `koanf:"asndatabasefilename"`
	CityDatabaseFile  string        `koanf:"citydatabasefilename"`
	ExcludedIPs       []string      `koanf:"excluded_ips"`
	ResolveFQDNToIP   bool          `koanf:"resolve_fqdn_to_ip"`
}

// AuthDBConfig drives C6 (authorization index) source/startup behavior.
type AuthDBConfig struct {
	DSN             string        `koanf:"dsn"`
	ReloadInterval  time.Duration `koanf:"reload_interval"`
}

// NotifierConfig drives C9.
type NotifierConfig struct {
	TemplatesDirPath               string   `koanf:"templates_dir_path"`
	ServerSMTPHost                 string   `koanf:"server_smtp_host"`
	FromAddr                       string   `koanf:"fromaddr"`
	RegularDaysOff                 []string `koanf:"regular_days_off"`
	MovableDaysOffByEasterOffset   []int    `koanf:"movable_days_off_by_easter_offset"`
	DefaultNotificationsLanguage   string   `koanf:"default_notifications_language"`
	MaxBusinessDayLookback         int      `koanf:"max_business_day_lookback"`
	TickCron                       string   `koanf:"tick_cron"`

	RedisHost string `koanf:"redis_host"`
	RedisPort int    `koanf:"redis_port"`
	RedisDB   int    `koanf:"redis_db"`
	RedisSave string `koanf:"redis_save"`
}

// RecorderConfig drives C8.
type RecorderConfig struct {
	DuckDBPath     string        `koanf:"duckdb_path"`
	DedupCacheSize int           `koanf:"dedup_cache_size"`
	DedupCacheTTL  time.Duration `koanf:"dedup_cache_ttl"`
	WALPath        string        `koanf:"wal_path"`
}

// EventDBConfig drives C11 (query compilation over the recorder's store).
type EventDBConfig struct {
	DuckDBPath  string `koanf:"duckdb_path"`
	MaxPageSize int    `koanf:"max_page_size"`
}

// BrokerAuthConfig drives C10's HTTP surface and casbin-based RBAC model.
type BrokerAuthConfig struct {
	ListenAddr     string        `koanf:"listen_addr"`
	ModelPath      string        `koanf:"model_path"`
	PolicyPath     string        `koanf:"policy_path"`
	AutoReload     bool          `koanf:"auto_reload"`
	ReloadInterval time.Duration `koanf:"reload_interval"`
	CacheEnabled   bool          `koanf:"cache_enabled"`
	CacheTTL       time.Duration `koanf:"cache_ttl"`
}

// CounterConfig drives C12.
type CounterConfig struct {
	RedisHost string `koanf:"redis_host"`
	RedisPort int    `koanf:"redis_port"`
	RedisDB   int    `koanf:"redis_db"`
}

// LoggingConfig matches the teacher's zerolog configuration surface.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// ServerConfig is the optional metrics/health HTTP mux every stage binary
// may expose, independent of its AMQP/Redis/DuckDB work.
type ServerConfig struct {
	Host string        `koanf:"host"`
	Port int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// Validate performs the cross-field checks the teacher's Config.Validate
// performed, narrowed to what each n6 component actually requires.
func (c *Config) Validate() error {
	if c.Broker.Host == "" {
		return fmt.Errorf("broker.host is required")
	}
	if c.Broker.Port <= 0 || c.Broker.Port > 65535 {
		return fmt.Errorf("broker.port must be between 1 and 65535, got %d", c.Broker.Port)
	}
	if c.Aggregator.AggregateWait <= 0 {
		return fmt.Errorf("aggregator.aggregate_wait must be positive")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535, got %d", c.Server.Port)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug/info/warn/error, got %q", c.Logging.Level)
	}
	return nil
}
