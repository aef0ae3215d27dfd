// Package gwconfig holds vortex's gateway configuration: a YAML file
// (spec.md §6: "gateway is configured via a YAML/TOML file, external
// concern") decoded into a defaults-seeded struct, with a global accessor
// guarded by sync.RWMutex.
//
// Grounded on coreengine/config/core_config.go's CoreConfig: the same
// DefaultConfig()/Get/Set/Reset-under-RWMutex idiom. Load decodes the YAML
// file straight into the struct; there is no dynamic-decode overlay.
package gwconfig

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// RouteConfig is the YAML shape of one Asset (spec.md §3's Asset type).
type RouteConfig struct {
	Method   string            `yaml:"method"`
	Kind     string            `yaml:"kind"` // REST | MQ | WS | MCP | LLM
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Path     string            `yaml:"path"`
	URL      string            `yaml:"url"`
	TimeoutMS int              `yaml:"timeout_ms"`
	Stream   int               `yaml:"stream"` // 1=buffered, 2=chunked
	Metadata map[string]string `yaml:"metadata"`
	Instances []string         `yaml:"instances,omitempty"` // multi-instance targets for rendezvous selection
}

// PoolConfig configures C2.
type PoolConfig struct {
	MaxRequests        int           `yaml:"max_requests"`
	MaxRequestsPerHost int           `yaml:"max_requests_per_host"`
	KeepAlive          time.Duration `yaml:"keep_alive"`
}

// CacheConfig configures C4.
type CacheConfig struct {
	Directory  string `yaml:"directory"`
	MaxSizeBytes int64 `yaml:"max_size_bytes"`
	AppVersion int    `yaml:"app_version"`
}

// RateLimitConfig configures the C7 rate-limit preprocessor, grounded on
// coreengine/kernel/rate_limiter.go's RateLimitConfig shape.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	RequestsPerHour   int  `yaml:"requests_per_hour"`
	RequestsPerDay    int  `yaml:"requests_per_day"`
	BurstSize         int  `yaml:"burst_size"`
}

// TelemetryConfig configures the ambient observability stack.
type TelemetryConfig struct {
	MetricsEnabled   bool   `yaml:"metrics_enabled"`
	TracingEnabled   bool   `yaml:"tracing_enabled"`
	CollectorEndpoint string `yaml:"collector_endpoint"`
	ServiceName      string `yaml:"service_name"`
}

// ServerConfig configures the ingress HTTP listener.
type ServerConfig struct {
	ListenAddr        string        `yaml:"listen_addr"`
	PreprocTimeout    time.Duration `yaml:"preproc_timeout"`
	TrustedProxies    []string      `yaml:"trusted_proxies"`
	AdminGRPCAddr     string        `yaml:"admin_grpc_addr"`
}

// Config is the full gateway configuration document.
type Config struct {
	Server        ServerConfig      `yaml:"server"`
	Pool          PoolConfig        `yaml:"pool"`
	Cache         CacheConfig       `yaml:"cache"`
	RateLimit     RateLimitConfig   `yaml:"rate_limit"`
	Telemetry     TelemetryConfig   `yaml:"telemetry"`
	Preprocessors []string          `yaml:"preprocessors"`
	Routes        []RouteConfig     `yaml:"routes"`
}

// DefaultConfig returns a Config with production-sane defaults, matching
// coreengine/config/core_config.go's DefaultCoreConfig.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:     ":8080",
			PreprocTimeout: 5 * time.Second,
			AdminGRPCAddr:  ":50061",
		},
		Pool: PoolConfig{
			MaxRequests:        64,
			MaxRequestsPerHost: 5,
			KeepAlive:          5 * time.Minute,
		},
		Cache: CacheConfig{
			Directory:    "./cache",
			MaxSizeBytes: 256 << 20,
			AppVersion:   1,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 120,
			RequestsPerHour:   3000,
			RequestsPerDay:    50000,
			BurstSize:         20,
		},
		Telemetry: TelemetryConfig{
			MetricsEnabled: true,
			TracingEnabled: false,
			ServiceName:    "vortex",
		},
		Preprocessors: []string{"rate_limit", "auth"},
	}
}

// Load reads and decodes a YAML config file, seeding unset fields from
// DefaultConfig.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gwconfig: reading %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("gwconfig: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// =============================================================================
// GLOBAL CONFIG (set by cmd/vortex bootstrap)
// =============================================================================

var (
	global   *Config
	globalMu sync.RWMutex
)

// Get returns the active configuration, or defaults if none was set.
func Get() *Config {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if global == nil {
		return DefaultConfig()
	}
	return global
}

// Set installs cfg as the active configuration.
func Set(cfg *Config) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = cfg
}

// Reset clears the active configuration back to defaults (used by tests).
func Reset() {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = nil
}
