package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the fedsearch node configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Database    DatabaseConfig    `yaml:"database"`
	Node        NodeConfig        `yaml:"node"`
	Cluster     ClusterConfig     `yaml:"cluster"`
	Search      SearchConfig      `yaml:"search"`
	Extraction  ExtractionConfig  `yaml:"extraction"`
	ResultStore ResultStoreConfig `yaml:"result_store"`
	DocStore    DocStoreConfig    `yaml:"docstore"`
	Auth        AuthConfig        `yaml:"auth"`
	Storage     StorageConfig     `yaml:"storage"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
	// NodeKey authenticates node-to-node calls on the internal API.
	NodeKey string `yaml:"node_key"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds Redis connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// NodeConfig identifies this node.
type NodeConfig struct {
	Name string `yaml:"name"`
	// AdvertiseURL is where other nodes reach this node's internal API.
	AdvertiseURL string `yaml:"advertise_url"`
}

// ClusterConfig lists the nodes taking part in searches.
type ClusterConfig struct {
	Nodes []ClusterNode `yaml:"nodes"`
}

// ClusterNode is one statically configured node.
type ClusterNode struct {
	Name    string `yaml:"name"`
	URL     string `yaml:"url"`
	Enabled *bool  `yaml:"enabled"`
}

// IsEnabled reports the enabled flag, defaulting to true.
func (n ClusterNode) IsEnabled() bool { return n.Enabled == nil || *n.Enabled }

// SearchConfig tunes dispatch and node search.
type SearchConfig struct {
	AwaitIntervalMs     int   `yaml:"await_interval_ms"`
	SendFrequencyMs     int   `yaml:"send_frequency_ms"`
	HeartbeatTTLSec     int   `yaml:"heartbeat_ttl_sec"`
	HeartbeatSec        int   `yaml:"heartbeat_interval_sec"`
	TerminateTimeoutSec int   `yaml:"terminate_timeout_sec"`
	ShardConcurrency    int   `yaml:"shard_concurrency"`
	PageSize            int   `yaml:"page_size"`
	StoreSizes          []int `yaml:"store_sizes"`
	MaxResults          int   `yaml:"max_results"`
}

// AwaitInterval returns the await poll interval.
func (c SearchConfig) AwaitInterval() time.Duration {
	return time.Duration(c.AwaitIntervalMs) * time.Millisecond
}

// SendFrequency returns the default node result pacing.
func (c SearchConfig) SendFrequency() time.Duration {
	return time.Duration(c.SendFrequencyMs) * time.Millisecond
}

// DefaultStoreSize is the first configured store size.
func (c SearchConfig) DefaultStoreSize() int {
	if len(c.StoreSizes) == 0 {
		return 0
	}
	return c.StoreSizes[0]
}

// ExtractionConfig sizes the extraction worker pool.
type ExtractionConfig struct {
	Workers int `yaml:"workers"`
	Queue   int `yaml:"queue"`
}

// ResultStoreConfig bounds the searches kept for polling.
type ResultStoreConfig struct {
	MaxEntries       int `yaml:"max_entries"`
	IdleTimeoutSec   int `yaml:"idle_timeout_sec"`
	SweepIntervalSec int `yaml:"sweep_interval_sec"`
}

// DocStoreConfig locates the SQLite document store.
type DocStoreConfig struct {
	Path string `yaml:"path"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse decodes YAML, expands ${VAR} references, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	// Node searches stream for as long as they run.
	if c.HTTP.WriteTimeoutSec < 0 {
		c.HTTP.WriteTimeoutSec = 0
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Node.Name == "" {
		if host, err := os.Hostname(); err == nil {
			c.Node.Name = host
		}
	}
	if c.Search.AwaitIntervalMs <= 0 {
		c.Search.AwaitIntervalMs = 1000
	}
	if c.Search.SendFrequencyMs <= 0 {
		c.Search.SendFrequencyMs = 500
	}
	if c.Search.HeartbeatTTLSec <= 0 {
		c.Search.HeartbeatTTLSec = 15
	}
	if c.Search.HeartbeatSec <= 0 {
		c.Search.HeartbeatSec = 5
	}
	if c.Search.TerminateTimeoutSec <= 0 {
		c.Search.TerminateTimeoutSec = 5
	}
	if c.Search.ShardConcurrency <= 0 {
		c.Search.ShardConcurrency = 4
	}
	if c.Search.PageSize <= 0 {
		c.Search.PageSize = 1000
	}
	if len(c.Search.StoreSizes) == 0 {
		c.Search.StoreSizes = []int{100, 1000, 10000}
	}
	if c.Search.MaxResults <= 0 {
		c.Search.MaxResults = 1000
	}
	if c.Extraction.Workers <= 0 {
		c.Extraction.Workers = 2 * runtime.NumCPU()
	}
	if c.ResultStore.MaxEntries <= 0 {
		c.ResultStore.MaxEntries = 1000
	}
	if c.ResultStore.IdleTimeoutSec <= 0 {
		c.ResultStore.IdleTimeoutSec = 600
	}
	if c.ResultStore.SweepIntervalSec <= 0 {
		c.ResultStore.SweepIntervalSec = 30
	}
	if c.DocStore.Path == "" {
		c.DocStore.Path = "fedsearch.db"
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "fedsearch:"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Node.Name == "" {
		return fmt.Errorf("node.name is required")
	}
	seen := make(map[string]bool, len(c.Cluster.Nodes))
	for i, n := range c.Cluster.Nodes {
		if n.Name == "" {
			return fmt.Errorf("cluster.nodes[%d].name is required", i)
		}
		if seen[n.Name] {
			return fmt.Errorf("cluster.nodes: duplicate node %q", n.Name)
		}
		seen[n.Name] = true
		if n.Name == c.Node.Name {
			continue
		}
		if _, err := url.ParseRequestURI(n.URL); err != nil {
			return fmt.Errorf("cluster.nodes.%s.url: %w", n.Name, err)
		}
	}
	for _, s := range c.Search.StoreSizes {
		if s <= 0 {
			return fmt.Errorf("search.store_sizes must be positive, got %d", s)
		}
	}
	if c.Extraction.Queue < 0 {
		return fmt.Errorf("extraction.queue must not be negative, got %d", c.Extraction.Queue)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
