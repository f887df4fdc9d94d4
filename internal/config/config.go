package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Source    SourceConfig    `mapstructure:"source"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Transport TransportConfig `mapstructure:"transport"`
	Sink      SinkConfig      `mapstructure:"sink"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Server    ServerConfig    `mapstructure:"server"`
}

type SourceConfig struct {
	ObjectsFile string `mapstructure:"objects_file"` // one object key per line
	BaseURL     string `mapstructure:"base_url"`
	URL         string `mapstructure:"url"` // overrides objects_file when set
}

type IngestConfig struct {
	PacketSize       int           `mapstructure:"packet_size"`
	PacketsPerChunk  int           `mapstructure:"packets_per_chunk"`
	ScanWindowFactor int           `mapstructure:"scan_window_factor"` // window = factor * chunk size
	Workers          int           `mapstructure:"workers"`
	Pacing           time.Duration `mapstructure:"pacing"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	ScanMode         string        `mapstructure:"scan_mode"` // pes or packet
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
}

// ChunkSize returns the target chunk length in bytes.
func (i *IngestConfig) ChunkSize() int64 {
	return int64(i.PacketSize) * int64(i.PacketsPerChunk)
}

// ScanWindow returns the aligner probe length in bytes.
func (i *IngestConfig) ScanWindow() int64 {
	return i.ChunkSize() * int64(i.ScanWindowFactor)
}

type TransportConfig struct {
	Protocol           string        `mapstructure:"protocol"` // http2 or http3
	KeepAlive          time.Duration `mapstructure:"keep_alive"`
	MaxIdleConns       int           `mapstructure:"max_idle_conns"`
	IdleConnTimeout    time.Duration `mapstructure:"idle_conn_timeout"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

type SinkConfig struct {
	Dir     string `mapstructure:"dir"`
	Pattern string `mapstructure:"pattern"` // fmt pattern taking the chunk offset
}

type RegistryConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	Prefix        string        `mapstructure:"prefix"`
	TTL           time.Duration `mapstructure:"ttl"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`   // json or text
	Output     string `mapstructure:"output"`   // stdout, stderr, or file path
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port"`
}

type ServerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Environment variable override
	v.SetEnvPrefix("TSINGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.objects_file", "objects.txt")
	v.SetDefault("source.base_url", "https://livestreamx-cats.s3.amazonaws.com/")

	// 500 packets of 188 bytes per chunk, probe window of two chunks
	v.SetDefault("ingest.packet_size", 188)
	v.SetDefault("ingest.packets_per_chunk", 500)
	v.SetDefault("ingest.scan_window_factor", 2)
	v.SetDefault("ingest.workers", 5)
	v.SetDefault("ingest.pacing", "5ms")
	v.SetDefault("ingest.max_attempts", 3)
	v.SetDefault("ingest.retry_delay", "0s")
	v.SetDefault("ingest.scan_mode", "pes")
	v.SetDefault("ingest.request_timeout", "30s")

	v.SetDefault("transport.protocol", "http2")
	v.SetDefault("transport.keep_alive", "30s")
	v.SetDefault("transport.max_idle_conns", 16)
	v.SetDefault("transport.idle_conn_timeout", "90s")
	v.SetDefault("transport.insecure_skip_verify", false)

	v.SetDefault("sink.dir", ".")
	v.SetDefault("sink.pattern", "chunk_%d.ts")

	v.SetDefault("registry.enabled", false)
	v.SetDefault("registry.redis_addr", "localhost:6379")
	v.SetDefault("registry.redis_db", 0)
	v.SetDefault("registry.prefix", "tsingest:chunks:")
	v.SetDefault("registry.ttl", "24h")
	v.SetDefault("registry.dial_timeout", "5s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 30)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
}
