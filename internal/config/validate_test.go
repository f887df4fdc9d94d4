package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Source: SourceConfig{ObjectsFile: "objects.txt", BaseURL: "https://bucket.example.com/"},
		Ingest: IngestConfig{
			PacketSize:       188,
			PacketsPerChunk:  500,
			ScanWindowFactor: 2,
			Workers:          5,
			Pacing:           5 * time.Millisecond,
			MaxAttempts:      3,
			ScanMode:         "pes",
			RequestTimeout:   30 * time.Second,
		},
		Transport: TransportConfig{Protocol: "http2"},
		Sink:      SinkConfig{Dir: ".", Pattern: "chunk_%d.ts"},
		Logging:   LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Metrics:   MetricsConfig{Enabled: true, Path: "/metrics", Port: 9090},
		Server:    ServerConfig{Enabled: true, Port: 8080},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "no source",
			mutate:  func(c *Config) { c.Source = SourceConfig{} },
			wantErr: true,
			errMsg:  "either url or objects_file",
		},
		{
			name:    "non http url",
			mutate:  func(c *Config) { c.Source.URL = "ftp://host/file.ts" },
			wantErr: true,
			errMsg:  "url must be http or https",
		},
		{
			name:    "packet size",
			mutate:  func(c *Config) { c.Ingest.PacketSize = 204 },
			wantErr: true,
			errMsg:  "packet_size must be 188",
		},
		{
			name:    "window factor too small",
			mutate:  func(c *Config) { c.Ingest.ScanWindowFactor = 1 },
			wantErr: true,
			errMsg:  "scan_window_factor",
		},
		{
			name:    "no workers",
			mutate:  func(c *Config) { c.Ingest.Workers = 0 },
			wantErr: true,
			errMsg:  "workers must be positive",
		},
		{
			name:    "unknown scan mode",
			mutate:  func(c *Config) { c.Ingest.ScanMode = "frame" },
			wantErr: true,
			errMsg:  "scan_mode",
		},
		{
			name:    "unknown protocol",
			mutate:  func(c *Config) { c.Transport.Protocol = "spdy" },
			wantErr: true,
			errMsg:  "protocol",
		},
		{
			name:    "sink pattern without offset",
			mutate:  func(c *Config) { c.Sink.Pattern = "chunk.ts" },
			wantErr: true,
			errMsg:  "pattern must contain",
		},
		{
			name:    "registry without addr",
			mutate:  func(c *Config) { c.Registry = RegistryConfig{Enabled: true, Prefix: "x:"} },
			wantErr: true,
			errMsg:  "redis_addr",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: true,
			errMsg:  "invalid log level",
		},
		{
			name:    "file logging without size",
			mutate:  func(c *Config) { c.Logging.Output = "/var/log/tsingest.log" },
			wantErr: true,
			errMsg:  "max_size",
		},
		{
			name:    "port clash",
			mutate:  func(c *Config) { c.Server.Port = 9090 },
			wantErr: true,
			errMsg:  "ports must be different",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				if err != nil {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
