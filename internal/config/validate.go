package config

import (
	"fmt"
	"strings"
)

func (c *Config) Validate() error {
	if err := c.Source.Validate(); err != nil {
		return fmt.Errorf("source config: %w", err)
	}

	if err := c.Ingest.Validate(); err != nil {
		return fmt.Errorf("ingest config: %w", err)
	}

	if err := c.Transport.Validate(); err != nil {
		return fmt.Errorf("transport config: %w", err)
	}

	if err := c.Sink.Validate(); err != nil {
		return fmt.Errorf("sink config: %w", err)
	}

	if err := c.Registry.Validate(); err != nil {
		return fmt.Errorf("registry config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if c.Metrics.Enabled && c.Server.Enabled && c.Metrics.Port == c.Server.Port {
		return fmt.Errorf("metrics and server ports must be different")
	}

	return nil
}

func (s *SourceConfig) Validate() error {
	if s.URL != "" {
		if !strings.HasPrefix(s.URL, "http://") && !strings.HasPrefix(s.URL, "https://") {
			return fmt.Errorf("url must be http or https: %s", s.URL)
		}
		return nil
	}

	if s.ObjectsFile == "" {
		return fmt.Errorf("either url or objects_file is required")
	}

	if s.BaseURL == "" {
		return fmt.Errorf("base_url is required with objects_file")
	}

	return nil
}

func (i *IngestConfig) Validate() error {
	if i.PacketSize != 188 {
		return fmt.Errorf("packet_size must be 188, got %d", i.PacketSize)
	}

	if i.PacketsPerChunk <= 0 {
		return fmt.Errorf("packets_per_chunk must be positive")
	}

	if i.ScanWindowFactor < 2 || i.ScanWindowFactor > 3 {
		return fmt.Errorf("scan_window_factor must be 2 or 3, got %d", i.ScanWindowFactor)
	}

	if i.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}

	if i.Pacing < 0 {
		return fmt.Errorf("pacing cannot be negative")
	}

	if i.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be positive")
	}

	if i.RetryDelay < 0 {
		return fmt.Errorf("retry_delay cannot be negative")
	}

	if i.ScanMode != "pes" && i.ScanMode != "packet" {
		return fmt.Errorf("scan_mode must be 'pes' or 'packet'")
	}

	if i.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}

	return nil
}

func (t *TransportConfig) Validate() error {
	if t.Protocol != "http2" && t.Protocol != "http3" {
		return fmt.Errorf("protocol must be 'http2' or 'http3'")
	}

	if t.MaxIdleConns < 0 {
		return fmt.Errorf("max_idle_conns cannot be negative")
	}

	return nil
}

func (s *SinkConfig) Validate() error {
	if s.Dir == "" {
		return fmt.Errorf("dir cannot be empty")
	}

	if !strings.Contains(s.Pattern, "%d") {
		return fmt.Errorf("pattern must contain %%d for the chunk offset")
	}

	return nil
}

func (r *RegistryConfig) Validate() error {
	if !r.Enabled {
		return nil
	}

	if r.RedisAddr == "" {
		return fmt.Errorf("redis_addr is required when registry is enabled")
	}

	if r.RedisDB < 0 {
		return fmt.Errorf("invalid Redis database number: %d", r.RedisDB)
	}

	if r.Prefix == "" {
		return fmt.Errorf("prefix cannot be empty")
	}

	return nil
}

func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"panic": true,
		"fatal": true,
		"error": true,
		"warn":  true,
		"info":  true,
		"debug": true,
		"trace": true,
	}

	if !validLevels[l.Level] {
		return fmt.Errorf("invalid log level: %s", l.Level)
	}

	if l.Format != "json" && l.Format != "text" {
		return fmt.Errorf("log format must be 'json' or 'text'")
	}

	if l.Output != "stdout" && l.Output != "stderr" {
		if l.MaxSize <= 0 {
			return fmt.Errorf("max_size must be positive for file output")
		}
		if l.MaxBackups < 0 {
			return fmt.Errorf("max_backups cannot be negative")
		}
		if l.MaxAge < 0 {
			return fmt.Errorf("max_age cannot be negative")
		}
	}

	return nil
}

func (m *MetricsConfig) Validate() error {
	if m.Enabled {
		if m.Port < 1 || m.Port > 65535 {
			return fmt.Errorf("invalid metrics port: %d", m.Port)
		}

		if m.Path == "" {
			return fmt.Errorf("metrics path cannot be empty")
		}
	}

	return nil
}

func (s *ServerConfig) Validate() error {
	if !s.Enabled {
		return nil
	}

	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", s.Port)
	}

	return nil
}
