/**
 * Configuration Definitions.
 *
 * Defines the comprehensive configuration structures for the application,
 * including capture settings, storage preferences, and UI options.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package config

import "fmt"

// Config mirrors the recognized options table: every field is optional
// and backed by a default from Defaults().
type Config struct {
	Interface string `yaml:"interface"`

	DBPath             string  `yaml:"db_path"`
	DataRetentionDays  int     `yaml:"data_retention_days"`
	BPFFilter          string  `yaml:"bpf_filter"`
	SamplingRate       float64 `yaml:"sampling_rate"`
	IdleTimeoutSeconds int     `yaml:"idle_timeout_s"`

	BatchSize      int `yaml:"batch_size"`
	BatchIntervalS int `yaml:"batch_interval_s"`

	EnableIPv6       bool `yaml:"enable_ipv6"`
	SkipLocalTraffic bool `yaml:"skip_local_traffic"`

	ReverseDNSEnable    bool `yaml:"reverse_dns_enable"`
	ReverseDNSTimeoutMs int  `yaml:"reverse_dns_timeout_ms"`
	ReverseDNSRetries   int  `yaml:"reverse_dns_retries"`

	EnableDPI      bool `yaml:"enable_dpi"`
	EnableALPN     bool `yaml:"enable_alpn"`
	EnableHTTPHost bool `yaml:"enable_http_host"`

	Debug bool `yaml:"debug"`
}

// Validate fails fast on any option outside its documented range.
// Configuration errors are the one class of startup error this system
// never retries or degrades past.
func (c *Config) Validate() error {
	if c.DataRetentionDays < 1 || c.DataRetentionDays > 365 {
		return fmt.Errorf("config: data_retention_days must be in [1, 365], got %d", c.DataRetentionDays)
	}
	if c.SamplingRate <= 0 || c.SamplingRate > 1 {
		return fmt.Errorf("config: sampling_rate must be in (0, 1], got %f", c.SamplingRate)
	}
	if c.IdleTimeoutSeconds <= 0 {
		return fmt.Errorf("config: idle_timeout_s must be positive, got %d", c.IdleTimeoutSeconds)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("config: batch_size must be positive, got %d", c.BatchSize)
	}
	if c.BatchIntervalS <= 0 {
		return fmt.Errorf("config: batch_interval_s must be positive, got %d", c.BatchIntervalS)
	}
	if c.DBPath == "" {
		return fmt.Errorf("config: db_path must not be empty")
	}
	if c.ReverseDNSTimeoutMs <= 0 {
		return fmt.Errorf("config: reverse_dns_timeout_ms must be positive, got %d", c.ReverseDNSTimeoutMs)
	}
	if c.ReverseDNSRetries < 0 {
		return fmt.Errorf("config: reverse_dns_retries must be >= 0, got %d", c.ReverseDNSRetries)
	}
	return nil
}
