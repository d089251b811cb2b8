/**
 * Configuration Defaults.
 *
 * Provides sane default values for application configuration to ensure
 * Sentinel can run out-of-the-box without extensive setup.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package config

// Defaults returns a Config populated with the documented defaults.
// Interface is left empty, meaning "platform default" (resolved by the
// capture package at startup).
func Defaults() *Config {
	return &Config{
		DBPath:             "sentinel.db",
		DataRetentionDays:  30,
		BPFFilter:          "ip or ip6",
		SamplingRate:       1.0,
		IdleTimeoutSeconds: 60,

		BatchSize:      50,
		BatchIntervalS: 5,

		EnableIPv6:       true,
		SkipLocalTraffic: false,

		ReverseDNSEnable:    true,
		ReverseDNSTimeoutMs: 2000,
		ReverseDNSRetries:   2,

		EnableDPI:      true,
		EnableALPN:     true,
		EnableHTTPHost: true,
	}
}
