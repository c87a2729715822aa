// Package config loads the configuration of the posture command.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/synqronlabs/posture"
	"github.com/synqronlabs/posture/dns"
)

// EnvPrefix prefixes environment variables overriding configuration keys,
// e.g. POSTURE_DNS_TIMEOUT for dns.timeout.
const EnvPrefix = "POSTURE"

// Config represents the application configuration.
type Config struct {
	ListenAddr  string    `mapstructure:"listen_addr"`
	LogLevel    string    `mapstructure:"log_level"`
	ActionLimit int       `mapstructure:"action_limit"`
	DNS         DNSConfig `mapstructure:"dns"`

	// UseMocks answers every query from MockRecords instead of the network.
	UseMocks    bool         `mapstructure:"use_mocks"`
	MockRecords []MockRecord `mapstructure:"mock_records"`
}

// DNSConfig configures resolution and DKIM discovery.
type DNSConfig struct {
	Providers []dns.Endpoint `mapstructure:"providers"`

	// SystemNameservers appends the nameservers of /etc/resolv.conf to
	// Providers, or to the default providers when Providers is empty.
	SystemNameservers bool          `mapstructure:"system_nameservers"`
	Timeout           time.Duration `mapstructure:"timeout"`
	Selectors         []string      `mapstructure:"selectors"`
	MaxProbes         int           `mapstructure:"max_probes"`
}

// MockRecord is a TXT record served when UseMocks is set.
type MockRecord struct {
	Name   string   `mapstructure:"name"`
	Values []string `mapstructure:"values"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("action_limit", posture.DefaultActionLimit)
	v.SetDefault("use_mocks", false)
	v.SetDefault("dns.system_nameservers", false)
	v.SetDefault("dns.timeout", dns.DefaultTimeout)
	v.SetDefault("dns.selectors", []string{})
	v.SetDefault("dns.max_probes", 0)
}

// Load reads configuration from a YAML file and POSTURE_* environment
// variables. If path is empty, posture.yaml is searched for in the current
// directory and ~/.config/posture/; a missing file then means defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("posture")
		v.AddConfigPath(".")

		homeDir, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".config", "posture"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	if c.DNS.Timeout <= 0 {
		errs = append(errs, errors.New("dns.timeout must be positive"))
	}
	if c.DNS.MaxProbes < 0 {
		errs = append(errs, errors.New("dns.max_probes cannot be negative"))
	}
	if c.ActionLimit < 0 {
		errs = append(errs, errors.New("action_limit cannot be negative"))
	}
	if _, err := c.level(); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	for i, ep := range c.DNS.Providers {
		if ep.Name == "" {
			errs = append(errs, fmt.Errorf("dns.providers[%d]: name cannot be empty", i))
		}
		if ep.URL == "" && ep.Format != dns.FormatSystem {
			errs = append(errs, fmt.Errorf("dns.providers[%d]: url cannot be empty", i))
		}
	}
	for i, r := range c.MockRecords {
		if r.Name == "" {
			errs = append(errs, fmt.Errorf("mock_records[%d]: name cannot be empty", i))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

func (c *Config) level() (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(c.LogLevel))
	return l, err
}

// Logger returns a text logger writing to w at the configured level.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := c.level()
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Providers returns the configured DNS providers, or nil for the library
// defaults. With SystemNameservers the nameservers of /etc/resolv.conf are
// appended to the configured providers, or to dns.DefaultEndpoints when
// none are configured.
func (c *Config) Providers() []dns.Endpoint {
	if !c.DNS.SystemNameservers {
		return append([]dns.Endpoint(nil), c.DNS.Providers...)
	}
	providers := c.DNS.Providers
	if len(providers) == 0 {
		providers = dns.DefaultEndpoints
	}
	return append(append([]dns.Endpoint(nil), providers...), dns.SystemNameservers()...)
}

// Resolver returns the mock resolver when UseMocks is set, nil otherwise.
func (c *Config) Resolver() dns.Resolver {
	if !c.UseMocks {
		return nil
	}
	txt := make(map[string][]string, len(c.MockRecords))
	for _, r := range c.MockRecords {
		name := strings.ToLower(strings.TrimSuffix(r.Name, ".")) + "."
		txt[name] = append(txt[name], r.Values...)
	}
	return dns.MockResolver{TXT: txt}
}

// Checker returns the checker configuration. Logger and metrics are
// supplied by the caller.
func (c *Config) Checker(logger *slog.Logger, metrics *dns.Metrics) posture.Config {
	return posture.Config{
		Resolver:  c.Resolver(),
		Providers: c.Providers(),
		Timeout:   c.DNS.Timeout,
		Selectors: c.DNS.Selectors,
		MaxProbes: c.DNS.MaxProbes,
		Logger:    logger,
		Metrics:   metrics,
	}
}
