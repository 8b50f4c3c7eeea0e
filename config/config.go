// Package config aggregates the settings of all three front-ends. Precedence
// is flags over config file over environment over built-in defaults.
package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dirsrv-monitor/internal/dsctl"
	"github.com/dirsrv-monitor/internal/ldapx"
	"github.com/dirsrv-monitor/internal/query"
	"github.com/dirsrv-monitor/pkg/logger"
)

var valid = validator.New()

// Config is the full configuration tree. The directory connection settings
// sit at the top level of the TOML file; everything else is sectioned.
type Config struct {
	Ldap    ldapx.Config  `mapstructure:",squash"`
	Dsctl   dsctl.Command `mapstructure:"dsctl"`
	Queries []query.Query `mapstructure:"query" validate:"dive"`

	Export  ExportConfig  `mapstructure:"export"`
	Haproxy HaproxyConfig `mapstructure:"haproxy"`
	Log     logger.Config `mapstructure:"log"`
}

// ExportConfig configures the Prometheus exporter daemon.
type ExportConfig struct {
	ExposeAddress  string        `mapstructure:"expose_address" validate:"required"`
	ExposePort     uint16        `mapstructure:"expose_port" validate:"required"`
	ScrapeInterval time.Duration `mapstructure:"scrape_interval" validate:"required,gt=0"`
	ScrapeFlags    ScrapeFlags   `mapstructure:"scrape_flags"`
}

// ScrapeFlags toggle the exporter's scraper kinds.
type ScrapeFlags struct {
	LdapMonitoring    bool `mapstructure:"ldap_monitoring"`
	ReplicationStatus bool `mapstructure:"replication_status"`
	GidsInfo          bool `mapstructure:"gids_info"`
	Dsctl             bool `mapstructure:"dsctl"`
}

// HaproxyConfig configures the agent-check daemon. HealthCheckQueries names
// catalog queries that run as additional health probes; a name missing from
// the catalog is logged and skipped.
type HaproxyConfig struct {
	ExposeAddress      string               `mapstructure:"expose_address" validate:"required"`
	ExposePort         uint16               `mapstructure:"expose_port" validate:"required"`
	ScrapeInterval     HealthCheckIntervals `mapstructure:"scrape_interval"`
	ScrapeFlags        HealthCheckFlags     `mapstructure:"scrape_flags"`
	HealthCheckQueries []string             `mapstructure:"health_check_queries"`
}

// HealthCheckIntervals hold per-loop check periods for the agent-check
// daemon.
type HealthCheckIntervals struct {
	ReplicationStatus time.Duration `mapstructure:"replication_status" validate:"required,gt=0"`
	LdapMonitoring    time.Duration `mapstructure:"ldap_monitoring" validate:"required,gt=0"`
	SystemdStatus     time.Duration `mapstructure:"systemd_status" validate:"required,gt=0"`
	LdapAccessibility time.Duration `mapstructure:"ldap_accessibility" validate:"required,gt=0"`
	CustomQueries     time.Duration `mapstructure:"custom_queries" validate:"required,gt=0"`
}

// HealthCheckFlags toggle the agent-check daemon's probe loops. A disabled
// probe counts as passing.
type HealthCheckFlags struct {
	LdapMonitoring    bool `mapstructure:"ldap_monitoring"`
	ReplicationStatus bool `mapstructure:"replication_status"`
	SystemdStatus     bool `mapstructure:"systemd_status"`
}

// NewDefaultConfig mirrors the defaults of the classic single-purpose
// exporters: localhost directory, exporter on 9100, agent check on 6699.
func NewDefaultConfig() *Config {
	return &Config{
		Ldap: ldapx.Config{
			URI:      "ldap://localhost",
			PageSize: 999,
		},
		Dsctl: dsctl.Command{
			Instance: dsctl.DefaultInstance,
		},
		Export: ExportConfig{
			ExposeAddress:  "0.0.0.0",
			ExposePort:     9100,
			ScrapeInterval: 5 * time.Second,
			ScrapeFlags: ScrapeFlags{
				LdapMonitoring:    true,
				ReplicationStatus: true,
				GidsInfo:          false,
				Dsctl:             false,
			},
		},
		Haproxy: HaproxyConfig{
			ExposeAddress: "0.0.0.0",
			ExposePort:    6699,
			ScrapeInterval: HealthCheckIntervals{
				ReplicationStatus: 5 * time.Second,
				LdapMonitoring:    5 * time.Second,
				SystemdStatus:     5 * time.Second,
				LdapAccessibility: 5 * time.Second,
				CustomQueries:     5 * time.Second,
			},
			ScrapeFlags: HealthCheckFlags{
				LdapMonitoring:    true,
				ReplicationStatus: true,
				SystemdStatus:     true,
			},
		},
		Log: logger.Config{
			Level:  "info",
			Format: "console",
			Path:   "",
			MaxAge: 7,
		},
	}
}

// LoadWithCli resolves the configuration for one command invocation:
// cobra flags bound through viper, an optional TOML file from --config, and
// environment variables, decoded over the defaults and validated.
func LoadWithCli(cmd *cobra.Command) (*Config, error) {
	cfg := NewDefaultConfig()
	v := viper.New()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	configFile, _ := cmd.Flags().GetString("config")
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	decoderConfig := &mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	}
	decoder, err := mapstructure.NewDecoder(decoderConfig)
	if err != nil {
		return nil, fmt.Errorf("new decoder: %w", err)
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// Flag defaults materialize an empty bind section even when no
	// credentials were given; an empty DN means anonymous.
	if cfg.Ldap.Bind != nil && cfg.Ldap.Bind.DN == "" {
		cfg.Ldap.Bind = nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks the whole tree. Called on every load; a daemon must not
// start on a config it cannot fully trust.
func (c *Config) Validate() error {
	if err := valid.Struct(c); err != nil {
		return err
	}

	for _, addr := range []string{c.ExportAddr(), c.HaproxyAddr()} {
		if _, err := net.ResolveTCPAddr("tcp", addr); err != nil {
			return fmt.Errorf("listen address %q: %w", addr, err)
		}
	}

	seen := make(map[string]struct{}, len(c.Queries))
	for _, q := range c.Queries {
		if _, dup := seen[q.Name]; dup {
			return fmt.Errorf("duplicate query name %q", q.Name)
		}
		seen[q.Name] = struct{}{}
	}
	return nil
}

// ExportAddr is the exporter listen address.
func (c *Config) ExportAddr() string {
	return fmt.Sprintf("%s:%d", c.Export.ExposeAddress, c.Export.ExposePort)
}

// HaproxyAddr is the agent-check listen address.
func (c *Config) HaproxyAddr() string {
	return fmt.Sprintf("%s:%d", c.Haproxy.ExposeAddress, c.Haproxy.ExposePort)
}
