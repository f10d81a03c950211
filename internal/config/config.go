// Package config binds the exchange's configuration surface (spec §6)
// via viper: listening port, snapshot/history/credit store paths, and
// daily-digest credentials.
//
// Grounded on 0xtitan6-polymarket-mm/NimbleMarkets-dbn-go's viper
// usage (env-prefixed, flag-bindable keys with defaults set before
// Unmarshal) — the teacher itself configures via bare `flag`, but
// spec §6's configuration surface and multiple store paths call for a
// layered file+env+flag source, which viper is built for.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the exchange's full runtime configuration.
type Config struct {
	ListenPort      int           `mapstructure:"listen_port"`
	SnapshotPath    string        `mapstructure:"snapshot_path"`
	HistoryDBPath   string        `mapstructure:"history_db_path"`
	CreditDBPath    string        `mapstructure:"credit_db_path"`
	SnapshotPeriod  time.Duration `mapstructure:"snapshot_period"`
	ProtocolVersion string        `mapstructure:"protocol_version"`

	DigestSMTPHost string `mapstructure:"digest_smtp_host"`
	DigestSMTPUser string `mapstructure:"digest_smtp_user"`
	DigestSMTPPass string `mapstructure:"digest_smtp_pass"`
	DigestFrom     string `mapstructure:"digest_from"`
}

// Load reads configuration from (in ascending priority) defaults, an
// optional config file at path, and NSE_-prefixed environment
// variables (spec §6: "Configuration surface").
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("listen_port", 19055)
	v.SetDefault("snapshot_path", "exchange.snapshot")
	v.SetDefault("history_db_path", "history.db")
	v.SetDefault("credit_db_path", "credit.db")
	v.SetDefault("snapshot_period", 15*time.Second)
	v.SetDefault("protocol_version", "1.0.0")
	v.SetDefault("digest_smtp_host", "")
	v.SetDefault("digest_smtp_user", "")
	v.SetDefault("digest_smtp_pass", "")
	v.SetDefault("digest_from", "")

	v.SetEnvPrefix("NSE")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}
