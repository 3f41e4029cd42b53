// Package config loads node settings from defaults, an optional YAML
// file, and LSNP_-prefixed environment variables, in rising priority.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/opd-ai/lsnp/limits"
	"github.com/opd-ai/lsnp/transport"
)

// Config holds everything an LSNP node needs to run.
type Config struct {
	Port          int    `mapstructure:"port"`
	BroadcastAddr string `mapstructure:"broadcast_addr"`
	UserID        string `mapstructure:"user_id"`
	DisplayName   string `mapstructure:"display_name"`
	Status        string `mapstructure:"status"`
	AvatarPath    string `mapstructure:"avatar_path"`

	PresenceInterval time.Duration `mapstructure:"presence_interval"`
	DefaultTTL       int64         `mapstructure:"default_ttl"`
	PeerExpiry       time.Duration `mapstructure:"peer_expiry"`

	AutoAcceptFiles bool   `mapstructure:"auto_accept_files"`
	DownloadDir     string `mapstructure:"download_dir"`
	CachePath       string `mapstructure:"cache_path"`

	Verbose     bool   `mapstructure:"verbose"`
	MetricsAddr string `mapstructure:"metrics_addr"`

	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Load reads configuration from file and environment. cfgFile overrides
// the search for lsnp.yaml in the working directory and the user config
// directory.
func Load(cfgFile string) (*Config, error) {
	// A .env next to the binary feeds the environment before viper reads it.
	_ = godotenv.Load()

	v := viper.New()

	v.SetDefault("port", 50999)
	v.SetDefault("broadcast_addr", "255.255.255.255")
	v.SetDefault("user_id", "")
	v.SetDefault("display_name", "")
	v.SetDefault("status", "Exploring LSNP!")
	v.SetDefault("avatar_path", "")
	v.SetDefault("presence_interval", 30*time.Second)
	v.SetDefault("default_ttl", int64(3600))
	v.SetDefault("peer_expiry", time.Duration(0))
	v.SetDefault("auto_accept_files", true)
	v.SetDefault("download_dir", "downloads")
	v.SetDefault("cache_path", "")
	v.SetDefault("verbose", false)
	v.SetDefault("metrics_addr", "")
	v.SetDefault("rate_limit_rps", 20.0)
	v.SetDefault("rate_limit_burst", 40)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("lsnp")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "lsnp"))
		}
	}

	v.SetEnvPrefix("lsnp")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	} else {
		logrus.WithField("file", v.ConfigFileUsed()).Debug("Loaded config file")
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	cfg.applyComputedDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyComputedDefaults fills the fields whose defaults depend on the
// machine: identity from hostname and address, cache under the user cache
// directory.
func (c *Config) applyComputedDefaults() {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "lsnp"
	}
	if c.UserID == "" {
		c.UserID = fmt.Sprintf("%s@%s", host, transport.LocalIP())
	}
	if c.DisplayName == "" {
		c.DisplayName = host
	}
	if c.CachePath == "" {
		if dir, err := os.UserCacheDir(); err == nil {
			c.CachePath = filepath.Join(dir, "lsnp", "state.json")
		} else {
			c.CachePath = "lsnp-state.json"
		}
	}
}

// Validate rejects settings no node can run with.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if net.ParseIP(c.BroadcastAddr) == nil {
		return fmt.Errorf("broadcast_addr %q is not an IP address", c.BroadcastAddr)
	}
	if c.UserID == "" {
		return fmt.Errorf("user_id must not be empty")
	}
	if len(c.DisplayName) > limits.MaxDisplayNameLength {
		return fmt.Errorf("display_name longer than %d bytes", limits.MaxDisplayNameLength)
	}
	if c.DefaultTTL < 1 {
		return fmt.Errorf("default_ttl %d must be positive", c.DefaultTTL)
	}
	if c.PresenceInterval < time.Second {
		return fmt.Errorf("presence_interval %s below one second", c.PresenceInterval)
	}
	if c.RateLimitBurst < 0 {
		return fmt.Errorf("rate_limit_burst %d must not be negative", c.RateLimitBurst)
	}
	return nil
}
