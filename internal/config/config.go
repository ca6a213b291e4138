// Package config loads reposign settings from flags, environment and an
// optional YAML config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Setting keys
const (
	KeyPrivateKey  = "privkey"
	KeySignedBy    = "signedby"
	KeyCompression = "compression"
	KeyArch        = "arch"
	KeyPassphrase  = "passphrase"
)

// EnvPrefix prefixes every setting's environment variable
const EnvPrefix = "REPOSIGN"

// Config represents the reposign configuration.
// Use mapstructure tags for Viper unmarshaling.
type Config struct {
	PrivateKey  string `mapstructure:"privkey"`
	SignedBy    string `mapstructure:"signedby"`
	Compression string `mapstructure:"compression"`
	Arch        string `mapstructure:"arch"`
	Passphrase  string `mapstructure:"passphrase"`
}

// Dir returns the reposign config directory.
// Uses XDG_CONFIG_HOME/reposign, defaulting to ~/.config/reposign.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "reposign"), nil
}

// New returns a viper instance with defaults and environment bindings set
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyCompression, "zstd")
	v.SetDefault(KeyPrivateKey, "")
	v.SetDefault(KeySignedBy, "")
	v.SetDefault(KeyArch, "")
	v.SetDefault(KeyPassphrase, "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// Conventional variables, after the prefixed ones
	_ = v.BindEnv(KeyPassphrase, EnvPrefix+"_PASSPHRASE", "XBPS_PASSPHRASE")
	_ = v.BindEnv(KeyArch, EnvPrefix+"_ARCH", "XBPS_TARGET_ARCH")

	return v
}

// Load reads configFile (or config.yaml in Dir when empty) into v and
// unmarshals the result. A missing default config file is not an error.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := Dir(); err == nil {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
