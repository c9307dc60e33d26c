package main

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

//ServerConfig defines config options for running the server
type ServerConfig struct {
	Scheme     string
	Hostname   string
	Listen     string
	PublicKey  string `toml:"public_key"`
	PrivateKey string `toml:"private_key"`
}

//Duration wraps time.Duration so it can be written as "30s" in TOML
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

//FederationConfig defines how we talk to other instances
type FederationConfig struct {
	MaxResolveDepth  int      `toml:"max_resolve_depth"`
	HTTPTimeout      Duration `toml:"http_timeout"`
	AllowedInstances []string `toml:"allowed_instances"`
	BlockedInstances []string `toml:"blocked_instances"`
}

//DeliveryConfig defines outbound delivery behaviour
type DeliveryConfig struct {
	MaxAttempts int      `toml:"max_attempts"`
	Backoff     Duration `toml:"backoff"`
	MaxInflight int      `toml:"max_inflight"`
}

//DatabaseConfig points at a postgres instance; empty URL means the
//in-memory store
type DatabaseConfig struct {
	URL string
}

//Config is the config object
type Config struct {
	Server     ServerConfig
	Federation FederationConfig
	Delivery   DeliveryConfig
	Database   DatabaseConfig
}

// LoadConfig loads a config at configPath
func LoadConfig(configPath string) (*Config, error) {
	conf := defaultConfig()
	md, err := toml.DecodeFile(configPath, &conf)
	if err != nil {
		return nil, err
	}

	undecoded := md.Undecoded()
	if len(undecoded) != 0 {
		return nil, fmt.Errorf("these config fields are unused: %q", undecoded)
	}

	err = ValidateConfig(conf)
	if err != nil {
		return nil, err
	}

	return &conf, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Listen: ":8080",
		},
		Federation: FederationConfig{
			MaxResolveDepth: 25,
			HTTPTimeout:     Duration{30 * time.Second},
		},
		Delivery: DeliveryConfig{
			MaxAttempts: 5,
			Backoff:     Duration{2 * time.Second},
			MaxInflight: 16,
		},
	}
}

// ValidateConfig validates a Config
func ValidateConfig(conf Config) error {
	if conf.Server.Hostname == "" {
		return fmt.Errorf("no hostname given")
	}

	if conf.Server.PublicKey == "" {
		return fmt.Errorf("no public key path given")
	}

	if conf.Server.PrivateKey == "" {
		return fmt.Errorf("no private key path given")
	}

	if conf.Server.Scheme == "" {
		return fmt.Errorf("no scheme given")
	}

	if conf.Federation.MaxResolveDepth <= 0 {
		return fmt.Errorf("max_resolve_depth must be positive")
	}

	if len(conf.Federation.AllowedInstances) != 0 && len(conf.Federation.BlockedInstances) != 0 {
		return fmt.Errorf("allowed_instances and blocked_instances are mutually exclusive")
	}

	if conf.Delivery.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be positive")
	}

	if conf.Delivery.MaxInflight <= 0 {
		return fmt.Errorf("max_inflight must be positive")
	}

	return nil
}
