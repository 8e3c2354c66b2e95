package server

import (
	"os"

	"gopkg.in/yaml.v2"
)

// Config holds an IRCd's static configuration, loaded from YAML. Adapted
// from senpai's (deleted) config.go loader and grounded on irc2.ircd's
// default_config dict.
type Config struct {
	Addr      string `yaml:"addr"`
	Name      string `yaml:"name"`
	ChanTypes string `yaml:"chantypes"`
	MOTD      string `yaml:"motd"`

	// CommandsPerInterval and IntervalSeconds bound the server-side per-connection
	// flood limiter (domain-stack addition beyond the original irc2.ircd,
	// which has none).
	CommandsPerInterval int `yaml:"commands-per-interval"`
	IntervalSeconds      int `yaml:"interval-seconds"`
}

// DefaultConfig mirrors irc2.ircd.handler.default_config.
func DefaultConfig() Config {
	return Config{
		Addr:                 "127.0.0.1:6667",
		Name:                 "test.irc",
		ChanTypes:            "#&",
		MOTD:                 "Welcome to the testnet, please don't break anything",
		CommandsPerInterval:  10,
		IntervalSeconds:      5,
	}
}

// LoadConfig reads a YAML config file at path, merging it over
// DefaultConfig the same way irc2.ircd.handler.IRCHandler.__init__ merges
// a dict over default_config.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
