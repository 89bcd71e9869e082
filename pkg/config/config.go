// Package config loads and persists the connection settings generated
// by the offline randomizer alongside the game.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
)

// Config is the connection configuration. The randomizer writes it
// next to the game; the in-game UI edits the URL. Environment
// variables override the file for headless use.
type Config struct {
	// URL is the session server address, e.g. ws://host:38281.
	URL string `json:"url" env:"APLINK_URL"`

	// Slot is this player's slot name in the room.
	Slot string `json:"slot" env:"APLINK_SLOT"`

	// Password is the room password, if the room has one.
	Password string `json:"password" env:"APLINK_PASSWORD"`

	// Seed is the room seed the randomizer generated this
	// configuration for. Used to detect connecting to the wrong room.
	Seed string `json:"seed" env:"APLINK_SEED"`

	// ClientVersion is the randomizer version that generated this
	// configuration. It must match the running client.
	ClientVersion string `json:"client_version"`
}

// Load reads the config file at path, then applies environment
// overrides. A missing file yields an empty config; the caller decides
// whether empty fields are acceptable.
func Load(path string) (*Config, error) {
	config := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %v", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config %s: %v", path, err)
	}

	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("failed to parse config environment: %v", err)
	}

	return config, nil
}

// Save writes the config file to path.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize config: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config %s: %v", path, err)
	}
	return nil
}
