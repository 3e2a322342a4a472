package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Telemetry holds the OTLP exporter knobs.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Metrics  bool   `toml:"Metrics"`
	Traces   bool   `toml:"Traces"`
}

type Config struct {
	RPCAddress     string    `toml:"RPCAddress"`
	GatewayAddress string    `toml:"GatewayAddress"`
	DataDir        string    `toml:"DataDir"`
	StorageBackend string    `toml:"StorageBackend"`
	NetworkName    string    `toml:"NetworkName"`
	Env            string    `toml:"Env"`
	LogFile        string    `toml:"LogFile"`
	Paused         []string  `toml:"Paused"`
	Telemetry      Telemetry `toml:"Telemetry"`
}

var validBackends = map[string]struct{}{
	"leveldb": {},
	"bolt":    {},
	"memory":  {},
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = ":8080"
	}
	if strings.TrimSpace(c.GatewayAddress) == "" {
		c.GatewayAddress = ":8081"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./market-data"
	}
	c.StorageBackend = strings.ToLower(strings.TrimSpace(c.StorageBackend))
	if c.StorageBackend == "" {
		c.StorageBackend = "leveldb"
	}
	if _, ok := validBackends[c.StorageBackend]; !ok {
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = "market-local"
	}
	if c.Paused == nil {
		c.Paused = []string{}
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:     ":8080",
		GatewayAddress: ":8081",
		DataDir:        "./market-data",
		StorageBackend: "leveldb",
		NetworkName:    "market-local",
		Paused:         []string{},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
