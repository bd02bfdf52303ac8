package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the central server configuration. The lobby and room
// binaries take no config file: they are spawned with an argv contract.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Ports   PortsConfig   `yaml:"ports"`
	Storage StorageConfig `yaml:"storage"`
	Admin   AdminConfig   `yaml:"admin"`
	Logging LoggingConfig `yaml:"logging"`
	Process ProcessConfig `yaml:"process"`
}

// ServerConfig contains the control-channel listener settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// PortsConfig contains the base ports handed to the per-tier allocators
type PortsConfig struct {
	LobbyBase int `yaml:"lobby_base"`
	RoomBase  int `yaml:"room_base"`
}

// StorageConfig contains the on-disk layout settings
type StorageConfig struct {
	BaseDir string `yaml:"base_dir"`
}

// AdminConfig contains the admin HTTP API settings
type AdminConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level"`
	ShowCaller bool   `yaml:"show_caller"`
	BufferSize int    `yaml:"buffer_size"`
}

// ProcessConfig contains child-process supervision settings
type ProcessConfig struct {
	LobbyBinary string        `yaml:"lobby_binary"`
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

// Default returns the configuration used when no config file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 12345,
		},
		Ports: PortsConfig{
			LobbyBase: 11000,
			RoomBase:  12000,
		},
		Storage: StorageConfig{
			BaseDir: filepath.Join(".", "db"),
		},
		Admin: AdminConfig{
			Enabled: true,
			Port:    5080,
		},
		Logging: LoggingConfig{
			Level:      "info",
			BufferSize: 1000,
		},
		Process: ProcessConfig{
			LobbyBinary: "gamehub-lobby",
			StopTimeout: 5 * time.Second,
		},
	}
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvironmentOverrides()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvironmentOverrides applies environment-specific settings
func (c *Config) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		fmt.Sscanf(port, "%d", &c.Server.Port)
	}

	if host := os.Getenv("HOST"); host != "" {
		c.Server.Host = host
	}

	if dir := os.Getenv("STORAGE_DIR"); dir != "" {
		c.Storage.BaseDir = dir
	}
}

// validate checks if the configuration is valid
func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", c.Server.Port)
	}

	if c.Ports.LobbyBase < 1 || c.Ports.RoomBase < 1 {
		return fmt.Errorf("base ports must be positive: lobby=%d room=%d",
			c.Ports.LobbyBase, c.Ports.RoomBase)
	}

	if c.Logging.BufferSize < 1 {
		return fmt.Errorf("log buffer size must be at least 1")
	}

	return nil
}

// GetAddr returns the server address in host:port format
func (c *Config) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
