package runwatch

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml"
)

type Config struct {
	Backend BackendConfig `toml:"backend"`
	Poll    PollConfig    `toml:"poll"`
	MQTT    MQTTConfig    `toml:"mqtt"`
}

type BackendConfig struct {
	URL             string `toml:"url"`
	TLSVerification bool   `toml:"tls_verification"`
}

type PollConfig struct {
	Interval        time.Duration `toml:"interval"`
	MaxAttempts     int           `toml:"max_attempts"`
	AllowForceReady bool          `toml:"allow_force_ready"`
}

type MQTTConfig struct {
	Address   string `toml:"address"`
	ClientID  string `toml:"client_id"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	BaseTopic string `toml:"base_topic"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	tree, err := toml.Load(string(data))
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	var cfg Config
	if err := tree.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}
