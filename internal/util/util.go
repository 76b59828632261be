// internal/util/util.go
package util

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/erilali/bombnet/internal/conn"
	"github.com/erilali/bombnet/internal/logger"
	"github.com/spf13/viper"
)

const envPrefix = "BOMBNET"

// Config holds the server settings.
type Config struct {
	Port              int              `mapstructure:"port"`
	HTTPAddr          string           `mapstructure:"http_addr"`
	NatsURL           string           `mapstructure:"nats_url"`
	HeartbeatInterval time.Duration    `mapstructure:"heartbeat_interval"` // 0 disables heartbeats
	AllowedOrigins    []string         `mapstructure:"allowed_origins"`    // extra websocket origins, "*" for any
	MinPlayers        int              `mapstructure:"min_players"`
	RoundSeconds      int              `mapstructure:"round_seconds"`
	Log               logger.LogConfig `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", conn.DefaultPort)
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("nats_url", "")
	v.SetDefault("heartbeat_interval", 5*time.Second)
	v.SetDefault("allowed_origins", []string{})
	v.SetDefault("min_players", 2)
	v.SetDefault("round_seconds", 120)

	l := logger.DefaultLogConfig()
	v.SetDefault("log.level", l.Level)
	v.SetDefault("log.log_to_file", l.LogToFile)
	v.SetDefault("log.log_to_json", l.LogToJSON)
	v.SetDefault("log.file_path", l.FilePath)
	v.SetDefault("log.max_size", l.MaxSize)
	v.SetDefault("log.max_backups", l.MaxBackups)
	v.SetDefault("log.max_age", l.MaxAge)
	v.SetDefault("log.compress", l.Compress)
}

// LoadConfig reads defaults, then the file at path (JSON or YAML, optional),
// then BOMBNET_* environment variables. NATS_URL is honoured as well.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("nats_url", envPrefix+"_NATS_URL", "NATS_URL"); err != nil {
		return nil, fmt.Errorf("failed to bind NATS_URL: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func validateConfig(config *Config) error {
	if config.Port <= 0 || config.Port > 65535 {
		return fmt.Errorf("port %d out of range", config.Port)
	}
	if config.HeartbeatInterval < 0 {
		return fmt.Errorf("heartbeat_interval must not be negative")
	}
	if config.MinPlayers < 1 {
		return fmt.Errorf("min_players must be at least 1")
	}
	if config.RoundSeconds < 1 {
		return fmt.Errorf("round_seconds must be at least 1")
	}
	return nil
}
