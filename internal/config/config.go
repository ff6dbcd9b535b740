package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config carries deployment settings plus the session-policy constants
// (grant validity, room cap, warning thresholds). These are policy,
// not mechanism, so they live here rather than in the code paths that
// apply them.
type Config struct {
	Mode        string        `mapstructure:"mode"`
	Port        int           `mapstructure:"port"`
	Secret      string        `mapstructure:"secret"`
	DatabaseURL string        `mapstructure:"database_url"`
	PublicBase  string        `mapstructure:"public_base_url"`
	ICEServers  []string      `mapstructure:"ice_servers"`
	RoomCap     int           `mapstructure:"room_cap"`
	GrantTTL    time.Duration `mapstructure:"grant_ttl"`
	SweepEvery  time.Duration `mapstructure:"sweep_interval"`
	WarnEarly   time.Duration `mapstructure:"warn_early"`
	WarnFinal   time.Duration `mapstructure:"warn_final"`
	ReadLimit   int64         `mapstructure:"read_limit"`
	PingPeriod  time.Duration `mapstructure:"ping_period"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("public_base_url", "http://localhost:8080")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("room_cap", 10)
	v.SetDefault("grant_ttl", "24h")
	v.SetDefault("sweep_interval", "1m")
	v.SetDefault("warn_early", "5m")
	v.SetDefault("warn_final", "1m")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
