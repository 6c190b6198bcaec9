package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode           string         `mapstructure:"mode"`
	Port           int            `mapstructure:"port"`
	StaticPath     string         `mapstructure:"static_path"`
	ReadLimit      int64          `mapstructure:"read_limit"`
	PingPeriod     time.Duration  `mapstructure:"ping_period"`
	Secret         string         `mapstructure:"secret"`
	SendBuffer     int            `mapstructure:"send_buffer"`
	DefaultChannel string         `mapstructure:"default_channel"`
	RateLimit      RateLimit      `mapstructure:"rate_limit"`
	Presence       PresenceConfig `mapstructure:"presence"`
}

type RateLimit struct {
	// MessagesPerSecond and Burst bound inbound envelopes per connection.
	MessagesPerSecond float64 `mapstructure:"messages_per_second"`
	Burst             int     `mapstructure:"burst"`
	// JoinsPerMinute bounds channel switches per identity.
	JoinsPerMinute int `mapstructure:"joins_per_minute"`
}

type PresenceConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

var ErrInvalidConfig = errors.New("invalid config")

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("VOICELINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func readFile(v *viper.Viper, base string) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/%s.%s.yaml", base, env)
	v.SetConfigFile(fileName)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}
}

// Load reads the relay server configuration.
func Load() (*Config, error) {
	v := newViper()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 1<<20)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "voicelink-dev-secret")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("default_channel", "general")
	v.SetDefault("rate_limit.messages_per_second", 100)
	v.SetDefault("rate_limit.burst", 200)
	v.SetDefault("rate_limit.joins_per_minute", 10)
	v.SetDefault("presence.redis.enabled", false)
	v.SetDefault("presence.redis.addr", "localhost:6379")
	v.SetDefault("presence.redis.ttl", "2m")

	readFile(v, "config")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Bool("redis", cfg.Presence.Redis.Enabled).Msg("server config")
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalidConfig, c.Port)
	}
	if c.PingPeriod <= 0 {
		return fmt.Errorf("%w: ping_period must be positive", ErrInvalidConfig)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("%w: send_buffer must be positive", ErrInvalidConfig)
	}
	if c.RateLimit.MessagesPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("%w: rate_limit must be positive", ErrInvalidConfig)
	}
	if c.DefaultChannel == "" {
		return fmt.Errorf("%w: default_channel empty", ErrInvalidConfig)
	}
	return nil
}
