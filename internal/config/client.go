package config

import (
	"fmt"
	"time"

	"github.com/dkeye/voicelink/internal/audio"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	StrategyWebRTC = "webrtc"
	StrategyRelay  = "relay"
)

type ClientConfig struct {
	ServerURL      string        `mapstructure:"server_url"`
	Identity       string        `mapstructure:"identity"`
	Channel        string        `mapstructure:"channel"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	ICEServers     []string      `mapstructure:"ice_servers"`
	MetricsAddr    string        `mapstructure:"metrics_addr"`
	Audio          AudioConfig   `mapstructure:"audio"`
}

type AudioConfig struct {
	// Strategy is "webrtc" (peer-to-peer media) or "relay" (frames through the server).
	Strategy    string `mapstructure:"strategy"`
	CaptureFile string `mapstructure:"capture_file"`
	CaptureRate int    `mapstructure:"capture_rate"`
	OutputFile  string `mapstructure:"output_file"`
	OutputRate  int    `mapstructure:"output_rate"`
}

// NewClientViper returns a viper instance with client defaults so that
// command-line flags can be bound before LoadClient.
func NewClientViper() *viper.Viper {
	v := newViper()
	v.SetDefault("server_url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("channel", "general")
	v.SetDefault("reconnect_delay", "3s")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("audio.strategy", StrategyWebRTC)
	v.SetDefault("audio.capture_rate", 48000)
	v.SetDefault("audio.output_rate", 48000)
	return v
}

func LoadClient(v *viper.Viper) (*ClientConfig, error) {
	readFile(v, "client")

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse client config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("server", cfg.ServerURL).Str("strategy", cfg.Audio.Strategy).Msg("client config")
	return &cfg, nil
}

func (c *ClientConfig) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("%w: server_url empty", ErrInvalidConfig)
	}
	switch c.Audio.Strategy {
	case StrategyWebRTC, StrategyRelay:
	default:
		return fmt.Errorf("%w: unknown audio strategy %q", ErrInvalidConfig, c.Audio.Strategy)
	}
	if !audio.ValidRate(c.Audio.CaptureRate) || !audio.ValidRate(c.Audio.OutputRate) {
		return fmt.Errorf("%w: sample rates must lie in [%d, %d]", ErrInvalidConfig, audio.MinRate, audio.MaxRate)
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("%w: reconnect_delay must be positive", ErrInvalidConfig)
	}
	return nil
}
