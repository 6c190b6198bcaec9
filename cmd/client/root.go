package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dkeye/voicelink/internal/adapters/rtc"
	"github.com/dkeye/voicelink/internal/audio"
	"github.com/dkeye/voicelink/internal/client"
	"github.com/dkeye/voicelink/internal/config"
	"github.com/dkeye/voicelink/internal/domain"
	"github.com/dkeye/voicelink/internal/metrics"
	"github.com/dkeye/voicelink/internal/playback"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const mixTick = 20 * time.Millisecond

func newRootCommand() *cobra.Command {
	v := config.NewClientViper()
	var debug bool

	cmd := &cobra.Command{
		Use:   "voicelink",
		Short: "Join a voicelink channel from the terminal",
		Long: `voicelink connects to a relay, joins a channel and exchanges text and voice.

Lines typed on stdin are sent as text. Commands:
  /join <channel>   switch channel
  /leave            leave the current channel
  /mute, /unmute    stop or resume sending audio
  /quit             exit`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
			cfg, err := config.LoadClient(v)
			if err != nil {
				return err
			}
			return run(cmd, cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("server", "", "relay websocket URL")
	flags.String("identity", "", "identity to present (random when empty)")
	flags.String("channel", "", "channel to join")
	flags.String("strategy", "", "audio strategy: webrtc or relay")
	flags.String("capture", "", "raw PCM16 mono capture file, - for stdin")
	flags.String("output", "", "raw PCM16 mono output file, - for stdout")
	flags.String("metrics-addr", "", "serve prometheus metrics on this address")
	flags.BoolVar(&debug, "debug", false, "debug logging")

	for key, flag := range map[string]string{
		"server_url":         "server",
		"identity":           "identity",
		"channel":            "channel",
		"audio.strategy":     "strategy",
		"audio.capture_file": "capture",
		"audio.output_file":  "output",
		"metrics_addr":       "metrics-addr",
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}
	return cmd
}

func run(cmd *cobra.Command, cfg *config.ClientConfig) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	identity := domain.GenerateIdentity()
	if cfg.Identity != "" {
		id, err := domain.NewIdentity(cfg.Identity)
		if err != nil {
			return err
		}
		identity = id
	}
	channel, err := domain.NewChannelName(cfg.Channel)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewClientMetrics(reg)
	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr, reg)
	}

	out, textOut, closeOut, err := openOutput(cfg.Audio.OutputFile, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeOut()

	clock := playback.NewMonotonicClock()
	mixer := playback.NewMixer(out, clock, cfg.Audio.OutputRate)
	go mixer.Run(ctx, mixTick)
	player := playback.NewScheduler(clock, cfg.Audio.OutputRate, mixer.Sink)

	var capture audio.Capture
	if src, err := audio.OpenPCM(cfg.Audio.CaptureFile, cfg.Audio.CaptureRate); err != nil {
		log.Warn().Err(err).Str("module", "cmd.client").Msg("no capture, joining receive-only")
	} else {
		capture = src
	}

	c := client.New(client.WSDialer{URL: cfg.ServerURL, Identity: identity}, client.Options{
		Identity:       identity,
		Channel:        channel,
		ReconnectDelay: cfg.ReconnectDelay,
		Relay:          cfg.Audio.Strategy == config.StrategyRelay,
		WebRTC:         rtc.WebRTCConfig(cfg.ICEServers),
		Capture:        capture,
		Player:         player,
		Metrics:        m,
		OnText: func(from domain.Identity, content string, sentAt time.Time) {
			fmt.Fprintf(textOut, "[%s] %s: %s\n", sentAt.Format("15:04:05"), from, content)
		},
	})
	log.Info().Str("module", "cmd.client").Str("identity", string(identity)).Str("channel", string(channel)).Msg("starting")

	if cfg.Audio.CaptureFile != "-" {
		go func() {
			if err := readConsole(ctx, cmd.InOrStdin(), c); err != nil {
				log.Error().Err(err).Str("module", "cmd.client").Msg("console")
			}
			cancel()
		}()
	}
	return c.Run(ctx)
}

// openOutput picks where mixed audio goes. Text moves to stderr when audio
// takes stdout.
func openOutput(path string, stdout io.Writer) (audioOut, textOut io.Writer, closeFn func(), err error) {
	switch path {
	case "":
		return io.Discard, stdout, func() {}, nil
	case "-":
		return stdout, os.Stderr, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open output: %w", err)
	}
	return f, stdout, func() { _ = f.Close() }, nil
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	log.Info().Str("module", "cmd.client").Str("addr", addr).Msg("metrics listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Str("module", "cmd.client").Msg("metrics server")
	}
}
