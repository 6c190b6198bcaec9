package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/voicelink/internal/app/orch"
	"github.com/dkeye/voicelink/internal/config"
	"github.com/dkeye/voicelink/internal/core"
	"github.com/dkeye/voicelink/internal/domain"
	"github.com/dkeye/voicelink/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

var ErrBackpressure = errors.New("backpressure")

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Joins   *JoinRateLimiter
	Metrics *metrics.ServerMetrics

	defaultChannel domain.ChannelName
	sendBuffer     int
	readLimit      int64
	pingPeriod     time.Duration
	msgRate        rate.Limit
	msgBurst       int
}

func NewSignalWSController(o *orch.Orchestrator, cfg *config.Config, m *metrics.ServerMetrics) *SignalWSController {
	return &SignalWSController{
		Orch:           o,
		Joins:          NewJoinRateLimiter(cfg.RateLimit.JoinsPerMinute, time.Minute),
		Metrics:        m,
		defaultChannel: domain.ChannelName(cfg.DefaultChannel),
		sendBuffer:     cfg.SendBuffer,
		readLimit:      cfg.ReadLimit,
		pingPeriod:     cfg.PingPeriod,
		msgRate:        rate.Limit(cfg.RateLimit.MessagesPerSecond),
		msgBurst:       cfg.RateLimit.Burst,
	}
}

type WsSignalConn struct {
	conn    *websocket.Conn
	send    chan core.Frame
	limiter *rate.Limiter

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context, id domain.Identity) {
	log.Info().Str("module", "signal").Str("peer", string(id)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn:    ws,
		send:    make(chan core.Frame, ctl.sendBuffer),
		limiter: rate.NewLimiter(ctl.msgRate, ctl.msgBurst),
	}
	sess := core.NewMemberSession(domain.NewMember(id), conn)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Connect(sess, cancel)
	ctl.Metrics.ConnectionOpened()

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, sess, conn)
}
