package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/dkeye/voicelink/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrOffline      = errors.New("signaling link offline")
)

// Link is one live signaling connection.
type Link interface {
	// Send queues data without blocking.
	Send(data []byte) error
	// Messages is closed when the link goes down.
	Messages() <-chan []byte
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context) (Link, error)
}

// WSDialer connects to the relay's websocket endpoint.
type WSDialer struct {
	URL        string
	Identity   domain.Identity
	PingPeriod time.Duration
	SendBuffer int
}

func (d WSDialer) Dial(ctx context.Context) (Link, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	q := u.Query()
	q.Set("identity", string(d.Identity))
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}
	buf := d.SendBuffer
	if buf <= 0 {
		buf = 64
	}
	ping := d.PingPeriod
	if ping <= 0 {
		ping = 30 * time.Second
	}
	l := &wsLink{
		conn: conn,
		send: make(chan []byte, buf),
		recv: make(chan []byte, buf),
		done: make(chan struct{}),
	}
	go l.writePump(ping)
	go l.readPump()
	log.Info().Str("module", "client.transport").Str("url", d.URL).Msg("signaling connected")
	return l, nil
}

type wsLink struct {
	conn *websocket.Conn
	send chan []byte
	recv chan []byte
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

func (l *wsLink) Send(data []byte) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrOffline
	}
	select {
	case l.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (l *wsLink) Messages() <-chan []byte { return l.recv }

func (l *wsLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	close(l.done)
	return l.conn.Close()
}

func (l *wsLink) writePump(pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = l.Close()
	}()
	for {
		select {
		case <-l.done:
			return
		case data := <-l.send:
			if err := l.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "client.transport").Msg("writePump set deadline")
				return
			}
			if err := l.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "client.transport").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := l.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				log.Warn().Err(err).Str("module", "client.transport").Msg("ping failed")
				return
			}
		}
	}
}

func (l *wsLink) readPump() {
	defer func() {
		close(l.recv)
		_ = l.Close()
	}()
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			select {
			case <-l.done:
			default:
				log.Warn().Err(err).Str("module", "client.transport").Msg("readPump read error")
			}
			return
		}
		select {
		case l.recv <- data:
		case <-l.done:
			return
		}
	}
}
