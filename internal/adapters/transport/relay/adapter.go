// Package relay implements the platform connection over a websocket relay
// that speaks JSON frames.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/bnema/deadlock-gc/internal/domain"
	"github.com/bnema/deadlock-gc/internal/ports"
)

const (
	defaultPingInterval     = 30 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	writeDeadline           = 10 * time.Second
)

var (
	ErrNotConnected     = errors.New("relay not connected")
	ErrAlreadyConnected = errors.New("relay already connected")
)

type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	// PingInterval also sets the read deadline, at twice its value.
	PingInterval time.Duration
	Logger       zerolog.Logger
}

type Adapter struct {
	url          string
	dialer       *websocket.Dialer
	pingInterval time.Duration
	log          zerolog.Logger

	appID atomic.Uint32

	mu      sync.Mutex
	handler ports.ConnectionHandler
	link    *link
}

// link is one dialled websocket. Closing it silences its callbacks.
type link struct {
	session string
	conn    *websocket.Conn
	handler ports.ConnectionHandler
	closed  atomic.Bool
	done    chan struct{}

	writeMu sync.Mutex
}

var _ ports.Connection = (*Adapter)(nil)

func New(cfg Config) *Adapter {
	handshake := cfg.HandshakeTimeout
	if handshake <= 0 {
		handshake = defaultHandshakeTimeout
	}
	ping := cfg.PingInterval
	if ping <= 0 {
		ping = defaultPingInterval
	}

	return &Adapter{
		url:          cfg.URL,
		dialer:       &websocket.Dialer{HandshakeTimeout: handshake, Proxy: http.ProxyFromEnvironment},
		pingInterval: ping,
		log:          cfg.Logger,
	}
}

func (a *Adapter) SetHandler(h ports.ConnectionHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = h
}

// A link is never installed once ctx is done, so cancelling ctx and then
// calling Disconnect leaves nothing behind.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	if a.link != nil {
		a.mu.Unlock()
		return ErrAlreadyConnected
	}
	handler := a.handler
	a.mu.Unlock()

	if a.url == "" {
		return errors.New("relay url is required")
	}

	session := uuid.NewString()
	header := http.Header{}
	header.Set(sessionHeaderKey, session)

	conn, resp, err := a.dialer.DialContext(ctx, a.url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial relay %s: status %d: %w", a.url, resp.StatusCode, err)
		}
		return fmt.Errorf("dial relay %s: %w", a.url, err)
	}

	l := &link{
		session: session,
		conn:    conn,
		handler: handler,
		done:    make(chan struct{}),
	}

	a.mu.Lock()
	if err := ctx.Err(); err != nil {
		a.mu.Unlock()
		_ = conn.Close()
		return fmt.Errorf("dial relay %s: %w", a.url, err)
	}
	if a.link != nil {
		a.mu.Unlock()
		_ = conn.Close()
		return ErrAlreadyConnected
	}
	a.link = l
	a.mu.Unlock()

	a.log.Debug().Str("relay_session", session).Str("url", a.url).Msg("relay connected")

	go a.readPump(l)
	go a.pingPump(l)
	return nil
}

// Disconnect closes the current link, if any. No callbacks are delivered for
// a link after it has been closed here.
func (a *Adapter) Disconnect() error {
	a.mu.Lock()
	l := a.link
	a.link = nil
	a.mu.Unlock()

	if l == nil {
		return nil
	}
	return l.close()
}

func (a *Adapter) Logon(_ context.Context, details domain.LogonDetails) error {
	return a.write(frame{
		Kind:        kindLogon,
		AccountName: details.AccountName,
		AccessToken: details.AccessToken,
	})
}

func (a *Adapter) AnnouncePlaying(_ context.Context, appID uint32) error {
	a.appID.Store(appID)
	return a.write(frame{Kind: kindGamesPlayed, AppID: appID})
}

func (a *Adapter) Send(_ context.Context, appID uint32, msgType domain.MessageType, jobID domain.JobID, payload []byte) error {
	return a.write(frame{
		Kind:        kindCoordinator,
		AppID:       appID,
		MsgType:     uint32(msgType),
		JobIDSource: jobRef(jobID),
		JobIDTarget: jobRef(domain.NoJob),
		Payload:     payload,
	})
}

func (a *Adapter) current() *link {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.link
}

func (a *Adapter) write(f frame) error {
	l := a.current()
	if l == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", f.Kind, err)
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	_ = l.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := l.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s frame: %w", f.Kind, err)
	}
	return nil
}

func (a *Adapter) readPump(l *link) {
	defer close(l.done)

	if l.handler != nil && !l.closed.Load() {
		l.handler.OnConnected()
	}

	readDeadline := 2 * a.pingInterval
	_ = l.conn.SetReadDeadline(time.Now().Add(readDeadline))
	l.conn.SetPongHandler(func(string) error {
		return l.conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			a.lost(l, err)
			return
		}
		_ = l.conn.SetReadDeadline(time.Now().Add(readDeadline))

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			a.log.Warn().Err(err).Str("relay_session", l.session).Msg("malformed relay frame")
			continue
		}
		a.route(l, f)
	}
}

func (a *Adapter) route(l *link, f frame) {
	if l.handler == nil || l.closed.Load() {
		return
	}

	switch f.Kind {
	case kindLogonResult:
		l.handler.OnLoggedOn(domain.LogonResult(f.Result))
	case kindCoordinator:
		if appID := a.appID.Load(); appID != 0 && f.AppID != 0 && f.AppID != appID {
			a.log.Debug().Uint32("app_id", f.AppID).Msg("ignoring coordinator frame for another app")
			return
		}
		l.handler.OnInboundMessage(f.inbound())
	default:
		a.log.Debug().Str("kind", f.Kind).Str("relay_session", l.session).Msg("ignoring relay frame")
	}
}

// lost reports a read failure unless the link was closed on purpose.
func (a *Adapter) lost(l *link, err error) {
	a.mu.Lock()
	if a.link == l {
		a.link = nil
	}
	a.mu.Unlock()

	if l.closed.Swap(true) {
		return
	}
	_ = l.conn.Close()

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		a.log.Info().Str("relay_session", l.session).Msg("relay closed the connection")
	} else {
		a.log.Warn().Err(err).Str("relay_session", l.session).Msg("relay read failed")
	}
	if l.handler != nil {
		l.handler.OnDisconnected(fmt.Errorf("%w: %w", domain.ErrTransportLost, err))
	}
}

func (a *Adapter) pingPump(l *link) {
	ticker := time.NewTicker(a.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.writeMu.Lock()
			err := l.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline))
			l.writeMu.Unlock()
			if err != nil {
				a.log.Debug().Err(err).Str("relay_session", l.session).Msg("relay ping failed")
				return
			}
		}
	}
}

func (l *link) close() error {
	if l.closed.Swap(true) {
		return nil
	}

	l.writeMu.Lock()
	_ = l.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	l.writeMu.Unlock()

	return l.conn.Close()
}
