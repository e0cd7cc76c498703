package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/bnema/deadlock-gc/internal/domain"
	"github.com/bnema/deadlock-gc/internal/ports"
	"github.com/bnema/deadlock-gc/internal/protocol"
)

const (
	DefaultReconnectInterval    = 10 * time.Second
	DefaultCoordinatorGrace     = 10 * time.Second
	DefaultAuthFailureThreshold = 3

	inboxSize = 256
)

var ErrClientRunning = errors.New("client loop already running")

type Config struct {
	AppID       uint32
	Credentials domain.Credentials

	ReconnectInterval time.Duration
	// CoordinatorGrace is the pause between announcing the game and the first hello.
	CoordinatorGrace time.Duration
	// HelloInterval resends the hello until the welcome arrives. Zero sends it once.
	HelloInterval time.Duration
	// RequestTimeout bounds requests whose context has no deadline. Zero waits indefinitely.
	RequestTimeout       time.Duration
	AuthFailureThreshold int

	Logger zerolog.Logger
	Clock  ports.Clock
	Hooks  Hooks
}

// Hooks are invoked on the event loop and must not block.
type Hooks struct {
	OnStateChange func(from, to domain.SessionState)
	OnError       func(err error)
}

func (c Config) withDefaults() Config {
	if c.AppID == 0 {
		c.AppID = protocol.AppID
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = DefaultReconnectInterval
	}
	if c.CoordinatorGrace < 0 {
		c.CoordinatorGrace = 0
	}
	if c.AuthFailureThreshold <= 0 {
		c.AuthFailureThreshold = DefaultAuthFailureThreshold
	}
	if c.Clock == nil {
		c.Clock = ports.SystemClock{}
	}
	return c
}

type SessionStatus struct {
	State           domain.SessionState
	Since           time.Time
	PendingRequests int
}

// Client drives one coordinator session. All session state is mutated by a
// single event loop started with Run; connection callbacks, auth completion
// and timers are posted to it.
type Client struct {
	cfg    Config
	conn   ports.Connection
	auth   ports.AuthExchange
	tokens ports.TokenStore
	log    zerolog.Logger

	jobs       *JobTable
	dispatcher *Dispatcher

	inbox   chan loopEvent
	stopped chan struct{}
	running atomic.Bool

	state   atomic.Int32
	readyMu sync.Mutex
	readyCh chan struct{}
	since   time.Time

	// Owned by the event loop.
	loopCtx    context.Context
	attempt    uint64
	wantOnline bool
	super      *supervisor
	dialCancel context.CancelFunc
	authCancel context.CancelFunc
	graceTimer *time.Timer
	helloTimer *time.Timer
}

func NewClient(conn ports.Connection, auth ports.AuthExchange, tokens ports.TokenStore, cfg Config) *Client {
	cfg = cfg.withDefaults()
	jobs := NewJobTable()

	c := &Client{
		cfg:        cfg,
		conn:       conn,
		auth:       auth,
		tokens:     tokens,
		log:        cfg.Logger,
		jobs:       jobs,
		dispatcher: NewDispatcher(jobs, cfg.Logger),
		inbox:      make(chan loopEvent, inboxSize),
		stopped:    make(chan struct{}),
		readyCh:    make(chan struct{}),
		since:      cfg.Clock.Now(),
		loopCtx:    context.Background(),
	}
	c.super = newSupervisor(cfg.ReconnectInterval, cfg.AuthFailureThreshold, cfg.Logger, c.post)

	return c
}

func (c *Client) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrClientRunning
	}
	defer close(c.stopped)

	c.loopCtx = ctx
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case ev := <-c.inbox:
			c.handle(ev)
		}
	}
}

func (c *Client) Connect() {
	c.post(connectRequested{})
}

// Disconnect closes the session and cancels any scheduled reconnect.
func (c *Client) Disconnect() {
	c.post(disconnectRequested{})
}

func (c *Client) State() domain.SessionState {
	return domain.SessionState(c.state.Load())
}

func (c *Client) IsReady() bool {
	return c.State() == domain.StateReady
}

func (c *Client) Status() SessionStatus {
	c.readyMu.Lock()
	since := c.since
	c.readyMu.Unlock()

	return SessionStatus{
		State:           c.State(),
		Since:           since,
		PendingRequests: c.jobs.Len(),
	}
}

func (c *Client) WaitReady(ctx context.Context) error {
	c.readyMu.Lock()
	ready := c.readyCh
	c.readyMu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) Subscribe(msgType domain.MessageType, handler EventHandler) Subscription {
	return c.dispatcher.Subscribe(msgType, handler)
}

func (c *Client) Unsubscribe(sub Subscription) bool {
	return c.dispatcher.Unsubscribe(sub)
}

func (c *Client) post(ev loopEvent) {
	select {
	case c.inbox <- ev:
	case <-c.stopped:
	}
}

func (c *Client) handle(ev loopEvent) {
	switch e := ev.(type) {
	case connectRequested:
		c.wantOnline = true
		if c.State() != domain.StateDisconnected {
			return
		}
		c.super.cancel()
		c.startAttempt()

	case disconnectRequested:
		c.wantOnline = false
		c.super.cancel()
		if c.State() != domain.StateDisconnected {
			c.teardown(domain.ErrRequestCancelled, true)
		}

	case reconnectDue:
		if !c.super.fire(e.generation) {
			return
		}
		if c.wantOnline && c.State() == domain.StateDisconnected {
			c.startAttempt()
		}

	case dialFailed:
		if c.stale(e.attempt) {
			return
		}
		c.log.Warn().Err(e.err).Uint64("attempt", e.attempt).Msg("connect failed")
		// Also drops a link left behind by an earlier attempt.
		c.teardown(fmt.Errorf("%w: %w", domain.ErrTransportLost, e.err), true)

	case transportUp:
		if c.stale(e.attempt) || c.State() != domain.StateConnecting {
			return
		}
		c.setState(domain.StateAuthPending)
		authCtx, cancel := context.WithCancel(c.loopCtx)
		c.authCancel = cancel
		go c.authenticate(authCtx, e.attempt)

	case authCompleted:
		if c.stale(e.attempt) || c.State() != domain.StateAuthPending {
			return
		}
		c.onAuthCompleted(e)

	case logonCompleted:
		if c.stale(e.attempt) || c.State() != domain.StateAuthPending {
			return
		}
		c.onLogon(e)

	case graceElapsed:
		if c.stale(e.attempt) || c.State() != domain.StateLoggedOn {
			return
		}
		c.setState(domain.StateAwaitingCoordinator)
		c.sendHello(e.attempt)

	case helloDue:
		if c.stale(e.attempt) || c.State() != domain.StateAwaitingCoordinator {
			return
		}
		c.sendHello(e.attempt)

	case messageArrived:
		if c.stale(e.attempt) {
			c.log.Debug().Stringer("msg_type", e.msg.Type).Msg("dropping message from previous connection")
			return
		}
		if e.msg.Type == protocol.MsgClientWelcome && !e.msg.JobID.Valid() {
			c.onWelcome()
		}
		c.dispatcher.Dispatch(e.msg)

	case transportDown:
		if c.stale(e.attempt) || c.State() == domain.StateDisconnected {
			return
		}
		cause := domain.ErrTransportLost
		if e.err != nil {
			cause = fmt.Errorf("%w: %w", domain.ErrTransportLost, e.err)
		}
		c.log.Warn().Err(e.err).Stringer("state", c.State()).Msg("connection lost")
		c.teardown(cause, false)
	}
}

func (c *Client) stale(attempt uint64) bool {
	return attempt != c.attempt
}

func (c *Client) startAttempt() {
	c.attempt++
	attempt := c.attempt
	ctx, cancel := context.WithCancel(c.loopCtx)
	c.dialCancel = cancel

	c.setState(domain.StateConnecting)
	c.conn.SetHandler(attemptHandler{client: c, attempt: attempt})

	go func() {
		if err := c.conn.Connect(ctx); err != nil {
			c.post(dialFailed{attempt: attempt, err: err})
		}
	}()
}

// authenticate runs off the loop: the exchange may wait on user confirmation.
// A new resumable token is persisted before completion is reported, so it is
// saved before logon is submitted.
func (c *Client) authenticate(ctx context.Context, attempt uint64) {
	resumable, err := c.tokens.Load(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrTokenNotFound) {
			c.log.Warn().Err(err).Msg("load resumable token")
		}
		resumable = nil
	}

	result, err := c.auth.BeginSession(ctx, c.cfg.Credentials, resumable)
	if err == nil && len(result.ResumableToken) > 0 {
		if saveErr := c.tokens.Save(ctx, result.ResumableToken); saveErr != nil {
			c.log.Warn().Err(saveErr).Msg("save resumable token")
		}
	}

	c.post(authCompleted{attempt: attempt, result: result, err: err})
}

func (c *Client) onAuthCompleted(e authCompleted) {
	if c.authCancel != nil {
		c.authCancel()
		c.authCancel = nil
	}

	if e.err != nil {
		failure := fmt.Errorf("%w: %w", domain.ErrAuthenticationFailed, e.err)
		c.super.authFailed(failure)
		c.reportError(failure)
		c.teardown(failure, true)
		return
	}

	accountName := e.result.AccountName
	if accountName == "" {
		accountName = c.cfg.Credentials.Username
	}
	details := domain.LogonDetails{AccountName: accountName, AccessToken: e.result.SessionToken}
	if err := c.conn.Logon(c.loopCtx, details); err != nil {
		c.teardown(fmt.Errorf("submit logon: %w: %w", domain.ErrTransportLost, err), true)
	}
}

func (c *Client) onLogon(e logonCompleted) {
	if e.result != domain.ResultOK {
		failure := fmt.Errorf("%w: %s", domain.ErrLogonRejected, e.result)
		c.super.authFailed(failure)
		c.reportError(failure)
		c.teardown(failure, true)
		return
	}

	c.super.authSucceeded()
	c.setState(domain.StateLoggedOn)

	if err := c.conn.AnnouncePlaying(c.loopCtx, c.cfg.AppID); err != nil {
		c.teardown(fmt.Errorf("announce app %d: %w: %w", c.cfg.AppID, domain.ErrTransportLost, err), true)
		return
	}

	attempt := e.attempt
	c.graceTimer = time.AfterFunc(c.cfg.CoordinatorGrace, func() {
		c.post(graceElapsed{attempt: attempt})
	})
}

func (c *Client) sendHello(attempt uint64) {
	payload, err := protocol.ClientHello{}.Marshal()
	if err != nil {
		c.teardown(fmt.Errorf("encode message %s: %w", protocol.MsgClientHello, err), true)
		return
	}
	if err := c.conn.Send(c.loopCtx, c.cfg.AppID, protocol.MsgClientHello, domain.NoJob, payload); err != nil {
		c.teardown(fmt.Errorf("send hello: %w: %w", domain.ErrTransportLost, err), true)
		return
	}
	c.log.Debug().Uint64("attempt", attempt).Msg("hello sent")

	if c.cfg.HelloInterval > 0 {
		c.helloTimer = time.AfterFunc(c.cfg.HelloInterval, func() {
			c.post(helloDue{attempt: attempt})
		})
	}
}

func (c *Client) onWelcome() {
	switch state := c.State(); state {
	case domain.StateLoggedOn, domain.StateAwaitingCoordinator:
		c.stopTimers()
		c.setState(domain.StateReady)
	case domain.StateReady:
		c.log.Debug().Msg("repeated welcome")
	default:
		c.log.Debug().Stringer("state", state).Msg("ignoring early welcome")
	}
}

// teardown ends the current attempt. Pending requests fail with an error
// matching both ErrRequestCancelled and ErrTransportLost.
func (c *Client) teardown(cause error, closeTransport bool) {
	c.attempt++
	// The dial is cancelled before Disconnect so a link is either closed here
	// or never installed.
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
	if c.authCancel != nil {
		c.authCancel()
		c.authCancel = nil
	}
	c.stopTimers()

	if closeTransport {
		if err := c.conn.Disconnect(); err != nil {
			c.log.Debug().Err(err).Msg("close connection")
		}
	}

	c.setState(domain.StateDisconnected)

	if n := c.jobs.FailAll(fmt.Errorf("%w: %w", domain.ErrRequestCancelled, domain.ErrTransportLost)); n > 0 {
		c.log.Info().Int("pending", n).Err(cause).Msg("failed pending requests")
	}

	if c.wantOnline {
		c.super.schedule()
	}
}

func (c *Client) shutdown() {
	c.wantOnline = false
	c.super.cancel()
	if c.State() != domain.StateDisconnected {
		c.teardown(domain.ErrRequestCancelled, true)
	}
}

func (c *Client) stopTimers() {
	if c.graceTimer != nil {
		c.graceTimer.Stop()
		c.graceTimer = nil
	}
	if c.helloTimer != nil {
		c.helloTimer.Stop()
		c.helloTimer = nil
	}
}

func (c *Client) setState(next domain.SessionState) {
	c.readyMu.Lock()
	prev := domain.SessionState(c.state.Swap(int32(next)))
	if prev == next {
		c.readyMu.Unlock()
		return
	}
	switch {
	case next == domain.StateReady:
		close(c.readyCh)
	case prev == domain.StateReady:
		c.readyCh = make(chan struct{})
	}
	c.since = c.cfg.Clock.Now()
	c.readyMu.Unlock()

	c.log.Info().
		Stringer("from", prev).
		Stringer("state", next).
		Bool("connected", next.Connected()).
		Uint64("attempt", c.attempt).
		Msg("session state changed")
	if c.cfg.Hooks.OnStateChange != nil {
		c.cfg.Hooks.OnStateChange(prev, next)
	}
}

func (c *Client) reportError(err error) {
	if c.cfg.Hooks.OnError != nil {
		c.cfg.Hooks.OnError(err)
	}
}
