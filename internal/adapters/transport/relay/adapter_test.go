package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/deadlock-gc/internal/domain"
)

const eventually = 2 * time.Second

type relayServer struct {
	t        *testing.T
	server   *httptest.Server
	frames   chan frame
	sessions chan string

	mu   sync.Mutex
	conn *websocket.Conn
}

func newRelayServer(t *testing.T) *relayServer {
	t.Helper()

	rs := &relayServer{
		t:        t,
		frames:   make(chan frame, 64),
		sessions: make(chan string, 8),
	}
	upgrader := websocket.Upgrader{}
	rs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		rs.mu.Lock()
		rs.conn = conn
		rs.mu.Unlock()
		rs.sessions <- r.Header.Get(sessionHeaderKey)

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f frame
			if json.Unmarshal(data, &f) == nil {
				rs.frames <- f
			}
		}
	}))
	t.Cleanup(rs.server.Close)
	return rs
}

func (rs *relayServer) url() string {
	return "ws" + strings.TrimPrefix(rs.server.URL, "http")
}

func (rs *relayServer) push(f frame) {
	rs.t.Helper()

	rs.mu.Lock()
	defer rs.mu.Unlock()
	require.NotNil(rs.t, rs.conn)
	data, err := json.Marshal(f)
	require.NoError(rs.t, err)
	require.NoError(rs.t, rs.conn.WriteMessage(websocket.TextMessage, data))
}

func (rs *relayServer) closeClient() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.conn != nil {
		_ = rs.conn.Close()
	}
}

func (rs *relayServer) nextFrame() frame {
	rs.t.Helper()

	select {
	case f := <-rs.frames:
		return f
	case <-time.After(eventually):
		rs.t.Fatal("timed out waiting for frame")
		return frame{}
	}
}

type recordingHandler struct {
	connected    chan struct{}
	disconnected chan error
	logons       chan domain.LogonResult
	messages     chan domain.InboundMessage
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		connected:    make(chan struct{}, 4),
		disconnected: make(chan error, 4),
		logons:       make(chan domain.LogonResult, 4),
		messages:     make(chan domain.InboundMessage, 16),
	}
}

func (h *recordingHandler) OnConnected() { h.connected <- struct{}{} }

func (h *recordingHandler) OnDisconnected(err error) { h.disconnected <- err }

func (h *recordingHandler) OnLoggedOn(result domain.LogonResult) { h.logons <- result }

func (h *recordingHandler) OnInboundMessage(m domain.InboundMessage) { h.messages <- m }

// connectAdapter returns once both ends have seen the connection.
func connectAdapter(t *testing.T, rs *relayServer) (*Adapter, *recordingHandler, string) {
	t.Helper()

	adapter := New(Config{URL: rs.url(), Logger: zerolog.Nop()})
	handler := newRecordingHandler()
	adapter.SetHandler(handler)
	require.NoError(t, adapter.Connect(context.Background()))
	t.Cleanup(func() { _ = adapter.Disconnect() })

	select {
	case <-handler.connected:
	case <-time.After(eventually):
		t.Fatal("OnConnected not delivered")
	}

	var session string
	select {
	case session = <-rs.sessions:
	case <-time.After(eventually):
		t.Fatal("relay did not accept the connection")
	}
	return adapter, handler, session
}

func TestConnectSendsSessionHeader(t *testing.T) {
	t.Parallel()

	rs := newRelayServer(t)
	_, _, session := connectAdapter(t, rs)

	_, err := uuid.Parse(session)
	assert.NoError(t, err)
}

func TestLogonAndAnnounceFrames(t *testing.T) {
	t.Parallel()

	rs := newRelayServer(t)
	adapter, handler, _ := connectAdapter(t, rs)

	require.NoError(t, adapter.Logon(context.Background(), domain.LogonDetails{AccountName: "player", AccessToken: "tok"}))
	logon := rs.nextFrame()
	assert.Equal(t, kindLogon, logon.Kind)
	assert.Equal(t, "player", logon.AccountName)
	assert.Equal(t, "tok", logon.AccessToken)

	rs.push(frame{Kind: kindLogonResult, Result: int32(domain.ResultOK)})
	select {
	case result := <-handler.logons:
		assert.Equal(t, domain.ResultOK, result)
	case <-time.After(eventually):
		t.Fatal("logon result not delivered")
	}

	require.NoError(t, adapter.AnnouncePlaying(context.Background(), 1422450))
	played := rs.nextFrame()
	assert.Equal(t, kindGamesPlayed, played.Kind)
	assert.Equal(t, uint32(1422450), played.AppID)
}

func TestSendCarriesJobIDs(t *testing.T) {
	t.Parallel()

	rs := newRelayServer(t)
	adapter, _, _ := connectAdapter(t, rs)

	require.NoError(t, adapter.Send(context.Background(), 1422450, 9160, 42, []byte{0x08, 0x01}))

	f := rs.nextFrame()
	assert.Equal(t, kindCoordinator, f.Kind)
	assert.Equal(t, uint32(9160), f.MsgType)
	assert.Equal(t, domain.JobID(42), jobOf(f.JobIDSource))
	assert.Equal(t, domain.NoJob, jobOf(f.JobIDTarget))
	assert.Equal(t, []byte{0x08, 0x01}, f.Payload)
}

func TestInboundCoordinatorFrames(t *testing.T) {
	t.Parallel()

	rs := newRelayServer(t)
	adapter, handler, _ := connectAdapter(t, rs)
	require.NoError(t, adapter.AnnouncePlaying(context.Background(), 1422450))
	rs.nextFrame()

	rs.push(frame{Kind: kindCoordinator, AppID: 1422450, MsgType: 9161, JobIDTarget: jobRef(7), Payload: []byte{1}})
	rs.push(frame{Kind: kindCoordinator, AppID: 570, MsgType: 1, Payload: []byte{2}})
	rs.push(frame{Kind: "unknown"})
	rs.push(frame{Kind: kindCoordinator, AppID: 1422450, MsgType: 4004})

	first := <-handler.messages
	assert.Equal(t, domain.InboundMessage{Type: 9161, JobID: 7, Payload: []byte{1}}, first)

	select {
	case second := <-handler.messages:
		assert.Equal(t, domain.MessageType(4004), second.Type)
		assert.Equal(t, domain.NoJob, second.JobID)
	case <-time.After(eventually):
		t.Fatal("event not delivered")
	}
}

func TestRemoteCloseReportsTransportLost(t *testing.T) {
	t.Parallel()

	rs := newRelayServer(t)
	adapter, handler, _ := connectAdapter(t, rs)

	rs.closeClient()

	select {
	case err := <-handler.disconnected:
		assert.ErrorIs(t, err, domain.ErrTransportLost)
	case <-time.After(eventually):
		t.Fatal("OnDisconnected not delivered")
	}

	err := adapter.Send(context.Background(), 1422450, 9160, 1, nil)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestDisconnectIsQuietAndIdempotent(t *testing.T) {
	t.Parallel()

	rs := newRelayServer(t)
	adapter, handler, _ := connectAdapter(t, rs)

	require.NoError(t, adapter.Disconnect())
	require.NoError(t, adapter.Disconnect())

	select {
	case err := <-handler.disconnected:
		t.Fatalf("unexpected OnDisconnected after Disconnect: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	assert.ErrorIs(t, adapter.Logon(context.Background(), domain.LogonDetails{}), ErrNotConnected)
}

func TestConnectTwiceFails(t *testing.T) {
	t.Parallel()

	rs := newRelayServer(t)
	adapter, _, _ := connectAdapter(t, rs)

	assert.ErrorIs(t, adapter.Connect(context.Background()), ErrAlreadyConnected)
}

func TestReconnectAfterDisconnect(t *testing.T) {
	t.Parallel()

	rs := newRelayServer(t)
	adapter, _, first := connectAdapter(t, rs)

	require.NoError(t, adapter.Disconnect())
	second := newRecordingHandler()
	adapter.SetHandler(second)
	require.NoError(t, adapter.Connect(context.Background()))

	select {
	case <-second.connected:
	case <-time.After(eventually):
		t.Fatal("OnConnected not delivered to the new handler")
	}
	select {
	case second := <-rs.sessions:
		assert.NotEqual(t, first, second)
	case <-time.After(eventually):
		t.Fatal("relay did not accept the second connection")
	}
}

func TestConnectFailureReturnsError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(server.Close)

	adapter := New(Config{URL: "ws" + strings.TrimPrefix(server.URL, "http"), Logger: zerolog.Nop()})
	handler := newRecordingHandler()
	adapter.SetHandler(handler)

	err := adapter.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Empty(t, handler.connected)
}

func TestConnectRequiresURL(t *testing.T) {
	t.Parallel()

	err := New(Config{}).Connect(context.Background())
	assert.EqualError(t, err, "relay url is required")
}

func TestCancelledDialLeavesNoLink(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	adapter := New(Config{URL: "ws" + strings.TrimPrefix(server.URL, "http"), Logger: zerolog.Nop()})
	t.Cleanup(func() { _ = adapter.Disconnect() })
	handler := newRecordingHandler()
	adapter.SetHandler(handler)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	require.Error(t, adapter.Connect(ctx))
	assert.Empty(t, handler.connected)
	assert.ErrorIs(t, adapter.Send(context.Background(), 1422450, 4006, domain.NoJob, nil), ErrNotConnected)

	require.NoError(t, adapter.Connect(context.Background()))
	select {
	case <-handler.connected:
	case <-time.After(eventually):
		t.Fatal("OnConnected not delivered after the cancelled dial")
	}
}
