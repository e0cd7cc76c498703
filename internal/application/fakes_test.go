package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bnema/deadlock-gc/internal/domain"
	"github.com/bnema/deadlock-gc/internal/ports"
	"github.com/bnema/deadlock-gc/internal/protocol"
)

type recorder struct {
	mu      sync.Mutex
	entries []string
}

func (r *recorder) add(entry string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.entries...)
}

type sentMessage struct {
	AppID   uint32
	Type    domain.MessageType
	JobID   domain.JobID
	Payload []byte
}

// fakeConnection completes each handshake step synchronously and, when
// autoWelcome is set, answers the hello with a welcome.
type fakeConnection struct {
	mu          sync.Mutex
	handler     ports.ConnectionHandler
	connectErrs []error
	logonResult domain.LogonResult
	autoWelcome bool
	onRequest   func(h ports.ConnectionHandler, msg sentMessage)
	sendErr     error
	journal     *recorder

	connects    int
	disconnects int
	logons      []domain.LogonDetails
	announced   []uint32
	sent        []sentMessage
}

var _ ports.Connection = (*fakeConnection)(nil)

func newFakeConnection() *fakeConnection {
	return &fakeConnection{logonResult: domain.ResultOK, autoWelcome: true}
}

func (f *fakeConnection) SetHandler(h ports.ConnectionHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

func (f *fakeConnection) Connect(context.Context) error {
	f.mu.Lock()
	f.connects++
	var err error
	if len(f.connectErrs) > 0 {
		err = f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
	}
	h := f.handler
	f.mu.Unlock()

	f.journal.add("connect")
	if err != nil {
		return err
	}
	h.OnConnected()
	return nil
}

func (f *fakeConnection) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return nil
}

func (f *fakeConnection) Logon(_ context.Context, details domain.LogonDetails) error {
	f.mu.Lock()
	f.logons = append(f.logons, details)
	h, result := f.handler, f.logonResult
	f.mu.Unlock()

	f.journal.add("logon")
	h.OnLoggedOn(result)
	return nil
}

func (f *fakeConnection) AnnouncePlaying(_ context.Context, appID uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.announced = append(f.announced, appID)
	return nil
}

func (f *fakeConnection) Send(_ context.Context, appID uint32, msgType domain.MessageType, jobID domain.JobID, payload []byte) error {
	f.mu.Lock()
	if f.sendErr != nil {
		err := f.sendErr
		f.mu.Unlock()
		return err
	}
	msg := sentMessage{AppID: appID, Type: msgType, JobID: jobID, Payload: payload}
	f.sent = append(f.sent, msg)
	h, autoWelcome, onRequest := f.handler, f.autoWelcome, f.onRequest
	f.mu.Unlock()

	if msgType == protocol.MsgClientHello && autoWelcome {
		h.OnInboundMessage(welcomeMessage(1))
	}
	if jobID.Valid() && onRequest != nil {
		onRequest(h, msg)
	}
	return nil
}

func (f *fakeConnection) current() ports.ConnectionHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler
}

func (f *fakeConnection) deliver(msg domain.InboundMessage) {
	f.current().OnInboundMessage(msg)
}

func (f *fakeConnection) drop(err error) {
	f.current().OnDisconnected(err)
}

func (f *fakeConnection) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *fakeConnection) disconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

func (f *fakeConnection) sentOfType(msgType domain.MessageType) []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []sentMessage
	for _, msg := range f.sent {
		if msg.Type == msgType {
			out = append(out, msg)
		}
	}
	return out
}

func (f *fakeConnection) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func welcomeMessage(version uint32) domain.InboundMessage {
	payload, _ := protocol.ClientWelcome{Version: version, TxnCountryCode: "DE"}.Marshal()
	return domain.InboundMessage{Type: protocol.MsgClientWelcome, JobID: domain.NoJob, Payload: payload}
}

// fakeAuth succeeds unless err is set.
type fakeAuth struct {
	mu     sync.Mutex
	calls  int
	err    error
	result domain.AuthResult
}

func (a *fakeAuth) BeginSession(context.Context, domain.Credentials, []byte) (domain.AuthResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		return domain.AuthResult{}, a.err
	}
	return a.result, nil
}

func (a *fakeAuth) setErr(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

type memoryTokenStore struct {
	mu    sync.Mutex
	token []byte
}

func (s *memoryTokenStore) Load(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		return nil, domain.ErrTokenNotFound
	}
	return s.token, nil
}

func (s *memoryTokenStore) Save(_ context.Context, token []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

type memorySecretStore struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemorySecretStore() *memorySecretStore {
	return &memorySecretStore{values: make(map[string]string)}
}

func (s *memorySecretStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	if !ok {
		return "", domain.ErrSecretNotFound
	}
	return value, nil
}

func (s *memorySecretStore) Put(_ context.Context, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *memorySecretStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func testConfig() Config {
	return Config{
		Credentials:       domain.Credentials{Username: "player", Password: "hunter2"},
		ReconnectInterval: 20 * time.Millisecond,
		Logger:            zerolog.Nop(),
	}
}

// startClient runs the client loop until the test ends.
func startClient(t *testing.T, c *Client) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})
}
