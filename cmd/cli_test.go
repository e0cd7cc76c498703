package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/deadlock-gc/internal/domain"
	"github.com/bnema/deadlock-gc/internal/protocol"
)

type relayFrame struct {
	Kind        string  `json:"kind"`
	AppID       uint32  `json:"app_id,omitempty"`
	MsgType     uint32  `json:"msg_type,omitempty"`
	JobIDSource *uint64 `json:"job_id_source,omitempty"`
	JobIDTarget *uint64 `json:"job_id_target,omitempty"`
	Payload     []byte  `json:"payload,omitempty"`
	AccountName string  `json:"account_name,omitempty"`
	AccessToken string  `json:"access_token,omitempty"`
	Result      int32   `json:"result,omitempty"`
}

// fakeCoordinator plays the relay and the coordinator behind it.
type fakeCoordinator struct {
	server *httptest.Server

	logonResult domain.LogonResult
	noWelcome   bool
	playtest    *protocol.DevPlaytestStatus
	metadata    protocol.GetMatchMetadataResponse
	history     protocol.GetGlobalMatchHistoryResponse

	mu      sync.Mutex
	logons  []relayFrame
	cursors []uint32
	matches []uint32
}

func newFakeCoordinator(t *testing.T, configure func(*fakeCoordinator)) *fakeCoordinator {
	t.Helper()

	fc := &fakeCoordinator{logonResult: domain.ResultOK}
	if configure != nil {
		configure(fc)
	}

	upgrader := websocket.Upgrader{}
	fc.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f relayFrame
			if json.Unmarshal(data, &f) != nil {
				continue
			}
			for _, reply := range fc.answer(f) {
				out, _ := json.Marshal(reply)
				if conn.WriteMessage(websocket.TextMessage, out) != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(fc.server.Close)

	return fc
}

func (fc *fakeCoordinator) url() string {
	return "ws" + strings.TrimPrefix(fc.server.URL, "http")
}

func (fc *fakeCoordinator) answer(f relayFrame) []relayFrame {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	switch f.Kind {
	case "logon":
		fc.logons = append(fc.logons, f)
		return []relayFrame{{Kind: "logon_result", Result: int32(fc.logonResult)}}
	case "gc":
	default:
		return nil
	}

	switch domain.MessageType(f.MsgType) {
	case protocol.MsgClientHello:
		if fc.noWelcome {
			return nil
		}
		welcome, _ := protocol.ClientWelcome{Version: 1, TxnCountryCode: "SE"}.Marshal()
		replies := []relayFrame{gcFrame(protocol.MsgClientWelcome, nil, welcome)}
		if fc.playtest != nil {
			status, _ := fc.playtest.Marshal()
			replies = append(replies, gcFrame(protocol.MsgDevPlaytestStatus, nil, status))
		}
		return replies
	case protocol.MsgGetMatchMetadata:
		var req protocol.GetMatchMetadata
		_ = req.Unmarshal(f.Payload)
		fc.matches = append(fc.matches, req.MatchID)
		payload, _ := fc.metadata.Marshal()
		return []relayFrame{gcFrame(protocol.MsgGetMatchMetadataResponse, f.JobIDSource, payload)}
	case protocol.MsgGetGlobalMatchHistory:
		var req protocol.GetGlobalMatchHistory
		_ = req.Unmarshal(f.Payload)
		fc.cursors = append(fc.cursors, req.Cursor)
		payload, _ := fc.history.Marshal()
		return []relayFrame{gcFrame(protocol.MsgGetGlobalMatchHistoryResponse, f.JobIDSource, payload)}
	default:
		return nil
	}
}

func (fc *fakeCoordinator) recordedLogons() []relayFrame {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return append([]relayFrame(nil), fc.logons...)
}

func gcFrame(msgType domain.MessageType, target *uint64, payload []byte) relayFrame {
	return relayFrame{
		Kind:        "gc",
		AppID:       protocol.AppID,
		MsgType:     uint32(msgType),
		JobIDTarget: target,
		Payload:     payload,
	}
}

// newAuthServer signs any credentials in without a guard confirmation.
func newAuthServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/session/begin", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("password") != "hunter2" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":"invalid_password","error_description":"wrong password"}`)
			return
		}
		_, _ = io.WriteString(w, `{"client_id":"c-1","request_id":"r-1","allowed_confirmations":[]}`)
	})
	mux.HandleFunc("/auth/session/poll", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"account_name":"alice","access_token":"access-1","refresh_token":"refresh-1"}`)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func setupEnv(t *testing.T, relayURL string, authURL string) {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	t.Setenv(envConfigFile, "")
	t.Setenv("DGC_SECRETS_BACKEND", "file")
	t.Setenv("DGC_RELAY_URL", relayURL)
	t.Setenv("DGC_AUTH_BASE_URL", authURL+"/auth/")
	t.Setenv("DGC_SESSION_COORDINATOR_GRACE", "0s")
	t.Setenv("DGC_LOG_LEVEL", "error")
}

func setupSession(t *testing.T, configure func(*fakeCoordinator)) *fakeCoordinator {
	t.Helper()

	fc := newFakeCoordinator(t, configure)
	setupEnv(t, fc.url(), newAuthServer(t).URL)

	_, _, err := executeCLI(t, "account", "set", "--username", "alice", "--password", "hunter2")
	require.NoError(t, err)

	return fc
}

func executeCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return executeCLIWithInput(t, nil, args...)
}

func executeCLIWithInput(t *testing.T, stdin io.Reader, args ...string) (string, string, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return executeCLIContext(ctx, stdin, args...)
}

func executeCLIContext(ctx context.Context, stdin io.Reader, args ...string) (string, string, error) {
	root := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	if stdin != nil {
		root.SetIn(stdin)
	}
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func TestVersionPrintsBuildVersion(t *testing.T) {
	setupEnv(t, "ws://127.0.0.1:1/relay", "http://127.0.0.1:1")

	stdout, _, err := executeCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", stdout)
}

func TestAccountSetAutoAssignsNextNumericAccountID(t *testing.T) {
	setupEnv(t, "ws://127.0.0.1:1/relay", "http://127.0.0.1:1")

	stdout, _, err := executeCLI(t, "account", "set", "--username", "alice", "--password", "pw-1")
	require.NoError(t, err)
	assert.Equal(t, "account 1 saved\n", stdout)

	stdout, _, err = executeCLI(t, "account", "set", "--username", "bob", "--password", "pw-2")
	require.NoError(t, err)
	assert.Equal(t, "account 2 saved\n", stdout)

	stdout, _, err = executeCLI(t, "account", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "1\talice\t(default)\n")
	assert.Contains(t, stdout, "2\tbob\n")
}

func TestAccountSetReadsPasswordFromStdin(t *testing.T) {
	setupEnv(t, "ws://127.0.0.1:1/relay", "http://127.0.0.1:1")

	_, stderr, err := executeCLIWithInput(t, strings.NewReader("from-stdin\n"),
		"account", "set", "--account", "7", "--username", "carol",
	)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Password for carol:")

	app, err := wireApp()
	require.NoError(t, err)
	_, creds, err := app.service.Credentials(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, domain.Credentials{Username: "carol", Password: "from-stdin"}, creds)
}

func TestAccountSetRejectsEmptyPassword(t *testing.T) {
	setupEnv(t, "ws://127.0.0.1:1/relay", "http://127.0.0.1:1")

	_, _, err := executeCLIWithInput(t, strings.NewReader("\n"), "account", "set", "--username", "carol")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password is required")
}

func TestAccountSetRequiresUsernameFlag(t *testing.T) {
	setupEnv(t, "ws://127.0.0.1:1/relay", "http://127.0.0.1:1")

	_, _, err := executeCLI(t, "account", "set", "--password", "pw")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "username" not set`)
}

func TestAccountSetRejectsNegativeAccountID(t *testing.T) {
	setupEnv(t, "ws://127.0.0.1:1/relay", "http://127.0.0.1:1")

	_, _, err := executeCLI(t, "account", "set", "--account", "-3", "--username", "alice", "--password", "pw")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account must be a positive number")
}

func TestAccountRemoveDeletesAccount(t *testing.T) {
	setupEnv(t, "ws://127.0.0.1:1/relay", "http://127.0.0.1:1")

	_, _, err := executeCLI(t, "account", "set", "--username", "alice", "--password", "pw")
	require.NoError(t, err)

	stdout, _, err := executeCLI(t, "account", "remove", "1")
	require.NoError(t, err)
	assert.Equal(t, "account 1 removed\n", stdout)

	stdout, _, err = executeCLI(t, "account", "list")
	require.NoError(t, err)
	assert.Empty(t, stdout)

	_, _, err = executeCLI(t, "account", "remove", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account not found")
}

func TestInvalidConfigIsReported(t *testing.T) {
	setupEnv(t, "http://not-a-websocket", "http://127.0.0.1:1")

	_, _, err := executeCLI(t, "account", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay.url must use ws or wss")
}

func TestMatchMetadataJSONOutput(t *testing.T) {
	fc := setupSession(t, func(fc *fakeCoordinator) {
		fc.metadata = protocol.GetMatchMetadataResponse{Result: protocol.ResultOK, ClusterID: 123, MetadataSalt: 555, ReplaySalt: 926}
	})

	stdout, _, err := executeCLI(t, "match", "metadata", "31415926", "--json")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(stdout)))
	assert.Contains(t, stdout, `"ClusterID": 123`)
	assert.Contains(t, stdout, `"ReplayURL": "http://replay123.valve.net/1422450/31415926_926.dem.bz2"`)
	assert.Contains(t, stdout, `"MetadataURL": "http://replay123.valve.net/1422450/31415926_555.meta.bz2"`)

	logons := fc.recordedLogons()
	require.Len(t, logons, 1)
	assert.Equal(t, "alice", logons[0].AccountName)
	assert.Equal(t, "refresh-1", logons[0].AccessToken)

	fc.mu.Lock()
	defer fc.mu.Unlock()
	assert.Equal(t, []uint32{31415926}, fc.matches)
}

func TestMatchRecordsSessionTime(t *testing.T) {
	setupSession(t, func(fc *fakeCoordinator) {
		fc.metadata = protocol.GetMatchMetadataResponse{Result: protocol.ResultOK}
	})

	stdout, _, err := executeCLI(t, "account", "list")
	require.NoError(t, err)
	assert.NotContains(t, stdout, "last session")

	_, _, err = executeCLI(t, "match", "metadata", "1", "--json")
	require.NoError(t, err)

	stdout, _, err = executeCLI(t, "account", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "1\talice\t(default)\tlast session ")
}

func TestMatchMetadataRendersLocators(t *testing.T) {
	setupSession(t, func(fc *fakeCoordinator) {
		fc.metadata = protocol.GetMatchMetadataResponse{Result: protocol.ResultOK, ClusterID: 7, MetadataSalt: 1, ReplaySalt: 2}
	})

	stdout, _, err := executeCLI(t, "match", "metadata", "42")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Match Metadata")
	assert.Contains(t, stdout, "match 42")
	assert.Contains(t, stdout, "http://replay7.valve.net/1422450/42_2.dem.bz2")
}

func TestMatchMetadataRejectedByCoordinator(t *testing.T) {
	setupSession(t, func(fc *fakeCoordinator) {
		fc.metadata = protocol.GetMatchMetadataResponse{Result: 2}
	})

	_, _, err := executeCLI(t, "match", "metadata", "42", "--json")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRequestRejected)
}

func TestMatchMetadataRejectsInvalidMatchID(t *testing.T) {
	setupSession(t, nil)

	_, _, err := executeCLI(t, "match", "metadata", "not-a-match")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `match id must be a positive number, got "not-a-match"`)
}

func TestMatchHistoryPassesCursor(t *testing.T) {
	fc := setupSession(t, func(fc *fakeCoordinator) {
		fc.history = protocol.GetGlobalMatchHistoryResponse{
			Result: protocol.ResultOK,
			Matches: []protocol.MatchEntry{
				{MatchID: 1001, GameMode: 1, DurationS: 1865, WinningTeam: 0},
				{MatchID: 1002, GameMode: 4, DurationS: 905, WinningTeam: 1},
			},
			NextCursor: 1000,
		}
	})

	stdout, _, err := executeCLI(t, "match", "history", "--cursor", "77")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Global Match History")
	assert.Contains(t, stdout, "matches: 2")
	assert.Contains(t, stdout, "1002")
	assert.Contains(t, stdout, "next cursor: 1000")

	fc.mu.Lock()
	defer fc.mu.Unlock()
	assert.Equal(t, []uint32{77}, fc.cursors)
}

func TestMatchHistoryJSONOutput(t *testing.T) {
	setupSession(t, func(fc *fakeCoordinator) {
		fc.history = protocol.GetGlobalMatchHistoryResponse{
			Result:  protocol.ResultOK,
			Matches: []protocol.MatchEntry{{MatchID: 1001, DurationS: 60}},
		}
	})

	stdout, _, err := executeCLI(t, "match", "history", "--json")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(stdout)))
	assert.Contains(t, stdout, `"MatchID": 1001`)
	assert.Contains(t, stdout, `"NextCursor": 0`)
}

func TestMatchFailsFastWhenLogonIsRejected(t *testing.T) {
	setupSession(t, func(fc *fakeCoordinator) {
		fc.logonResult = domain.ResultAccessDenied
	})

	_, _, err := executeCLI(t, "match", "history", "--json")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLogonRejected)
	assert.Contains(t, err.Error(), "AccessDenied")
}

func TestMatchFailsFastWhenPasswordIsWrong(t *testing.T) {
	setupSession(t, nil)

	_, _, err := executeCLI(t, "account", "set", "--account", "1", "--username", "alice", "--password", "wrong")
	require.NoError(t, err)

	_, _, err = executeCLI(t, "match", "history", "--json")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuthenticationFailed)
	assert.Contains(t, err.Error(), "wrong password")
}

func TestMatchUnknownAccount(t *testing.T) {
	setupSession(t, nil)

	_, _, err := executeCLI(t, "match", "history", "--account", "9")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestMatchGivesUpWhenCoordinatorStaysSilent(t *testing.T) {
	setupSession(t, func(fc *fakeCoordinator) {
		fc.noWelcome = true
	})

	_, _, err := executeCLI(t, "match", "history", "--json", "--wait", "1s")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotReady)
	assert.Contains(t, err.Error(), "awaiting_coordinator")
}

func TestMatchShowsWaitingSpinner(t *testing.T) {
	setupSession(t, func(fc *fakeCoordinator) {
		fc.history = protocol.GetGlobalMatchHistoryResponse{Result: protocol.ResultOK}
	})
	t.Setenv("DGC_SESSION_COORDINATOR_GRACE", "300ms")

	_, stderr, err := executeCLI(t, "match", "history")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Waiting for coordinator")
}

func TestWatchPrintsSessionEvents(t *testing.T) {
	setupSession(t, func(fc *fakeCoordinator) {
		fc.playtest = &protocol.DevPlaytestStatus{Status: 2}
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	stdout, _, err := executeCLIContext(ctx, nil, "watch")
	require.NoError(t, err)
	assert.Contains(t, stdout, "state disconnected -> connecting")
	assert.Contains(t, stdout, "state awaiting_coordinator -> ready")
	assert.Contains(t, stdout, `welcome version=1 country="SE"`)
	assert.Contains(t, stdout, "playtest status=2")
	assert.Contains(t, stdout, "state ready -> disconnected")
}

func TestWatchReportsLogonFailuresWithoutExiting(t *testing.T) {
	setupSession(t, func(fc *fakeCoordinator) {
		fc.logonResult = domain.ResultTryLater
	})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	stdout, _, err := executeCLIContext(ctx, nil, "watch")
	require.NoError(t, err)
	assert.Contains(t, stdout, "error logon rejected: TryLater")
}
