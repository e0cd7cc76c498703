package ports

import (
	"context"

	"github.com/bnema/deadlock-gc/internal/domain"
)

// Connection is the platform transport. Callbacks are delivered to the handler
// installed with SetHandler, from whatever goroutine the transport reads on.
type Connection interface {
	SetHandler(h ConnectionHandler)
	// Connect must not leave a connection open when ctx is cancelled before it returns.
	Connect(ctx context.Context) error
	Disconnect() error
	Logon(ctx context.Context, details domain.LogonDetails) error
	AnnouncePlaying(ctx context.Context, appID uint32) error
	// Send must be safe to call from several goroutines.
	Send(ctx context.Context, appID uint32, msgType domain.MessageType, jobID domain.JobID, payload []byte) error
}

type ConnectionHandler interface {
	OnConnected()
	OnDisconnected(err error)
	OnLoggedOn(result domain.LogonResult)
	OnInboundMessage(msg domain.InboundMessage)
}
