package application

import (
	"context"
	"fmt"

	"github.com/bnema/deadlock-gc/internal/domain"
	"github.com/bnema/deadlock-gc/internal/protocol"
)

// Begin registers a job and transmits payload tagged with it. It fails with
// ErrNotReady, without transmitting, unless the session is Ready.
func (c *Client) Begin(ctx context.Context, msgType domain.MessageType, payload []byte) (*PendingRequest, error) {
	if !c.IsReady() {
		return nil, domain.ErrNotReady
	}

	pending := c.jobs.Register(msgType)
	// Teardown moves the state before failing the table, so an entry
	// registered after that is caught here.
	if !c.IsReady() {
		c.jobs.Fail(pending.JobID(), domain.ErrNotReady)
		return nil, domain.ErrNotReady
	}

	if err := c.conn.Send(ctx, c.cfg.AppID, msgType, pending.JobID(), payload); err != nil {
		err = fmt.Errorf("send message %s: %w: %w", msgType, domain.ErrTransportLost, err)
		c.jobs.Fail(pending.JobID(), err)
		return nil, err
	}

	c.log.Debug().Uint64("job_id", uint64(pending.JobID())).Stringer("msg_type", msgType).Msg("request sent")
	return pending, nil
}

// Send transmits payload and waits for the correlated reply. When ctx has no
// deadline the configured RequestTimeout, if any, applies.
func (c *Client) Send(ctx context.Context, msgType domain.MessageType, payload []byte) ([]byte, error) {
	if _, ok := ctx.Deadline(); !ok && c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	pending, err := c.Begin(ctx, msgType, payload)
	if err != nil {
		return nil, err
	}

	return pending.Await(ctx)
}

func Request[Resp any, PResp interface {
	*Resp
	protocol.Unmarshaler
}](ctx context.Context, c *Client, msgType domain.MessageType, req protocol.Message) (Resp, error) {
	var resp Resp

	payload, err := req.Marshal()
	if err != nil {
		return resp, fmt.Errorf("encode message %s: %w", msgType, err)
	}

	reply, err := c.Send(ctx, msgType, payload)
	if err != nil {
		return resp, err
	}

	if err := PResp(&resp).Unmarshal(reply); err != nil {
		return resp, fmt.Errorf("decode reply to %s: %w", msgType, err)
	}

	return resp, nil
}
