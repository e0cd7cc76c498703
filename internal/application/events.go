package application

import (
	"github.com/bnema/deadlock-gc/internal/domain"
	"github.com/bnema/deadlock-gc/internal/protocol"
)

func (c *Client) OnWelcome(fn func(domain.Welcome)) Subscription {
	return c.Subscribe(protocol.MsgClientWelcome, func(_ domain.MessageType, payload []byte) {
		var welcome protocol.ClientWelcome
		if err := welcome.Unmarshal(payload); err != nil {
			c.log.Debug().Err(err).Msg("decode welcome")
			return
		}
		fn(welcome.Domain())
	})
}

func (c *Client) OnDevPlaytestStatus(fn func(domain.DevPlaytestStatus)) Subscription {
	return c.Subscribe(protocol.MsgDevPlaytestStatus, func(_ domain.MessageType, payload []byte) {
		var status protocol.DevPlaytestStatus
		if err := status.Unmarshal(payload); err != nil {
			c.log.Debug().Err(err).Msg("decode playtest status")
			return
		}
		fn(domain.DevPlaytestStatus{Status: status.Status})
	})
}
