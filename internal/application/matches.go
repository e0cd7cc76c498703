package application

import (
	"context"
	"fmt"

	"github.com/bnema/deadlock-gc/internal/domain"
	"github.com/bnema/deadlock-gc/internal/protocol"
)

// GetMatchMetadata fetches the cluster and salts of a match and derives the
// replay and metadata download locators from them.
func (c *Client) GetMatchMetadata(ctx context.Context, matchID domain.MatchID) (domain.MatchMetadata, error) {
	resp, err := Request[protocol.GetMatchMetadataResponse](ctx, c, protocol.MsgGetMatchMetadata, protocol.GetMatchMetadata{
		MatchID: uint32(matchID),
	})
	if err != nil {
		return domain.MatchMetadata{}, fmt.Errorf("get match metadata %d: %w", matchID, err)
	}
	if resp.Result != protocol.ResultOK {
		return domain.MatchMetadata{}, fmt.Errorf("get match metadata %d: %w: result %d", matchID, domain.ErrRequestRejected, resp.Result)
	}

	meta := domain.MatchMetadata{
		MatchID:      matchID,
		ClusterID:    resp.ClusterID,
		MetadataSalt: resp.MetadataSalt,
		ReplaySalt:   resp.ReplaySalt,
	}
	return meta.WithLocators(c.cfg.AppID), nil
}

func (c *Client) GetGlobalMatchHistory(ctx context.Context, cursor uint32) (domain.MatchHistory, error) {
	resp, err := Request[protocol.GetGlobalMatchHistoryResponse](ctx, c, protocol.MsgGetGlobalMatchHistory, protocol.GetGlobalMatchHistory{
		Cursor: cursor,
	})
	if err != nil {
		return domain.MatchHistory{}, fmt.Errorf("get global match history: %w", err)
	}
	if resp.Result != protocol.ResultOK {
		return domain.MatchHistory{}, fmt.Errorf("get global match history: %w: result %d", domain.ErrRequestRejected, resp.Result)
	}

	return resp.Domain(), nil
}
