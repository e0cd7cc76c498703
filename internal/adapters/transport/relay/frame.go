package relay

import "github.com/bnema/deadlock-gc/internal/domain"

const (
	kindLogon        = "logon"
	kindLogonResult  = "logon_result"
	kindGamesPlayed  = "games_played"
	kindCoordinator  = "gc"
	sessionHeaderKey = "X-Relay-Session"
)

// frame is the JSON envelope exchanged with the relay. Job IDs are pointers so
// an absent job_id_target reads as NoJob rather than zero.
type frame struct {
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

func jobRef(id domain.JobID) *uint64 {
	v := uint64(id)
	return &v
}

func jobOf(ref *uint64) domain.JobID {
	if ref == nil {
		return domain.NoJob
	}
	return domain.JobID(*ref)
}

func (f frame) inbound() domain.InboundMessage {
	return domain.InboundMessage{
		Type:    domain.MessageType(f.MsgType),
		JobID:   jobOf(f.JobIDTarget),
		Payload: f.Payload,
	}
}
