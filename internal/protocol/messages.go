// Package protocol encodes and decodes the coordinator message bodies the
// client exchanges. Bodies use the protobuf wire format; unknown fields are skipped.
package protocol

import "github.com/bnema/deadlock-gc/internal/domain"

// AppID is the game the coordinator session is opened for.
const AppID uint32 = 1422450

const (
	MsgClientWelcome                 domain.MessageType = 4004
	MsgClientHello                   domain.MessageType = 4006
	MsgDevPlaytestStatus             domain.MessageType = 9061
	MsgGetMatchMetadata              domain.MessageType = 9160
	MsgGetMatchMetadataResponse      domain.MessageType = 9161
	MsgGetGlobalMatchHistory         domain.MessageType = 9188
	MsgGetGlobalMatchHistoryResponse domain.MessageType = 9189
)

// ResultOK is the success value of the result field carried by coordinator responses.
const ResultOK uint32 = 1

// Message is a body that knows how to append itself in wire format.
type Message interface {
	Marshal() ([]byte, error)
}

// Unmarshaler is implemented by response and event bodies.
type Unmarshaler interface {
	Unmarshal(b []byte) error
}

type ClientHello struct{}

func (ClientHello) Marshal() ([]byte, error) {
	return []byte{}, nil
}

type ClientWelcome struct {
	Version        uint32
	TxnCountryCode string
	GCWelcomeTime  uint32
}

func (m ClientWelcome) Marshal() ([]byte, error) {
	var b []byte
	b = appendUint(b, 1, uint64(m.Version))
	b = appendString(b, 3, m.TxnCountryCode)
	b = appendUint(b, 11, uint64(m.GCWelcomeTime))
	return b, nil
}

func (m *ClientWelcome) Unmarshal(b []byte) error {
	*m = ClientWelcome{}
	return walk(b, func(f field) error {
		switch f.num {
		case 1:
			m.Version = uint32(f.varint)
		case 3:
			m.TxnCountryCode = string(f.bytes)
		case 11:
			m.GCWelcomeTime = uint32(f.varint)
		}
		return nil
	})
}

func (m ClientWelcome) Domain() domain.Welcome {
	return domain.Welcome{Version: m.Version, CountryCode: m.TxnCountryCode, GCWelcomeTime: m.GCWelcomeTime}
}

type DevPlaytestStatus struct {
	Status uint32
}

func (m DevPlaytestStatus) Marshal() ([]byte, error) {
	return appendUint(nil, 1, uint64(m.Status)), nil
}

func (m *DevPlaytestStatus) Unmarshal(b []byte) error {
	*m = DevPlaytestStatus{}
	return walk(b, func(f field) error {
		if f.num == 1 {
			m.Status = uint32(f.varint)
		}
		return nil
	})
}

type GetMatchMetadata struct {
	MatchID uint32
}

func (m GetMatchMetadata) Marshal() ([]byte, error) {
	return appendUint(nil, 1, uint64(m.MatchID)), nil
}

func (m *GetMatchMetadata) Unmarshal(b []byte) error {
	*m = GetMatchMetadata{}
	return walk(b, func(f field) error {
		if f.num == 1 {
			m.MatchID = uint32(f.varint)
		}
		return nil
	})
}

type GetMatchMetadataResponse struct {
	Result       uint32
	ClusterID    uint32
	MetadataSalt uint32
	ReplaySalt   uint32
}

func (m GetMatchMetadataResponse) Marshal() ([]byte, error) {
	var b []byte
	b = appendUint(b, 1, uint64(m.Result))
	b = appendUint(b, 2, uint64(m.ClusterID))
	b = appendFixed32(b, 3, m.MetadataSalt)
	b = appendFixed32(b, 4, m.ReplaySalt)
	return b, nil
}

func (m *GetMatchMetadataResponse) Unmarshal(b []byte) error {
	*m = GetMatchMetadataResponse{}
	return walk(b, func(f field) error {
		switch f.num {
		case 1:
			m.Result = uint32(f.varint)
		case 2:
			m.ClusterID = uint32(f.varint)
		case 3:
			m.MetadataSalt = f.fixed32
		case 4:
			m.ReplaySalt = f.fixed32
		}
		return nil
	})
}

type GetGlobalMatchHistory struct {
	Cursor uint32
}

func (m GetGlobalMatchHistory) Marshal() ([]byte, error) {
	return appendUint(nil, 1, uint64(m.Cursor)), nil
}

func (m *GetGlobalMatchHistory) Unmarshal(b []byte) error {
	*m = GetGlobalMatchHistory{}
	return walk(b, func(f field) error {
		if f.num == 1 {
			m.Cursor = uint32(f.varint)
		}
		return nil
	})
}

type MatchEntry struct {
	MatchID     uint32
	StartTime   uint32
	GameMode    uint32
	DurationS   uint32
	WinningTeam uint32
}

func (m MatchEntry) Marshal() ([]byte, error) {
	var b []byte
	b = appendUint(b, 1, uint64(m.MatchID))
	b = appendUint(b, 2, uint64(m.StartTime))
	b = appendUint(b, 3, uint64(m.GameMode))
	b = appendUint(b, 4, uint64(m.DurationS))
	b = appendUint(b, 5, uint64(m.WinningTeam))
	return b, nil
}

func (m *MatchEntry) Unmarshal(b []byte) error {
	*m = MatchEntry{}
	return walk(b, func(f field) error {
		switch f.num {
		case 1:
			m.MatchID = uint32(f.varint)
		case 2:
			m.StartTime = uint32(f.varint)
		case 3:
			m.GameMode = uint32(f.varint)
		case 4:
			m.DurationS = uint32(f.varint)
		case 5:
			m.WinningTeam = uint32(f.varint)
		}
		return nil
	})
}

type GetGlobalMatchHistoryResponse struct {
	Result     uint32
	Matches    []MatchEntry
	NextCursor uint32
}

func (m GetGlobalMatchHistoryResponse) Marshal() ([]byte, error) {
	var b []byte
	b = appendUint(b, 1, uint64(m.Result))
	for _, entry := range m.Matches {
		raw, err := entry.Marshal()
		if err != nil {
			return nil, err
		}
		b = appendBytes(b, 2, raw)
	}
	b = appendUint(b, 3, uint64(m.NextCursor))
	return b, nil
}

func (m *GetGlobalMatchHistoryResponse) Unmarshal(b []byte) error {
	*m = GetGlobalMatchHistoryResponse{}
	return walk(b, func(f field) error {
		switch f.num {
		case 1:
			m.Result = uint32(f.varint)
		case 2:
			var entry MatchEntry
			if err := entry.Unmarshal(f.bytes); err != nil {
				return err
			}
			m.Matches = append(m.Matches, entry)
		case 3:
			m.NextCursor = uint32(f.varint)
		}
		return nil
	})
}

func (m GetGlobalMatchHistoryResponse) Domain() domain.MatchHistory {
	history := domain.MatchHistory{
		Matches:    make([]domain.MatchSummary, 0, len(m.Matches)),
		NextCursor: m.NextCursor,
	}
	for _, entry := range m.Matches {
		history.Matches = append(history.Matches, domain.MatchSummary{
			MatchID:     domain.MatchID(entry.MatchID),
			StartTime:   entry.StartTime,
			GameMode:    entry.GameMode,
			DurationS:   entry.DurationS,
			WinningTeam: entry.WinningTeam,
		})
	}
	return history
}
