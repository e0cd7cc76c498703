package domain

import "strconv"

// MessageType is the coordinator message type tag.
type MessageType uint32

func (t MessageType) String() string {
	return strconv.FormatUint(uint64(t), 10)
}

// JobID correlates a request with its reply.
type JobID uint64

// NoJob marks a message that carries no job identifier.
const NoJob JobID = ^JobID(0)

func (j JobID) Valid() bool {
	return j != NoJob
}

// InboundMessage is one coordinator message delivered by the connection.
type InboundMessage struct {
	Type    MessageType
	JobID   JobID
	Payload []byte
}
