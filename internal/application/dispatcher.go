package application

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/bnema/deadlock-gc/internal/domain"
)

// Route is the classification of an inbound message: a Reply to one of our
// jobs or an unsolicited Event.
type Route interface{ isRoute() }

type Reply struct {
	JobID   domain.JobID
	Type    domain.MessageType
	Payload []byte
}

type Event struct {
	Type    domain.MessageType
	Payload []byte
}

func (Reply) isRoute() {}
func (Event) isRoute() {}

func Classify(msg domain.InboundMessage) Route {
	if msg.JobID.Valid() {
		return Reply{JobID: msg.JobID, Type: msg.Type, Payload: msg.Payload}
	}
	return Event{Type: msg.Type, Payload: msg.Payload}
}

type EventHandler func(msgType domain.MessageType, payload []byte)

type Subscription struct {
	id      uint64
	msgType domain.MessageType
}

func (s Subscription) MessageType() domain.MessageType {
	return s.msgType
}

type subscriber struct {
	id      uint64
	handler EventHandler
}

type Dispatcher struct {
	jobs *JobTable
	log  zerolog.Logger

	mu       sync.Mutex
	lastID   uint64
	handlers map[domain.MessageType][]subscriber
}

func NewDispatcher(jobs *JobTable, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		jobs:     jobs,
		log:      log,
		handlers: make(map[domain.MessageType][]subscriber),
	}
}

func (d *Dispatcher) Subscribe(msgType domain.MessageType, handler EventHandler) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lastID++
	d.handlers[msgType] = append(d.handlers[msgType], subscriber{id: d.lastID, handler: handler})

	return Subscription{id: d.lastID, msgType: msgType}
}

// Unsubscribe removes the handler behind sub. A dispatch pass already in
// progress still runs it.
func (d *Dispatcher) Unsubscribe(sub Subscription) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	current := d.handlers[sub.msgType]
	for i, s := range current {
		if s.id != sub.id {
			continue
		}
		next := make([]subscriber, 0, len(current)-1)
		next = append(next, current[:i]...)
		next = append(next, current[i+1:]...)
		if len(next) == 0 {
			delete(d.handlers, sub.msgType)
		} else {
			d.handlers[sub.msgType] = next
		}
		return true
	}

	return false
}

func (d *Dispatcher) Dispatch(msg domain.InboundMessage) {
	switch route := Classify(msg).(type) {
	case Reply:
		if d.jobs.Resolve(route.JobID, route.Payload) {
			return
		}
		d.log.Debug().
			Uint64("job_id", uint64(route.JobID)).
			Stringer("msg_type", route.Type).
			Msg("reply without pending request")
		d.publish(route.Type, route.Payload)
	case Event:
		d.publish(route.Type, route.Payload)
	}
}

func (d *Dispatcher) publish(msgType domain.MessageType, payload []byte) {
	d.mu.Lock()
	snapshot := d.handlers[msgType]
	d.mu.Unlock()

	if len(snapshot) == 0 {
		d.log.Debug().Stringer("msg_type", msgType).Msg("dropping unhandled message")
		return
	}

	for _, s := range snapshot {
		s.handler(msgType, payload)
	}
}
