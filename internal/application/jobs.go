package application

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bnema/deadlock-gc/internal/domain"
)

// PendingRequest is the caller's handle on one in-flight job. It settles
// exactly once: by reply, timeout, cancellation or connection teardown.
type PendingRequest struct {
	id      domain.JobID
	msgType domain.MessageType
	table   *JobTable

	done    chan struct{}
	payload []byte
	err     error
}

func (p *PendingRequest) JobID() domain.JobID {
	return p.id
}

func (p *PendingRequest) MessageType() domain.MessageType {
	return p.msgType
}

func (p *PendingRequest) Done() <-chan struct{} {
	return p.done
}

// Await blocks until the request settles or ctx ends. When ctx ends first
// the entry is removed with ErrRequestTimedOut or ErrRequestCancelled,
// unless a reply claimed it in the meantime, in which case the reply wins.
func (p *PendingRequest) Await(ctx context.Context) ([]byte, error) {
	select {
	case <-p.done:
		return p.payload, p.err
	case <-ctx.Done():
	}

	cause := domain.ErrRequestCancelled
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		cause = domain.ErrRequestTimedOut
	}
	p.table.Fail(p.id, fmt.Errorf("job %d: %w", p.id, cause))

	<-p.done
	return p.payload, p.err
}

func (p *PendingRequest) settle(payload []byte, err error) {
	p.payload = payload
	p.err = err
	close(p.done)
}

// JobTable correlates outgoing requests with their replies. It is the only
// client structure touched from both caller goroutines and the event loop.
type JobTable struct {
	mu      sync.Mutex
	last    domain.JobID
	pending map[domain.JobID]*PendingRequest
}

func NewJobTable() *JobTable {
	return &JobTable{pending: make(map[domain.JobID]*PendingRequest)}
}

func (t *JobTable) Register(msgType domain.MessageType) *PendingRequest {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextIDLocked()
	pending := &PendingRequest{
		id:      id,
		msgType: msgType,
		table:   t,
		done:    make(chan struct{}),
	}
	t.pending[id] = pending

	return pending
}

func (t *JobTable) nextIDLocked() domain.JobID {
	for {
		t.last++
		if !t.last.Valid() {
			continue
		}
		if _, live := t.pending[t.last]; live {
			continue
		}
		return t.last
	}
}

// Resolve reports false when no live entry exists, the normal outcome for
// late or duplicate replies.
func (t *JobTable) Resolve(id domain.JobID, payload []byte) bool {
	pending := t.take(id)
	if pending == nil {
		return false
	}
	pending.settle(payload, nil)
	return true
}

func (t *JobTable) Fail(id domain.JobID, err error) bool {
	pending := t.take(id)
	if pending == nil {
		return false
	}
	pending.settle(nil, err)
	return true
}

func (t *JobTable) FailAll(err error) int {
	t.mu.Lock()
	drained := t.pending
	t.pending = make(map[domain.JobID]*PendingRequest)
	t.mu.Unlock()

	for _, pending := range drained {
		pending.settle(nil, err)
	}
	return len(drained)
}

func (t *JobTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.pending)
}

func (t *JobTable) take(id domain.JobID) *PendingRequest {
	t.mu.Lock()
	defer t.mu.Unlock()

	pending, ok := t.pending[id]
	if !ok {
		return nil
	}
	delete(t.pending, id)
	return pending
}
