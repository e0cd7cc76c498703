package application

import "github.com/bnema/deadlock-gc/internal/domain"

type loopEvent interface{ isLoopEvent() }

type connectRequested struct{}

type disconnectRequested struct{}

type reconnectDue struct {
	generation uint64
}

type dialFailed struct {
	attempt uint64
	err     error
}

type transportUp struct {
	attempt uint64
}

type transportDown struct {
	attempt uint64
	err     error
}

type authCompleted struct {
	attempt uint64
	result  domain.AuthResult
	err     error
}

type logonCompleted struct {
	attempt uint64
	result  domain.LogonResult
}

type graceElapsed struct {
	attempt uint64
}

type helloDue struct {
	attempt uint64
}

type messageArrived struct {
	attempt uint64
	msg     domain.InboundMessage
}

func (connectRequested) isLoopEvent()    {}
func (disconnectRequested) isLoopEvent() {}
func (reconnectDue) isLoopEvent()        {}
func (dialFailed) isLoopEvent()          {}
func (transportUp) isLoopEvent()         {}
func (transportDown) isLoopEvent()       {}
func (authCompleted) isLoopEvent()       {}
func (logonCompleted) isLoopEvent()      {}
func (graceElapsed) isLoopEvent()        {}
func (helloDue) isLoopEvent()            {}
func (messageArrived) isLoopEvent()      {}

// attemptHandler tags connection callbacks with the attempt that installed it.
type attemptHandler struct {
	client  *Client
	attempt uint64
}

func (h attemptHandler) OnConnected() {
	h.client.post(transportUp{attempt: h.attempt})
}

func (h attemptHandler) OnDisconnected(err error) {
	h.client.post(transportDown{attempt: h.attempt, err: err})
}

func (h attemptHandler) OnLoggedOn(result domain.LogonResult) {
	h.client.post(logonCompleted{attempt: h.attempt, result: result})
}

func (h attemptHandler) OnInboundMessage(msg domain.InboundMessage) {
	h.client.post(messageArrived{attempt: h.attempt, msg: msg})
}
