package domain

import "errors"

var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrSecretNotFound   = errors.New("secret not found")
	ErrTokenNotFound    = errors.New("resumable token not found")
	ErrInvalidSecretKey = errors.New("invalid secret key")
)

// Session and request failures surfaced by the coordinator client.
var (
	ErrTransportLost        = errors.New("transport lost")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrLogonRejected        = errors.New("logon rejected")
	ErrRequestTimedOut      = errors.New("request timed out")
	ErrRequestCancelled     = errors.New("request cancelled")
	ErrNotReady             = errors.New("coordinator session not ready")
	ErrRequestRejected      = errors.New("coordinator rejected request")
)
