package domain

import "fmt"

type Auth struct {
	// PasswordRef and GuardRef point to secret-store entries in "deadlock://id/name" form.
	PasswordRef string
	GuardRef    string
}

type Credentials struct {
	Username string
	Password string
}

// AuthResult is what a completed credential exchange hands to the logon step.
type AuthResult struct {
	AccountName  string
	SessionToken string
	// ResumableToken is nil when the platform did not issue a new one.
	ResumableToken []byte
}

type LogonDetails struct {
	AccountName string
	AccessToken string
}

// LogonResult mirrors the platform result code; only ResultOK lets the session proceed.
type LogonResult int32

const (
	ResultInvalid      LogonResult = 0
	ResultOK           LogonResult = 1
	ResultFail         LogonResult = 2
	ResultAccessDenied LogonResult = 15
	ResultTryLater     LogonResult = 16
	ResultRateLimited  LogonResult = 84
)

func (r LogonResult) String() string {
	switch r {
	case ResultInvalid:
		return "Invalid"
	case ResultOK:
		return "OK"
	case ResultFail:
		return "Fail"
	case ResultAccessDenied:
		return "AccessDenied"
	case ResultTryLater:
		return "TryLater"
	case ResultRateLimited:
		return "RateLimitExceeded"
	default:
		return fmt.Sprintf("Result(%d)", int32(r))
	}
}
