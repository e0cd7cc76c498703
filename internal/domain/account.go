package domain

import (
	"fmt"
	"strings"
	"time"
)

type AccountID string

type Account struct {
	ID        AccountID
	Username  string
	Auth      Auth
	UpdatedAt time.Time
	// LastSessionAt is when the account last reached a ready coordinator session.
	LastSessionAt time.Time
}

func (a Account) Validate() error {
	if strings.TrimSpace(string(a.ID)) == "" {
		return fmt.Errorf("id is required")
	}
	if !validSegment(string(a.ID)) {
		return fmt.Errorf("id %q must not contain slashes or spaces", a.ID)
	}
	if strings.TrimSpace(a.Username) == "" {
		return fmt.Errorf("username is required")
	}

	return nil
}

const (
	secretScheme    = "deadlock://"
	SecretPassword  = "password"
	SecretGuardData = "guard_data"
)

// SecretKey addresses one secret of one account. Its string form is
// "deadlock://<account>/<name>".
type SecretKey struct {
	Account AccountID
	Name    string
}

func (k SecretKey) String() string {
	return secretScheme + string(k.Account) + "/" + k.Name
}

// ParseSecretKey accepts only keys produced by SecretKey.String.
func ParseSecretKey(raw string) (SecretKey, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(raw), secretScheme)
	if !ok {
		return SecretKey{}, fmt.Errorf("%w %q: missing %s scheme", ErrInvalidSecretKey, raw, secretScheme)
	}

	account, name, ok := strings.Cut(rest, "/")
	if !ok || !validSegment(account) || !validSegment(name) {
		return SecretKey{}, fmt.Errorf("%w %q", ErrInvalidSecretKey, raw)
	}

	return SecretKey{Account: AccountID(account), Name: name}, nil
}

func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, "/\\ \t\n")
}

// PasswordKey is the secret-store key holding the account password.
func PasswordKey(id AccountID) string {
	return SecretKey{Account: id, Name: SecretPassword}.String()
}

// GuardKey is the secret-store key holding the resumable token blob.
func GuardKey(id AccountID) string {
	return SecretKey{Account: id, Name: SecretGuardData}.String()
}
