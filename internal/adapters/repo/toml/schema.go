package toml

import (
	"fmt"
	"slices"
)

const currentSchemaVersion = 1

type fileSchema struct {
	Version  int             `toml:"version"`
	Accounts []accountSchema `toml:"accounts"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported accounts schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type accountSchema struct {
	ID            string     `toml:"id"`
	Username      string     `toml:"username"`
	UpdatedAt     string     `toml:"updated_at,omitempty"`
	LastSessionAt string     `toml:"last_session_at,omitempty"`
	Auth          authSchema `toml:"auth"`
}

func (s fileSchema) index(id string) int {
	return slices.IndexFunc(s.Accounts, func(a accountSchema) bool {
		return a.ID == id
	})
}

type authSchema struct {
	PasswordRef string `toml:"password_ref"`
	GuardRef    string `toml:"guard_ref,omitempty"`
}
