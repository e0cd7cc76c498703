package toml

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/bnema/deadlock-gc/internal/domain"
	"github.com/bnema/deadlock-gc/internal/ports"
)

const (
	accountsPathKey    = "accounts.path"
	accountsFileMode   = 0o600
	accountsDirMode    = 0o700
	accountsConfigDir  = ".deadlock-gc"
	accountsConfigFile = "accounts.toml"
	tempFilePattern    = ".accounts-*.toml.tmp"
)

type Repository struct {
	accountsPath string
	mu           *sync.RWMutex
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var _ ports.AccountRepository = (*Repository)(nil)

func NewRepository(cfg *viper.Viper) (*Repository, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	// The config file itself is read by internal/config; only the default lives here.
	cfg.SetDefault(accountsPathKey, filepath.Join(homeDir, accountsConfigDir, accountsConfigFile))

	accountsPath := cfg.GetString(accountsPathKey)
	if accountsPath == "" {
		return nil, errors.New("accounts path is empty")
	}
	accountsPath, err = normalizeAccountsPath(accountsPath)
	if err != nil {
		return nil, err
	}

	return &Repository{accountsPath: accountsPath, mu: lockForPath(accountsPath)}, nil
}

func (r *Repository) Save(ctx context.Context, account domain.Account) error {
	encoded := toSchema(account)

	return r.mutate(ctx, func(file *fileSchema) error {
		if i := file.index(encoded.ID); i >= 0 {
			file.Accounts[i] = encoded
			return nil
		}
		file.Accounts = append(file.Accounts, encoded)
		return nil
	})
}

func (r *Repository) GetByID(ctx context.Context, id domain.AccountID) (domain.Account, error) {
	file, err := r.snapshot(ctx)
	if err != nil {
		return domain.Account{}, err
	}

	i := file.index(string(id))
	if i < 0 {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return fromSchema(file.Accounts[i]), nil
}

// List returns accounts with numeric ids first, in numeric order.
func (r *Repository) List(ctx context.Context) ([]domain.Account, error) {
	file, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	accounts := make([]domain.Account, 0, len(file.Accounts))
	for _, entry := range file.Accounts {
		accounts = append(accounts, fromSchema(entry))
	}
	slices.SortStableFunc(accounts, func(a, b domain.Account) int {
		return compareIDs(string(a.ID), string(b.ID))
	})

	return accounts, nil
}

func (r *Repository) Delete(ctx context.Context, id domain.AccountID) error {
	return r.mutate(ctx, func(file *fileSchema) error {
		i := file.index(string(id))
		if i < 0 {
			return domain.ErrAccountNotFound
		}
		file.Accounts = slices.Delete(file.Accounts, i, i+1)
		return nil
	})
}

// MarkSession records when the account last reached a ready coordinator session.
func (r *Repository) MarkSession(ctx context.Context, id domain.AccountID, at time.Time) error {
	return r.mutate(ctx, func(file *fileSchema) error {
		i := file.index(string(id))
		if i < 0 {
			return domain.ErrAccountNotFound
		}
		file.Accounts[i].LastSessionAt = formatTime(at)
		return nil
	})
}

// mutate applies fn to the accounts file under the write lock and persists
// the result unless fn fails.
func (r *Repository) mutate(ctx context.Context, fn func(*fileSchema) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}
	if err := fn(&file); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.writeSchema(file)
}

func (r *Repository) snapshot(ctx context.Context) (fileSchema, error) {
	if err := ctx.Err(); err != nil {
		return fileSchema{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.readSchema()
}

func compareIDs(a, b string) int {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return cmp.Compare(na, nb)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// Path is the resolved accounts file location.
func (r *Repository) Path() string {
	return r.accountsPath
}

func (r *Repository) readSchema() (fileSchema, error) {
	data, err := os.ReadFile(r.accountsPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileSchema{}, nil
		}
		return fileSchema{}, fmt.Errorf("read accounts file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode accounts file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

func normalizeAccountsPath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve accounts path: %w", err)
	}

	return filepath.Clean(absPath), nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}

func (r *Repository) writeSchema(file fileSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(r.accountsPath), accountsDirMode); err != nil {
		return fmt.Errorf("create accounts directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode accounts file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(r.accountsPath), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp accounts file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp accounts file: %w", err)
	}

	if err := tempFile.Chmod(accountsFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp accounts file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp accounts file: %w", err)
	}

	if err := os.Rename(tempName, r.accountsPath); err != nil {
		return fmt.Errorf("replace accounts file: %w", err)
	}

	cleanup = false

	if err := os.Chmod(r.accountsPath, accountsFileMode); err != nil {
		return fmt.Errorf("chmod accounts file: %w", err)
	}

	return nil
}

func toSchema(account domain.Account) accountSchema {
	return accountSchema{
		ID:            string(account.ID),
		Username:      account.Username,
		UpdatedAt:     formatTime(account.UpdatedAt),
		LastSessionAt: formatTime(account.LastSessionAt),
		Auth: authSchema{
			PasswordRef: account.Auth.PasswordRef,
			GuardRef:    account.Auth.GuardRef,
		},
	}
}

func fromSchema(account accountSchema) domain.Account {
	guardRef := account.Auth.GuardRef
	if guardRef == "" && account.ID != "" {
		guardRef = domain.GuardKey(domain.AccountID(account.ID))
	}

	return domain.Account{
		ID:       domain.AccountID(account.ID),
		Username: account.Username,
		Auth: domain.Auth{
			PasswordRef: account.Auth.PasswordRef,
			GuardRef:    guardRef,
		},
		UpdatedAt:     parseTime(account.UpdatedAt),
		LastSessionAt: parseTime(account.LastSessionAt),
	}
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}

	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}

	return parsed
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}

	return value.UTC().Format(time.RFC3339)
}
