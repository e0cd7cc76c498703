package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bnema/deadlock-gc/internal/logging"
	"github.com/bnema/deadlock-gc/internal/protocol"
)

const (
	EnvPrefix  = "DGC"
	configDir  = ".deadlock-gc"
	configName = "config"
	configType = "toml"
)

const (
	KeyAccount                     = "account"
	KeyAccountsPath                = "accounts.path"
	KeyRelayURL                    = "relay.url"
	KeyAuthBaseURL                 = "auth.base_url"
	KeyAppID                       = "app_id"
	KeySessionReconnectInterval    = "session.reconnect_interval"
	KeySessionCoordinatorGrace     = "session.coordinator_grace"
	KeySessionHelloInterval        = "session.hello_interval"
	KeySessionRequestTimeout       = "session.request_timeout"
	KeySessionAuthFailureThreshold = "session.auth_failure_threshold"
	KeySecretsBackend              = "secrets.backend"
	KeyLogLevel                    = "log.level"
)

const (
	SecretsAuto = "auto"
	SecretsPass = "pass"
	SecretsFile = "file"
)

type Config struct {
	Account     string
	RelayURL    string
	AuthBaseURL string
	AppID       uint32
	Session     Session
	// SecretsBackend is auto (pass, falling back to files), pass or file.
	SecretsBackend string
	LogLevel       string
	// File is the config file that was read, empty when none was found.
	File string
}

type Session struct {
	ReconnectInterval    time.Duration
	CoordinatorGrace     time.Duration
	HelloInterval        time.Duration
	RequestTimeout       time.Duration
	AuthFailureThreshold int
}

// New returns a viper instance reading DGC_ environment variables. An empty
// file means ~/.deadlock-gc/config.toml.
func New(file string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		return v, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(filepath.Join(homeDir, configDir))
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyAccount, "1")
	v.SetDefault(KeyRelayURL, "ws://127.0.0.1:27060/relay")
	v.SetDefault(KeyAuthBaseURL, "http://127.0.0.1:27060/auth/")
	v.SetDefault(KeyAppID, protocol.AppID)
	v.SetDefault(KeySessionReconnectInterval, 10*time.Second)
	v.SetDefault(KeySessionCoordinatorGrace, 10*time.Second)
	v.SetDefault(KeySessionHelloInterval, time.Duration(0))
	v.SetDefault(KeySessionRequestTimeout, 30*time.Second)
	v.SetDefault(KeySessionAuthFailureThreshold, 3)
	v.SetDefault(KeySecretsBackend, SecretsAuto)
	v.SetDefault(KeyLogLevel, "info")
}

// Load reads the config file if there is one and returns the validated values.
// A missing default config file is not an error; a missing explicit one is.
func Load(v *viper.Viper) (Config, error) {
	if v == nil {
		return Config{}, errors.New("config source is nil")
	}
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := Config{
		Account:     strings.TrimSpace(v.GetString(KeyAccount)),
		RelayURL:    strings.TrimSpace(v.GetString(KeyRelayURL)),
		AuthBaseURL: strings.TrimSpace(v.GetString(KeyAuthBaseURL)),
		AppID:       v.GetUint32(KeyAppID),
		Session: Session{
			ReconnectInterval:    v.GetDuration(KeySessionReconnectInterval),
			CoordinatorGrace:     v.GetDuration(KeySessionCoordinatorGrace),
			HelloInterval:        v.GetDuration(KeySessionHelloInterval),
			RequestTimeout:       v.GetDuration(KeySessionRequestTimeout),
			AuthFailureThreshold: v.GetInt(KeySessionAuthFailureThreshold),
		},
		SecretsBackend: strings.ToLower(strings.TrimSpace(v.GetString(KeySecretsBackend))),
		LogLevel:       strings.TrimSpace(v.GetString(KeyLogLevel)),
		File:           v.ConfigFileUsed(),
	}
	if _, err := os.Stat(cfg.File); err != nil {
		cfg.File = ""
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	if c.Account == "" {
		errs = append(errs, errors.New("account is required"))
	}
	if err := checkURL(KeyRelayURL, c.RelayURL, "ws", "wss"); err != nil {
		errs = append(errs, err)
	}
	if err := checkURL(KeyAuthBaseURL, c.AuthBaseURL, "http", "https"); err != nil {
		errs = append(errs, err)
	}
	if c.AppID == 0 {
		errs = append(errs, fmt.Errorf("%s must be non-zero", KeyAppID))
	}
	if c.Session.ReconnectInterval <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeySessionReconnectInterval))
	}
	if c.Session.CoordinatorGrace < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", KeySessionCoordinatorGrace))
	}
	if c.Session.HelloInterval < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", KeySessionHelloInterval))
	}
	if c.Session.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", KeySessionRequestTimeout))
	}
	if c.Session.AuthFailureThreshold <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeySessionAuthFailureThreshold))
	}
	switch c.SecretsBackend {
	case SecretsAuto, SecretsPass, SecretsFile:
	default:
		errs = append(errs, fmt.Errorf("%s must be one of %s, %s or %s", KeySecretsBackend, SecretsAuto, SecretsPass, SecretsFile))
	}
	if !logging.ValidLevel(c.LogLevel) {
		errs = append(errs, fmt.Errorf("%s %q is not a known level", KeyLogLevel, c.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func checkURL(key string, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", key)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	for _, scheme := range schemes {
		if parsed.Scheme == scheme {
			if parsed.Host == "" {
				return fmt.Errorf("%s host is required", key)
			}
			return nil
		}
	}
	return fmt.Errorf("%s must use %s", key, strings.Join(schemes, " or "))
}
