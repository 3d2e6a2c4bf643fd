package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

const (
	envPrefix                = "RELAYADMIN"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabasePath      = "relayadmin.db"
	defaultLogLevel          = "info"
	defaultLogFormat         = "json"
	defaultCookieName        = "relayadmin_session"
	defaultSessionTTLMinutes = 720
	defaultSecureCookie      = true
	defaultBcryptCost        = 12
	logFormatJSON            = "json"
	logFormatConsole         = "console"
	keyHTTPAddress           = "http.address"
	keyDatabasePath          = "database.path"
	keyLogLevel              = "log.level"
	keyLogFormat             = "log.format"
	keySessionSigningSecret  = "session.signing_secret"
	keySessionCookieName     = "session.cookie_name"
	keySessionTTLMinutes     = "session.ttl_minutes"
	keySessionSecureCookie   = "session.secure_cookie"
	keyPasswordBcryptCost    = "password.bcrypt_cost"
	keyCORSAllowedOrigins    = "cors.allowed_origins"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress          string
	DatabasePath         string
	LogLevel             string
	LogFormat            string
	SessionSigningSecret string
	SessionCookieName    string
	SessionTTL           time.Duration
	SecureCookie         bool
	BcryptCost           int
	AllowedOrigins       []string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault(keyHTTPAddress, defaultHTTPAddress)
	configViper.SetDefault(keyDatabasePath, defaultDatabasePath)
	configViper.SetDefault(keyLogLevel, defaultLogLevel)
	configViper.SetDefault(keyLogFormat, defaultLogFormat)
	configViper.SetDefault(keySessionCookieName, defaultCookieName)
	configViper.SetDefault(keySessionTTLMinutes, defaultSessionTTLMinutes)
	configViper.SetDefault(keySessionSecureCookie, defaultSecureCookie)
	configViper.SetDefault(keyPasswordBcryptCost, defaultBcryptCost)
	configViper.SetDefault(keyCORSAllowedOrigins, []string{})
}

// Load parses the configuration of the API server.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := read(configViper)
	if err := cfg.validateSession(); err != nil {
		return AppConfig{}, err
	}
	if err := cfg.validateStore(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// LoadMaintenance parses the configuration for commands that touch the store
// but never issue sessions, so the session keys are not required.
func LoadMaintenance(configViper *viper.Viper) (AppConfig, error) {
	cfg := read(configViper)
	if err := cfg.validateStore(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func read(configViper *viper.Viper) AppConfig {
	return AppConfig{
		HTTPAddress:          strings.TrimSpace(configViper.GetString(keyHTTPAddress)),
		DatabasePath:         strings.TrimSpace(configViper.GetString(keyDatabasePath)),
		LogLevel:             configViper.GetString(keyLogLevel),
		LogFormat:            strings.ToLower(strings.TrimSpace(configViper.GetString(keyLogFormat))),
		SessionSigningSecret: configViper.GetString(keySessionSigningSecret),
		SessionCookieName:    strings.TrimSpace(configViper.GetString(keySessionCookieName)),
		SessionTTL:           time.Duration(configViper.GetInt(keySessionTTLMinutes)) * time.Minute,
		SecureCookie:         configViper.GetBool(keySessionSecureCookie),
		BcryptCost:           configViper.GetInt(keyPasswordBcryptCost),
		AllowedOrigins:       normalizeOrigins(configViper.GetStringSlice(keyCORSAllowedOrigins)),
	}
}

func (c AppConfig) validateSession() error {
	if strings.TrimSpace(c.SessionSigningSecret) == "" {
		return fmt.Errorf("%s is required", keySessionSigningSecret)
	}
	if c.SessionCookieName == "" {
		return fmt.Errorf("%s is required", keySessionCookieName)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("%s must be positive", keySessionTTLMinutes)
	}
	return nil
}

func (c AppConfig) validateStore() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("%s is required", keyDatabasePath)
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("%s must be between %d and %d", keyPasswordBcryptCost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	switch c.LogFormat {
	case logFormatJSON, logFormatConsole:
	default:
		return fmt.Errorf("%s must be %q or %q", keyLogFormat, logFormatJSON, logFormatConsole)
	}
	return nil
}

// viper hands env values over as a single string; split those on commas.
func normalizeOrigins(raw []string) []string {
	origins := make([]string, 0, len(raw))
	for _, entry := range raw {
		for _, part := range strings.Split(entry, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	return origins
}
