package oauth2client

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultLockTimeout bounds how long a hung refresh can hold a session's lock.
	DefaultLockTimeout = 30 * time.Second

	tokenPath      = "protocol/openid-connect/token"
	endSessionPath = "protocol/openid-connect/logout"
)

// Config holds the identity provider settings. Each field can be set from the environment
// variable named in its env tag.
type Config struct {
	ClientID      string        `env:"OIDC_CLIENT_ID"`
	ClientSecret  string        `env:"OIDC_CLIENT_SECRET"`
	Authority     string        `env:"OIDC_CLIENT_AUTHORITY"`
	TokenURL      string        `env:"OIDC_TOKEN_URL"`
	EndSessionURL string        `env:"OIDC_END_SESSION_URL"`
	APIHost       string        `env:"API_HOST"`
	LockTimeout   time.Duration `env:"AUTH_LOCK_TIMEOUT"`
	Origin        string        `env:"AUTH_ORIGIN"`
}

// ConfigFromEnv reads Config from the environment and fills defaults. Every value that is
// set is logged through logger, with secrets masked. logger may be nil.
func ConfigFromEnv(logger Logger) (Config, error) {
	var cfg Config
	if err := loadEnv(&cfg, logger); err != nil {
		return Config{}, err
	}

	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the token endpoint can be derived.
func (c Config) Validate() error {
	if c.ClientID == "" {
		return errors.New("oauth2client: OIDC_CLIENT_ID is required")
	}
	if c.TokenURL == "" && c.Authority == "" {
		return errors.New("oauth2client: OIDC_CLIENT_AUTHORITY or OIDC_TOKEN_URL is required")
	}
	return nil
}

func (c Config) withDefaults() Config {
	authority := strings.TrimRight(c.Authority, "/")
	if c.TokenURL == "" && authority != "" {
		c.TokenURL = authority + "/" + tokenPath
	}
	if c.EndSessionURL == "" && authority != "" {
		c.EndSessionURL = authority + "/" + endSessionPath
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = DefaultLockTimeout
	}
	return c
}

func loadEnv(cfg *Config, logger Logger) error {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		key := field.Tag.Get("env")
		if key == "" {
			continue
		}

		raw, ok := os.LookupEnv(key)
		if !ok || raw == "" {
			continue
		}

		if logger != nil {
			logger.Printf("oauth2client: config %s.%s = %s (from %s)", t.Name(), field.Name, maskValue(field.Name, raw), key)
		}

		switch v.Field(i).Interface().(type) {
		case string:
			v.Field(i).SetString(raw)
		case time.Duration:
			d, err := parseDuration(raw)
			if err != nil {
				return fmt.Errorf("oauth2client: invalid %s: %w", key, err)
			}
			v.Field(i).SetInt(int64(d))
		}
	}
	return nil
}

// parseDuration accepts Go duration strings and bare milliseconds.
func parseDuration(raw string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(raw)
}

func maskValue(name, value string) string {
	lower := strings.ToLower(name)
	if !strings.Contains(lower, "secret") && !strings.Contains(lower, "pass") {
		return value
	}
	if len(value) <= 2 {
		return strings.Repeat("*", len(value))
	}
	return value[:1] + strings.Repeat("*", len(value)-2) + value[len(value)-1:]
}
