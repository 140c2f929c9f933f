// Package config loads the X API credentials and local settings from
// ~/.config/xpost/config.yaml, with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/mikequentel/xpost/internal/oauth"
)

const (
	DefaultHTTPTimeout = 30 * time.Second
	appDir             = "xpost"
)

type Twitter struct {
	APIKey            string `yaml:"api_key" validate:"required"`
	APISecret         string `yaml:"api_secret" validate:"required"`
	AccessToken       string `yaml:"access_token" validate:"required"`
	AccessTokenSecret string `yaml:"access_token_secret" validate:"required"`
}

type Config struct {
	Twitter     Twitter
	HTTPTimeout time.Duration `validate:"gte=0"`
	DataDir     string        `validate:"required"`
	Path        string        // file the config was read from
}

type configFile struct {
	Twitter     Twitter `yaml:"twitter"`
	HTTPTimeout string  `yaml:"http_timeout"`
	DataDir     string  `yaml:"data_dir"`
}

// Error is fatal: the program exits before the UI starts.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("config %s: %v", e.Path, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Credentials converts the twitter section for the signer.
func (c Config) Credentials() oauth.Credentials {
	return oauth.Credentials{
		ConsumerKey:    c.Twitter.APIKey,
		ConsumerSecret: c.Twitter.APISecret,
		AccessToken:    c.Twitter.AccessToken,
		AccessSecret:   c.Twitter.AccessTokenSecret,
	}
}

// DBPath is the SQLite file for drafts and the post log.
func (c Config) DBPath() string { return filepath.Join(c.DataDir, "xpost.db") }

// LogPath is where logs go while the terminal UI is running.
func (c Config) LogPath() string { return filepath.Join(c.DataDir, "xpost.log") }

// DefaultPath is $XPOST_CONFIG or ~/.config/xpost/config.yaml.
func DefaultPath() (string, error) {
	if p := os.Getenv("XPOST_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := baseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DefaultDataDir is $XPOST_DATA_DIR or ~/.config/xpost. Tools that never
// talk to the API use it without loading credentials.
func DefaultDataDir() (string, error) {
	if d := os.Getenv("XPOST_DATA_DIR"); d != "" {
		return expandHome(d), nil
	}
	return baseDir()
}

// Load reads path, applies env overrides (X_CONSUMER_KEY, X_CONSUMER_SECRET,
// X_ACCESS_TOKEN, X_ACCESS_SECRET, XPOST_DATA_DIR, XPOST_HTTP_TIMEOUT) and
// validates the result. A missing file is fine when the env supplies every
// credential. On success the file mode is tightened to 0600.
func Load(path string) (Config, error) {
	cfg := Config{HTTPTimeout: DefaultHTTPTimeout, Path: path}

	raw, err := os.ReadFile(path)
	fileFound := err == nil
	switch {
	case err == nil:
		var f configFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return Config{}, &Error{Path: path, Err: fmt.Errorf("parse config file: %w", err)}
		}
		cfg.Twitter = f.Twitter
		cfg.DataDir = f.DataDir
		if f.HTTPTimeout != "" {
			d, err := time.ParseDuration(f.HTTPTimeout)
			if err != nil {
				return Config{}, &Error{Path: path, Err: fmt.Errorf("http_timeout: %w", err)}
			}
			cfg.HTTPTimeout = d
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, &Error{Path: path, Err: err}
	}

	cfg.Twitter.APIKey = envOr("X_CONSUMER_KEY", cfg.Twitter.APIKey)
	cfg.Twitter.APISecret = envOr("X_CONSUMER_SECRET", cfg.Twitter.APISecret)
	cfg.Twitter.AccessToken = envOr("X_ACCESS_TOKEN", cfg.Twitter.AccessToken)
	cfg.Twitter.AccessTokenSecret = envOr("X_ACCESS_SECRET", cfg.Twitter.AccessTokenSecret)
	cfg.DataDir = envOr("XPOST_DATA_DIR", cfg.DataDir)
	if v := os.Getenv("XPOST_HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, &Error{Path: path, Err: fmt.Errorf("XPOST_HTTP_TIMEOUT: %w", err)}
		}
		cfg.HTTPTimeout = d
	}

	if cfg.DataDir == "" {
		dir, err := baseDir()
		if err != nil {
			return Config{}, &Error{Path: path, Err: err}
		}
		cfg.DataDir = dir
	}
	cfg.DataDir = expandHome(cfg.DataDir)

	if err := validate.Struct(cfg); err != nil {
		if !fileFound {
			return Config{}, &Error{Path: path, Err: fmt.Errorf("config file not found and %s\n\n%s", describe(err), Template)}
		}
		return Config{}, &Error{Path: path, Err: errors.New(describe(err))}
	}

	if fileFound {
		if err := os.Chmod(path, 0o600); err != nil {
			return Config{}, &Error{Path: path, Err: err}
		}
	}
	return cfg, nil
}

// Template is printed when no usable config exists.
const Template = `Create the config file with your X API credentials:

twitter:
  api_key: "your_api_key"
  api_secret: "your_api_secret"
  access_token: "your_access_token"
  access_token_secret: "your_access_token_secret"

Get your credentials at: https://developer.x.com/en/portal/dashboard`

var validate = validator.New(validator.WithRequiredStructEnabled())

// describe lists the missing yaml keys instead of Go field names.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	yamlNames := map[string]string{
		"APIKey":            "twitter.api_key",
		"APISecret":         "twitter.api_secret",
		"AccessToken":       "twitter.access_token",
		"AccessTokenSecret": "twitter.access_token_secret",
		"HTTPTimeout":       "http_timeout",
		"DataDir":           "data_dir",
	}
	var missing []string
	for _, fe := range verrs {
		name := yamlNames[fe.StructField()]
		if name == "" {
			name = fe.Namespace()
		}
		missing = append(missing, name+" ("+fe.Tag()+")")
	}
	return "invalid settings: " + strings.Join(missing, ", ")
}

func baseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate home directory: %w", err)
	}
	return filepath.Join(home, ".config", appDir), nil
}

func expandHome(path string) string {
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return path
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
