package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"X_CONSUMER_KEY", "X_CONSUMER_SECRET", "X_ACCESS_TOKEN", "X_ACCESS_SECRET",
		"XPOST_DATA_DIR", "XPOST_HTTP_TIMEOUT", "XPOST_CONFIG",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

const full = `
twitter:
  api_key: k
  api_secret: s
  access_token: t
  access_token_secret: ts
http_timeout: 10s
data_dir: /tmp/xpost-data
`

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	p := writeConfig(t, full)

	cfg, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	creds := cfg.Credentials()
	if creds.ConsumerKey != "k" || creds.ConsumerSecret != "s" || creds.AccessToken != "t" || creds.AccessSecret != "ts" {
		t.Errorf("credentials = %+v", creds)
	}
	if cfg.HTTPTimeout != 10*time.Second {
		t.Errorf("timeout = %v", cfg.HTTPTimeout)
	}
	if cfg.DBPath() != "/tmp/xpost-data/xpost.db" {
		t.Errorf("db path = %s", cfg.DBPath())
	}

	fi, _ := os.Stat(p)
	if fi.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", fi.Mode().Perm())
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	p := writeConfig(t, full)
	t.Setenv("X_CONSUMER_KEY", "env-key")
	t.Setenv("XPOST_HTTP_TIMEOUT", "2s")

	cfg, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Twitter.APIKey != "env-key" || cfg.Twitter.APISecret != "s" {
		t.Errorf("twitter = %+v", cfg.Twitter)
	}
	if cfg.HTTPTimeout != 2*time.Second {
		t.Errorf("timeout = %v", cfg.HTTPTimeout)
	}
}

func TestLoad_EnvOnlyWithoutFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("X_CONSUMER_KEY", "k")
	t.Setenv("X_CONSUMER_SECRET", "s")
	t.Setenv("X_ACCESS_TOKEN", "t")
	t.Setenv("X_ACCESS_SECRET", "ts")
	t.Setenv("XPOST_DATA_DIR", t.TempDir())

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPTimeout != DefaultHTTPTimeout {
		t.Errorf("timeout = %v", cfg.HTTPTimeout)
	}
}

func TestLoad_MissingFileShowsTemplate(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *Error, got %T %v", err, err)
	}
	if !strings.Contains(err.Error(), "api_key:") || !strings.Contains(err.Error(), "developer.x.com") {
		t.Errorf("error should include the template: %v", err)
	}
}

func TestLoad_MissingFields(t *testing.T) {
	clearEnv(t)
	p := writeConfig(t, "twitter:\n  api_key: k\n")
	_, err := Load(p)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"twitter.api_secret", "twitter.access_token", "twitter.access_token_secret"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not name %s", err, want)
		}
	}
	if strings.Contains(err.Error(), "twitter.api_key ") {
		t.Errorf("api_key is set but reported: %v", err)
	}
}

func TestLoad_BadYAMLAndDuration(t *testing.T) {
	clearEnv(t)
	if _, err := Load(writeConfig(t, "twitter: [")); err == nil || !strings.Contains(err.Error(), "parse config file") {
		t.Errorf("bad yaml err = %v", err)
	}
	if _, err := Load(writeConfig(t, full+"\n")); err != nil {
		t.Fatal(err)
	}
	bad := strings.Replace(full, "10s", "ten seconds", 1)
	if _, err := Load(writeConfig(t, bad)); err == nil || !strings.Contains(err.Error(), "http_timeout") {
		t.Errorf("bad duration err = %v", err)
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XPOST_CONFIG", "/etc/xpost.yaml")
	if p, _ := DefaultPath(); p != "/etc/xpost.yaml" {
		t.Errorf("DefaultPath = %s", p)
	}
	t.Setenv("XPOST_CONFIG", "")
	p, err := DefaultPath()
	if err != nil {
		t.Skip("no home dir")
	}
	if !strings.HasSuffix(p, filepath.Join(".config", "xpost", "config.yaml")) {
		t.Errorf("DefaultPath = %s", p)
	}
}

func TestDefaultDataDir(t *testing.T) {
	t.Setenv("XPOST_DATA_DIR", "/var/lib/xpost")
	if d, _ := DefaultDataDir(); d != "/var/lib/xpost" {
		t.Errorf("DefaultDataDir = %s", d)
	}
}
