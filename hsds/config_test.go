package hsds

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".hsconfig")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, `
endpoint = "https://hsds.example.org"
username = "alice"
password = "secret"
bucket = "data"
retry_limit = 3
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Endpoint != "https://hsds.example.org" {
		t.Errorf("Endpoint: got %q", cfg.Endpoint)
	}
	if cfg.Username != "alice" || cfg.Password != "secret" {
		t.Errorf("credentials: got %q / %q", cfg.Username, cfg.Password)
	}
	if cfg.Bucket != "data" || cfg.RetryLimit != 3 {
		t.Errorf("bucket/retries: got %q / %d", cfg.Bucket, cfg.RetryLimit)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := writeConfigFile(t, `
endpoint = "https://file.example.org"
username = "fileuser"
`)
	t.Setenv("HS_ENDPOINT", "https://env.example.org")
	t.Setenv("HS_API_KEY", "token123")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Endpoint != "https://env.example.org" {
		t.Errorf("environment should win, got %q", cfg.Endpoint)
	}
	if cfg.Username != "fileuser" {
		t.Errorf("unset variables keep file values, got %q", cfg.Username)
	}
	if cfg.APIKey != "token123" {
		t.Errorf("APIKey: got %q", cfg.APIKey)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv("HS_ENDPOINT", "https://only-env.example.org")
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.Endpoint != "https://only-env.example.org" {
		t.Errorf("Endpoint: got %q", cfg.Endpoint)
	}
}

func TestLoadConfigMalformed(t *testing.T) {
	path := writeConfigFile(t, "endpoint = [not toml")
	if _, err := LoadConfig(path); err == nil {
		t.Error("malformed config should fail")
	}
}
