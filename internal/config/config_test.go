package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
http:
  listen_addr: ":8080"
  read_timeout: 5s
database:
  global_dsn: "adept:%s@tcp(127.0.0.1:3306)/adept"
  global_password: "vault:secret/adept/db#password"
  localhost_alias: dev.example.com
auth:
  signing_key: "vault:secret/adept/auth#signing_key"
  leeway: 30s
cron:
  enabled: true
  concurrency: 4
  timezone: UTC
log:
  level: debug
`

type fakeSecrets map[string]string

func (f fakeSecrets) Resolve(_ context.Context, ref string) (string, error) {
	if v, ok := f[ref]; ok {
		return v, nil
	}
	return "", errors.New("no such secret")
}

func writeRoot(t *testing.T, body string) {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "conf"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "conf", "global.yaml"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ADEPT_ROOT", root)
}

var secrets = fakeSecrets{
	"vault:secret/adept/db#password":      "dbpw",
	"vault:secret/adept/auth#signing_key": "0123456789abcdef0123456789abcdef",
}

func TestLoad_ResolvesSecretsAndOverrides(t *testing.T) {
	writeRoot(t, sampleYAML)
	t.Setenv("ADEPT_HTTP__LISTEN_ADDR", "127.0.0.1:9090")

	cfg, err := Load(context.Background(), secrets)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.ListenAddr != "127.0.0.1:9090" {
		t.Errorf("ListenAddr = %q", cfg.HTTP.ListenAddr)
	}
	if cfg.HTTP.ReadTimeout != 5*time.Second || cfg.Auth.Leeway != 30*time.Second {
		t.Errorf("durations = %v, %v", cfg.HTTP.ReadTimeout, cfg.Auth.Leeway)
	}
	if cfg.Database.GlobalPassword != "dbpw" || len(cfg.Auth.SigningKey) != 32 {
		t.Errorf("secrets not resolved: %+v", cfg.Database)
	}
	if cfg.Auth.TokenTTL != time.Hour || cfg.Cron.Concurrency != 4 {
		t.Errorf("defaults wrong: ttl=%v conc=%d", cfg.Auth.TokenTTL, cfg.Cron.Concurrency)
	}
	if Get() != cfg {
		t.Error("Get() does not return the loaded config")
	}
	if !HasSecretRefs() {
		t.Error("HasSecretRefs = false")
	}
}

func TestLoad_SecretRefWithoutSource(t *testing.T) {
	writeRoot(t, sampleYAML)
	if _, err := Load(context.Background(), nil); !errors.Is(err, ErrNoSecretSource) {
		t.Fatalf("err = %v, want ErrNoSecretSource", err)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	cases := map[string]string{
		"short key": `
database: {global_dsn: "u:%s@tcp(db)/x", global_password: pw}
auth: {signing_key: short}
`,
		"dsn without slot": `
database: {global_dsn: "u:pw@tcp(db)/x", global_password: pw}
auth: {signing_key: "0123456789abcdef0123456789abcdef"}
`,
		"bad timezone": `
database: {global_dsn: "u:%s@tcp(db)/x", global_password: pw}
auth: {signing_key: "0123456789abcdef0123456789abcdef"}
cron: {timezone: Mars/Olympus}
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			writeRoot(t, body)
			if _, err := Load(context.Background(), nil); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
