// internal/config/model.go
//
// Typed configuration model for the plugin host.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                         – dotenv values,
//   • `conf/global.yaml`                      – primary static file,
//   • `ADEPT_`-prefixed environment overrides – highest precedence.
//
// Any value whose string begins with the prefix `vault:` is resolved
// through the SecretSource *before* unmarshalling, so the model never
// stores Vault URIs, only plain strings.
//
// Validation happens immediately after unmarshal; the app fails fast if
// required fields are missing.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`.
//   • Durations accept Go syntax ("15s", "1m").
//   • The `Paths` block is filled at runtime; YAML must not try to set it.
//   • Oxford commas, two spaces after periods.  No em-dash.

package config

import "time"

//
// HTTP section
//

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr   string        `koanf:"listen_addr"   validate:"required,hostname_port"`
	ForceHTTPS   bool          `koanf:"force_https"`
	ReadTimeout  time.Duration `koanf:"read_timeout"  validate:"gte=0"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"gte=0"`
	IdleTimeout  time.Duration `koanf:"idle_timeout"  validate:"gte=0"`
}

//
// Database section
//

// Database holds the shared pool settings.
//
// The *template* (`GlobalDSN`) is kept in YAML so operators can tweak
// host, port, or flags without touching Vault.  The *secret* portion
// (`GlobalPassword`) is usually a `vault:` reference, keeping credentials
// out of flat files and git history.
type Database struct {
	GlobalDSN      string `koanf:"global_dsn"      validate:"required,dsntemplate"`
	GlobalPassword string `koanf:"global_password" validate:"required"`
	MaxOpen        int    `koanf:"max_open"        validate:"gte=0"`
	MaxIdle        int    `koanf:"max_idle"        validate:"gte=0"`
	LocalhostAlias string `koanf:"localhost_alias"`
}

//
// Auth section
//

// Auth configures credential verification.
type Auth struct {
	SigningKey string        `koanf:"signing_key" validate:"required,min=32"`
	Issuer     string        `koanf:"issuer"`
	Leeway     time.Duration `koanf:"leeway"      validate:"gte=0,lte=5m"`
	CookieName string        `koanf:"cookie_name"`
	TokenTTL   time.Duration `koanf:"token_ttl"   validate:"gte=0"`
}

//
// Cron section
//

// Cron configures the job scheduler.
type Cron struct {
	Enabled     bool   `koanf:"enabled"`
	Concurrency int    `koanf:"concurrency" validate:"gte=1,lte=256"`
	Timezone    string `koanf:"timezone"    validate:"required,timezone"`
}

//
// Log and GeoIP sections
//

// Log configures the zap logger.
type Log struct {
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
	Tee   bool   `koanf:"tee"`
}

// GeoIP points at an optional MaxMind City database.
type GeoIP struct {
	Path string `koanf:"path" validate:"omitempty,file"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime, never set in YAML or env.
type Paths struct {
	Root string // ADEPT_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads throughout the app lifetime.
type Config struct {
	HTTP     HTTP     `koanf:"http"`
	Database Database `koanf:"database"`
	Auth     Auth     `koanf:"auth"`
	Cron     Cron     `koanf:"cron"`
	Log      Log      `koanf:"log"`
	GeoIP    GeoIP    `koanf:"geoip"`
	Paths    Paths    `koanf:"-"` // not loaded from config files
}

// applyDefaults fills zero values the YAML may omit.
func (c *Config) applyDefaults() {
	if c.HTTP.ListenAddr == "" {
		c.HTTP.ListenAddr = ":8080"
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = time.Hour
	}
	if c.Cron.Concurrency == 0 {
		c.Cron.Concurrency = 8
	}
	if c.Cron.Timezone == "" {
		c.Cron.Timezone = "UTC"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
