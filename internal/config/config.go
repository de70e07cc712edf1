// Package config defines the engine's configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Run modes.
const (
	ModeFull      = "full"
	ModeProvision = "provision"
	ModeSettle    = "settle"
)

// Vault key-store backends.
const (
	VaultBackendFile = "file"
	VaultBackendS3   = "s3"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by BOLD_* environment variables.
type Config struct {
	Engine   EngineConfig   `toml:"engine"`
	Solana   SolanaConfig   `toml:"solana"`
	Vault    VaultConfig    `toml:"vault"`
	Supabase SupabaseConfig `toml:"supabase"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// EngineConfig controls pass scheduling.
type EngineConfig struct {
	// Interval is shared by both tasks unless a per-task interval is set.
	Interval          duration `toml:"interval"`
	ProvisionInterval duration `toml:"provision_interval"`
	SettleInterval    duration `toml:"settle_interval"`
	// Concurrency bounds parallel items within one pass.
	Concurrency int `toml:"concurrency"`
	// DistributedLock takes a Redis lock per pass so only one instance runs
	// each task at a time. Requires redis.addr.
	DistributedLock bool     `toml:"distributed_lock"`
	LockTTL         duration `toml:"lock_ttl"`
	// RetryLedgerErrors leaves bets pending when the ledger is unreachable
	// instead of failing them.
	RetryLedgerErrors bool     `toml:"retry_ledger_errors"`
	ShutdownTimeout   duration `toml:"shutdown_timeout"`
}

// ProvisionEvery returns the provisioning interval.
func (e EngineConfig) ProvisionEvery() time.Duration {
	if e.ProvisionInterval.Duration > 0 {
		return e.ProvisionInterval.Duration
	}
	return e.Interval.Duration
}

// SettleEvery returns the settlement interval.
func (e EngineConfig) SettleEvery() time.Duration {
	if e.SettleInterval.Duration > 0 {
		return e.SettleInterval.Duration
	}
	return e.Interval.Duration
}

// SolanaConfig points the ledger client at a Solana JSON-RPC endpoint.
type SolanaConfig struct {
	RPCEndpoint string   `toml:"rpc_endpoint"`
	Commitment  string   `toml:"commitment"`
	Timeout     duration `toml:"timeout"`
}

// VaultConfig selects and secures the vault key store.
type VaultConfig struct {
	Backend string `toml:"backend"`
	// Path is the key file for the file backend.
	Path string `toml:"path"`
	// S3Key is the object key for the s3 backend (bucket from [s3]).
	S3Key string `toml:"s3_key"`
	// KeyPassword, when set, encrypts the whole key mapping at rest.
	KeyPassword       string `toml:"key_password"`
	ReuseExistingKeys bool   `toml:"reuse_existing_keys"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	AppName       string `toml:"app_name"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. An empty Addr disables Redis.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// Enabled reports whether Redis is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Addr) != ""
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// duration wraps time.Duration so TOML strings like "10s" decode.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds ops HTTP server parameters.
type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Port    int    `toml:"port"`
	APIKey  string `toml:"api_key"`
}

// NotifyConfig holds alert channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with the values in config.example.toml.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			Interval:        duration{10 * time.Second},
			Concurrency:     4,
			LockTTL:         duration{5 * time.Minute},
			ShutdownTimeout: duration{15 * time.Second},
		},
		Solana: SolanaConfig{
			Commitment: "confirmed",
			Timeout:    duration{15 * time.Second},
		},
		Vault: VaultConfig{
			Backend:           VaultBackendFile,
			Path:              "vault_keys.json",
			S3Key:             "vault/vault_keys.json",
			ReuseExistingKeys: true,
		},
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			AppName:       "boldengine",
			RunMigrations: true,
		},
		Redis: RedisConfig{
			PoolSize:   10,
			MaxRetries: 3,
			KeyPrefix:  "boldengine",
		},
		S3: S3Config{
			Region:         "us-east-1",
			UseSSL:         true,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8000,
		},
		Notify: NotifyConfig{
			Events: []string{"vault_failed", "bet_failed", "pass_aborted"},
		},
		Mode:     ModeFull,
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	ModeFull:      true,
	ModeProvision: true,
	ModeSettle:    true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validCommitments = map[string]bool{
	"confirmed": true,
	"finalized": true,
}

// Provisions reports whether the mode runs the provisioner.
func (c *Config) Provisions() bool {
	m := strings.ToLower(c.Mode)
	return m == ModeFull || m == ModeProvision
}

// Settles reports whether the mode runs the reconciler.
func (c *Config) Settles() bool {
	m := strings.ToLower(c.Mode)
	return m == ModeFull || m == ModeSettle
}

// Validate returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, provision, settle)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine
	if c.Engine.Interval.Duration <= 0 {
		errs = append(errs, "engine: interval must be > 0")
	}
	if c.Engine.ProvisionInterval.Duration < 0 || c.Engine.SettleInterval.Duration < 0 {
		errs = append(errs, "engine: per-task intervals must not be negative")
	}
	if c.Engine.Concurrency < 1 {
		errs = append(errs, "engine: concurrency must be >= 1")
	}
	if c.Engine.ShutdownTimeout.Duration <= 0 {
		errs = append(errs, "engine: shutdown_timeout must be > 0")
	}
	if c.Engine.DistributedLock {
		if !c.Redis.Enabled() {
			errs = append(errs, "engine: distributed_lock requires redis.addr")
		}
		if c.Engine.LockTTL.Duration <= 0 {
			errs = append(errs, "engine: lock_ttl must be > 0 when distributed_lock is set")
		}
	}

	// Solana
	if c.Settles() {
		if strings.TrimSpace(c.Solana.RPCEndpoint) == "" {
			errs = append(errs, "solana: rpc_endpoint is required (set BOLD_SOLANA_RPC_ENDPOINT or SOLANA_RPC_ENDPOINT)")
		}
		if !validCommitments[c.Solana.Commitment] {
			errs = append(errs, fmt.Sprintf("solana: commitment must be confirmed or finalized, got %q", c.Solana.Commitment))
		}
	}

	// Vault
	if c.Provisions() {
		switch c.Vault.Backend {
		case VaultBackendFile:
			if strings.TrimSpace(c.Vault.Path) == "" {
				errs = append(errs, "vault: path must not be empty for the file backend")
			}
		case VaultBackendS3:
			if c.S3.Bucket == "" {
				errs = append(errs, "vault: s3 backend requires s3.bucket")
			}
			if strings.TrimSpace(c.Vault.S3Key) == "" {
				errs = append(errs, "vault: s3_key must not be empty for the s3 backend")
			}
		default:
			errs = append(errs, fmt.Sprintf("vault: unknown backend %q (valid: file, s3)", c.Vault.Backend))
		}
	}

	// Supabase
	if strings.TrimSpace(c.Supabase.DSN) == "" {
		if c.Supabase.Host == "" {
			errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
		}
		if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
			errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
		}
		if c.Supabase.Database == "" {
			errs = append(errs, "supabase: database must not be empty")
		}
	}
	if c.Supabase.PoolMaxConns < 1 {
		errs = append(errs, "supabase: pool_max_conns must be >= 1")
	}
	if c.Supabase.PoolMinConns < 0 || c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
		errs = append(errs, "supabase: pool_min_conns must be between 0 and pool_max_conns")
	}

	// Redis
	if c.Redis.Enabled() && c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Server
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
