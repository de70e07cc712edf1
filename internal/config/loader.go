package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads the TOML file at path over the built-in defaults, loads .env if
// present, and applies BOLD_* environment overrides. An empty path skips the
// file so the engine can be configured from the environment alone. Unknown
// TOML keys are rejected. The result has NOT been validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides overwrites fields whose BOLD_* variable is set and
// non-empty, so secrets can be injected at deploy time.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setDuration(&cfg.Engine.Interval, "BOLD_ENGINE_INTERVAL")
	setMillis(&cfg.Engine.Interval, "BOLD_ENGINE_INTERVAL_MS")
	setDuration(&cfg.Engine.ProvisionInterval, "BOLD_ENGINE_PROVISION_INTERVAL")
	setDuration(&cfg.Engine.SettleInterval, "BOLD_ENGINE_SETTLE_INTERVAL")
	setInt(&cfg.Engine.Concurrency, "BOLD_ENGINE_CONCURRENCY")
	setBool(&cfg.Engine.DistributedLock, "BOLD_ENGINE_DISTRIBUTED_LOCK")
	setDuration(&cfg.Engine.LockTTL, "BOLD_ENGINE_LOCK_TTL")
	setBool(&cfg.Engine.RetryLedgerErrors, "BOLD_ENGINE_RETRY_LEDGER_ERRORS")

	// ── Solana ──
	setStr(&cfg.Solana.RPCEndpoint, "SOLANA_RPC_ENDPOINT") // web application's .env name
	setStr(&cfg.Solana.RPCEndpoint, "BOLD_SOLANA_RPC_ENDPOINT")
	setStr(&cfg.Solana.Commitment, "BOLD_SOLANA_COMMITMENT")
	setDuration(&cfg.Solana.Timeout, "BOLD_SOLANA_TIMEOUT")

	// ── Vault ──
	setStr(&cfg.Vault.Backend, "BOLD_VAULT_BACKEND")
	setStr(&cfg.Vault.Path, "BOLD_VAULT_PATH")
	setStr(&cfg.Vault.S3Key, "BOLD_VAULT_S3_KEY")
	setStr(&cfg.Vault.KeyPassword, "BOLD_VAULT_KEY_PASSWORD")
	setBool(&cfg.Vault.ReuseExistingKeys, "BOLD_VAULT_REUSE_EXISTING_KEYS")

	// ── Supabase ──
	setStr(&cfg.Supabase.DSN, "BOLD_SUPABASE_DSN")
	setStr(&cfg.Supabase.Host, "BOLD_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "BOLD_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "BOLD_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "BOLD_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "BOLD_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "BOLD_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "BOLD_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "BOLD_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "BOLD_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "BOLD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BOLD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BOLD_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "BOLD_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "BOLD_REDIS_KEY_PREFIX")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "BOLD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BOLD_S3_REGION")
	setStr(&cfg.S3.Bucket, "BOLD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BOLD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BOLD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "BOLD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "BOLD_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "BOLD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "BOLD_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "BOLD_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "BOLD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "BOLD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "BOLD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "BOLD_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "BOLD_MODE")
	setStr(&cfg.LogLevel, "BOLD_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the variable is
// present, non-empty and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

// setMillis reads a plain integer number of milliseconds.
func setMillis(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			dst.Duration = time.Duration(ms) * time.Millisecond
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
