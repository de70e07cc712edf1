package config

// RedactedConfig returns a copy of cfg with every secret replaced by "***",
// for logging the active configuration.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Vault.KeyPassword)

	redact(&out.Supabase.DSN)
	redact(&out.Supabase.Password)

	redact(&out.Redis.Password)

	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	redact(&out.Server.APIKey)

	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// RPC providers embed API keys in the URL path or query.
	redact(&out.Solana.RPCEndpoint)

	if cfg.Notify.Events != nil {
		out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	}

	return out
}

const redacted = "***"

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
