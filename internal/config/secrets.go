package config

// Redacted returns a copy of c with sensitive fields replaced by the
// redaction placeholder "***". Use this when logging or serving the active
// configuration so secrets are never exposed.
func (c *Config) Redacted() Config {
	out := *c

	redact(&out.Kalshi.ApiKey)

	redact(&out.Polymarket.PrivateKey)
	redact(&out.Polymarket.KeyPassword)
	redact(&out.Polymarket.ApiKey)
	redact(&out.Polymarket.ApiSecret)
	redact(&out.Polymarket.ApiPassphrase)

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	redact(&out.Redis.Password)

	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	redact(&out.Server.ApiKey)

	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices and maps so callers cannot mutate the original through
	// the redacted copy.
	out.Discovery.Leagues = cloneSlice(c.Discovery.Leagues)
	out.Discovery.KalshiSeries = cloneMap(c.Discovery.KalshiSeries)
	out.Discovery.PolymarketTags = cloneMap(c.Discovery.PolymarketTags)
	out.Server.CORSOrigins = cloneSlice(c.Server.CORSOrigins)
	out.Notify.Events = cloneSlice(c.Notify.Events)

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

func cloneSlice(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
