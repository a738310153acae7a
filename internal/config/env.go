package config

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. CPCAL_LISTEN.
const EnvPrefix = "CPCAL"

// ApplyEnv overrides cfg with environment variables. Keys mirror the YAML
// layout with "." replaced by "_": feed.api_key -> CPCAL_FEED_API_KEY.
// Secrets (API keys, DSNs, tokens) are usually supplied this way instead of
// being written to the config file.
func ApplyEnv(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	str := func(key string, dst *string) {
		_ = v.BindEnv(key)
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	num := func(key string, dst *int) {
		_ = v.BindEnv(key)
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
	flag := func(key string, dst *bool) {
		_ = v.BindEnv(key)
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}
	list := func(key string, dst *[]string) {
		_ = v.BindEnv(key)
		if v.IsSet(key) {
			*dst = splitList(v.GetString(key))
		}
	}

	str("listen", &cfg.Listen)
	str("metrics_listen", &cfg.MetricsListen)
	str("timezone", &cfg.Timezone)
	str("week_start", &cfg.WeekStart)
	str("log_level", &cfg.LogLevel)
	str("refresh", &cfg.RefreshCron)
	flag("remind_bookmarks", &cfg.RemindBookmarks)

	str("feed.kind", &cfg.Feed.Kind)
	str("feed.url", &cfg.Feed.URL)
	str("feed.calendar_id", &cfg.Feed.CalendarID)
	str("feed.api_key", &cfg.Feed.APIKey)
	str("feed.cache_dir", &cfg.Feed.CacheDir)
	num("feed.retry_count", &cfg.Feed.RetryCount)

	str("store.driver", &cfg.Store.Driver)
	str("store.dsn", &cfg.Store.DSN)
	str("store.redis_addr", &cfg.Store.RedisAddr)
	str("store.redis_password", &cfg.Store.RedisPassword)
	num("store.redis_db", &cfg.Store.RedisDB)

	list("solutions.channels", &cfg.Solutions.Channels)

	str("notify.webhook_url", &cfg.Notify.WebhookURL)
	list("notify.kafka.brokers", &cfg.Notify.Kafka.Brokers)
	str("notify.kafka.topic", &cfg.Notify.Kafka.Topic)
	str("notify.telegram.token", &cfg.Notify.Telegram.Token)
	_ = v.BindEnv("notify.telegram.chat_id")
	if v.IsSet("notify.telegram.chat_id") {
		cfg.Notify.Telegram.ChatID = v.GetInt64("notify.telegram.chat_id")
	}
	str("notify.smtp.host", &cfg.Notify.SMTP.Host)
	num("notify.smtp.port", &cfg.Notify.SMTP.Port)
	str("notify.smtp.username", &cfg.Notify.SMTP.Username)
	str("notify.smtp.password", &cfg.Notify.SMTP.Password)
	str("notify.smtp.from", &cfg.Notify.SMTP.From)

	var user, pass, hash string
	str("basic_auth.username", &user)
	str("basic_auth.password", &pass)
	str("basic_auth.password_hash", &hash)
	if user != "" {
		cfg.BasicAuth = &BasicAuthConfig{Username: user, Password: pass, PasswordHash: hash}
	}

	cfg.Normalize()
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
