package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies OPTIONSD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known OPTIONSD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Ledger ──
	setStr(&cfg.Ledger.Store, "OPTIONSD_LEDGER_STORE")
	setStr(&cfg.Ledger.ProgramID, "OPTIONSD_LEDGER_PROGRAM_ID")
	setInt(&cfg.Ledger.RecentHashWindow, "OPTIONSD_LEDGER_RECENT_HASH_WINDOW")
	setInt(&cfg.Ledger.MaxCommitRetries, "OPTIONSD_LEDGER_MAX_COMMIT_RETRIES")
	setBool(&cfg.Ledger.DistributedLocks, "OPTIONSD_LEDGER_DISTRIBUTED_LOCKS")
	setDuration(&cfg.Ledger.LockTTL, "OPTIONSD_LEDGER_LOCK_TTL")
	setDuration(&cfg.Ledger.LockWait, "OPTIONSD_LEDGER_LOCK_WAIT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "OPTIONSD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "OPTIONSD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "OPTIONSD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "OPTIONSD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "OPTIONSD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "OPTIONSD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "OPTIONSD_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "OPTIONSD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "OPTIONSD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "OPTIONSD_POSTGRES_RUN_MIGRATIONS")

	// ── SQLite ──
	setStr(&cfg.SQLite.Path, "OPTIONSD_SQLITE_PATH")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "OPTIONSD_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "OPTIONSD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "OPTIONSD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "OPTIONSD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "OPTIONSD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "OPTIONSD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "OPTIONSD_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.CacheTTL, "OPTIONSD_REDIS_CACHE_TTL")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "OPTIONSD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "OPTIONSD_S3_REGION")
	setStr(&cfg.S3.Bucket, "OPTIONSD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "OPTIONSD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "OPTIONSD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "OPTIONSD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "OPTIONSD_S3_FORCE_PATH_STYLE")

	// ── Kafka ──
	setBool(&cfg.Kafka.Enabled, "OPTIONSD_KAFKA_ENABLED")
	setStringSlice(&cfg.Kafka.Brokers, "OPTIONSD_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "OPTIONSD_KAFKA_TOPIC")
	setStr(&cfg.Kafka.ClientID, "OPTIONSD_KAFKA_CLIENT_ID")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "OPTIONSD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "OPTIONSD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "OPTIONSD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "OPTIONSD_SERVER_API_KEY")
	setFloat64(&cfg.Server.RateLimitRPS, "OPTIONSD_SERVER_RATE_LIMIT_RPS")
	setInt(&cfg.Server.RateLimitBurst, "OPTIONSD_SERVER_RATE_LIMIT_BURST")

	// ── Admin ──
	setStr(&cfg.Admin.PrivateKey, "OPTIONSD_ADMIN_PRIVATE_KEY")
	setStr(&cfg.Admin.EncryptedKeyPath, "OPTIONSD_ADMIN_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Admin.KeyPassword, "OPTIONSD_ADMIN_KEY_PASSWORD")
	setStr(&cfg.Admin.AssetMint, "OPTIONSD_ADMIN_ASSET_MINT")
	setInt(&cfg.Admin.MintDecimals, "OPTIONSD_ADMIN_MINT_DECIMALS")
	setUint64(&cfg.Admin.FeeRatePercent, "OPTIONSD_ADMIN_FEE_RATE_PERCENT")
	setBool(&cfg.Admin.Bootstrap, "OPTIONSD_ADMIN_BOOTSTRAP")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "OPTIONSD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "OPTIONSD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "OPTIONSD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "OPTIONSD_NOTIFY_EVENTS")

	// ── Archive / Tracker ──
	setBool(&cfg.Archive.Enabled, "OPTIONSD_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "OPTIONSD_ARCHIVE_INTERVAL")
	setStr(&cfg.Archive.Prefix, "OPTIONSD_ARCHIVE_PREFIX")
	setBool(&cfg.Tracker.Enabled, "OPTIONSD_TRACKER_ENABLED")
	setDuration(&cfg.Tracker.Interval, "OPTIONSD_TRACKER_INTERVAL")

	// ── Top-level ──
	setStr(&cfg.Mode, "OPTIONSD_MODE")
	setStr(&cfg.LogLevel, "OPTIONSD_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

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

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
