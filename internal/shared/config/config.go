package config

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"esign-backend/internal/shared/telemetry"
)

// Config holds application configuration.
type Config struct {
	Port                 string
	CORSAllowOrigin      []string
	ObjectStoreType      string
	LocalStoreDir        string
	AWSRegion            string
	S3Bucket             string
	S3Prefix             string
	SSEKMSKeyID          string
	DatabaseURL          string
	Env                  string
	GoogleClientID       string
	GoogleClientSecret   string
	GoogleRedirectURL    string
	UIRedirectURL        string
	PublicBaseURL        string
	NotifyMode           string
	SESFromAddress       string
	NotifyQueueURL       string
	BillingWebhookSecret string
	FreeSignatures       int
	MaxUploadBytes       int64
	SignRatePerSecond    float64
	SignRateBurst        int
	WorkerConcurrency    int
	WorkerVisibilitySecs int
	ShutdownTimeoutSecs  int
}

// Load reads configuration from environment variables and optional .env files.
func Load() Config {
	return LoadWithFlags(nil)
}

// LoadWithFlags is Load with command-line flags taking precedence over the environment.
// Flag names use dashes; "database-url" binds to DATABASE_URL. Only flags that
// were set are bound.
func LoadWithFlags(fs *pflag.FlagSet) Config {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	mergeEnvFiles(v, ".env", "cmd/.env")
	if fs != nil {
		fs.Visit(func(f *pflag.Flag) {
			_ = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
		})
	}
	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("env", "dev")
	v.SetDefault("cors_allow_origins", "http://localhost:5173")
	v.SetDefault("object_store", "local")
	v.SetDefault("local_store_dir", "./data")
	v.SetDefault("public_base_url", "http://localhost:5173")
	v.SetDefault("notify_mode", "log")
	v.SetDefault("free_signatures", 5)
	v.SetDefault("max_upload_bytes", 10<<20)
	v.SetDefault("sign_rate_per_second", 1.0)
	v.SetDefault("sign_rate_burst", 10)
	v.SetDefault("worker_concurrency", 4)
	v.SetDefault("worker_visibility_seconds", 120)
	v.SetDefault("shutdown_timeout_seconds", 30)
}

// mergeEnvFiles is best-effort; missing files are ignored.
func mergeEnvFiles(v *viper.Viper, paths ...string) {
	for _, path := range paths {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		_ = v.MergeInConfig()
	}
}

func fromViper(v *viper.Viper) Config {
	env := normalizeEnv(v.GetString("env"))
	dbURL := strings.TrimSpace(v.GetString("database_url"))
	if env == "production" && dbURL == "" {
		telemetry.Warn("config.database_url_missing", map[string]any{"env": env})
	}

	return Config{
		Port:                 v.GetString("port"),
		CORSAllowOrigin:      splitAndTrim(v.GetString("cors_allow_origins")),
		ObjectStoreType:      normalizeStoreType(v.GetString("object_store")),
		LocalStoreDir:        v.GetString("local_store_dir"),
		AWSRegion:            v.GetString("aws_region"),
		S3Bucket:             v.GetString("s3_bucket"),
		S3Prefix:             v.GetString("s3_prefix"),
		SSEKMSKeyID:          v.GetString("sse_kms_key_id"),
		DatabaseURL:          dbURL,
		Env:                  env,
		GoogleClientID:       v.GetString("google_client_id"),
		GoogleClientSecret:   v.GetString("google_client_secret"),
		GoogleRedirectURL:    v.GetString("google_redirect_url"),
		UIRedirectURL:        v.GetString("ui_redirect_url"),
		PublicBaseURL:        strings.TrimRight(v.GetString("public_base_url"), "/"),
		NotifyMode:           normalizeNotifyMode(v.GetString("notify_mode")),
		SESFromAddress:       v.GetString("ses_from_address"),
		NotifyQueueURL:       v.GetString("notify_queue_url"),
		BillingWebhookSecret: v.GetString("billing_webhook_secret"),
		FreeSignatures:       v.GetInt("free_signatures"),
		MaxUploadBytes:       v.GetInt64("max_upload_bytes"),
		SignRatePerSecond:    v.GetFloat64("sign_rate_per_second"),
		SignRateBurst:        v.GetInt("sign_rate_burst"),
		WorkerConcurrency:    v.GetInt("worker_concurrency"),
		WorkerVisibilitySecs: v.GetInt("worker_visibility_seconds"),
		ShutdownTimeoutSecs:  v.GetInt("shutdown_timeout_seconds"),
	}
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}

func normalizeNotifyMode(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "ses":
		return "ses"
	case "queue", "sqs":
		return "queue"
	default:
		return "log"
	}
}
