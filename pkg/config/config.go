package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	OAuth       OAuthConfig
	Storage     StorageConfig
	Realtime    RealtimeConfig
	Encryption  EncryptionConfig
	RateLimit   RateLimitConfig
	Invitations InvitationConfig
	CORS        CORSConfig
}

type ServerConfig struct {
	Host string
	Port int
	Env  string
	// Public base URL, used for OAuth redirects and invitation links
	BaseURL string
	// Signs CSRF tokens; generated when empty
	CSRFKey string
	// Overrides the environment's default log level
	LogLevel string
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxIdleConns int
	MaxOpenConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type JWTConfig struct {
	Secret      string
	ExpiryHours int
}

type OAuthConfig struct {
	Provider     string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	Scopes       []string
	// Keys for the signed state cookie
	StateHashKey  string
	StateBlockKey string
}

type StorageConfig struct {
	Backend string // memory, s3, gcs
	Bucket  string

	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3RoleARN         string
	S3ExternalID      string

	GCSCredentialsFile string
}

type RealtimeConfig struct {
	Broker string // memory, redis, postgres
	// Per-table hydration ceilings, keyed by table name
	HydrationLimits map[string]int
	BackoffInitial  time.Duration
	BackoffMax      time.Duration
}

type EncryptionConfig struct {
	Key string
	// Previous keys, still accepted for reading until a reseal runs
	Retired []string
}

type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
}

type InvitationConfig struct {
	TTLHours  int
	SweepCron string
}

type CORSConfig struct {
	AllowedOrigins []string
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (j *JWTConfig) Expiry() time.Duration {
	return time.Duration(j.ExpiryHours) * time.Hour
}

func (r *RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

func (i *InvitationConfig) TTL() time.Duration {
	return time.Duration(i.TTLHours) * time.Hour
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

var defaultHydrationLimits = map[string]int{
	"app_clients":         500,
	"app_tasks":           1000,
	"app_calendar_events": 1000,
	"app_media":           500,
	"app_members":         200,
	"app_invitations":     200,
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("SERVER_BASE_URL", "http://localhost:8080")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "agencydesk")
	v.SetDefault("DATABASE_PASSWORD", "agencydesk_secret")
	v.SetDefault("DATABASE_NAME", "agencydesk")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 10)
	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 100)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("JWT_SECRET", "change-me-in-production")
	v.SetDefault("JWT_EXPIRY_HOURS", 24)
	v.SetDefault("OAUTH_PROVIDER", "google")
	v.SetDefault("OAUTH_AUTH_URL", "https://accounts.google.com/o/oauth2/auth")
	v.SetDefault("OAUTH_TOKEN_URL", "https://oauth2.googleapis.com/token")
	v.SetDefault("OAUTH_USERINFO_URL", "https://openidconnect.googleapis.com/v1/userinfo")
	v.SetDefault("OAUTH_SCOPES", "openid,email,profile")
	v.SetDefault("STORAGE_BACKEND", "memory")
	v.SetDefault("STORAGE_BUCKET", "agencydesk-media")
	v.SetDefault("STORAGE_S3_REGION", "us-east-1")
	v.SetDefault("REALTIME_BROKER", "memory")
	v.SetDefault("REALTIME_BACKOFF_INITIAL_MS", 500)
	v.SetDefault("REALTIME_BACKOFF_MAX_MS", 30000)
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	v.SetDefault("INVITATION_TTL_HOURS", 168)
	v.SetDefault("INVITATION_SWEEP_CRON", "*/15 * * * *")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")

	// Load from .env file if present
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	limits := make(map[string]int, len(defaultHydrationLimits))
	for table, def := range defaultHydrationLimits {
		key := "REALTIME_LIMIT_" + strings.ToUpper(strings.TrimPrefix(table, "app_"))
		v.SetDefault(key, def)
		limits[table] = v.GetInt(key)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:     v.GetString("SERVER_HOST"),
			Port:     v.GetInt("SERVER_PORT"),
			Env:      v.GetString("SERVER_ENV"),
			BaseURL:  strings.TrimRight(v.GetString("SERVER_BASE_URL"), "/"),
			CSRFKey:  v.GetString("SERVER_CSRF_KEY"),
			LogLevel: v.GetString("LOG_LEVEL"),
		},
		Database: DatabaseConfig{
			Host:         v.GetString("DATABASE_HOST"),
			Port:         v.GetInt("DATABASE_PORT"),
			User:         v.GetString("DATABASE_USER"),
			Password:     v.GetString("DATABASE_PASSWORD"),
			Name:         v.GetString("DATABASE_NAME"),
			SSLMode:      v.GetString("DATABASE_SSLMODE"),
			MaxIdleConns: v.GetInt("DATABASE_MAX_IDLE_CONNS"),
			MaxOpenConns: v.GetInt("DATABASE_MAX_OPEN_CONNS"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
		},
		JWT: JWTConfig{
			Secret:      v.GetString("JWT_SECRET"),
			ExpiryHours: v.GetInt("JWT_EXPIRY_HOURS"),
		},
		OAuth: OAuthConfig{
			Provider:      v.GetString("OAUTH_PROVIDER"),
			ClientID:      v.GetString("OAUTH_CLIENT_ID"),
			ClientSecret:  v.GetString("OAUTH_CLIENT_SECRET"),
			AuthURL:       v.GetString("OAUTH_AUTH_URL"),
			TokenURL:      v.GetString("OAUTH_TOKEN_URL"),
			UserInfoURL:   v.GetString("OAUTH_USERINFO_URL"),
			Scopes:        splitList(v.GetString("OAUTH_SCOPES")),
			StateHashKey:  v.GetString("OAUTH_STATE_HASH_KEY"),
			StateBlockKey: v.GetString("OAUTH_STATE_BLOCK_KEY"),
		},
		Storage: StorageConfig{
			Backend:            v.GetString("STORAGE_BACKEND"),
			Bucket:             v.GetString("STORAGE_BUCKET"),
			S3Region:           v.GetString("STORAGE_S3_REGION"),
			S3Endpoint:         v.GetString("STORAGE_S3_ENDPOINT"),
			S3AccessKeyID:      v.GetString("STORAGE_S3_ACCESS_KEY_ID"),
			S3SecretAccessKey:  v.GetString("STORAGE_S3_SECRET_ACCESS_KEY"),
			S3RoleARN:          v.GetString("STORAGE_S3_ROLE_ARN"),
			S3ExternalID:       v.GetString("STORAGE_S3_EXTERNAL_ID"),
			GCSCredentialsFile: v.GetString("STORAGE_GCS_CREDENTIALS_FILE"),
		},
		Realtime: RealtimeConfig{
			Broker:          v.GetString("REALTIME_BROKER"),
			HydrationLimits: limits,
			BackoffInitial:  time.Duration(v.GetInt("REALTIME_BACKOFF_INITIAL_MS")) * time.Millisecond,
			BackoffMax:      time.Duration(v.GetInt("REALTIME_BACKOFF_MAX_MS")) * time.Millisecond,
		},
		Encryption: EncryptionConfig{
			Key:     v.GetString("ENCRYPTION_KEY"),
			Retired: splitList(v.GetString("ENCRYPTION_RETIRED_KEYS")),
		},
		RateLimit: RateLimitConfig{
			Requests:      v.GetInt("RATE_LIMIT_REQUESTS"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Invitations: InvitationConfig{
			TTLHours:  v.GetInt("INVITATION_TTL_HOURS"),
			SweepCron: v.GetString("INVITATION_SWEEP_CRON"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
