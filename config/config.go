package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	OAuth      OAuthConfig      `mapstructure:"oauth"`
	Cloudinary CloudinaryConfig `mapstructure:"cloudinary"`
	Firebase   FirebaseConfig   `mapstructure:"firebase"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	SendGrid   SendGridConfig   `mapstructure:"sendgrid"`
	Help       HelpConfig       `mapstructure:"help"`
	Chat       ChatConfig       `mapstructure:"chat"`
	Admin      AdminConfig      `mapstructure:"admin"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Env          string        `mapstructure:"env"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
	RateLimit    int           `mapstructure:"rate_limit"`
	RateWindow   time.Duration `mapstructure:"rate_window"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type JWTConfig struct {
	AccessSecret  string        `mapstructure:"access_secret"`
	RefreshSecret string        `mapstructure:"refresh_secret"`
	AccessExpiry  time.Duration `mapstructure:"access_expiry"`
	RefreshExpiry time.Duration `mapstructure:"refresh_expiry"`
	Issuer        string        `mapstructure:"issuer"`
}

type OAuthConfig struct {
	GoogleClientID     string `mapstructure:"google_client_id"`
	GoogleClientSecret string `mapstructure:"google_client_secret"`
	GoogleRedirectURL  string `mapstructure:"google_redirect_url"`
}

type CloudinaryConfig struct {
	CloudName string `mapstructure:"cloud_name"`
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	Folder    string `mapstructure:"folder"`
}

// FirebaseConfig enables FCM push when ServiceAccountPath is set.
type FirebaseConfig struct {
	ServiceAccountPath string `mapstructure:"service_account_path"`
}

// RedisConfig: empty URL falls back to the in-memory typing store.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type SendGridConfig struct {
	APIKey   string `mapstructure:"api_key"`
	From     string `mapstructure:"from"`
	FromName string `mapstructure:"from_name"`
}

type HelpConfig struct {
	// PaymentWindow is how long a PENDING assignment waits for proof before it expires.
	PaymentWindow  time.Duration `mapstructure:"payment_window"`
	ExpirySchedule string        `mapstructure:"expiry_schedule"`
	AuditSchedule  string        `mapstructure:"audit_schedule"`
	CandidateLimit int           `mapstructure:"candidate_limit"`
	RetryAfter     time.Duration `mapstructure:"retry_after"`
}

type ChatConfig struct {
	TypingTTL time.Duration `mapstructure:"typing_ttl"`
	PageSize  int           `mapstructure:"page_size"`
}

type AdminConfig struct {
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8099")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.rate_limit", 100)
	v.SetDefault("server.rate_window", 60*time.Second)

	v.SetDefault("database.dsn", "hh:hh@tcp(localhost:3306)/hhfoundation?charset=utf8mb4&parseTime=True&loc=Local")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("jwt.access_secret", "change-me-in-production")
	v.SetDefault("jwt.refresh_secret", "change-me-refresh")
	v.SetDefault("jwt.access_expiry", 15*time.Minute)
	v.SetDefault("jwt.refresh_expiry", 168*time.Hour)
	v.SetDefault("jwt.issuer", "hhfoundation")

	// keys without a usable default are still registered so HH_* env vars bind to them
	for _, k := range []string{
		"oauth.google_client_id", "oauth.google_client_secret", "oauth.google_redirect_url",
		"cloudinary.cloud_name", "cloudinary.api_key", "cloudinary.api_secret",
		"firebase.service_account_path", "redis.url", "sendgrid.api_key",
	} {
		v.SetDefault(k, "")
	}
	v.SetDefault("kafka.brokers", []string{})

	v.SetDefault("cloudinary.folder", "hhfoundation")
	v.SetDefault("kafka.topic", "help-events")
	v.SetDefault("sendgrid.from", "support@hhfoundation.local")
	v.SetDefault("sendgrid.from_name", "HH Foundation")

	v.SetDefault("help.payment_window", 24*time.Hour)
	v.SetDefault("help.expiry_schedule", "0 */5 * * * *")
	v.SetDefault("help.audit_schedule", "0 30 3 * * *")
	v.SetDefault("help.candidate_limit", 50)
	v.SetDefault("help.retry_after", 30*time.Second)

	v.SetDefault("chat.typing_ttl", 3*time.Second)
	v.SetDefault("chat.page_size", 50)

	v.SetDefault("admin.email", "admin@hhfoundation.local")
	v.SetDefault("admin.password", "change-me-admin")
}

// Load reads config from path (optional), HH_* environment variables and a local .env file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("HH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	return &cfg, nil
}
