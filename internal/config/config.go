package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the runtime configuration of the platform API
type Config struct {
	Port        string
	Environment string
	LogLevel    slog.Level
	FrontendURL string

	DatabaseURL string
	RedisURL    string

	Auth      AuthConfig
	Casdoor   CasdoorConfig
	MFA       MFAConfig
	Google    GoogleConfig
	Stripe    StripeConfig
	SendGrid  SendGridConfig
	Kafka     KafkaConfig
	Rollbar   RollbarConfig
	RateLimit RateLimitConfig
	Supabase  SupabaseConfig

	// EnrollmentAccess limits how long an enrollment unlocks a course; zero means lifetime access
	EnrollmentAccess time.Duration
}

// AuthConfig controls which access tokens are accepted and how platform sessions are signed
type AuthConfig struct {
	Provider          string // supabase | casdoor
	SupabaseJWTSecret string
	SessionSecret     string
	SessionTTL        time.Duration
	CookieSecret      string
}

type CasdoorConfig struct {
	Endpoint     string
	ClientID     string
	ClientSecret string
	Cert         string
	Organization string
	Application  string
}

type MFAConfig struct {
	EncryptionKey string
	Issuer        string
	MaxAttempts   int
	LockoutWindow time.Duration
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type StripeConfig struct {
	Enabled       bool
	SecretKey     string
	WebhookSecret string
	Currency      string
	SuccessURL    string
	CancelURL     string
	PortalReturn  string
}

type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

type KafkaConfig struct {
	Brokers       []string
	ConsumerGroup string
}

type RollbarConfig struct {
	Token       string
	CodeVersion string
}

type RateLimitConfig struct {
	Enabled         bool
	RequestsPerMin  int
	AuthRequestsMin int
}

type SupabaseConfig struct {
	URL            string
	ServiceRoleKey string
	VideoBucket    string
}

// LoadConfig reads .env (when present) and the process environment
func LoadConfig() (*Config, error) {
	// Missing .env is expected outside local development
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Port:        v.GetString("PORT"),
		Environment: v.GetString("ENVIRONMENT"),
		LogLevel:    parseLogLevel(v.GetString("LOG_LEVEL")),
		FrontendURL: strings.TrimRight(v.GetString("FRONTEND_URL"), "/"),
		DatabaseURL: v.GetString("DATABASE_URL"),
		RedisURL:    v.GetString("REDIS_URL"),
		Auth: AuthConfig{
			Provider:          strings.ToLower(v.GetString("AUTH_PROVIDER")),
			SupabaseJWTSecret: v.GetString("SUPABASE_JWT_SECRET"),
			SessionSecret:     v.GetString("SESSION_SECRET"),
			SessionTTL:        v.GetDuration("SESSION_TTL"),
			CookieSecret:      v.GetString("COOKIE_SECRET"),
		},
		Casdoor: CasdoorConfig{
			Endpoint:     v.GetString("CASDOOR_ENDPOINT"),
			ClientID:     v.GetString("CASDOOR_CLIENT_ID"),
			ClientSecret: v.GetString("CASDOOR_CLIENT_SECRET"),
			Cert:         v.GetString("CASDOOR_CERT"),
			Organization: v.GetString("CASDOOR_ORGANIZATION"),
			Application:  v.GetString("CASDOOR_APPLICATION"),
		},
		MFA: MFAConfig{
			EncryptionKey: v.GetString("MFA_ENCRYPTION_KEY"),
			Issuer:        v.GetString("MFA_ISSUER"),
			MaxAttempts:   v.GetInt("MFA_MAX_ATTEMPTS"),
			LockoutWindow: v.GetDuration("MFA_LOCKOUT_WINDOW"),
		},
		Google: GoogleConfig{
			ClientID:     v.GetString("GOOGLE_CLIENT_ID"),
			ClientSecret: v.GetString("GOOGLE_CLIENT_SECRET"),
			RedirectURL:  v.GetString("GOOGLE_REDIRECT_URL"),
		},
		Stripe: StripeConfig{
			Enabled:       v.GetBool("STRIPE_ENABLED"),
			SecretKey:     v.GetString("STRIPE_SECRET_KEY"),
			WebhookSecret: v.GetString("STRIPE_WEBHOOK_SECRET"),
			Currency:      strings.ToLower(v.GetString("STRIPE_CURRENCY")),
			SuccessURL:    v.GetString("STRIPE_SUCCESS_URL"),
			CancelURL:     v.GetString("STRIPE_CANCEL_URL"),
			PortalReturn:  v.GetString("STRIPE_PORTAL_RETURN_URL"),
		},
		SendGrid: SendGridConfig{
			APIKey:    v.GetString("SENDGRID_API_KEY"),
			FromEmail: v.GetString("MAIL_FROM_EMAIL"),
			FromName:  v.GetString("MAIL_FROM_NAME"),
		},
		Kafka: KafkaConfig{
			Brokers:       splitList(v.GetString("KAFKA_BROKERS")),
			ConsumerGroup: v.GetString("KAFKA_CONSUMER_GROUP"),
		},
		Rollbar: RollbarConfig{
			Token:       v.GetString("ROLLBAR_TOKEN"),
			CodeVersion: v.GetString("APP_VERSION"),
		},
		RateLimit: RateLimitConfig{
			Enabled:         v.GetBool("RATE_LIMIT_ENABLED"),
			RequestsPerMin:  v.GetInt("RATE_LIMIT_PER_MINUTE"),
			AuthRequestsMin: v.GetInt("RATE_LIMIT_AUTH_PER_MINUTE"),
		},
		Supabase: SupabaseConfig{
			URL:            v.GetString("SUPABASE_URL"),
			ServiceRoleKey: v.GetString("SUPABASE_SERVICE_ROLE_KEY"),
			VideoBucket:    v.GetString("SUPABASE_VIDEO_BUCKET"),
		},
		EnrollmentAccess: v.GetDuration("ENROLLMENT_ACCESS_PERIOD"),
	}

	if cfg.Stripe.SuccessURL == "" {
		cfg.Stripe.SuccessURL = cfg.FrontendURL + "/odeme/basarili?session_id={CHECKOUT_SESSION_ID}"
	}
	if cfg.Stripe.CancelURL == "" {
		cfg.Stripe.CancelURL = cfg.FrontendURL + "/odeme/iptal"
	}
	if cfg.Stripe.PortalReturn == "" {
		cfg.Stripe.PortalReturn = cfg.FrontendURL + "/hesabim"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")
	v.SetDefault("AUTH_PROVIDER", "supabase")
	v.SetDefault("SESSION_TTL", 24*time.Hour)
	v.SetDefault("MFA_ISSUER", "7P Education")
	v.SetDefault("MFA_MAX_ATTEMPTS", 5)
	v.SetDefault("MFA_LOCKOUT_WINDOW", 15*time.Minute)
	v.SetDefault("STRIPE_ENABLED", false)
	v.SetDefault("STRIPE_CURRENCY", "try")
	v.SetDefault("MAIL_FROM_EMAIL", "noreply@7peducation.com")
	v.SetDefault("MAIL_FROM_NAME", "7P Education")
	v.SetDefault("KAFKA_CONSUMER_GROUP", "7p-platform")
	v.SetDefault("APP_VERSION", "dev")
	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 100)
	v.SetDefault("RATE_LIMIT_AUTH_PER_MINUTE", 10)
	v.SetDefault("SUPABASE_VIDEO_BUCKET", "course-videos")
}

// Validate enforces the secrets a production deployment cannot run without
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.Auth.Provider != "supabase" && c.Auth.Provider != "casdoor" {
		return fmt.Errorf("AUTH_PROVIDER must be supabase or casdoor, got %q", c.Auth.Provider)
	}
	if !c.IsProduction() {
		return nil
	}

	var missing []string
	if c.Auth.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}
	if c.Auth.Provider == "supabase" && c.Auth.SupabaseJWTSecret == "" {
		missing = append(missing, "SUPABASE_JWT_SECRET")
	}
	if c.MFA.EncryptionKey == "" {
		missing = append(missing, "MFA_ENCRYPTION_KEY")
	}
	if c.Stripe.Enabled {
		if c.Stripe.SecretKey == "" {
			missing = append(missing, "STRIPE_SECRET_KEY")
		}
		if c.Stripe.WebhookSecret == "" {
			missing = append(missing, "STRIPE_WEBHOOK_SECRET")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required production settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
