// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	LogLevel    string
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	Redis       RedisConfig
	Storage     StorageConfig
	AWS         AWSConfig
	Minio       MinioConfig
	GCS         GCSConfig
	Email       EmailConfig
	Twilio      TwilioConfig
	Extraction  ExtractionConfig
	Signing     SigningConfig
	Dispatch    DispatchConfig
	I18n        I18nConfig
	CORS        CORSConfig
	Telemetry   TelemetryConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
	// Requests per minute per client IP
	RateLimit        int
	SigningRateLimit int
	UploadRateLimit  int
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

type JWTConfig struct {
	SecretKey      string
	Issuer         string
	AccessTokenTTL int // in hours
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// StorageConfig selects the Document Store driver: s3, minio, gcs or local.
type StorageConfig struct {
	Driver        string
	LocalPath     string
	PublicBaseURL string
	MaxUploadMB   int
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
	CloudFrontURL   string
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	Bucket          string
	CredentialsFile string
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	FromName     string
}

type TwilioConfig struct {
	AccountSID   string
	AuthToken    string
	FromNumber   string
	WhatsAppFrom string
	BaseURL      string
}

// ExtractionConfig selects the digitization engine: documentai, webhook or manual.
type ExtractionConfig struct {
	Engine              string
	DocumentAIProject   string
	DocumentAILocation  string
	DocumentAIProcessor string
	WebhookURL          string
	WebhookToken        string
	WebhookCallbackURL  string
	WebhookSeed         string
	TimeoutSeconds      int
}

type SigningConfig struct {
	BaseURL              string
	DefaultExpiryDays    int
	MaxExpiryDays        int
	SweepIntervalSeconds int
	MutateRetries        int
	AsyncCompletion      bool
	DealershipName       string
}

// DispatchConfig selects the notification queue: memory or redis.
type DispatchConfig struct {
	Driver      string
	Workers     int
	MaxAttempts int
	QueueSize   int
	QueueKey    string
}

type I18nConfig struct {
	DefaultLocale string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type TelemetryConfig struct {
	ServiceName string
	Version     string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 30),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),

			RateLimit:        getEnvAsInt("RATE_LIMIT_PER_MINUTE", 600),
			SigningRateLimit: getEnvAsInt("SIGNING_RATE_LIMIT_PER_MINUTE", 30),
			UploadRateLimit:  getEnvAsInt("UPLOAD_RATE_LIMIT_PER_MINUTE", 10),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "dealer_contracts"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "warn"),
		},
		JWT: JWTConfig{
			SecretKey:      getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			Issuer:         getEnv("JWT_ISSUER", "dealer-platform"),
			AccessTokenTTL: getEnvAsInt("JWT_ACCESS_TTL", 24),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Storage: StorageConfig{
			Driver:        getEnv("STORAGE_DRIVER", "local"),
			LocalPath:     getEnv("STORAGE_LOCAL_PATH", "./uploads"),
			PublicBaseURL: getEnv("STORAGE_PUBLIC_BASE_URL", "http://localhost:8080/uploads"),
			MaxUploadMB:   getEnvAsInt("STORAGE_MAX_UPLOAD_MB", 25),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3Bucket:        getEnv("AWS_S3_BUCKET", "dealer-contracts"),
			CloudFrontURL:   getEnv("AWS_CLOUDFRONT_URL", ""),
		},
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "dealer-contracts"),
			UseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		},
		GCS: GCSConfig{
			Bucket:          getEnv("GCS_BUCKET", ""),
			CredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			FromEmail:    getEnv("FROM_EMAIL", "contracts@dealer.example"),
			FromName:     getEnv("FROM_NAME", "Dealer Contracts"),
		},
		Twilio: TwilioConfig{
			AccountSID:   getEnv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:    getEnv("TWILIO_AUTH_TOKEN", ""),
			FromNumber:   getEnv("TWILIO_FROM_NUMBER", ""),
			WhatsAppFrom: getEnv("TWILIO_WHATSAPP_FROM", ""),
			BaseURL:      getEnv("TWILIO_BASE_URL", "https://api.twilio.com"),
		},
		Extraction: ExtractionConfig{
			Engine:              getEnv("EXTRACTION_ENGINE", "manual"),
			DocumentAIProject:   getEnv("DOCUMENTAI_PROJECT_ID", ""),
			DocumentAILocation:  getEnv("DOCUMENTAI_LOCATION", "us"),
			DocumentAIProcessor: getEnv("DOCUMENTAI_PROCESSOR_ID", ""),
			WebhookURL:          getEnv("EXTRACTION_WEBHOOK_URL", ""),
			WebhookToken:        getEnv("EXTRACTION_WEBHOOK_TOKEN", ""),
			WebhookCallbackURL:  getEnv("EXTRACTION_CALLBACK_URL", ""),
			WebhookSeed:         getEnv("EXTRACTION_CALLBACK_SEED", ""),
			TimeoutSeconds:      getEnvAsInt("EXTRACTION_TIMEOUT_SECONDS", 180),
		},
		Signing: SigningConfig{
			BaseURL:              getEnv("SIGNING_BASE_URL", "http://localhost:3000"),
			DefaultExpiryDays:    getEnvAsInt("SIGNING_DEFAULT_EXPIRY_DAYS", 7),
			MaxExpiryDays:        getEnvAsInt("SIGNING_MAX_EXPIRY_DAYS", 60),
			SweepIntervalSeconds: getEnvAsInt("SIGNING_SWEEP_INTERVAL_SECONDS", 900),
			MutateRetries:        getEnvAsInt("SIGNING_MUTATE_RETRIES", 5),
			AsyncCompletion:      getEnvAsBool("SIGNING_ASYNC_COMPLETION", true),
			DealershipName:       getEnv("DEALERSHIP_NAME", "Your Dealership"),
		},
		Dispatch: DispatchConfig{
			Driver:      getEnv("DISPATCH_DRIVER", "memory"),
			Workers:     getEnvAsInt("DISPATCH_WORKERS", 2),
			MaxAttempts: getEnvAsInt("DISPATCH_MAX_ATTEMPTS", 3),
			QueueSize:   getEnvAsInt("DISPATCH_QUEUE_SIZE", 256),
			QueueKey:    getEnv("DISPATCH_QUEUE_KEY", "contracts:notifications"),
		},
		I18n: I18nConfig{
			DefaultLocale: getEnv("DEFAULT_LOCALE", "en"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Telemetry: TelemetryConfig{
			ServiceName: getEnv("OTEL_SERVICE_NAME", "dealer-contracts"),
			Version:     getEnv("SERVICE_VERSION", "1.0.0"),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == "your-secret-key-change-in-production" && c.Environment == "production" {
		return fmt.Errorf("JWT secret key must be changed in production")
	}

	if c.Database.Password == "" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	switch c.Storage.Driver {
	case "local":
	case "s3":
		if c.AWS.S3Bucket == "" {
			return fmt.Errorf("AWS_S3_BUCKET is required for the s3 storage driver")
		}
	case "minio":
		if c.Minio.AccessKey == "" || c.Minio.SecretKey == "" {
			return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required for the minio storage driver")
		}
	case "gcs":
		if c.GCS.Bucket == "" {
			return fmt.Errorf("GCS_BUCKET is required for the gcs storage driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Extraction.Engine {
	case "manual":
	case "documentai":
		if c.Extraction.DocumentAIProject == "" || c.Extraction.DocumentAIProcessor == "" {
			return fmt.Errorf("DOCUMENTAI_PROJECT_ID and DOCUMENTAI_PROCESSOR_ID are required for the documentai engine")
		}
	case "webhook":
		if c.Extraction.WebhookURL == "" || c.Extraction.WebhookSeed == "" {
			return fmt.Errorf("EXTRACTION_WEBHOOK_URL and EXTRACTION_CALLBACK_SEED are required for the webhook engine")
		}
	default:
		return fmt.Errorf("unknown extraction engine %q", c.Extraction.Engine)
	}

	if c.Dispatch.Driver != "memory" && c.Dispatch.Driver != "redis" {
		return fmt.Errorf("unknown dispatch driver %q", c.Dispatch.Driver)
	}

	if c.Signing.DefaultExpiryDays < 1 || c.Signing.MaxExpiryDays < c.Signing.DefaultExpiryDays {
		return fmt.Errorf("signing expiry days must satisfy 1 <= default <= max")
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
