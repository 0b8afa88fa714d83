package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Server Server `yaml:"server"`

	Database Database `yaml:"database"`

	JWT JWT `yaml:"jwt"`

	Security Security `yaml:"security"`

	Redis Redis `yaml:"redis"`

	Mail Mail `yaml:"mail"`

	Storage Storage `yaml:"storage"`

	Kafka Kafka `yaml:"kafka"`

	Log Log `yaml:"log"`
}

type Server struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
}

type JWT struct {
	Secret    string `yaml:"secret"`
	ExpiresIn int    `yaml:"expires_in"` // In Hours
}

// TTL is the bearer token lifetime
func (j JWT) TTL() time.Duration {
	return time.Duration(j.ExpiresIn) * time.Hour
}

type Security struct {
	OTPTTLMinutes      int `yaml:"otp_ttl_minutes"`
	OTPAttemptsPerHour int `yaml:"otp_attempts_per_hour"`
	PasswordCost       int `yaml:"password_cost"`
}

// OTPTTL is the lifetime of an issued one-time passcode
func (s Security) OTPTTL() time.Duration {
	return time.Duration(s.OTPTTLMinutes) * time.Minute
}

// Database drivers
const (
	DriverMemory   = "memory"
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

type Database struct {
	Driver   string   `yaml:"driver"`
	Mongo    Mongo    `yaml:"mongo"`
	Postgres Postgres `yaml:"postgres"`
}

type Mongo struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type Postgres struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	DBName     string `yaml:"dbname"`
	SSLMode    string `yaml:"sslmode"`
	Migrations string `yaml:"migrations"`
}

// Redis is optional; an empty address selects the in-process limiter
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Mail providers
const (
	MailLog   = "log"
	MailBrevo = "brevo"
)

type Mail struct {
	Provider    string `yaml:"provider"`
	APIKey      string `yaml:"api_key"`
	SenderEmail string `yaml:"sender_email"`
	SenderName  string `yaml:"sender_name"`
}

// Storage drivers
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

type Storage struct {
	Driver   string `yaml:"driver"`
	LocalDir string `yaml:"local_dir"`
	BaseURL  string `yaml:"base_url"`
	// MaxPixels rejects uploads whose decoded width*height is larger
	MaxPixels int `yaml:"max_pixels"`
	S3        S3  `yaml:"s3"`
}

type S3 struct {
	Region   string `yaml:"region"`
	Bucket   string `yaml:"bucket"`
	Endpoint string `yaml:"endpoint"`
}

// Kafka is optional; no brokers disables event publishing to the bus
type Kafka struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type Log struct {
	Development bool   `yaml:"development"`
	Level       string `yaml:"level"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	configPath := "configs/development.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}

	f, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyEnv() {
	override := func(env string, apply func(string)) {
		if v := os.Getenv(env); v != "" {
			apply(v)
		}
	}
	atoi := func(dst *int) func(string) {
		return func(v string) {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	override("APP_ADDRESS", func(v string) { c.Server.Address = v })
	override("DB_DRIVER", func(v string) { c.Database.Driver = v })
	override("MONGO_URI", func(v string) { c.Database.Mongo.URI = v })
	override("MONGO_DB", func(v string) { c.Database.Mongo.Database = v })
	override("POSTGRES_HOST", func(v string) { c.Database.Postgres.Host = v })
	override("POSTGRES_PORT", atoi(&c.Database.Postgres.Port))
	override("POSTGRES_USER", func(v string) { c.Database.Postgres.User = v })
	override("POSTGRES_PASSWORD", func(v string) { c.Database.Postgres.Password = v })
	override("POSTGRES_DB", func(v string) { c.Database.Postgres.DBName = v })
	override("JWT_SECRET", func(v string) { c.JWT.Secret = v })
	override("JWT_EXPIRES_IN", atoi(&c.JWT.ExpiresIn))
	override("OTP_TTL_MINUTES", atoi(&c.Security.OTPTTLMinutes))
	override("REDIS_ADDR", func(v string) { c.Redis.Addr = v })
	override("REDIS_PASSWORD", func(v string) { c.Redis.Password = v })
	override("MAIL_PROVIDER", func(v string) { c.Mail.Provider = v })
	override("BREVO_API_KEY", func(v string) { c.Mail.APIKey = v })
	override("MAIL_SENDER_EMAIL", func(v string) { c.Mail.SenderEmail = v })
	override("STORAGE_DRIVER", func(v string) { c.Storage.Driver = v })
	override("S3_BUCKET", func(v string) { c.Storage.S3.Bucket = v })
	override("S3_REGION", func(v string) { c.Storage.S3.Region = v })
	override("KAFKA_BROKERS", func(v string) { c.Kafka.Brokers = strings.Split(v, ",") })
	override("LOG_LEVEL", func(v string) { c.Log.Level = v })
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = 10 << 20
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverMongo
	}
	if c.Database.Mongo.Database == "" {
		c.Database.Mongo.Database = "bellyrush"
	}
	if c.Database.Postgres.Migrations == "" {
		c.Database.Postgres.Migrations = "file://migrations"
	}
	if c.JWT.ExpiresIn == 0 {
		c.JWT.ExpiresIn = 2
	}
	if c.Security.OTPTTLMinutes == 0 {
		c.Security.OTPTTLMinutes = 10
	}
	if c.Security.OTPAttemptsPerHour == 0 {
		c.Security.OTPAttemptsPerHour = 5
	}
	if c.Mail.Provider == "" {
		c.Mail.Provider = MailLog
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = StorageLocal
	}
	if c.Storage.LocalDir == "" {
		c.Storage.LocalDir = "uploads"
	}
	if c.Storage.MaxPixels == 0 {
		c.Storage.MaxPixels = 40_000_000
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "bellyrush.orders"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks the settings the service cannot start without
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("jwt secret is required (jwt.secret or JWT_SECRET)")
	}
	switch c.Database.Driver {
	case DriverMemory:
	case DriverMongo:
		if c.Database.Mongo.URI == "" {
			return errors.New("mongo uri is required for the mongo driver")
		}
	case DriverPostgres:
		if c.Database.Postgres.Host == "" || c.Database.Postgres.DBName == "" {
			return errors.New("postgres host and dbname are required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Mail.Provider {
	case MailLog:
	case MailBrevo:
		if c.Mail.APIKey == "" || c.Mail.SenderEmail == "" {
			return errors.New("brevo mail provider requires api_key and sender_email")
		}
	default:
		return fmt.Errorf("unknown mail provider %q", c.Mail.Provider)
	}
	switch c.Storage.Driver {
	case StorageLocal:
	case StorageS3:
		if c.Storage.S3.Bucket == "" || c.Storage.S3.Region == "" {
			return errors.New("s3 storage requires bucket and region")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}
