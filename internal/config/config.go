package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"Server"`
	Database  DatabaseConfig  `mapstructure:"Database"`
	Auth      AuthConfig      `mapstructure:"Auth"`
	Storage   StorageConfig   `mapstructure:"Storage"`
	Mail      MailConfig      `mapstructure:"Mail"`
	Queue     QueueConfig     `mapstructure:"Queue"`
	Redis     RedisConfig     `mapstructure:"Redis"`
	RateLimit RateLimitConfig `mapstructure:"RateLimit"`
	Log       LogConfig       `mapstructure:"Log"`
	Jobs      JobsConfig      `mapstructure:"Jobs"`
}

type ServerConfig struct {
	Port          string   `mapstructure:"Port"`
	GRPCPort      string   `mapstructure:"GRPCPort"`
	AppURL        string   `mapstructure:"AppURL"`
	FrontendURL   string   `mapstructure:"FrontendURL"`
	CORSOrigins   []string `mapstructure:"CORSOrigins"`
	MaxUploadSize int64    `mapstructure:"MaxUploadSize"`
	// RequestTimeout не применяется к скачиванию и загрузке файлов.
	RequestTimeout time.Duration `mapstructure:"RequestTimeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"Host"`
	Port     string `mapstructure:"Port"`
	User     string `mapstructure:"User"`
	Password string `mapstructure:"Password"`
	Name     string `mapstructure:"Name"`
	SSLMode  string `mapstructure:"SSLMode"`
}

type AuthConfig struct {
	AccessTokenSecret  string        `mapstructure:"AccessTokenSecret"`
	RefreshTokenSecret string        `mapstructure:"RefreshTokenSecret"`
	AccessTokenTTL     time.Duration `mapstructure:"AccessTokenTTL"`
	RefreshTokenTTL    time.Duration `mapstructure:"RefreshTokenTTL"`
	// Срок жизни одноразовых токенов в секундах.
	EmailVerificationExpiration int `mapstructure:"EmailVerificationExpiration"`
	PasswordResetExpiration     int `mapstructure:"PasswordResetExpiration"`
	BcryptCost                  int `mapstructure:"BcryptCost"`
}

type StorageConfig struct {
	Backend   string   `mapstructure:"Backend"` // local|s3
	UploadDir string   `mapstructure:"UploadDir"`
	S3        S3Config `mapstructure:"S3"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"Endpoint"`
	Region          string `mapstructure:"Region"`
	Bucket          string `mapstructure:"Bucket"`
	AccessKeyID     string `mapstructure:"AccessKeyID"`
	SecretAccessKey string `mapstructure:"SecretAccessKey"`
	UsePathStyle    bool   `mapstructure:"UsePathStyle"`
}

type MailConfig struct {
	Backend  string `mapstructure:"Backend"` // smtp|stdout
	Host     string `mapstructure:"Host"`
	Port     int    `mapstructure:"Port"`
	Username string `mapstructure:"Username"`
	Password string `mapstructure:"Password"`
	From     string `mapstructure:"From"`
}

type QueueConfig struct {
	Driver string `mapstructure:"Driver"` // memory|amqp
	URL    string `mapstructure:"URL"`
	Name   string `mapstructure:"Name"`
	Buffer int    `mapstructure:"Buffer"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"Addr"`
	Password string `mapstructure:"Password"`
	DB       int    `mapstructure:"DB"`
}

type RateLimitConfig struct {
	Enabled bool `mapstructure:"Enabled"`
	// Лимиты на одно окно Window для одного IP.
	Global int           `mapstructure:"Global"`
	SignUp int           `mapstructure:"SignUp"`
	SignIn int           `mapstructure:"SignIn"`
	Window time.Duration `mapstructure:"Window"`
}

type LogConfig struct {
	Level  string `mapstructure:"Level"`
	Format string `mapstructure:"Format"`
	File   string `mapstructure:"File"`
}

type JobsConfig struct {
	Enabled bool `mapstructure:"Enabled"`
	// 0 отключает автоматическую очистку корзины.
	TrashRetention time.Duration `mapstructure:"TrashRetention"`
}

var envBindings = map[string]string{
	"Server.Port":           "HTTP_PORT",
	"Server.GRPCPort":       "GRPC_PORT",
	"Server.AppURL":         "APP_URL",
	"Server.FrontendURL":    "FRONTEND_URL",
	"Server.CORSOrigins":    "CORS_ORIGINS",
	"Server.MaxUploadSize":  "MAX_UPLOAD_SIZE",
	"Server.RequestTimeout": "REQUEST_TIMEOUT",

	"Database.Host":     "DATABASE_HOST",
	"Database.Port":     "DATABASE_PORT",
	"Database.User":     "DATABASE_USER",
	"Database.Password": "DATABASE_PASSWORD",
	"Database.Name":     "DATABASE_NAME",
	"Database.SSLMode":  "DATABASE_SSLMODE",

	"Auth.AccessTokenSecret":           "ACCESS_TOKEN_SECRET",
	"Auth.RefreshTokenSecret":          "REFRESH_TOKEN_SECRET",
	"Auth.AccessTokenTTL":              "ACCESS_TOKEN_TTL",
	"Auth.RefreshTokenTTL":             "REFRESH_TOKEN_TTL",
	"Auth.EmailVerificationExpiration": "EMAIL_VERIFICATION_EXPIRATION",
	"Auth.PasswordResetExpiration":     "PASSWORD_RESET_EXPIRATION",
	"Auth.BcryptCost":                  "BCRYPT_COST",

	"Storage.Backend":            "STORAGE_BACKEND",
	"Storage.UploadDir":          "UPLOAD_DIR",
	"Storage.S3.Endpoint":        "S3_ENDPOINT",
	"Storage.S3.Region":          "S3_REGION",
	"Storage.S3.Bucket":          "S3_BUCKET",
	"Storage.S3.AccessKeyID":     "S3_ACCESS_KEY_ID",
	"Storage.S3.SecretAccessKey": "S3_SECRET_ACCESS_KEY",
	"Storage.S3.UsePathStyle":    "S3_USE_PATH_STYLE",

	"Mail.Backend":  "MAIL_BACKEND",
	"Mail.Host":     "SMTP_HOST",
	"Mail.Port":     "SMTP_PORT",
	"Mail.Username": "SMTP_USERNAME",
	"Mail.Password": "SMTP_PASSWORD",
	"Mail.From":     "MAIL_FROM",

	"Queue.Driver": "QUEUE_DRIVER",
	"Queue.URL":    "AMQP_URL",
	"Queue.Name":   "QUEUE_NAME",
	"Queue.Buffer": "QUEUE_BUFFER",

	"Redis.Addr":     "REDIS_ADDR",
	"Redis.Password": "REDIS_PASSWORD",
	"Redis.DB":       "REDIS_DB",

	"RateLimit.Enabled": "RATE_LIMIT_ENABLED",
	"RateLimit.Global":  "RATE_LIMIT_GLOBAL",
	"RateLimit.SignUp":  "RATE_LIMIT_SIGN_UP",
	"RateLimit.SignIn":  "RATE_LIMIT_SIGN_IN",
	"RateLimit.Window":  "RATE_LIMIT_WINDOW",

	"Log.Level":  "LOG_LEVEL",
	"Log.Format": "LOG_FORMAT",
	"Log.File":   "LOG_FILE",

	"Jobs.Enabled":        "JOBS_ENABLED",
	"Jobs.TrashRetention": "TRASH_RETENTION",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Server.Port", "3000")
	v.SetDefault("Server.GRPCPort", "50051")
	v.SetDefault("Server.AppURL", "http://localhost:3000")
	v.SetDefault("Server.FrontendURL", "http://localhost:5173")
	v.SetDefault("Server.CORSOrigins", []string{"*"})
	v.SetDefault("Server.MaxUploadSize", int64(100<<20))
	v.SetDefault("Server.RequestTimeout", 60*time.Second)

	v.SetDefault("Database.Port", "5432")
	v.SetDefault("Database.SSLMode", "disable")

	v.SetDefault("Auth.AccessTokenTTL", 15*time.Minute)
	v.SetDefault("Auth.RefreshTokenTTL", 7*24*time.Hour)
	v.SetDefault("Auth.EmailVerificationExpiration", 3600)
	v.SetDefault("Auth.PasswordResetExpiration", 3600)
	v.SetDefault("Auth.BcryptCost", 10)

	v.SetDefault("Storage.Backend", "local")
	v.SetDefault("Storage.UploadDir", "./uploads")
	v.SetDefault("Storage.S3.Region", "us-east-1")

	v.SetDefault("Mail.Backend", "stdout")
	v.SetDefault("Mail.Port", 587)
	v.SetDefault("Mail.From", "Cloud Drive <no-reply@clouddrive.local>")

	v.SetDefault("Queue.Driver", "memory")
	v.SetDefault("Queue.Name", "clouddrive.notifications")
	v.SetDefault("Queue.Buffer", 256)

	v.SetDefault("RateLimit.Enabled", true)
	v.SetDefault("RateLimit.Global", 60)
	v.SetDefault("RateLimit.SignUp", 10)
	v.SetDefault("RateLimit.SignIn", 5)
	v.SetDefault("RateLimit.Window", time.Minute)

	v.SetDefault("Log.Level", "info")
	v.SetDefault("Log.Format", "text")

	v.SetDefault("Jobs.Enabled", true)
	v.SetDefault("Jobs.TrashRetention", time.Duration(0))
}

// NewConfig читает конфигурацию из файла path (если он есть) и переменных
// окружения. Файл .env в рабочей директории подгружается заранее.
// path с расширением .env читается как набор переменных окружения,
// остальные форматы (yaml, json, toml) разбирает viper по именам секций.
func NewConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	switch {
	case path == "":
	case strings.HasSuffix(path, ".env"):
		// env-файл раскладывается в окружение и читается через BindEnv
		if err := godotenv.Load(path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: using only environment variables: %v\n", err)
		}
	default:
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: using only environment variables: %v\n", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// CORS_ORIGINS приходит из окружения одной строкой через запятую
	if len(cfg.Server.CORSOrigins) == 1 && strings.Contains(cfg.Server.CORSOrigins[0], ",") {
		cfg.Server.CORSOrigins = splitList(cfg.Server.CORSOrigins[0])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate проверяет, что все необходимые поля заполнены.
func (c *Config) Validate() error {
	if c.Database.Host == "" || c.Database.User == "" || c.Database.Name == "" {
		return fmt.Errorf("database configuration is incomplete: host=%s, port=%s, user=%s, name=%s",
			c.Database.Host, c.Database.Port, c.Database.User, c.Database.Name)
	}
	if c.Auth.AccessTokenSecret == "" || c.Auth.RefreshTokenSecret == "" {
		return fmt.Errorf("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET are required")
	}
	if c.Auth.AccessTokenSecret == c.Auth.RefreshTokenSecret {
		return fmt.Errorf("access and refresh token secrets must differ")
	}
	if _, err := url.Parse(c.Server.AppURL); err != nil {
		return fmt.Errorf("invalid APP_URL: %w", err)
	}

	switch c.Storage.Backend {
	case "local":
		if c.Storage.UploadDir == "" {
			return fmt.Errorf("UPLOAD_DIR is required for local storage")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" || c.Storage.S3.AccessKeyID == "" || c.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("missing required S3 configuration: bucket, access key id and secret access key are required")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	switch c.Queue.Driver {
	case "memory":
	case "amqp":
		if c.Queue.URL == "" {
			return fmt.Errorf("AMQP_URL is required for the amqp queue driver")
		}
	default:
		return fmt.Errorf("unknown queue driver %q", c.Queue.Driver)
	}

	if c.Mail.Backend == "smtp" && c.Mail.Host == "" {
		return fmt.Errorf("SMTP_HOST is required for the smtp mail backend")
	}

	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

// URL возвращает адрес базы в формате, который ожидает golang-migrate.
func (c *DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

func (c *AuthConfig) VerificationTTL() time.Duration {
	return time.Duration(c.EmailVerificationExpiration) * time.Second
}

func (c *AuthConfig) ResetTTL() time.Duration {
	return time.Duration(c.PasswordResetExpiration) * time.Second
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
