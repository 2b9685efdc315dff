package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_HOST", "localhost")
	t.Setenv("DATABASE_USER", "drive")
	t.Setenv("DATABASE_NAME", "drive")
	t.Setenv("ACCESS_TOKEN_SECRET", "access-secret")
	t.Setenv("REFRESH_TOKEN_SECRET", "refresh-secret")
}

func TestNewConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := NewConfig("")
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "3000" {
		t.Errorf("port = %q, want 3000", cfg.Server.Port)
	}
	if cfg.Auth.AccessTokenTTL != 15*time.Minute || cfg.Auth.RefreshTokenTTL != 7*24*time.Hour {
		t.Errorf("unexpected token TTLs %v / %v", cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	}
	if cfg.Auth.VerificationTTL() != time.Hour {
		t.Errorf("verification TTL = %v, want 1h", cfg.Auth.VerificationTTL())
	}
	if cfg.Storage.Backend != "local" || cfg.Queue.Driver != "memory" {
		t.Errorf("unexpected backends %q / %q", cfg.Storage.Backend, cfg.Queue.Driver)
	}
}

func TestNewConfigFromEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("HTTP_PORT", "8080")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("PASSWORD_RESET_EXPIRATION", "900")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")

	cfg, err := NewConfig("")
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("port = %q, want 8080", cfg.Server.Port)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "http://b.test" {
		t.Errorf("cors origins = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Auth.ResetTTL() != 15*time.Minute {
		t.Errorf("reset TTL = %v, want 15m", cfg.Auth.ResetTTL())
	}
	if cfg.RateLimit.Window != 30*time.Second {
		t.Errorf("window = %v, want 30s", cfg.RateLimit.Window)
	}
}

func TestNewConfigFromEnvFile(t *testing.T) {
	setRequiredEnv(t)
	path := filepath.Join(t.TempDir(), "app.env")
	if err := os.WriteFile(path, []byte("GRPC_PORT=6000\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("GRPC_PORT") })

	cfg, err := NewConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.GRPCPort != "6000" {
		t.Errorf("grpc port = %q, want 6000", cfg.Server.GRPCPort)
	}
}

func TestNewConfigFromYAML(t *testing.T) {
	setRequiredEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "Storage:\n  UploadDir: /srv/uploads\nJobs:\n  TrashRetention: 720h\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.UploadDir != "/srv/uploads" {
		t.Errorf("upload dir = %q", cfg.Storage.UploadDir)
	}
	if cfg.Jobs.TrashRetention != 30*24*time.Hour {
		t.Errorf("trash retention = %v, want 720h", cfg.Jobs.TrashRetention)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:   ServerConfig{AppURL: "http://localhost:3000"},
			Database: DatabaseConfig{Host: "db", User: "u", Name: "n"},
			Auth:     AuthConfig{AccessTokenSecret: "a", RefreshTokenSecret: "r"},
			Storage:  StorageConfig{Backend: "local", UploadDir: "/tmp"},
			Queue:    QueueConfig{Driver: "memory"},
		}
	}

	testCases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing database", mutate: func(c *Config) { c.Database.Host = "" }, wantErr: "database configuration"},
		{name: "missing secret", mutate: func(c *Config) { c.Auth.RefreshTokenSecret = "" }, wantErr: "REFRESH_TOKEN_SECRET"},
		{name: "same secrets", mutate: func(c *Config) { c.Auth.RefreshTokenSecret = "a" }, wantErr: "must differ"},
		{name: "s3 without bucket", mutate: func(c *Config) { c.Storage.Backend = "s3" }, wantErr: "S3"},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Backend = "ftp" }, wantErr: "unknown storage"},
		{name: "amqp without url", mutate: func(c *Config) { c.Queue.Driver = "amqp" }, wantErr: "AMQP_URL"},
		{name: "smtp without host", mutate: func(c *Config) { c.Mail.Backend = "smtp" }, wantErr: "SMTP_HOST"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %v does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestDatabaseURL(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: "5432", User: "drive", Password: "p@ss", Name: "drive", SSLMode: "disable"}
	want := "postgres://drive:p%40ss@db:5432/drive?sslmode=disable"
	if got := c.URL(); got != want {
		t.Errorf("URL() = %q, want %q", got, want)
	}
}
