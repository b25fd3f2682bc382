package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvProduction = "production"

	DBDriverSQLite   = "sqlite"
	DBDriverPostgres = "postgres"

	AuthModeDevHeader = "dev-header"
	AuthModeJWT       = "jwt"

	BlobBackendMemory     = "memory"
	BlobBackendFilesystem = "filesystem"
	BlobBackendS3         = "s3"
)

type Config struct {
	HTTPAddr string `mapstructure:"http_addr"`
	AppEnv   string `mapstructure:"app_env"`

	DBDriver    string `mapstructure:"db_driver"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`

	AuthMode      string `mapstructure:"auth_mode"`
	DevUserID     string `mapstructure:"dev_user_id"`
	JWTSecret     string `mapstructure:"jwt_secret"`
	JWTIssuer     string `mapstructure:"jwt_issuer"`
	JWTTTLSeconds int    `mapstructure:"jwt_ttl_seconds"`

	BlobBackend       string `mapstructure:"blob_backend"`
	BlobRoot          string `mapstructure:"blob_root"`
	S3Bucket          string `mapstructure:"s3_bucket"`
	S3Region          string `mapstructure:"s3_region"`
	S3Endpoint        string `mapstructure:"s3_endpoint"`
	S3AccessKeyID     string `mapstructure:"s3_access_key_id"`
	S3SecretAccessKey string `mapstructure:"s3_secret_access_key"`
	S3ForcePathStyle  bool   `mapstructure:"s3_force_path_style"`

	MaxUploadBytes   int64    `mapstructure:"max_upload_bytes"`
	AllowedMimeTypes []string `mapstructure:"allowed_mime_types"`
	UploadPolicyPath string   `mapstructure:"upload_policy_path"`

	RedisAddr              string `mapstructure:"redis_addr"`
	RedisPassword          string `mapstructure:"redis_password"`
	RedisDB                int    `mapstructure:"redis_db"`
	RateLimitRequests      int    `mapstructure:"rate_limit_requests"`
	RateLimitWindowSeconds int    `mapstructure:"rate_limit_window_seconds"`
	RateLimitMaxKeys       int    `mapstructure:"rate_limit_max_keys"`
	RateLimitFailClosed    bool   `mapstructure:"rate_limit_fail_closed"`

	LogLevel      string `mapstructure:"log_level"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
	LogMaxAgeDays int    `mapstructure:"log_max_age_days"`
	LogCompress   bool   `mapstructure:"log_compress"`
}

var defaults = map[string]any{
	"http_addr": ":8080",
	"app_env":   "development",

	"db_driver":    DBDriverSQLite,
	"postgres_dsn": "",
	"sqlite_path":  "prooftimelines.db",
	"auto_migrate": true,

	"auth_mode":       AuthModeDevHeader,
	"dev_user_id":     "",
	"jwt_secret":      "",
	"jwt_issuer":      "",
	"jwt_ttl_seconds": 3600,

	"blob_backend":         BlobBackendFilesystem,
	"blob_root":            "storage_dev",
	"s3_bucket":            "",
	"s3_region":            "auto",
	"s3_endpoint":          "",
	"s3_access_key_id":     "",
	"s3_secret_access_key": "",
	"s3_force_path_style":  true,

	"max_upload_bytes":   int64(25 << 20),
	"allowed_mime_types": []string{},
	"upload_policy_path": "",

	"redis_addr":                "",
	"redis_password":            "",
	"redis_db":                  0,
	"rate_limit_requests":       0,
	"rate_limit_window_seconds": 60,
	"rate_limit_max_keys":       10000,
	"rate_limit_fail_closed":    false,

	"log_level":        "info",
	"log_file":         "",
	"log_max_size_mb":  100,
	"log_max_backups":  3,
	"log_max_age_days": 28,
	"log_compress":     false,
}

var envFiles = []string{".env", ".env.local"}

// Load reads .env files, an optional config file and the process
// environment, in increasing order of precedence for the environment.
func Load(path string) (Config, error) {
	loadEnvFiles(".")
	if path != "" {
		loadEnvFiles(filepath.Dir(path))
	}

	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

// Default returns the configuration with every key at its default value.
func Default() Config {
	var cfg Config
	if err := newViper().Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	cfg.normalize()
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func loadEnvFiles(dir string) {
	for _, name := range envFiles {
		// missing files are fine
		_ = godotenv.Load(filepath.Join(dir, name))
	}
}

func (c *Config) normalize() {
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	c.AuthMode = strings.ToLower(strings.TrimSpace(c.AuthMode))
	c.BlobBackend = strings.ToLower(strings.TrimSpace(c.BlobBackend))
	c.AppEnv = strings.ToLower(strings.TrimSpace(c.AppEnv))
	types := make([]string, 0, len(c.AllowedMimeTypes))
	for _, t := range c.AllowedMimeTypes {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}
	c.AllowedMimeTypes = types
}

func (c Config) Validate() error {
	var errs []error
	switch c.DBDriver {
	case DBDriverSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite driver"))
		}
	case DBDriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver))
	}

	switch c.AuthMode {
	case AuthModeDevHeader:
		if c.IsProduction() {
			errs = append(errs, errors.New("AUTH_MODE dev-header is not allowed in production"))
		}
	case AuthModeJWT:
		if c.JWTSecret == "" {
			errs = append(errs, errors.New("JWT_SECRET is required for AUTH_MODE jwt"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported AUTH_MODE %q", c.AuthMode))
	}

	switch c.BlobBackend {
	case BlobBackendMemory:
	case BlobBackendFilesystem:
		if c.BlobRoot == "" {
			errs = append(errs, errors.New("BLOB_ROOT is required for the filesystem backend"))
		}
	case BlobBackendS3:
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported BLOB_BACKEND %q", c.BlobBackend))
	}

	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	return errors.Join(errs...)
}

func (c Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

func (c Config) JWTTTL() time.Duration {
	if c.JWTTTLSeconds <= 0 {
		return time.Hour
	}
	return time.Duration(c.JWTTTLSeconds) * time.Second
}

func (c Config) RateLimitWindow() time.Duration {
	if c.RateLimitWindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}
