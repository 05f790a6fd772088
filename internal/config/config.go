package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var configLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	configLogger = l
}

const CurrentVersion = "1"

// Environment variables that override secrets and paths from the config file.
const (
	EnvS3AccessKeyID     = "S3_ACCESS_KEY_ID"
	EnvS3SecretAccessKey = "S3_SECRET_ACCESS_KEY"
	EnvRevalidateSecret  = "REVALIDATE_SECRET"
	EnvDatabasePath      = "STAND_ADMIN_DB"
)

// Config represents the complete configuration structure
type Config struct {
	Version      string             `yaml:"version" default:"1"`
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
	Database     DatabaseConfig     `yaml:"database"`
	Media        MediaConfig        `yaml:"media"`
	Pagination   PaginationConfig   `yaml:"pagination"`
	Revalidation RevalidationConfig `yaml:"revalidation"`
	Repository   RepositoryConfig   `yaml:"repository"`
	Sessions     SessionsConfig     `yaml:"sessions"`
}

type LoggingConfig struct {
	Level string `yaml:"level" default:"info"`
}

type ServerConfig struct {
	Host string `yaml:"host" default:"0.0.0.0"`
	Port string `yaml:"port" default:"12600"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" default:"./stand-admin.db"`
	// Compression codec for stored payloads: "zstd" or "gzip".
	Compression string `yaml:"compression" default:"zstd"`
}

type MediaConfig struct {
	// Backend is "fs" or "s3".
	Backend              string        `yaml:"backend" default:"fs"`
	MaxUploadSize        string        `yaml:"max_upload_size" default:"50MB"`
	UploadConcurrency    int           `yaml:"upload_concurrency" default:"4"`
	DeleteReplacedImages bool          `yaml:"delete_replaced_images" default:"true"`
	FS                   FSMediaConfig `yaml:"fs"`
	S3                   S3MediaConfig `yaml:"s3"`

	maxUploadSizeVal int64
}

type FSMediaConfig struct {
	Dir     string `yaml:"dir" default:"./media"`
	BaseURL string `yaml:"base_url" default:"/media/"`
}

type S3MediaConfig struct {
	Bucket          string `yaml:"bucket" default:""`
	Endpoint        string `yaml:"endpoint" default:""`
	Region          string `yaml:"region" default:"auto"`
	PublicURL       string `yaml:"public_url" default:""`
	PathStyle       bool   `yaml:"path_style" default:"false"`
	AccessKeyID     string `yaml:"access_key_id" default:""`
	SecretAccessKey string `yaml:"secret_access_key" default:""`
}

type PaginationConfig struct {
	PageSize int `yaml:"page_size" default:"10"`
}

type RevalidationConfig struct {
	WebhookURL string `yaml:"webhook_url" default:""`
	Secret     string `yaml:"secret" default:""`
	Timeout    string `yaml:"timeout" default:"5s"`
}

type RepositoryConfig struct {
	ReloadInterval string `yaml:"reload_interval" default:"10s"`
}

type SessionsConfig struct {
	IdleTimeout string `yaml:"idle_timeout" default:"30m"`
}

var AppConfig *Config

// Default returns a validated configuration made of defaults only.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		// Defaults are static; this only fails if a tag is broken.
		panic(err)
	}
	return cfg
}

func LoadConfig(path string) error {
	config := &Config{}

	// Apply default values first
	applyDefaults(config)

	data, err := os.ReadFile(path)
	if err != nil {
		// If file doesn't exist, just use defaults
		configLogger.Info().Str("path", path).Msg("Config file not found, using defaults")
	} else if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	config.loadEnv()

	if err := config.Validate(); err != nil {
		return err
	}

	AppConfig = config
	return nil
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvS3AccessKeyID); v != "" {
		c.Media.S3.AccessKeyID = v
	}
	if v := os.Getenv(EnvS3SecretAccessKey); v != "" {
		c.Media.S3.SecretAccessKey = v
	}
	if v := os.Getenv(EnvRevalidateSecret); v != "" {
		c.Revalidation.Secret = v
	}
	if v := os.Getenv(EnvDatabasePath); v != "" {
		c.Database.Path = v
	}
}

// Validate checks the configuration and caches parsed values.
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return fmt.Errorf("unsupported configuration version %q (expected %q)", c.Version, CurrentVersion)
	}

	size, err := units.FromHumanSize(c.Media.MaxUploadSize)
	if err != nil {
		return fmt.Errorf("invalid media.max_upload_size: %w", err)
	}
	if size <= 0 {
		return fmt.Errorf("media.max_upload_size must be positive")
	}
	c.Media.maxUploadSizeVal = size

	if c.Database.Compression != "zstd" && c.Database.Compression != "gzip" {
		return fmt.Errorf("unknown database compression %q", c.Database.Compression)
	}

	switch c.Media.Backend {
	case "fs":
		if c.Media.FS.Dir == "" {
			return fmt.Errorf("media.fs.dir required")
		}
	case "s3":
		if c.Media.S3.Bucket == "" {
			return fmt.Errorf("media.s3.bucket required")
		}
	default:
		return fmt.Errorf("unknown media backend %q", c.Media.Backend)
	}

	if c.Media.UploadConcurrency < 1 {
		return fmt.Errorf("media.upload_concurrency must be positive")
	}
	if c.Pagination.PageSize < 1 {
		return fmt.Errorf("pagination.page_size must be positive")
	}

	for name, d := range map[string]string{
		"revalidation.timeout":       c.Revalidation.Timeout,
		"repository.reload_interval": c.Repository.ReloadInterval,
		"sessions.idle_timeout":      c.Sessions.IdleTimeout,
	} {
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	if c.Revalidation.TimeoutDuration() <= 0 {
		return fmt.Errorf("revalidation.timeout must be positive")
	}
	if c.Repository.ReloadIntervalDuration() <= 0 {
		return fmt.Errorf("repository.reload_interval must be positive")
	}
	if c.Sessions.IdleTimeoutDuration() < 0 {
		return fmt.Errorf("sessions.idle_timeout must not be negative")
	}

	return nil
}

func (m *MediaConfig) MaxUploadSizeBytes() int64 {
	return m.maxUploadSizeVal
}

func (r *RevalidationConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(r.Timeout)
	return d
}

func (r *RepositoryConfig) ReloadIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(r.ReloadInterval)
	return d
}

func (s *SessionsConfig) IdleTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(s.IdleTimeout)
	return d
}

func ApplyDefaults(config interface{}) {
	applyDefaults(config)
}

func applyDefaults(config interface{}) {
	v := reflect.ValueOf(config)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		return
	}

	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.IsValid() || !field.CanSet() {
			continue
		}

		// Recursively apply defaults to nested structs
		if field.Kind() == reflect.Struct {
			applyDefaults(field.Addr().Interface())
			continue
		}

		defaultValue := fieldType.Tag.Get("default")
		if defaultValue == "" {
			continue
		}

		switch field.Kind() {
		case reflect.String:
			field.SetString(defaultValue)
		case reflect.Bool:
			if val, err := strconv.ParseBool(defaultValue); err == nil {
				field.SetBool(val)
			}
		case reflect.Int, reflect.Int64:
			if val, err := strconv.ParseInt(defaultValue, 10, 64); err == nil {
				field.SetInt(val)
			}
		case reflect.Float64:
			if val, err := strconv.ParseFloat(defaultValue, 64); err == nil {
				field.SetFloat(val)
			}
		case reflect.Slice:
			if field.Len() == 0 && field.Type().Elem().Kind() == reflect.String {
				parts := strings.Split(defaultValue, ",")
				slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
				for j, part := range parts {
					slice.Index(j).SetString(strings.TrimSpace(part))
				}
				field.Set(slice)
			}
		default:
			configLogger.Warn().
				Str("field_name", fieldType.Name).
				Str("field_type", field.Kind().String()).
				Msg("Unsupported field type for default value")
		}
	}
}
