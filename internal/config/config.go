package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix             = "PARLEY"
	defaultHTTPAddress    = "0.0.0.0:5001"
	defaultAllowedOrigin  = "http://localhost:5173"
	defaultDatabasePath   = "parley.db"
	defaultMongoName      = "parley"
	defaultCookieName     = "jwt"
	defaultTokenTTL       = 7 * 24 * time.Hour
	defaultMediaDiskDir   = "media"
	defaultRealtimeBuffer = 16
	defaultLogLevel       = "info"
	defaultLogFormat      = "json"
	minimumSigningSecret  = 16
)

const (
	// DatabaseDriverSQLite selects the GORM-backed SQLite store.
	DatabaseDriverSQLite = "sqlite"
	// DatabaseDriverMongo selects the MongoDB document store.
	DatabaseDriverMongo = "mongo"
	// MediaProviderDisk stores uploads on the local filesystem.
	MediaProviderDisk = "disk"
	// MediaProviderCloudinary stores uploads on Cloudinary.
	MediaProviderCloudinary = "cloudinary"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	AllowedOrigins []string

	DatabaseDriver string
	DatabasePath   string
	MongoURI       string
	MongoName      string

	SigningSecret string
	CookieName    string
	TokenTTL      time.Duration
	SecureCookie  bool

	MediaProvider      string
	MediaDiskDir       string
	MediaPublicBaseURL string
	CloudinaryCloud    string
	CloudinaryKey      string
	CloudinarySecret   string

	RealtimeSendBuffer int

	LogLevel  string
	LogFormat string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{defaultAllowedOrigin})
	configViper.SetDefault("database.driver", DatabaseDriverSQLite)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.mongo_name", defaultMongoName)
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("auth.token_ttl", defaultTokenTTL)
	configViper.SetDefault("auth.secure_cookie", true)
	configViper.SetDefault("media.provider", MediaProviderDisk)
	configViper.SetDefault("media.disk_dir", defaultMediaDiskDir)
	configViper.SetDefault("realtime.send_buffer", defaultRealtimeBuffer)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		AllowedOrigins:     normalizeList(configViper.GetStringSlice("http.allowed_origins")),
		DatabaseDriver:     strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:       configViper.GetString("database.path"),
		MongoURI:           configViper.GetString("database.mongo_uri"),
		MongoName:          configViper.GetString("database.mongo_name"),
		SigningSecret:      configViper.GetString("auth.signing_secret"),
		CookieName:         configViper.GetString("auth.cookie_name"),
		TokenTTL:           configViper.GetDuration("auth.token_ttl"),
		SecureCookie:       configViper.GetBool("auth.secure_cookie"),
		MediaProvider:      strings.ToLower(strings.TrimSpace(configViper.GetString("media.provider"))),
		MediaDiskDir:       configViper.GetString("media.disk_dir"),
		MediaPublicBaseURL: strings.TrimRight(configViper.GetString("media.public_base_url"), "/"),
		CloudinaryCloud:    configViper.GetString("cloudinary.cloud_name"),
		CloudinaryKey:      configViper.GetString("cloudinary.api_key"),
		CloudinarySecret:   configViper.GetString("cloudinary.api_secret"),
		RealtimeSendBuffer: configViper.GetInt("realtime.send_buffer"),
		LogLevel:           configViper.GetString("log.level"),
		LogFormat:          configViper.GetString("log.format"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if len(strings.TrimSpace(c.SigningSecret)) < minimumSigningSecret {
		return fmt.Errorf("auth.signing_secret must be at least %d characters", minimumSigningSecret)
	}
	if strings.TrimSpace(c.CookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	switch c.DatabaseDriver {
	case DatabaseDriverSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required")
		}
	case DatabaseDriverMongo:
		if strings.TrimSpace(c.MongoURI) == "" {
			return fmt.Errorf("database.mongo_uri is required for the mongo driver")
		}
		if strings.TrimSpace(c.MongoName) == "" {
			return fmt.Errorf("database.mongo_name is required for the mongo driver")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.DatabaseDriver)
	}
	switch c.MediaProvider {
	case MediaProviderDisk:
		if strings.TrimSpace(c.MediaDiskDir) == "" {
			return fmt.Errorf("media.disk_dir is required for the disk provider")
		}
	case MediaProviderCloudinary:
		if c.CloudinaryCloud == "" || c.CloudinaryKey == "" || c.CloudinarySecret == "" {
			return fmt.Errorf("cloudinary.cloud_name, cloudinary.api_key and cloudinary.api_secret are required")
		}
	default:
		return fmt.Errorf("media.provider %q is not supported", c.MediaProvider)
	}
	if c.RealtimeSendBuffer <= 0 {
		return fmt.Errorf("realtime.send_buffer must be positive")
	}
	return nil
}

func normalizeList(values []string) []string {
	normalized := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				normalized = append(normalized, trimmed)
			}
		}
	}
	return normalized
}
