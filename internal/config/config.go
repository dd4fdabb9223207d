package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix           = "PHOTOFEED"
	defaultHTTPAddress  = "0.0.0.0:8080"
	defaultDatabasePath = "photofeed.db"
	defaultLogLevel     = "info"
	defaultCookieName   = "app_session"
	defaultAuthIssuer   = "photofeed-auth"

	// StorageBackendLocal serves assets from a local directory at a stable
	// public prefix; StorageBackendMinio keeps assets private and hands out
	// time-limited signed URLs.
	StorageBackendLocal = "local"
	StorageBackendMinio = "minio"

	defaultStorageBackend    = StorageBackendLocal
	defaultLocalDirectory    = "uploads"
	defaultLocalPublicURL    = "/uploads"
	defaultSignedURLTTL      = 3600
	defaultRefreshBufferSecs = 60
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress       string
	DatabasePath      string
	LogLevel          string
	AuthSigningSecret string
	AuthIssuer        string
	AuthCookieName    string

	StorageBackend string

	LocalDirectory string
	LocalPublicURL string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	SignedURLTTL  time.Duration
	RefreshBuffer time.Duration
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
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.issuer", defaultAuthIssuer)
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("storage.backend", defaultStorageBackend)
	configViper.SetDefault("storage.local.directory", defaultLocalDirectory)
	configViper.SetDefault("storage.local.public_url", defaultLocalPublicURL)
	configViper.SetDefault("storage.minio.use_ssl", false)
	configViper.SetDefault("storage.signed_url_ttl_seconds", defaultSignedURLTTL)
	configViper.SetDefault("storage.refresh_buffer_seconds", defaultRefreshBufferSecs)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       configViper.GetString("http.address"),
		DatabasePath:      configViper.GetString("database.path"),
		LogLevel:          configViper.GetString("log.level"),
		AuthSigningSecret: configViper.GetString("auth.signing_secret"),
		AuthIssuer:        configViper.GetString("auth.issuer"),
		AuthCookieName:    configViper.GetString("auth.cookie_name"),
		StorageBackend:    strings.ToLower(strings.TrimSpace(configViper.GetString("storage.backend"))),
		LocalDirectory:    configViper.GetString("storage.local.directory"),
		LocalPublicURL:    configViper.GetString("storage.local.public_url"),
		MinioEndpoint:     configViper.GetString("storage.minio.endpoint"),
		MinioAccessKey:    configViper.GetString("storage.minio.access_key"),
		MinioSecretKey:    configViper.GetString("storage.minio.secret_key"),
		MinioBucket:       configViper.GetString("storage.minio.bucket"),
		MinioUseSSL:       configViper.GetBool("storage.minio.use_ssl"),
		SignedURLTTL:      time.Duration(configViper.GetInt("storage.signed_url_ttl_seconds")) * time.Second,
		RefreshBuffer:     time.Duration(configViper.GetInt("storage.refresh_buffer_seconds")) * time.Second,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.AuthSigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.AuthCookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}

	switch c.StorageBackend {
	case StorageBackendLocal:
		if strings.TrimSpace(c.LocalDirectory) == "" {
			return fmt.Errorf("storage.local.directory is required for the local backend")
		}
		if strings.TrimSpace(c.LocalPublicURL) == "" {
			return fmt.Errorf("storage.local.public_url is required for the local backend")
		}
	case StorageBackendMinio:
		if strings.TrimSpace(c.MinioEndpoint) == "" {
			return fmt.Errorf("storage.minio.endpoint is required for the minio backend")
		}
		if strings.TrimSpace(c.MinioAccessKey) == "" || strings.TrimSpace(c.MinioSecretKey) == "" {
			return fmt.Errorf("storage.minio.access_key and storage.minio.secret_key are required for the minio backend")
		}
		if strings.TrimSpace(c.MinioBucket) == "" {
			return fmt.Errorf("storage.minio.bucket is required for the minio backend")
		}
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q", StorageBackendLocal, StorageBackendMinio, c.StorageBackend)
	}

	if c.SignedURLTTL <= 0 {
		return fmt.Errorf("storage.signed_url_ttl_seconds must be positive")
	}
	if c.RefreshBuffer < 0 || c.RefreshBuffer >= c.SignedURLTTL {
		return fmt.Errorf("storage.refresh_buffer_seconds must be non-negative and smaller than the signed URL TTL")
	}

	return nil
}
