package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Owner    OwnerConfig
	Remote   RemoteConfig
	Relay    RelayConfig
	Jobs     JobsConfig
	Log      LogConfig
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Port    int
	GinMode string

	// AllowedOrigins enables CORS for these origins; empty disables CORS
	AllowedOrigins []string
}

// DatabaseConfig holds the local store configuration.
// Driver is "sqlite3" (Path is used) or "postgres" (the network fields are used).
type DatabaseConfig struct {
	Driver   string
	Path     string
	Host     string
	Port     int
	Username string
	Password string
	DBName   string
	SSLMode  string
}

// AuthConfig holds the authentication configuration
type AuthConfig struct {
	JWTSecret string
}

// OwnerConfig identifies the user who owns the local ledger
type OwnerConfig struct {
	Email string
}

// RemoteConfig selects and configures the remote object store
type RemoteConfig struct {
	Backend          string
	LocalRoot        string
	FolderName       string
	SnapshotFileName string
	Timeout          time.Duration
	CredentialsFile  string
	GCSBucket        string
}

// RelayConfig configures the invitation relay. An empty URL disables it.
type RelayConfig struct {
	AMQPURL string
}

// JobsConfig holds the background job intervals; zero disables a job
type JobsConfig struct {
	PublishInterval time.Duration
	SyncInterval    time.Duration
	BackupInterval  time.Duration
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level       string
	Development bool
}

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"

	BackendLocal = "local"
	BackendDrive = "drive"
	BackendGCS   = "gcs"
)

// GetDSN returns the connection string for the configured driver
func (c *DatabaseConfig) GetDSN() string {
	if c.Driver == DriverSQLite {
		return c.Path
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.DBName, c.SSLMode,
	)
}

// LoadConfig loads the configuration from environment variables.
// A .env file in the working directory is read first when present.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("GIN_MODE", "debug")
	v.SetDefault("DB_DRIVER", DriverSQLite)
	v.SetDefault("DB_PATH", "ledger.db")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USERNAME", "postgres")
	v.SetDefault("DB_PASSWORD", "password")
	v.SetDefault("DB_NAME", "ledgershare")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("JWT_SECRET", "your-secret-key-here")
	v.SetDefault("REMOTE_BACKEND", BackendLocal)
	v.SetDefault("REMOTE_LOCAL_ROOT", "./remote")
	v.SetDefault("REMOTE_FOLDER", "PersonalBudgetBackups")
	v.SetDefault("REMOTE_SNAPSHOT_FILE", "my_personalbudget_data.json")
	v.SetDefault("REMOTE_TIMEOUT", 30*time.Second)
	v.SetDefault("JOB_PUBLISH_INTERVAL", time.Duration(0))
	v.SetDefault("JOB_SYNC_INTERVAL", time.Duration(0))
	v.SetDefault("JOB_BACKUP_INTERVAL", time.Duration(0))
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_DEVELOPMENT", true)

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetInt("SERVER_PORT"),
			GinMode:        v.GetString("GIN_MODE"),
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			Driver:   v.GetString("DB_DRIVER"),
			Path:     v.GetString("DB_PATH"),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetInt("DB_PORT"),
			Username: v.GetString("DB_USERNAME"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("JWT_SECRET"),
		},
		Owner: OwnerConfig{
			Email: strings.TrimSpace(v.GetString("OWNER_EMAIL")),
		},
		Remote: RemoteConfig{
			Backend:          strings.ToLower(v.GetString("REMOTE_BACKEND")),
			LocalRoot:        v.GetString("REMOTE_LOCAL_ROOT"),
			FolderName:       v.GetString("REMOTE_FOLDER"),
			SnapshotFileName: v.GetString("REMOTE_SNAPSHOT_FILE"),
			Timeout:          v.GetDuration("REMOTE_TIMEOUT"),
			CredentialsFile:  v.GetString("GOOGLE_APPLICATION_CREDENTIALS"),
			GCSBucket:        v.GetString("GCS_BUCKET"),
		},
		Relay: RelayConfig{
			AMQPURL: v.GetString("AMQP_URL"),
		},
		Jobs: JobsConfig{
			PublishInterval: v.GetDuration("JOB_PUBLISH_INTERVAL"),
			SyncInterval:    v.GetDuration("JOB_SYNC_INTERVAL"),
			BackupInterval:  v.GetDuration("JOB_BACKUP_INTERVAL"),
		},
		Log: LogConfig{
			Level:       v.GetString("LOG_LEVEL"),
			Development: v.GetBool("LOG_DEVELOPMENT"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields that have no usable default
func (c *Config) Validate() error {
	if c.Owner.Email == "" {
		return errors.New("OWNER_EMAIL is required")
	}
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	switch c.Remote.Backend {
	case BackendLocal, BackendDrive:
	case BackendGCS:
		if c.Remote.GCSBucket == "" {
			return errors.New("GCS_BUCKET is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unsupported REMOTE_BACKEND %q", c.Remote.Backend)
	}
	if c.Remote.Timeout <= 0 {
		return errors.New("REMOTE_TIMEOUT must be positive")
	}
	if c.Remote.SnapshotFileName == "" || c.Remote.FolderName == "" {
		return errors.New("REMOTE_FOLDER and REMOTE_SNAPSHOT_FILE must not be empty")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
