// Package config handles application configuration.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Admission AdmissionConfig `mapstructure:"admission"`
	OTEL      OTELConfig      `mapstructure:"otel"`
	Auth      AuthConfig      `mapstructure:"auth"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string `mapstructure:"port"`
	Host            string `mapstructure:"host"`
	ReadTimeout     int    `mapstructure:"read_timeout"`
	WriteTimeout    int    `mapstructure:"write_timeout"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string `mapstructure:"cors_origins"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int    `mapstructure:"max_conns"`
}

// AdmissionConfig holds the pkg/admission engine's policy source configuration.
type AdmissionConfig struct {
	BundlePath    string `mapstructure:"bundle_path"`
	PolicyPaths   []string `mapstructure:"policy_paths"`
	EnableMetrics bool   `mapstructure:"enable_metrics"`
}

// OTELConfig holds OpenTelemetry configuration.
type OTELConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Endpoint       string `mapstructure:"endpoint"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

// AuthConfig holds API authentication configuration.
type AuthConfig struct {
	Provider    string `mapstructure:"provider"` // none, or any string once real SSO is fronted
	BearerToken string `mapstructure:"bearer_token"`
}

// Load reads configuration from file and environment.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from config file if provided
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		// Look for config in standard locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/policyguard")
		v.AddConfigPath("$HOME/.policyguard")

		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
			// Config file not found - continue with defaults and env vars
		}
	}

	// Bind environment variables
	v.SetEnvPrefix("POLICYGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Override with explicit environment variables
	bindEnvVars(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 15)
	v.SetDefault("server.write_timeout", 15)
	v.SetDefault("server.shutdown_timeout", 30)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Database defaults (audit trail store)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "policyguard")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 25)

	// Admission defaults
	v.SetDefault("admission.bundle_path", "./policies/bundle.tar.gz")
	v.SetDefault("admission.enable_metrics", true)

	// OTEL defaults
	v.SetDefault("otel.enabled", true)
	v.SetDefault("otel.service_name", "policyguard")
	v.SetDefault("otel.sampling_rate", 1.0)

	// Auth defaults
	v.SetDefault("auth.provider", "none")
}

func bindEnvVars(v *viper.Viper) {
	// Database credentials from env
	if val := os.Getenv("POSTGRES_USER"); val != "" {
		v.Set("database.user", val)
	}
	if val := os.Getenv("POSTGRES_PASSWORD"); val != "" {
		v.Set("database.password", val)
	}

	// Auth from env
	if val := os.Getenv("AUTH_BEARER_TOKEN"); val != "" {
		v.Set("auth.bearer_token", val)
	}
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
