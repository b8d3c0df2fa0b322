package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the service
type Config struct {
	Server   ServerConfig
	Auth     AuthConfig
	SSH      SSHConfig
	Monitor  MonitorConfig
	Database DatabaseConfig
	Logging  LoggingConfig
}

// ServerConfig stores HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	GracefulTimeout time.Duration
	CORSAllowOrigin string
}

// AuthConfig stores authentication configuration
type AuthConfig struct {
	JWTSecret      string
	JWTExpiryHours int
	JWTIssuer      string
}

// SSHConfig stores SSH client configuration
type SSHConfig struct {
	ConnectTimeout time.Duration
	DefaultPort    int
}

// MonitorConfig stores server-monitoring configuration
type MonitorConfig struct {
	DefaultInterval time.Duration
	ProbeTimeout    time.Duration
}

// DatabaseConfig stores MongoDB connection configuration
type DatabaseConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// LoggingConfig stores logging configuration
type LoggingConfig struct {
	Level string
	File  string
}

// Load reads configuration from environment variables or config file
func Load() (*Config, error) {
	viper.SetDefault("SERVER.PORT", 8081)
	viper.SetDefault("SERVER.HOST", "0.0.0.0")
	viper.SetDefault("SERVER.READ_TIMEOUT", "15s")
	viper.SetDefault("SERVER.WRITE_TIMEOUT", "15s")
	viper.SetDefault("SERVER.GRACEFUL_TIMEOUT", "15s")
	viper.SetDefault("SERVER.CORS_ALLOW_ORIGIN", "*")

	viper.SetDefault("AUTH.JWT_EXPIRY_HOURS", 24)
	viper.SetDefault("AUTH.JWT_ISSUER", "vps-gateway-service")

	viper.SetDefault("SSH.CONNECT_TIMEOUT", "10s")
	viper.SetDefault("SSH.DEFAULT_PORT", 22)

	viper.SetDefault("MONITOR.DEFAULT_INTERVAL", "5s")
	viper.SetDefault("MONITOR.PROBE_TIMEOUT", "10s")

	viper.SetDefault("DATABASE.URI", "mongodb://localhost:27017")
	viper.SetDefault("DATABASE.DATABASE", "vps_gateway")
	viper.SetDefault("DATABASE.TIMEOUT", "10s")

	viper.SetDefault("LOGGING.LEVEL", "info")
	viper.SetDefault("LOGGING.FILE", "")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/config")
	viper.AddConfigPath("$HOME/.vps-gateway")
	viper.AutomaticEnv()

	// Config file is optional; environment variables and defaults cover
	// everything it could set
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("Warning: error reading config file: %v", err)
		}
	}

	readTimeout, err := time.ParseDuration(viper.GetString("SERVER.READ_TIMEOUT"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER.READ_TIMEOUT: %w", err)
	}

	writeTimeout, err := time.ParseDuration(viper.GetString("SERVER.WRITE_TIMEOUT"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER.WRITE_TIMEOUT: %w", err)
	}

	gracefulTimeout, err := time.ParseDuration(viper.GetString("SERVER.GRACEFUL_TIMEOUT"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER.GRACEFUL_TIMEOUT: %w", err)
	}

	connectTimeout, err := time.ParseDuration(viper.GetString("SSH.CONNECT_TIMEOUT"))
	if err != nil {
		return nil, fmt.Errorf("invalid SSH.CONNECT_TIMEOUT: %w", err)
	}

	monitorInterval, err := time.ParseDuration(viper.GetString("MONITOR.DEFAULT_INTERVAL"))
	if err != nil {
		return nil, fmt.Errorf("invalid MONITOR.DEFAULT_INTERVAL: %w", err)
	}

	probeTimeout, err := time.ParseDuration(viper.GetString("MONITOR.PROBE_TIMEOUT"))
	if err != nil {
		return nil, fmt.Errorf("invalid MONITOR.PROBE_TIMEOUT: %w", err)
	}

	dbTimeout, err := time.ParseDuration(viper.GetString("DATABASE.TIMEOUT"))
	if err != nil {
		return nil, fmt.Errorf("invalid DATABASE.TIMEOUT: %w", err)
	}

	jwtSecret := viper.GetString("AUTH.JWT_SECRET")
	if jwtSecret == "" {
		log.Println("WARNING: AUTH.JWT_SECRET not set, using default (insecure) value")
		jwtSecret = "default-insecure-jwt-secret-do-not-use-in-production"
	}

	config := &Config{
		Server: ServerConfig{
			Port:            viper.GetInt("SERVER.PORT"),
			Host:            viper.GetString("SERVER.HOST"),
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			GracefulTimeout: gracefulTimeout,
			CORSAllowOrigin: viper.GetString("SERVER.CORS_ALLOW_ORIGIN"),
		},
		Auth: AuthConfig{
			JWTSecret:      jwtSecret,
			JWTExpiryHours: viper.GetInt("AUTH.JWT_EXPIRY_HOURS"),
			JWTIssuer:      viper.GetString("AUTH.JWT_ISSUER"),
		},
		SSH: SSHConfig{
			ConnectTimeout: connectTimeout,
			DefaultPort:    viper.GetInt("SSH.DEFAULT_PORT"),
		},
		Monitor: MonitorConfig{
			DefaultInterval: monitorInterval,
			ProbeTimeout:    probeTimeout,
		},
		Database: DatabaseConfig{
			URI:      viper.GetString("DATABASE.URI"),
			Database: viper.GetString("DATABASE.DATABASE"),
			Timeout:  dbTimeout,
		},
		Logging: LoggingConfig{
			Level: viper.GetString("LOGGING.LEVEL"),
			File:  viper.GetString("LOGGING.FILE"),
		},
	}

	return config, nil
}
