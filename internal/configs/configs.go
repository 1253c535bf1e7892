/*
Package configs is responsible for loading and parsing the application's configuration settings.

It reads operating system environment variables for the running environment, the registrar
server port and CORS origins, the identity token secret, the reserved anonymous identity and
the bound on how long a login may wait for server confirmation.
*/
package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultAnonID is the reserved client id of the anonymous person.
	DefaultAnonID = "a0"

	// DefaultRegistrationTimeout bounds how long a login stays pending without confirmation.
	DefaultRegistrationTimeout = 30 * time.Second
)

// AppConfig contains all configuration parameters required for the application to run.
// All configuration values are loaded from environment variables.
type AppConfig struct {
	// General Server Settings
	Environment string
	Port        int

	// Security Settings
	AllowedOrigins []string
	JWTSecret      string

	// Roster Settings
	AnonID              string
	RegistrationTimeout time.Duration

	// Client Settings
	RegistrarURL string
}

// IsDevelopment reports whether the application runs in the development environment.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// LoadConfig reads and parses the application configuration from environment variables.
// It provides default values for each configuration item and performs necessary type conversions and validation.
func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}

	// --- General Server Settings ---
	cfg.Environment = os.Getenv("ENVIRONMENT")
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	portStr := os.Getenv("PORT")
	if portStr == "" {
		portStr = "8080"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT environment variable: %w", err)
	}
	cfg.Port = port

	if cfg.Port < 1024 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the recommended range (%d-%d) to avoid privileged ports", cfg.Port, 1024, 65535)
	}

	// --- Security Settings ---
	originsStr := os.Getenv("ALLOWED_ORIGINS")
	cfg.AllowedOrigins = []string{}
	if originsStr != "" {
		for _, origin := range strings.Split(originsStr, ",") {
			trimmed := strings.TrimSpace(origin)
			if trimmed != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
			}
		}
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		if !cfg.IsDevelopment() {
			return nil, fmt.Errorf("JWT_SECRET environment variable is required in %s environment for security", cfg.Environment)
		}
		jwtSecret = "your_default_insecure_secret_key_change_me"
	}
	cfg.JWTSecret = jwtSecret

	// --- Roster Settings ---
	cfg.AnonID = os.Getenv("ANON_ID")
	if cfg.AnonID == "" {
		cfg.AnonID = DefaultAnonID
	}

	cfg.RegistrationTimeout = DefaultRegistrationTimeout
	if timeoutStr := os.Getenv("REGISTRATION_TIMEOUT"); timeoutStr != "" {
		timeout, err := time.ParseDuration(timeoutStr)
		if err != nil {
			return nil, fmt.Errorf("invalid REGISTRATION_TIMEOUT environment variable: %w", err)
		}
		if timeout < 0 {
			return nil, fmt.Errorf("REGISTRATION_TIMEOUT must not be negative, got %s", timeout)
		}
		cfg.RegistrationTimeout = timeout
	}

	// --- Client Settings ---
	cfg.RegistrarURL = os.Getenv("REGISTRAR_URL")

	return cfg, nil
}
