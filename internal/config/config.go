package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	NodeEnv   string
	Port      string
	JWTSecret string
	Database  DatabaseConfig
	Agent     AgentConfig
}

// DatabaseConfig holds database configuration for the document store server
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	Alter    bool
}

// AgentConfig holds configuration for the offline client agent
type AgentConfig struct {
	Port      string
	ServerURL string
	DataDir   string
	UserID    string
	APIToken  string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return &Config{
		NodeEnv:   getEnv("NODE_ENV", "development"),
		Port:      getEnv("PORT", "3001"),
		JWTSecret: jwtSecret,
		Database: DatabaseConfig{
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Username: getEnv("PG_USERNAME", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			Database: getEnv("PG_DATABASE", "recibos"),
			Alter:    getEnv("DB_ALTER", "false") == "true",
		},
		Agent: AgentConfig{
			Port:      getEnv("AGENT_PORT", "3002"),
			ServerURL: getEnv("SERVER_URL", "http://localhost:3001"),
			DataDir:   getEnv("AGENT_DATA_DIR", "./agent_data"),
			UserID:    os.Getenv("AGENT_USER_ID"),
			APIToken:  os.Getenv("AGENT_API_TOKEN"),
		},
	}, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
