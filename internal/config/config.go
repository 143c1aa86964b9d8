package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"landplots/internal/database"
)

// Placeholder credentials shipped in sample .env files. A config still
// carrying them is treated as unconfigured.
const (
	PlaceholderAPIKey   = "YOUR_API_KEY_HERE"
	PlaceholderClientID = "YOUR_CLIENT_ID_HERE"
)

// GoogleConfig holds the remote provider credentials.
type GoogleConfig struct {
	APIKey       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	TokenFile    string
}

// Valid reports whether real credentials were supplied.
func (g GoogleConfig) Valid() bool {
	return g.APIKey != "" && g.ClientID != "" &&
		g.APIKey != PlaceholderAPIKey && g.ClientID != PlaceholderClientID
}

// Config is the process configuration.
type Config struct {
	Google     GoogleConfig
	DB         database.DBConfig
	ListenAddr string
	ExportDir  string
}

// ArchiveEnabled reports whether an Oracle archive was configured.
func (c Config) ArchiveEnabled() bool {
	return c.DB.Username != "" && c.DB.Host != ""
}

// Load reads .env files (without overriding variables already set in the
// environment) and builds the configuration from the environment.
func Load(envFiles ...string) Config {
	if len(envFiles) == 0 {
		envFiles = []string{".env", filepath.Join("data", ".env")}
	}
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}
	return FromEnv()
}

// FromEnv builds the configuration from the current environment only.
func FromEnv() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Google: GoogleConfig{
			APIKey:       getEnvOrDefault("GOOGLE_API_KEY", PlaceholderAPIKey),
			ClientID:     getEnvOrDefault("GOOGLE_CLIENT_ID", PlaceholderClientID),
			ClientSecret: getEnvOrDefault("GOOGLE_CLIENT_SECRET", ""),
			RedirectURL:  getEnvOrDefault("GOOGLE_REDIRECT_URL", "http://localhost:51122/oauth-callback"),
			TokenFile:    getEnvOrDefault("GOOGLE_TOKEN_FILE", filepath.Join(home, ".landplots", "google_token.json")),
		},
		DB: database.DBConfig{
			Host:           getEnvOrDefault("DB_HOST", ""),
			Port:           getEnvOrDefault("DB_PORT", "1521"),
			Service:        getEnvOrDefault("DB_SERVICE", "XE"),
			Username:       getEnvOrDefault("DB_USERNAME", ""),
			Password:       getEnvOrDefault("DB_PASSWORD", ""),
			WalletLocation: getEnvOrDefault("DB_WALLET_LOCATION", ""),
		},
		ListenAddr: getEnvOrDefault("LISTEN_ADDR", "127.0.0.1:8080"),
		ExportDir:  getEnvOrDefault("EXPORT_DIR", "."),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}
