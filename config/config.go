package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DB       DBConfig
	HTTP     HTTPConfig
	Sheets   SheetsConfig
	Telegram TelegramConfig
	Admin    AdminConfig
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

type HTTPConfig struct {
	Addr string
}

type SheetsConfig struct {
	SpreadsheetID string
	ClientEmail   string
	PrivateKey    string // PEM, PKCS#8
}

// Enabled reports whether spreadsheet sync is configured at all. The app
// runs without it; orders then simply never leave the database.
func (c SheetsConfig) Enabled() bool {
	return c.SpreadsheetID != ""
}

type TelegramConfig struct {
	MessageToken string // token for sending order notifications to admin
	AdminChatID  int64
}

type AdminConfig struct {
	Password string // shared secret for the staff endpoints
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	port, _ := strconv.Atoi(getEnv("DB_PORT", "5432"))
	adminChat, _ := strconv.ParseInt(getEnv("ADMIN_ID", "0"), 10, 64)

	cfg := &Config{
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     port,
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "haveekos"),
		},
		HTTP: HTTPConfig{
			Addr: getEnv("HTTP_ADDR", ":8080"),
		},
		Sheets: SheetsConfig{
			SpreadsheetID: getEnv("SPREADSHEET_ID", ""),
			ClientEmail:   getEnv("GOOGLE_CLIENT_EMAIL", ""),
			// .env files carry the key with literal \n escapes.
			PrivateKey: strings.ReplaceAll(getEnv("GOOGLE_PRIVATE_KEY", ""), `\n`, "\n"),
		},
		Telegram: TelegramConfig{
			MessageToken: getEnv("MESSAGE_TOKEN", ""),
			AdminChatID:  adminChat,
		},
		Admin: AdminConfig{
			Password: getEnv("ADMIN_PASSWORD", ""),
		},
	}

	if cfg.Sheets.Enabled() {
		if cfg.Sheets.ClientEmail == "" || cfg.Sheets.PrivateKey == "" {
			return nil, fmt.Errorf("SPREADSHEET_ID is set but GOOGLE_CLIENT_EMAIL or GOOGLE_PRIVATE_KEY is missing")
		}
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
