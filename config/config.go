// Package config loads server settings from an optional .env file, the
// environment and command-line flags, in increasing order of precedence.
package config

import (
	"flag"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            int
	DBPath          string
	LogMode         string
	CORSOrigins     []string
	DefaultLanguage string
}

// Load reads .env (if present), then the environment, then args.
func Load(args []string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := &Config{
		Port:            envInt("PORT", 8080),
		DBPath:          envString("DB_PATH", "registrations.db"),
		LogMode:         envString("LOG_MODE", "dev"),
		CORSOrigins:     envList("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:8080"}),
		DefaultLanguage: envString("DEFAULT_LANGUAGE", "nl"),
	}

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.LogMode, "log", cfg.LogMode, "log mode (dev or prod)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envString(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}

func envInt(name string, def int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func envList(name string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
