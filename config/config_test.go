package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, name := range []string{"PORT", "DB_PATH", "LOG_MODE", "CORS_ORIGINS", "DEFAULT_LANGUAGE"} {
		t.Setenv(name, "")
	}

	cfg, err := Load(nil)

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "registrations.db", cfg.DBPath)
	assert.Equal(t, "dev", cfg.LogMode)
	assert.Equal(t, "nl", cfg.DefaultLanguage)
	assert.NotEmpty(t, cfg.CORSOrigins)
}

func TestLoad_EnvThenFlags(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DB_PATH", "env.db")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("DEFAULT_LANGUAGE", "en")

	cfg, err := Load([]string{"-db", ":memory:", "-log", "prod"})

	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, ":memory:", cfg.DBPath, "flags win over the environment")
	assert.Equal(t, "prod", cfg.LogMode)
	assert.Equal(t, "en", cfg.DefaultLanguage)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}

func TestLoad_BadPortFallsBack(t *testing.T) {
	t.Setenv("PORT", "eighty")

	cfg, err := Load(nil)

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
}

func TestLoad_UnknownFlag(t *testing.T) {
	_, err := Load([]string{"-nope"})
	assert.Error(t, err)
}
