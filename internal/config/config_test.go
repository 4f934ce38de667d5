package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("MICROSOFT_APP_ID", "app-id")
	t.Setenv("MICROSOFT_APP_PASSWORD", "app-secret")
	t.Setenv("GRAPH_TENANT_ID", "tenant")
	t.Setenv("GRAPH_CLIENT_ID", "graph-client")
	t.Setenv("GRAPH_CLIENT_SECRET", "graph-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3978", cfg.Port)
	assert.Equal(t, "gpt-4o", cfg.OpenAIModel)
	assert.Equal(t, 30*time.Second, cfg.LLMTimeout)
	assert.Equal(t, 15*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "en", cfg.DefaultLocale)
	assert.Equal(t, 5, cfg.RateLimitBurst)
	assert.InDelta(t, 2.0, cfg.RateLimitPerSecond, 0.0001)
	assert.Equal(t, "Asia/Ulaanbaatar", cfg.Location().String())
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "8080")
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")
	t.Setenv("LLM_TIMEOUT", "5s")
	t.Setenv("ABSENCE_API_URL", "http://absence.local/api")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAIModel)
	assert.Equal(t, 5*time.Second, cfg.LLMTimeout)
	assert.Equal(t, "http://absence.local/api", cfg.AbsenceURL)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("MICROSOFT_APP_ID", "")
	t.Setenv("MICROSOFT_APP_PASSWORD", "")
	t.Setenv("GRAPH_TENANT_ID", "")
	t.Setenv("GRAPH_CLIENT_ID", "")
	t.Setenv("GRAPH_CLIENT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
	assert.Contains(t, err.Error(), "MICROSOFT_APP_ID")
	assert.Contains(t, err.Error(), "GRAPH_TENANT_ID")
}

func TestValidateRejectsBadTimezone(t *testing.T) {
	cfg := &Config{
		OpenAIAPIKey:      "k",
		AppID:             "a",
		AppPassword:       "p",
		GraphTenantID:     "t",
		GraphClientID:     "c",
		GraphClientSecret: "s",
		LLMTimeout:        time.Second,
		HTTPTimeout:       time.Second,
		Timezone:          "Mars/Olympus",
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TIMEZONE")
}
