package publisher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"REDDIT_APP_ID", "REDDIT_APP_SECRET", "REDDIT_USERNAME", "REDDIT_PASSWORD", "REDDIT_SUBREDDIT",
		"SPEAKOUT_LIST_URL", "REDIS_URL", "LEDGER_BACKEND", "LEDGER_MAX_HISTORY", "SERVER_ADDR",
		"DASHBOARD_SECRET", "SCHEDULE_INTERVAL", "DRY_RUN", "SKIP_LATEST_CHECK", "OPENAI_API_KEY",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	clearConfigEnv(t)
	path := writeConfig(t, `{
		"reddit": {"app_id": "id", "app_secret": "secret", "username": "bot", "password": "pw",
			"flair_templates": {"BJP": "tmpl-1"}},
		"schedule": {"interval": "30m"},
		"llm": {"api_key": "sk-test"}
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "DHSavagery", cfg.Reddit.Subreddit)
	assert.Equal(t, "DH Speakout", cfg.Reddit.TitleLabel)
	assert.Equal(t, "tmpl-1", cfg.Reddit.FlairTemplates["BJP"])
	assert.Equal(t, "memory", cfg.Ledger.Backend)
	assert.Equal(t, 20, cfg.Ledger.MaxHistory)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 30*time.Minute, cfg.IntervalDuration())
	require.NotNil(t, cfg.LLM)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	clearConfigEnv(t)
	path := writeConfig(t, `{"reddit": {"app_id": "file-id", "app_secret": "s", "username": "u", "password": "p"}, "dry_run": true}`)
	t.Setenv("REDDIT_APP_ID", "env-id")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("DRY_RUN", "false")
	t.Setenv("SKIP_LATEST_CHECK", "1")
	t.Setenv("OPENAI_API_KEY", "sk-env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "env-id", cfg.Reddit.AppID)
	assert.Equal(t, "redis", cfg.Ledger.Backend)
	assert.False(t, cfg.DryRun)
	assert.True(t, cfg.SkipLatestCheck)
	require.NotNil(t, cfg.LLM)
	assert.Equal(t, "sk-env", cfg.LLM.APIKey)
}

func TestLoadConfigMissingFileUsesEnv(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("REDDIT_APP_ID", "id")
	t.Setenv("REDDIT_APP_SECRET", "secret")
	t.Setenv("REDDIT_USERNAME", "bot")
	t.Setenv("REDDIT_PASSWORD", "pw")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, "bot", cfg.Reddit.Username)
	assert.Nil(t, cfg.LLM)
	assert.Equal(t, defaultInterval, cfg.IntervalDuration())
}

func TestLoadConfigValidation(t *testing.T) {
	clearConfigEnv(t)

	_, err := LoadConfig(writeConfig(t, `{"reddit": {"username": "u", "password": "p"}}`))
	assert.ErrorContains(t, err, "app_id")

	_, err = LoadConfig(writeConfig(t, `{"reddit": {"app_id": "i", "app_secret": "s"}}`))
	assert.ErrorContains(t, err, "username")

	_, err = LoadConfig(writeConfig(t, `{"reddit": {"app_id": "i", "app_secret": "s", "username": "u", "password": "p"}, "ledger": {"backend": "redis"}}`))
	assert.ErrorContains(t, err, "redis_url")

	_, err = LoadConfig(writeConfig(t, `{not json`))
	assert.ErrorContains(t, err, "parse config")
}

func TestIntervalDurationFallsBack(t *testing.T) {
	cfg := Config{Schedule: ScheduleConfig{Interval: "soon"}}
	assert.Equal(t, defaultInterval, cfg.IntervalDuration())
}
