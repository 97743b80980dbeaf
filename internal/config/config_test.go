package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// isolate points Load at an empty .env file so values from the developer's
// environment file never leak into tests.
func isolate(t *testing.T) string {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	t.Setenv("BOT_TOKEN", "123:abc")
	return path
}

func TestLoadDefaults(t *testing.T) {
	env := isolate(t)

	cfg, err := Load(env)
	require.NoError(t, err)

	require.Equal(t, "123:abc", cfg.BotToken)
	require.Equal(t, BackendSQLite, cfg.StoreBackend)
	require.Equal(t, "contest.db", cfg.DBPath)
	require.Equal(t, time.Hour, cfg.SweepInterval)
	require.Equal(t, time.Hour, cfg.NudgeAfter)
	require.Equal(t, 2*time.Hour, cfg.NudgeBefore)
	require.Equal(t, 24*time.Hour, cfg.ExpireAfter)
	require.Equal(t, 22, cfg.QuietHoursStart)
	require.Equal(t, 9, cfg.QuietHoursEnd)
	require.Equal(t, 100*time.Millisecond, cfg.SendDelay)
	require.Equal(t, "Asia/Yekaterinburg", cfg.Location.String())
	require.True(t, time.Date(2025, 4, 1, 0, 0, 0, 0, cfg.Location).Equal(cfg.ContestStart))
	require.True(t, time.Date(2025, 11, 30, 0, 0, 0, 0, cfg.Location).Equal(cfg.ContestEnd))
	require.Empty(t, cfg.AdminIDs)
}

func TestLoadFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bot.env")
	content := "BOT_TOKEN=file-token\nADMIN_IDS=10, 20,\nCONTEST_END=\nSEND_DELAY=0s\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	// godotenv.Load sets process variables; register them for cleanup.
	for _, key := range []string{"BOT_TOKEN", "ADMIN_IDS", "CONTEST_END", "SEND_DELAY"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "file-token", cfg.BotToken)
	require.Equal(t, []int64{10, 20}, cfg.AdminIDs)
	require.True(t, cfg.ContestEnd.IsZero())
	require.Zero(t, cfg.SendDelay)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing token", map[string]string{"BOT_TOKEN": ""}},
		{"unknown backend", map[string]string{"STORE_BACKEND": "postgres"}},
		{"sheets without spreadsheet", map[string]string{"STORE_BACKEND": "sheets"}},
		{"bad admin id", map[string]string{"ADMIN_IDS": "12,abc"}},
		{"negative admin id", map[string]string{"ADMIN_IDS": "-5"}},
		{"bad timezone", map[string]string{"TIMEZONE": "Mars/Olympus"}},
		{"bad start", map[string]string{"CONTEST_START": "2025-04-01"}},
		{"end before start", map[string]string{"CONTEST_END": "01.01.2025"}},
		{"bad duration", map[string]string{"SWEEP_INTERVAL": "hourly"}},
		{"nudge window inverted", map[string]string{"NUDGE_AFTER": "3h"}},
		{"expiry inside nudge window", map[string]string{"EXPIRE_AFTER": "90m"}},
		{"quiet hour out of range", map[string]string{"QUIET_HOURS_START": "24"}},
		{"quiet hour not a number", map[string]string{"QUIET_HOURS_END": "nine"}},
		{"bad rules link", map[string]string{"RULES_LINK": "rules"}},
		{"bad log level", map[string]string{"LOG_LEVEL": "verbose"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(env)
			require.Error(t, err)
		})
	}
}

func TestLoadSheetsBackend(t *testing.T) {
	env := isolate(t)
	t.Setenv("STORE_BACKEND", "Sheets")
	t.Setenv("SPREADSHEET_ID", "sheet-id")
	t.Setenv("GOOGLE_CREDENTIALS_FILE", "/secrets/sa.json")

	cfg, err := Load(env)
	require.NoError(t, err)
	require.Equal(t, BackendSheets, cfg.StoreBackend)
	require.Equal(t, "sheet-id", cfg.SpreadsheetID)
}
