// Package config loads the bot settings from the environment and an optional
// .env file.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const dateLayout = "02.01.2006"

const (
	BackendSQLite = "sqlite"
	BackendSheets = "sheets"
)

type Config struct {
	BotToken string  `validate:"required"`
	AdminIDs []int64 `validate:"dive,gt=0"`

	StoreBackend          string `validate:"oneof=sqlite sheets"`
	DBPath                string `validate:"required_if=StoreBackend sqlite"`
	SpreadsheetID         string `validate:"required_if=StoreBackend sheets"`
	GoogleCredentialsFile string `validate:"required_if=StoreBackend sheets"`

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string `validate:"omitempty,url"`

	ContestStart time.Time
	ContestEnd   time.Time
	Location     *time.Location
	RulesLink    string `validate:"omitempty,url"`

	SweepInterval   time.Duration `validate:"gt=0"`
	NudgeAfter      time.Duration `validate:"gt=0"`
	NudgeBefore     time.Duration `validate:"gtfield=NudgeAfter"`
	ExpireAfter     time.Duration `validate:"gtefield=NudgeBefore"`
	QuietHoursStart int           `validate:"min=0,max=23"`
	QuietHoursEnd   int           `validate:"min=0,max=23"`
	SendDelay       time.Duration `validate:"gte=0"`

	RedisURL    string
	MetricsAddr string
	LogLevel    string `validate:"oneof=debug info warn error"`
}

// Load reads the given .env files (".env" when none is given), then the
// environment. Variables already set in the environment win over the files.
func Load(envFiles ...string) (Config, error) {
	_ = godotenv.Load(envFiles...)

	v := viper.New()
	v.AutomaticEnv()
	v.AllowEmptyEnv(true)

	v.SetDefault("store_backend", BackendSQLite)
	v.SetDefault("db_path", "contest.db")
	v.SetDefault("openai_model", "gpt-3.5-turbo")
	v.SetDefault("contest_start", "01.04.2025")
	v.SetDefault("contest_end", "30.11.2025")
	v.SetDefault("timezone", "Asia/Yekaterinburg")
	v.SetDefault("sweep_interval", "1h")
	v.SetDefault("nudge_after", "1h")
	v.SetDefault("nudge_before", "2h")
	v.SetDefault("expire_after", "24h")
	v.SetDefault("quiet_hours_start", 22)
	v.SetDefault("quiet_hours_end", 9)
	v.SetDefault("send_delay", "100ms")
	v.SetDefault("metrics_addr", ":9090")
	v.SetDefault("log_level", "info")

	cfg := Config{
		BotToken:              v.GetString("bot_token"),
		StoreBackend:          strings.ToLower(v.GetString("store_backend")),
		DBPath:                v.GetString("db_path"),
		SpreadsheetID:         v.GetString("spreadsheet_id"),
		GoogleCredentialsFile: v.GetString("google_credentials_file"),
		OpenAIAPIKey:          v.GetString("openai_api_key"),
		OpenAIModel:           v.GetString("openai_model"),
		OpenAIBaseURL:         v.GetString("openai_base_url"),
		RulesLink:             v.GetString("rules_link"),
		RedisURL:              v.GetString("redis_url"),
		MetricsAddr:           v.GetString("metrics_addr"),
		LogLevel:              strings.ToLower(v.GetString("log_level")),
	}

	var err error
	if cfg.AdminIDs, err = parseIDs(v.GetString("admin_ids")); err != nil {
		return Config{}, err
	}
	if cfg.Location, err = time.LoadLocation(v.GetString("timezone")); err != nil {
		return Config{}, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	if cfg.ContestStart, err = parseDate(v, "contest_start", cfg.Location); err != nil {
		return Config{}, err
	}
	if cfg.ContestEnd, err = parseDate(v, "contest_end", cfg.Location); err != nil {
		return Config{}, err
	}
	if !cfg.ContestEnd.IsZero() && cfg.ContestEnd.Before(cfg.ContestStart) {
		return Config{}, errors.New("CONTEST_END is before CONTEST_START")
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"sweep_interval", &cfg.SweepInterval},
		{"nudge_after", &cfg.NudgeAfter},
		{"nudge_before", &cfg.NudgeBefore},
		{"expire_after", &cfg.ExpireAfter},
		{"send_delay", &cfg.SendDelay},
	}
	for _, d := range durations {
		if *d.dst, err = parseDuration(v, d.key); err != nil {
			return Config{}, err
		}
	}

	if cfg.QuietHoursStart, err = parseInt(v, "quiet_hours_start"); err != nil {
		return Config{}, err
	}
	if cfg.QuietHoursEnd, err = parseInt(v, "quiet_hours_end"); err != nil {
		return Config{}, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func parseIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_IDS entry %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseDate reads a DD.MM.YYYY date. An empty value yields the zero time.
func parseDate(v *viper.Viper, key string, loc *time.Location) (time.Time, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(dateLayout, raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %w", strings.ToUpper(key), err)
	}
	return t, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", strings.ToUpper(key), err)
	}
	return d, nil
}

func parseInt(v *viper.Viper, key string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", strings.ToUpper(key), err)
	}
	return n, nil
}
