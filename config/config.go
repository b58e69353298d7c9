package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config holds all application configuration loaded from the environment,
// an optional .env file and an optional config file.
type Config struct {
	DatabaseDriver string
	DatabasePath   string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	SearchTerms     []string
	RequestDelayMin time.Duration
	RequestDelayMax time.Duration
	RequestTimeout  time.Duration
	MaxPagesPerSite int
	MaxConcurrency  int
	MaxRetries      int

	GoodConditionKeywords []string
	BadConditionKeywords  []string

	HotDealThreshold  float64
	GoodDealThreshold float64
	HotDealsLimit     int

	ScrapeInterval       time.Duration
	DailySummarySchedule string
	RetrainSchedule      string
	SchedulerTick        time.Duration
	SchedulerStopTimeout time.Duration
	MinRetrainRows       int

	ModelPath         string
	ScalerPath        string
	DistanceTablePath string

	DiscordWebhookURL string
	SlackWebhookURL   string
	TelegramBotToken  string
	TelegramChatID    string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string
	NotificationEmail string

	CSVOutputPath string
	ChromeBin     string

	LogLevel    string
	LogEncoding string
}

var defaultSearchTerms = []string{
	"LQ4 engine",
	"Chevy V8 engine",
	"LS engine",
	"Vortec engine",
	"5.3 engine",
	"6.0 engine",
	"engine block",
	"cylinder heads",
	"intake manifold",
	"crankshaft",
	"pistons",
	"connecting rods",
}

var defaultGoodKeywords = []string{
	"rebuilt", "remanufactured", "new", "excellent", "perfect",
	"low miles", "fresh rebuild", "zero miles", "unused",
}

var defaultBadKeywords = []string{
	"spun bearing", "cracked", "damaged", "blown", "seized",
	"needs work", "for parts", "rebuild needed", "bad",
}

// Load reads the .env file and returns a populated Config struct.
// ENGINE_DEALS_CONFIG may name a YAML/TOML/JSON file whose keys use the same
// names as the environment variables in lower case.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := os.Getenv("ENGINE_DEALS_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
	}

	cfg := &Config{
		DatabaseDriver: strings.ToLower(v.GetString("DATABASE_DRIVER")),
		DatabasePath:   v.GetString("DATABASE_PATH"),

		PostgresHost:     v.GetString("POSTGRES_HOST"),
		PostgresPort:     v.GetString("POSTGRES_PORT"),
		PostgresUser:     v.GetString("POSTGRES_USER"),
		PostgresPassword: v.GetString("POSTGRES_PASSWORD"),
		PostgresDB:       v.GetString("POSTGRES_DB"),
		PostgresSSLMode:  v.GetString("POSTGRES_SSLMODE"),

		SearchTerms:     stringList(v, "SEARCH_TERMS"),
		RequestDelayMin: v.GetDuration("REQUEST_DELAY_MIN"),
		RequestDelayMax: v.GetDuration("REQUEST_DELAY_MAX"),
		RequestTimeout:  v.GetDuration("REQUEST_TIMEOUT"),
		MaxPagesPerSite: v.GetInt("MAX_PAGES_PER_SITE"),
		MaxConcurrency:  v.GetInt("MAX_CONCURRENCY"),
		MaxRetries:      v.GetInt("MAX_RETRIES"),

		GoodConditionKeywords: stringList(v, "GOOD_CONDITION_KEYWORDS"),
		BadConditionKeywords:  stringList(v, "BAD_CONDITION_KEYWORDS"),

		HotDealThreshold:  v.GetFloat64("HOT_DEAL_THRESHOLD"),
		GoodDealThreshold: v.GetFloat64("GOOD_DEAL_THRESHOLD"),
		HotDealsLimit:     v.GetInt("HOT_DEALS_LIMIT"),

		ScrapeInterval:       v.GetDuration("SCRAPE_INTERVAL"),
		DailySummarySchedule: v.GetString("DAILY_SUMMARY_SCHEDULE"),
		RetrainSchedule:      v.GetString("RETRAIN_SCHEDULE"),
		SchedulerTick:        v.GetDuration("SCHEDULER_TICK"),
		SchedulerStopTimeout: v.GetDuration("SCHEDULER_STOP_TIMEOUT"),
		MinRetrainRows:       v.GetInt("MIN_RETRAIN_ROWS"),

		ModelPath:         v.GetString("MODEL_PATH"),
		ScalerPath:        v.GetString("SCALER_PATH"),
		DistanceTablePath: v.GetString("DISTANCE_TABLE_PATH"),

		DiscordWebhookURL: v.GetString("DISCORD_WEBHOOK_URL"),
		SlackWebhookURL:   v.GetString("SLACK_WEBHOOK_URL"),
		TelegramBotToken:  v.GetString("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:    v.GetString("TELEGRAM_CHAT_ID"),
		SMTPHost:          v.GetString("SMTP_HOST"),
		SMTPPort:          v.GetInt("SMTP_PORT"),
		SMTPUsername:      v.GetString("SMTP_USERNAME"),
		SMTPPassword:      v.GetString("SMTP_PASSWORD"),
		NotificationEmail: v.GetString("NOTIFICATION_EMAIL"),

		CSVOutputPath: v.GetString("CSV_OUTPUT_PATH"),
		ChromeBin:     v.GetString("CHROME_BIN"),

		LogLevel:    v.GetString("LOG_LEVEL"),
		LogEncoding: v.GetString("LOG_ENCODING"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DATABASE_DRIVER", "sqlite")
	v.SetDefault("DATABASE_PATH", "data/engine_deals.db")

	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", "5432")
	v.SetDefault("POSTGRES_USER", "deals")
	v.SetDefault("POSTGRES_PASSWORD", "deals123")
	v.SetDefault("POSTGRES_DB", "engine_deals")
	v.SetDefault("POSTGRES_SSLMODE", "disable")

	v.SetDefault("SEARCH_TERMS", defaultSearchTerms)
	v.SetDefault("REQUEST_DELAY_MIN", 2*time.Second)
	v.SetDefault("REQUEST_DELAY_MAX", 5*time.Second)
	v.SetDefault("REQUEST_TIMEOUT", 15*time.Second)
	v.SetDefault("MAX_PAGES_PER_SITE", 5)
	v.SetDefault("MAX_CONCURRENCY", 4)
	v.SetDefault("MAX_RETRIES", 3)

	v.SetDefault("GOOD_CONDITION_KEYWORDS", defaultGoodKeywords)
	v.SetDefault("BAD_CONDITION_KEYWORDS", defaultBadKeywords)

	v.SetDefault("HOT_DEAL_THRESHOLD", 0.8)
	v.SetDefault("GOOD_DEAL_THRESHOLD", 0.6)
	v.SetDefault("HOT_DEALS_LIMIT", 20)

	v.SetDefault("SCRAPE_INTERVAL", 6*time.Hour)
	v.SetDefault("DAILY_SUMMARY_SCHEDULE", "0 8 * * *")
	v.SetDefault("RETRAIN_SCHEDULE", "0 20 * * *")
	v.SetDefault("SCHEDULER_TICK", time.Minute)
	v.SetDefault("SCHEDULER_STOP_TIMEOUT", 5*time.Second)
	v.SetDefault("MIN_RETRAIN_ROWS", 50)

	v.SetDefault("MODEL_PATH", "ml/trained_model.json")
	v.SetDefault("SCALER_PATH", "ml/feature_scaler.json")
	v.SetDefault("DISTANCE_TABLE_PATH", "")

	v.SetDefault("SMTP_HOST", "smtp.gmail.com")
	v.SetDefault("SMTP_PORT", 587)

	v.SetDefault("CSV_OUTPUT_PATH", "./output/raw_listings.csv")
	v.SetDefault("CHROME_BIN", "")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_ENCODING", "console")
}

// stringList reads a list value. Environment variables carry lists as a
// comma-separated string; config files and defaults carry real lists.
func stringList(v *viper.Viper, key string) []string {
	if raw, ok := v.Get(key).(string); ok {
		var out []string
		for _, part := range strings.Split(raw, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return v.GetStringSlice(key)
}

// Validate reports configuration errors that must stop the process.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseDriver != "sqlite" && c.DatabaseDriver != "postgres" {
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be sqlite or postgres, got %q", c.DatabaseDriver))
	}
	if len(c.SearchTerms) == 0 {
		errs = append(errs, errors.New("SEARCH_TERMS must not be empty"))
	}
	if c.RequestDelayMin < 0 || c.RequestDelayMax < c.RequestDelayMin {
		errs = append(errs, fmt.Errorf("request delay bounds invalid: min %v, max %v", c.RequestDelayMin, c.RequestDelayMax))
	}
	if c.HotDealThreshold < 0 || c.HotDealThreshold > 1 {
		errs = append(errs, fmt.Errorf("HOT_DEAL_THRESHOLD must be within [0,1], got %v", c.HotDealThreshold))
	}
	if c.GoodDealThreshold < 0 || c.GoodDealThreshold > 1 {
		errs = append(errs, fmt.Errorf("GOOD_DEAL_THRESHOLD must be within [0,1], got %v", c.GoodDealThreshold))
	}
	if c.MaxPagesPerSite < 1 {
		errs = append(errs, fmt.Errorf("MAX_PAGES_PER_SITE must be positive, got %d", c.MaxPagesPerSite))
	}
	if c.ScrapeInterval <= 0 || c.SchedulerTick <= 0 {
		errs = append(errs, errors.New("SCRAPE_INTERVAL and SCHEDULER_TICK must be positive"))
	}
	for key, spec := range map[string]string{
		"DAILY_SUMMARY_SCHEDULE": c.DailySummarySchedule,
		"RETRAIN_SCHEDULE":       c.RetrainSchedule,
	} {
		if _, err := cron.ParseStandard(spec); err != nil {
			errs = append(errs, fmt.Errorf("%s %q: %w", key, spec, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}
