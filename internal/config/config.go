// Package config reads service configuration from the environment, after
// loading a .env file if one exists.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"lg/fitquest-api/internal/projection"
	"lg/fitquest-api/internal/xp"
)

type Config struct {
	DBURL   string
	Addr    string
	LogMode string

	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string

	RedisAddr   string
	TipCacheTTL time.Duration

	XPRules          xp.Rules
	XPTxMaxAttempts  int
	BMROther         projection.OtherConvention
	DailyCheckWorker int
}

// Load reads .env (a missing file is fine) and then the environment.
// Malformed numbers fall back to their defaults.
func Load() Config {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() Config {
	rules := xp.DefaultRules
	rules.XPPerLevel = Int("XP_PER_LEVEL", rules.XPPerLevel)
	rules.LogMeal = Int("XP_LOG_MEAL", rules.LogMeal)
	rules.LogWeight = Int("XP_LOG_WEIGHT", rules.LogWeight)
	rules.MetDailyCalorieGoal = Int("XP_MET_DAILY_CALORIE_GOAL", rules.MetDailyCalorieGoal)
	rules.ExceededDailyCalorieGoal = Int("XP_EXCEEDED_DAILY_CALORIE_GOAL", rules.ExceededDailyCalorieGoal)
	if rules.XPPerLevel <= 0 {
		rules.XPPerLevel = xp.DefaultXPPerLevel
	}

	return Config{
		DBURL:            os.Getenv("DB_URL"),
		Addr:             String("ADDR", "localhost:3000"),
		LogMode:          String("LOG_MODE", "dev"),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:    String("OPENAI_BASE_URL", "https://api.openai.com"),
		OpenAIModel:      String("OPENAI_MODEL", "gpt-4o-mini"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		TipCacheTTL:      Duration("TIP_CACHE_TTL", 24*time.Hour),
		XPRules:          rules,
		XPTxMaxAttempts:  Int("XP_TX_MAX_ATTEMPTS", 5),
		BMROther:         bmrOther(os.Getenv("BMR_OTHER_CONVENTION")),
		DailyCheckWorker: Int("DAILY_CHECK_CONCURRENCY", 4),
	}
}

func bmrOther(v string) projection.OtherConvention {
	switch c := projection.OtherConvention(strings.ToLower(strings.TrimSpace(v))); c {
	case projection.OtherMale, projection.OtherFemale:
		return c
	default:
		return projection.OtherAverage
	}
}

func String(name, def string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	return v
}

func Int(name string, def int) int {
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

// Duration accepts Go duration strings ("90m") or a bare number of seconds.
func Duration(name string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}
