package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv   string `envconfig:"APP_ENV" default:"dev"`
	LogLevel string `envconfig:"LOG_LEVEL"`
	TZ       string `envconfig:"TZ" default:"Europe/Kyiv"`

	HTTPAddr       string        `envconfig:"HTTP_ADDR" default:":8080"`
	MetricsAddr    string        `envconfig:"METRICS_ADDR" default:":9090"`
	HealthInterval time.Duration `envconfig:"HEALTH_INTERVAL" default:"30s"`

	Telegram struct {
		Token         string  `envconfig:"TG_BOT_TOKEN"`
		StorageChatID int64   `envconfig:"TG_STORAGE_CHAT_ID"`
		AdminIDs      []int64 `envconfig:"ADMIN_IDS"`
	} `envconfig:""`

	AdminToken string `envconfig:"ADMIN_TOKEN"`

	Report struct {
		At     string `envconfig:"REPORT_AT" default:"09:00"`
		Period string `envconfig:"REPORT_PERIOD" default:"Week"`
	} `envconfig:""`

	Storage struct {
		Driver       string `envconfig:"STORAGE_DRIVER" default:"postgres"`
		PGDSN        string `envconfig:"PG_DSN"`
		MaxConns     int32  `envconfig:"PG_MAX_CONNS" default:"5"`
		StrictSchema bool   `envconfig:"PG_STRICT_SCHEMA" default:"false"`
	} `envconfig:""`

	Cache struct {
		RedisAddr  string        `envconfig:"REDIS_ADDR"`
		TTL        time.Duration `envconfig:"CACHE_TTL" default:"168h"`
		ReserveTTL time.Duration `envconfig:"RESERVE_TTL" default:"2m"`
	} `envconfig:""`

	Fetch struct {
		URL     string        `envconfig:"FETCH_API_URL"`
		Host    string        `envconfig:"FETCH_API_HOST"`
		Keys    []string      `envconfig:"FETCH_API_KEYS"`
		Timeout time.Duration `envconfig:"FETCH_TIMEOUT" default:"60s"`
	} `envconfig:""`
}

// Location возвращает часовой пояс для дневных отчётов.
func (c AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.TZ)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsAdmin сообщает, входит ли пользователь в список администраторов.
func (c AppConfig) IsAdmin(userID int64) bool {
	for _, id := range c.Telegram.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Parse читает конфиг из окружения.
func Parse() (AppConfig, error) {
	var cfg AppConfig
	err := envconfig.Process("", &cfg)
	return cfg, err
}

// Load загружает .env (если есть) и конфиг из окружения.
func Load() AppConfig {
	_ = godotenv.Load()
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
