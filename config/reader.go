package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type RabbitMQConfig struct {
	URL string `yaml:"url"`
}

// FeedConfig - настройки движка ленты
type FeedConfig struct {
	PageSize             int           `yaml:"page_size"`              // размер страницы ленты
	QueryTimeout         time.Duration `yaml:"query_timeout"`          // таймаут одного запроса к хранилищу
	PollInterval         time.Duration `yaml:"poll_interval"`          // интервал poll-фоллбека для новых постов
	ResyncAfterRollbacks int           `yaml:"resync_after_rollbacks"` // порог откатов до принудительного resync
	DailyXPCap           int64         `yaml:"daily_xp_cap"`           // дневной лимит XP
}

type ConfigSchema struct {
	Databases struct {
		Master   DBConfig   `yaml:"master"`
		Replicas []DBConfig `yaml:"replicas"`
	} `yaml:"databases"`
	Redis    RedisConfig    `yaml:"redis"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Backend  struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"backend"`
	Feed FeedConfig `yaml:"feed"`
}

var AppConfig *ConfigSchema

func LoadConfig(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	cfg := &ConfigSchema{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}
	applyDefaults(cfg)
	AppConfig = cfg
	return nil
}

// applyDefaults подставляет дефолты для незаполненных настроек ленты
func applyDefaults(cfg *ConfigSchema) {
	if cfg.Feed.PageSize <= 0 {
		cfg.Feed.PageSize = 20
	}
	if cfg.Feed.QueryTimeout <= 0 {
		cfg.Feed.QueryTimeout = 3 * time.Second
	}
	if cfg.Feed.PollInterval <= 0 {
		cfg.Feed.PollInterval = 30 * time.Second
	}
	if cfg.Feed.ResyncAfterRollbacks <= 0 {
		cfg.Feed.ResyncAfterRollbacks = 3
	}
	if cfg.Feed.DailyXPCap <= 0 {
		cfg.Feed.DailyXPCap = 200
	}
}
