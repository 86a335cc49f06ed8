package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	LogLevel string  `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	HTTPPort string  `yaml:"http-port" env:"HTTP_PORT" env-default:"9090"`
	Redis    Redis   `yaml:"redis"`
	Session  Session `yaml:"session"`
}

type Redis struct {
	Host string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
}

type Session struct {
	ID            string        `yaml:"id" env:"SESSION_ID" env-default:"local"`
	Role          string        `yaml:"role" env:"SESSION_ROLE" env-default:"solo"`
	LocalPartyID  string        `yaml:"local-party-id" env:"LOCAL_PARTY_ID" env-default:"party-a"`
	RemotePartyID string        `yaml:"remote-party-id" env:"REMOTE_PARTY_ID" env-default:"party-b"`
	BotSettle     time.Duration `yaml:"bot-settle" env:"BOT_SETTLE" env-default:"500ms"`
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		panic(fmt.Errorf("unable to load config file: %w", err))
	}

	return config
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}
