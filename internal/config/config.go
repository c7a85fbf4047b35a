package config

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env string `yaml:"env" env-default:"local"`
	API struct {
		BaseURL string `yaml:"base_url" env-default:"http://127.0.0.1:9200"`
	} `yaml:"api"`
	Push struct {
		URL                string `yaml:"url" env-default:"ws://127.0.0.1:9200/ws/chat"`
		HandshakeTimeoutMs int    `yaml:"handshake_timeout_ms" env-default:"10000"`
	} `yaml:"push"`
	Poll struct {
		IntervalMs int `yaml:"interval_ms" env-default:"1500"`
	} `yaml:"poll"`
	Reconnect struct {
		BaseDelayMs int `yaml:"base_delay_ms" env-default:"3000"`
		MaxAttempts int `yaml:"max_attempts" env-default:"5"`
	} `yaml:"reconnect"`
	Auth struct {
		Token      string `yaml:"token" env:"CHAT_AUTH_TOKEN" env-default:""`
		UserID     string `yaml:"user_id" env:"CHAT_USER_ID" env-default:""`
		Privileged bool   `yaml:"privileged" env-default:"true"`
	} `yaml:"auth"`
	Listen struct {
		Enabled bool   `yaml:"enabled" env-default:"false"`
		BindIP  string `yaml:"bind_ip" env-default:"127.0.0.1"`
		Port    string `yaml:"port" env-default:"9200"`
		ApiKey  string `yaml:"key" env-default:""`
	} `yaml:"listen"`
}

// PollInterval returns the polling cadence as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Poll.IntervalMs) * time.Millisecond
}

// ReconnectBaseDelay returns the first reconnect backoff step.
func (c *Config) ReconnectBaseDelay() time.Duration {
	return time.Duration(c.Reconnect.BaseDelayMs) * time.Millisecond
}

// HandshakeTimeout bounds the websocket dial plus authentication exchange.
func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.Push.HandshakeTimeoutMs) * time.Millisecond
}

var instance *Config
var once sync.Once

func MustLoad(path string) *Config {
	var err error
	once.Do(func() {
		instance = &Config{}
		if err = cleanenv.ReadConfig(path, instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			err = fmt.Errorf("%s; %s", err, desc)
			instance = nil
			log.Fatal(err)
		}
	})
	return instance
}
