package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	LogLevel string `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`

	API   API   `yaml:"api"`
	Redis Redis `yaml:"redis"`
	Sync  Sync  `yaml:"sync"`
	Game  Game  `yaml:"game"`
}

type API struct {
	BaseURL   string `yaml:"base-url" env:"API_BASE_URL" env-default:"http://localhost:8080/api"`
	AuthToken string `yaml:"auth-token" env:"API_AUTH_TOKEN"`
}

type Redis struct {
	Host string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
}

// Sync tunes the synchronization engine: the polling fallback, the
// websocket reconnection policy and the per-turn deadline handling.
type Sync struct {
	PollInterval         string `yaml:"poll-interval" env-default:"2s"`
	ConnectTimeout       string `yaml:"connect-timeout" env-default:"10s"`
	PingInterval         string `yaml:"ping-interval" env-default:"30s"`
	ReconnectBase        string `yaml:"reconnect-base" env-default:"1s"`
	ReconnectCap         string `yaml:"reconnect-cap" env-default:"10s"`
	ReconnectMaxAttempts int    `yaml:"reconnect-max-attempts" env-default:"20"`
	TurnTimeout          string `yaml:"turn-timeout" env-default:"10s"`
	BotThinkDelay        string `yaml:"bot-think-delay" env-default:"200ms"`
}

type Game struct {
	BoardSize  int    `yaml:"board-size" env-default:"3"`
	Difficulty string `yaml:"difficulty" env-default:"easy"`
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

// GetWebsocketURL derives the websocket endpoint from the API base URL,
// the same way the web client does.
func (that *API) GetWebsocketURL() string {
	return strings.Replace(strings.TrimRight(that.BaseURL, "/"), "http", "ws", 1)
}

func (that *Sync) GetPollInterval() time.Duration {
	return parseDuration(that.PollInterval, 2*time.Second)
}

func (that *Sync) GetConnectTimeout() time.Duration {
	return parseDuration(that.ConnectTimeout, 10*time.Second)
}

func (that *Sync) GetPingInterval() time.Duration {
	return parseDuration(that.PingInterval, 30*time.Second)
}

func (that *Sync) GetReconnectBase() time.Duration {
	return parseDuration(that.ReconnectBase, time.Second)
}

func (that *Sync) GetReconnectCap() time.Duration {
	return parseDuration(that.ReconnectCap, 10*time.Second)
}

func (that *Sync) GetTurnTimeout() time.Duration {
	return parseDuration(that.TurnTimeout, 10*time.Second)
}

func (that *Sync) GetBotThinkDelay() time.Duration {
	return parseDuration(that.BotThinkDelay, 200*time.Millisecond)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return parsed
}
