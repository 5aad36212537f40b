package server

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// Config 服务端配置，全部来自环境变量（可由 .env 提供）
type Config struct {
	Host           string        `env:"HOST"`
	Port           int           `env:"PORT,default=3001" validate:"min=1,max=65535"`
	AllowedOrigins string        `env:"ALLOWED_ORIGINS,default=*"`
	RoomName       string        `env:"ROOM_NAME,default=game_room" validate:"required"`
	MaxPlayers     int           `env:"MAX_PLAYERS,default=10" validate:"gt=0"`
	LogFile        string        `env:"LOG_FILE,default=app.log" validate:"required"`
	LogLevel       string        `env:"LOG_LEVEL,default=info" validate:"oneof=debug info warn error"`
	WriteWait      time.Duration `env:"WRITE_WAIT,default=10s" validate:"gt=0"`
	PongWait       time.Duration `env:"PONG_WAIT,default=60s" validate:"gt=0"`
	SendQueueSize  int           `env:"SEND_QUEUE_SIZE,default=64" validate:"gt=0"`
	StatsInterval  time.Duration `env:"STATS_INTERVAL,default=30s" validate:"gte=0"`
}

var configValidator = validator.New()

// LoadConfig 从进程环境读取配置并校验
func LoadConfig() (Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Origins 拆分逗号分隔的 CORS 来源列表
func (c Config) Origins() []string {
	parts := lo.Map(strings.Split(c.AllowedOrigins, ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	})
	return lo.Compact(parts)
}

// DefaultConfig 与环境变量默认值一致，便于测试与嵌入
func DefaultConfig() Config {
	return Config{
		Port:           3001,
		AllowedOrigins: "*",
		RoomName:       "game_room",
		MaxPlayers:     10,
		LogFile:        "app.log",
		LogLevel:       "info",
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		SendQueueSize:  64,
		StatsInterval:  30 * time.Second,
	}
}
