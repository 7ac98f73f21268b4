package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/pion/webrtc/v4"
)

const (
	StoreDriverRedis    = "redis"
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Debug bool `env:"DEBUG" envDefault:"false"`

	Room       string `env:"ROOM" envDefault:"lobby"`
	ScreenName string `env:"SCREEN_NAME"`

	ControlPort      string `env:"CONTROL_PORT" envDefault:"3000"`
	MetricPort       string `env:"METRIC_PORT" envDefault:"9090"`
	ControlJWTSecret string `env:"CONTROL_JWT_SECRET"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"redis"`

	Redis    RedisConfig
	Postgres PostgresConfig
	ICE      ICEConfig
	Media    MediaConfig
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type PostgresConfig struct {
	URL string `env:"POSTGRES_URL"`

	Host     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	User     string `env:"POSTGRES_USER" envDefault:"postgres"`
	Password string `env:"POSTGRES_PASSWORD" envDefault:"postgres"`
	Name     string `env:"POSTGRES_NAME" envDefault:"roomspeak"`
	SSL      string `env:"POSTGRES_SSL" envDefault:"disable"`
}

func (p *PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}

	return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		p.User,
		p.Password,
		p.Host,
		p.Port,
		p.Name,
		p.SSL,
	)
}

type ICEConfig struct {
	STUNServers []string `env:"STUN_SERVERS" envDefault:"stun:stun.l.google.com:19302,stun:stun1.l.google.com:19302" envSeparator:","`

	// TURN опционален: без хоста используются только STUN сервера
	TURNHost     string `env:"TURN_HOST"`
	TURNUsername string `env:"TURN_USERNAME"`
	TURNPassword string `env:"TURN_PASSWORD"`
}

// Servers собирает список ICE серверов для pion
func (c ICEConfig) Servers() []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, 3)

	if len(c.STUNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: c.STUNServers})
	}

	if c.TURNHost == "" {
		return servers
	}

	servers = append(servers,
		webrtc.ICEServer{
			URLs:       []string{fmt.Sprintf("turn:%s?transport=udp", c.TURNHost)},
			Username:   c.TURNUsername,
			Credential: c.TURNPassword,
		},
		webrtc.ICEServer{
			URLs:       []string{fmt.Sprintf("turn:%s?transport=tcp", c.TURNHost)},
			Username:   c.TURNUsername,
			Credential: c.TURNPassword,
		},
	)

	return servers
}

type MediaConfig struct {
	// Device - "silence" или "ogg:<path>"
	Device string `env:"MEDIA_DEVICE" envDefault:"silence"`

	// OutputDir - куда писать входящее аудио участников. Пусто - не писать.
	OutputDir string `env:"AUDIO_OUT_DIR"`
}

func New() (*Config, error) {
	c, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	switch c.StoreDriver {
	case StoreDriverRedis, StoreDriverPostgres, StoreDriverMemory:
	default:
		return nil, fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}

	return &c, nil
}
