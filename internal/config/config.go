package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		URL         string `yaml:"url"`
		Token       string `yaml:"token"`
		RoomCode    string `yaml:"room_code"`
		DisplayName string `yaml:"display_name"`
	} `yaml:"server"`
	Transport struct {
		AckTimeout        string  `yaml:"ack_timeout"`
		HandshakeTimeout  string  `yaml:"handshake_timeout"`
		WriteTimeout      string  `yaml:"write_timeout"`
		PingInterval      string  `yaml:"ping_interval"`
		MaxMessageSize    int64   `yaml:"max_message_size"`
		ReconnectAttempts int     `yaml:"reconnect_attempts"`
		ReconnectInitial  string  `yaml:"reconnect_initial"`
		ReconnectMax      string  `yaml:"reconnect_max"`
		ReconnectFactor   float64 `yaml:"reconnect_multiplier"`
	} `yaml:"transport"`
	Game struct {
		QuestionTime   string         `yaml:"question_time"`
		FreezeDuration string         `yaml:"freeze_duration"`
		TickInterval   string         `yaml:"tick_interval"`
		AutoSubmit     *bool          `yaml:"auto_submit"`
		PowerUps       map[string]int `yaml:"powerups"`
	} `yaml:"game"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Log struct {
		Level  string `yaml:"level"`
		Pretty *bool  `yaml:"pretty"`
	} `yaml:"log"`
}

// Default is the configuration used when no file is present.
func Default() Config {
	cfg := Config{}
	cfg.Server.URL = "ws://localhost:8080/ws"
	cfg.Server.DisplayName = "player"
	cfg.Transport.ReconnectAttempts = 5
	cfg.Game.FreezeDuration = "10s"
	cfg.Game.TickInterval = "1s"
	cfg.Game.PowerUps = map[string]int{"50-50": 1, "time-freeze": 1, "double-points": 1}
	cfg.Redis.TTL = "6h"
	cfg.Log.Level = "info"
	return cfg
}

// Load reads YAML config from path over Default. An optional .env is loaded
// first and LIVEQUIZ_* variables override file values. A missing file is not
// an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, err
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, err
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	str("LIVEQUIZ_SERVER_URL", &cfg.Server.URL)
	str("LIVEQUIZ_TOKEN", &cfg.Server.Token)
	str("LIVEQUIZ_ROOM_CODE", &cfg.Server.RoomCode)
	str("LIVEQUIZ_DISPLAY_NAME", &cfg.Server.DisplayName)
	str("LIVEQUIZ_ACK_TIMEOUT", &cfg.Transport.AckTimeout)
	str("LIVEQUIZ_FREEZE_DURATION", &cfg.Game.FreezeDuration)
	str("LIVEQUIZ_REDIS_ADDR", &cfg.Redis.Addr)
	str("LIVEQUIZ_REDIS_PASSWORD", &cfg.Redis.Password)
	str("LIVEQUIZ_POSTGRES_URL", &cfg.Postgres.URL)
	str("LIVEQUIZ_LOG_LEVEL", &cfg.Log.Level)

	if v, ok := os.LookupEnv("LIVEQUIZ_REDIS_DB"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
	if v, ok := os.LookupEnv("LIVEQUIZ_AUTO_SUBMIT"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Game.AutoSubmit = &b
		}
	}
	if v, ok := os.LookupEnv("LIVEQUIZ_LOG_PRETTY"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Log.Pretty = &b
		}
	}
}

// AutoSubmit reports whether a selected answer is sent when the local
// countdown runs out. Defaults to true.
func (c Config) AutoSubmit() bool {
	return c.Game.AutoSubmit == nil || *c.Game.AutoSubmit
}

// Pretty reports whether logs go through the console writer. Defaults to true.
func (c Config) Pretty() bool {
	return c.Log.Pretty == nil || *c.Log.Pretty
}

// Duration parses a duration string or returns the fallback if empty or invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// TTLDuration is Duration for cache and key expiry settings.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	return Duration(raw, fallback)
}
