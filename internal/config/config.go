// Package config содержит логику чтения конфигурации сервиса учёта грузоперевозок.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/mmeshcher/cargodesk/internal/authz"
)

const (
	defaultRunAddress  = "localhost:8080"
	defaultDatabaseURI = "sqlite://cargodesk.db"
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress    string `env:"RUN_ADDRESS"`
	DatabaseURI   string `env:"DATABASE_URI"`
	SessionSecret string `env:"SESSION_SECRET"`

	SuperAdminUsername string `env:"SUPER_ADMIN_USERNAME" envDefault:"ubaidtra"`
	SuperAdminPassword string `env:"SUPER_ADMIN_PASSWORD"`
	RetiredCredentials string `env:"RETIRED_CREDENTIALS" envDefault:"admin:admin123"`

	Timezone         string        `env:"TIMEZONE" envDefault:"Local"`
	LogQueryMaxLimit int           `env:"LOG_QUERY_MAX_LIMIT" envDefault:"1000"`
	LogLevel         zapcore.Level `env:"LOG_LEVEL" envDefault:"info"`

	LoginRatePerMinute int `env:"LOGIN_RATE_PER_MINUTE" envDefault:"30"`
	LoginBurst         int `env:"LOGIN_BURST" envDefault:"5"`

	loc *time.Location
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envSessionSecret := cfg.SessionSecret

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", defaultDatabaseURI, "database URI (postgres://... or sqlite://path)")
	flag.StringVar(&cfg.SessionSecret, "s", "", "session cookie signing secret")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envSessionSecret != "" {
		cfg.SessionSecret = envSessionSecret
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv считывает конфигурацию только из окружения, без разбора флагов.
// Используется утилитой командной строки.
func FromEnv() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) finish() error {
	if c.RunAddress == "" {
		c.RunAddress = defaultRunAddress
	}
	if c.DatabaseURI == "" {
		c.DatabaseURI = defaultDatabaseURI
	}
	if c.SessionSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return fmt.Errorf("generate session secret: %w", err)
		}
		c.SessionSecret = secret
	}
	if c.LogQueryMaxLimit <= 0 {
		return errors.New("LOG_QUERY_MAX_LIMIT must be positive")
	}
	if c.LoginRatePerMinute < 0 || c.LoginBurst < 0 {
		return errors.New("login rate limit must not be negative")
	}

	loc, err := loadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	c.loc = loc

	if _, err := parseCredentials(c.RetiredCredentials); err != nil {
		return err
	}
	return nil
}

// Location возвращает часовой пояс календарных дат.
func (c *Config) Location() *time.Location {
	if c.loc == nil {
		return time.Local
	}
	return c.loc
}

// SuperAdmin возвращает привилегированную учётную запись из конфигурации.
func (c *Config) SuperAdmin() authz.Principal {
	return authz.Principal{
		Username: c.SuperAdminUsername,
		Password: c.SuperAdminPassword,
	}
}

// Retired возвращает список выведенных из оборота учётных данных.
func (c *Config) Retired() []authz.Credential {
	creds, _ := parseCredentials(c.RetiredCredentials)
	return creds
}

// LoginRateLimit возвращает частоту и burst ограничения попыток входа.
// Если LOGIN_RATE_PER_MINUTE или LOGIN_BURST равны нулю, ограничение отключено и возвращаются нули.
func (c *Config) LoginRateLimit() (rate.Limit, int) {
	if c.LoginRatePerMinute == 0 || c.LoginBurst == 0 {
		return 0, 0
	}
	return rate.Limit(float64(c.LoginRatePerMinute) / 60), c.LoginBurst
}

// LoggerConfig возвращает настройки zap: при LOG_LEVEL=debug консольный
// формат для разработки, иначе JSON.
func (c *Config) LoggerConfig() zap.Config {
	zapCfg := zap.NewProductionConfig()
	if c.LogLevel == zapcore.DebugLevel {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(c.LogLevel)
	return zapCfg
}

func loadLocation(name string) (*time.Location, error) {
	switch strings.TrimSpace(name) {
	case "", "Local":
		return time.Local, nil
	}
	return time.LoadLocation(strings.TrimSpace(name))
}

// parseCredentials разбирает список вида "user:password,user2:password2".
func parseCredentials(value string) ([]authz.Credential, error) {
	var creds []authz.Credential
	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		username, password, ok := strings.Cut(pair, ":")
		if !ok || username == "" {
			return nil, fmt.Errorf("RETIRED_CREDENTIALS: malformed entry %q", pair)
		}
		creds = append(creds, authz.Credential{Username: username, Password: password})
	}
	return creds, nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
