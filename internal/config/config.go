// config предоставляет структуру конфигурации сервиса и функции
// загрузки из файла/переменных окружения с предсказуемым приоритетом.
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Окружения сервиса: влияют на формат логов и флаг Secure у кук.
const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// Config — корневая конфигурация сервиса.
// Источники значений (по убыванию приоритета):
//  1. явный путь через флаг --config;
//  2. путь в переменной окружения CONFIG_PATH;
//  3. файл local.yaml из рабочей директории;
//  4. переменные окружения (cleanenv).
type Config struct {
	Env      string        `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig    `yaml:"http"`
	Metrics  MetricsConfig `yaml:"metrics"`
	Auth     AuthConfig    `yaml:"auth"`
	Cookies  CookieConfig  `yaml:"cookies"`
	DB       DBConfig      `yaml:"db"`
	Redis    RedisConfig   `yaml:"redis"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
}

// TimeoutConfig — таймауты сервиса.
type TimeoutConfig struct {
	Service time.Duration `yaml:"service" env:"SERVICE" env-default:"5s"`
}

// HTTPConfig — сетевые настройки публичного HTTP-сервера.
type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"50080"`
}

// Addr возвращает адрес в формате host:port.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// MetricsConfig — отдельный HTTP для Prometheus и health-проб.
type MetricsConfig struct {
	Host string `yaml:"host" env:"METRICS_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"METRICS_PORT" env-default:"50085"`
}

// Addr возвращает адрес в формате host:port.
func (m MetricsConfig) Addr() string {
	return net.JoinHostPort(m.Host, m.Port)
}

// AuthConfig содержит параметры выпуска/валидации токенов и политику блокировки.
type AuthConfig struct {
	// JWTSecret — секрет подписи access-токенов.
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
	// RefreshSecret — отдельный секрет подписи refresh-токенов.
	RefreshSecret   string        `yaml:"refresh_secret" env:"REFRESH_SECRET" env-required:"true"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"168h"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"720h"`
	Issuer          string        `yaml:"issuer"   env:"ISSUER" env-default:"accounts-service"`
	Audience        []string      `yaml:"audience" env:"AUDIENCE" env-default:"web-client"`

	// RefreshTokenLimit — максимум одновременно живых refresh-токенов
	// на пользователя (старейшие вытесняются по FIFO).
	RefreshTokenLimit int `yaml:"refresh_token_limit" env:"REFRESH_TOKEN_LIMIT" env-default:"5"`

	// MaxLoginAttempts — число последовательных неудачных входов до блокировки.
	MaxLoginAttempts int `yaml:"max_login_attempts" env:"MAX_LOGIN_ATTEMPTS" env-default:"5"`
	// LockDuration — длительность временной блокировки учётной записи.
	LockDuration time.Duration `yaml:"lock_duration" env:"LOCK_DURATION" env-default:"2h"`

	// ResetTokenTTL — срок действия одноразового токена сброса пароля.
	ResetTokenTTL time.Duration `yaml:"reset_token_ttl" env:"RESET_TOKEN_TTL" env-default:"10m"`
	// VerifyTokenTTL — срок действия токена подтверждения email.
	VerifyTokenTTL time.Duration `yaml:"verify_token_ttl" env:"VERIFY_TOKEN_TTL" env-default:"24h"`
}

// CookieConfig — выдача токенов в httpOnly-куках.
// Secure выставляется транспортом для env=prod.
type CookieConfig struct {
	Domain     string        `yaml:"domain" env:"COOKIE_DOMAIN" env-default:""`
	AccessTTL  time.Duration `yaml:"access_ttl" env:"COOKIE_ACCESS_TTL" env-default:"24h"`
	RefreshTTL time.Duration `yaml:"refresh_ttl" env:"COOKIE_REFRESH_TTL" env-default:"720h"`
}

// DBConfig — настройки подключения к базе данных.
type DBConfig struct {
	DatabaseURL string `yaml:"db_url" env:"DATABASE_URL" env-required:"true"`
}

// RedisConfig — необязательный кэш refresh-токенов (пустой URL — кэш выключен).
type RedisConfig struct {
	RedisURL string `yaml:"redis_url" env:"REDIS_URL" env-default:""`
}

// MustLoad — обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
// ВАЖНО: после чтения файла накладываем ENV-переменные поверх значений из YAML.
func Load(path string) (*Config, error) {
	var cfg Config

	// чтение файла + overlay ENV.
	tryRead := func(p string) (*Config, error) {
		if p == "" {
			return nil, fmt.Errorf("empty config path")
		}

		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	// 1) Явный путь.
	if path != "" {
		c, err := tryRead(path)
		if err != nil {
			return nil, err
		}

		return c, nil
	}

	// 2) CONFIG_PATH.
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		c, err := tryRead(envPath)
		if err != nil {
			return nil, err
		}

		return c, nil
	}

	// 3) ./local.yaml.
	if _, err := os.Stat("local.yaml"); err == nil {
		if err := cleanenv.ReadConfig("local.yaml", &cfg); err != nil {
			return nil, fmt.Errorf("failed to read local.yaml: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	// 4) Только ENV.
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	return &cfg, nil
}
