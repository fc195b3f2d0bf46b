package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"

	"auth-api/internal/domain"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`

	JWTSecret           string `env:"JWT_SECRET,required,notEmpty"`
	JWTIssuer           string `env:"JWT_ISSUER" envDefault:"auth-api"`
	JWTAccessTTLMinutes int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"15"`
	JWTRefreshTTLDays   int    `env:"JWT_REFRESH_TTL_DAYS" envDefault:"30"`
	OTPTTLMinutes       int    `env:"OTP_TTL_MINUTES" envDefault:"5"`
	ExchangeTTLSeconds  int    `env:"EXCHANGE_TOKEN_TTL_SECONDS" envDefault:"120"`
	BcryptCost          int    `env:"BCRYPT_COST" envDefault:"10"`
	AppRegistryTTLSecs  int    `env:"APP_REGISTRY_TTL_SECONDS" envDefault:"60"`
	AppRegistryMissSecs int    `env:"APP_REGISTRY_MISS_RELOAD_SECONDS" envDefault:"5"`
	SeedApps            string `env:"SEED_APPS"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPass     string `env:"SMTP_PASS"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME"`
	SMTPUseTLS   bool   `env:"SMTP_USE_TLS" envDefault:"false"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogDev   bool   `env:"LOG_DEV" envDefault:"false"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return errors.New("DATABASE_URL is required for the postgres store driver")
		}
	case StoreDriverMemory:
	default:
		return errors.New("STORE_DRIVER must be postgres or memory")
	}
	return nil
}

func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.JWTAccessTTLMinutes) * time.Minute
}

func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.JWTRefreshTTLDays) * 24 * time.Hour
}

func (c *Config) OTPTTL() time.Duration {
	return time.Duration(c.OTPTTLMinutes) * time.Minute
}

func (c *Config) ExchangeTTL() time.Duration {
	return time.Duration(c.ExchangeTTLSeconds) * time.Second
}

func (c *Config) AppRegistryTTL() time.Duration {
	return time.Duration(c.AppRegistryTTLSecs) * time.Second
}

func (c *Config) AppRegistryMissInterval() time.Duration {
	return time.Duration(c.AppRegistryMissSecs) * time.Second
}

// SeedAppRegistrations parsea SEED_APPS: entradas separadas por coma con el formato
// origin|revocable|accessMinutes|refreshDays. Los campos finales son opcionales.
func (c *Config) SeedAppRegistrations() ([]domain.AppRegistration, error) {
	var apps []domain.AppRegistration
	for _, entry := range strings.Split(c.SeedApps, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, "|")
		if len(parts) > 4 {
			return nil, fmt.Errorf("SEED_APPS entry %q: too many fields", entry)
		}
		app := domain.AppRegistration{AppID: strings.TrimSpace(parts[0])}
		if app.AppID == "" {
			return nil, fmt.Errorf("SEED_APPS entry %q: empty origin", entry)
		}
		var err error
		if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
			if app.Revocable, err = strconv.ParseBool(strings.TrimSpace(parts[1])); err != nil {
				return nil, fmt.Errorf("SEED_APPS entry %q: revocable: %w", entry, err)
			}
		}
		if len(parts) > 2 && strings.TrimSpace(parts[2]) != "" {
			if app.AccessTokenMinutesExp, err = strconv.Atoi(strings.TrimSpace(parts[2])); err != nil {
				return nil, fmt.Errorf("SEED_APPS entry %q: access minutes: %w", entry, err)
			}
		}
		if len(parts) > 3 && strings.TrimSpace(parts[3]) != "" {
			if app.RefreshTokenDaysExp, err = strconv.Atoi(strings.TrimSpace(parts[3])); err != nil {
				return nil, fmt.Errorf("SEED_APPS entry %q: refresh days: %w", entry, err)
			}
		}
		apps = append(apps, app)
	}
	return apps, nil
}
