package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	AppEnv        string `env:"APP_ENV" envDefault:"development"`
	HTTPPort      string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL   string `env:"DATABASE_URL,required,notEmpty"`
	RunMigrations bool   `env:"RUN_MIGRATIONS" envDefault:"true"`

	JWTSecret            string `env:"JWT_SECRET"`
	JWTAccessTTLMinutes  int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"60"`
	JWTRefreshTTLMinutes int    `env:"JWT_REFRESH_TTL_MINUTES" envDefault:"43200"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	OTPTTL            time.Duration `env:"OTP_TTL" envDefault:"5m"`
	OTPResendCooldown time.Duration `env:"OTP_RESEND_COOLDOWN" envDefault:"30s"`
	OTPMaxAttempts    int           `env:"OTP_MAX_ATTEMPTS" envDefault:"5"`
	OTPRateWindow     time.Duration `env:"OTP_RATE_WINDOW" envDefault:"15m"`
	OTPRateMax        int           `env:"OTP_RATE_MAX" envDefault:"5"`

	SMSGatewayURL string        `env:"SMS_GATEWAY_URL"`
	SMSAPIKey     string        `env:"SMS_API_KEY"`
	SMSSenderID   string        `env:"SMS_SENDER_ID"`
	SMSTemplateID string        `env:"SMS_TEMPLATE_ID"`
	SMSTemplate   string        `env:"SMS_TEMPLATE" envDefault:"{code} is your verification code. It is valid for {minutes} minutes."`
	SMSTimeout    time.Duration `env:"SMS_TIMEOUT" envDefault:"15s"`

	KafkaBrokers  []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic    string   `env:"KAFKA_TOPIC" envDefault:"grocery.events"`
	KafkaUsername string   `env:"KAFKA_USERNAME"`
	KafkaPassword string   `env:"KAFKA_PASSWORD"`
	KafkaUseTLS   bool     `env:"KAFKA_USE_TLS" envDefault:"false"`

	MetricsNamespace string `env:"METRICS_NAMESPACE" envDefault:"grocery"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsProduction indica si el servicio corre en modo produccion.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.AppEnv), "production")
}
