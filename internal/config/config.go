package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

// Config is the process configuration, loaded once from the environment.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"nexusmarket"`
	Env         string `env:"ENV" envDefault:"dev"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`

	GatewayBaseURL string        `env:"EYO_BASE_URL" envDefault:"https://api.eyowallet.ru/api/v1"`
	GatewayAPIKey  string        `env:"EYO_API_KEY"`
	GatewayTimeout time.Duration `env:"EYO_TIMEOUT" envDefault:"10s"`

	// FeeRate is the platform's cut of every sale. Named here so it is an
	// operational setting, not a literal buried in payout logic.
	FeeRate float64 `env:"PLATFORM_FEE_RATE" envDefault:"0.05"`

	ReconcileInterval   time.Duration `env:"RECONCILE_INTERVAL" envDefault:"5s"`
	ReconcileMaxBackoff time.Duration `env:"RECONCILE_MAX_BACKOFF" envDefault:"1m"`
}

func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if cfg.FeeRate < 0 || cfg.FeeRate >= 1 {
		return Config{}, fmt.Errorf("config: PLATFORM_FEE_RATE must be in [0, 1), got %v", cfg.FeeRate)
	}
	return cfg, nil
}

// FeeRateDecimal returns the fee rate in the representation payout math uses.
func (c Config) FeeRateDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.FeeRate)
}
