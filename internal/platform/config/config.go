package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"443"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	RPCURL       string `env:"RPC_URL"`
	BundlerURL   string `env:"BUNDLER_URL"`
	PaymasterURL string `env:"PAYMASTER_URL"`

	EntryPointAddress     string `env:"ENTRY_POINT_ADDRESS" default:"0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"`
	AccountFactoryAddress string `env:"ACCOUNT_FACTORY_ADDRESS" default:"0x9406Cc6185a346906296840746125a0E44976454"`
	AccountSalt           string `env:"ACCOUNT_SALT" default:"0"`

	ReceiptPollInterval time.Duration `env:"RECEIPT_POLL_INTERVAL" default:"2s"`
	ReceiptTimeout      time.Duration `env:"RECEIPT_TIMEOUT" default:"60s"`
	AddressCacheTTL     time.Duration `env:"ADDRESS_CACHE_TTL" default:"1h"`

	RedisURL    string `env:"REDIS_URL"`
	DatabaseURL string `env:"DATABASE_URL"`

	RateLimitPerSecond float64 `env:"RATE_LIMIT_PER_SECOND" default:"5"`
	RateLimitBurst     int     `env:"RATE_LIMIT_BURST" default:"10"`
	// TrustProxy takes the client IP from X-Forwarded-For. Enable only behind a proxy that sets it.
	TrustProxy bool `env:"TRUST_PROXY" default:"false"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if cfg.PaymasterURL == "" {
		cfg.PaymasterURL = cfg.BundlerURL
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := []struct{ name, value string }{
		{"RPC_URL", cfg.RPCURL},
		{"BUNDLER_URL", cfg.BundlerURL},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	if !common.IsHexAddress(cfg.EntryPointAddress) {
		return fmt.Errorf("ENTRY_POINT_ADDRESS must be a hex address, got %q", cfg.EntryPointAddress)
	}
	if !common.IsHexAddress(cfg.AccountFactoryAddress) {
		return fmt.Errorf("ACCOUNT_FACTORY_ADDRESS must be a hex address, got %q", cfg.AccountFactoryAddress)
	}
	if _, err := cfg.Salt(); err != nil {
		return err
	}

	if cfg.ReceiptPollInterval <= 0 {
		return errors.New("RECEIPT_POLL_INTERVAL must be positive")
	}
	if cfg.ReceiptTimeout <= cfg.ReceiptPollInterval {
		return errors.New("RECEIPT_TIMEOUT must be greater than RECEIPT_POLL_INTERVAL")
	}
	if cfg.RateLimitPerSecond <= 0 || cfg.RateLimitBurst <= 0 {
		return errors.New("RATE_LIMIT_PER_SECOND and RATE_LIMIT_BURST must be positive")
	}

	return nil
}

// EntryPoint returns the configured EntryPoint contract address.
func (c *Config) EntryPoint() common.Address {
	return common.HexToAddress(c.EntryPointAddress)
}

// AccountFactory returns the configured smart-account factory address.
func (c *Config) AccountFactory() common.Address {
	return common.HexToAddress(c.AccountFactoryAddress)
}

// Salt parses ACCOUNT_SALT as a decimal or 0x-prefixed hex integer.
// Leading zeros do not switch the base.
func (c *Config) Salt() (*big.Int, error) {
	text, base := c.AccountSalt, 10
	if len(text) >= 2 && text[0] == '0' && (text[1] == 'x' || text[1] == 'X') {
		text, base = text[2:], 16
	}
	salt, ok := new(big.Int).SetString(text, base)
	if !ok || salt.Sign() < 0 || strings.HasPrefix(text, "+") {
		return nil, fmt.Errorf("ACCOUNT_SALT must be a non-negative integer, got %q", c.AccountSalt)
	}
	return salt, nil
}
