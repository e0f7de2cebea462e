package config

import (
	"fmt"
	"regexp"
	"time"

	env "github.com/caarlos0/env/v11"

	"github.com/punchamoorthee/bankledger/internal/store"
)

const (
	BackendMemory   = store.KindMemory
	BackendBadger   = store.KindBadger
	BackendPostgres = store.KindPostgres

	OverdraftAllow  = "allow"
	OverdraftReject = "reject"
)

var cardPrefixPattern = regexp.MustCompile(`^\d{4}$`)

type Config struct {
	Port     string `env:"SERVER_PORT" envDefault:"8080"`
	Env      string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`

	StoreBackend string `env:"STORE_BACKEND" envDefault:"memory"`
	DBSource     string `env:"DB_SOURCE"`
	BadgerDir    string `env:"BADGER_DIR" envDefault:"data/badger"`

	BankCardPrefix      string  `env:"BANK_CARD_PREFIX" envDefault:"6225"`
	InitialBankBalance  float64 `env:"INITIAL_BANK_BALANCE" envDefault:"0"`
	OverdraftPolicy     string  `env:"OVERDRAFT_POLICY" envDefault:"allow"`
	CardNoMaxAttempts   int     `env:"CARD_NO_MAX_ATTEMPTS" envDefault:"5"`
	DefaultHistoryLimit int     `env:"DEFAULT_HISTORY_LIMIT" envDefault:"10"`

	ConflictMaxRetries int           `env:"CONFLICT_MAX_RETRIES" envDefault:"3"`
	ConflictRetryBase  time.Duration `env:"CONFLICT_RETRY_BASE" envDefault:"10ms"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendBadger:
	case BackendPostgres:
		if c.DBSource == "" {
			return fmt.Errorf("DB_SOURCE environment variable is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if !cardPrefixPattern.MatchString(c.BankCardPrefix) {
		return fmt.Errorf("BANK_CARD_PREFIX must be exactly 4 digits, got %q", c.BankCardPrefix)
	}
	if c.OverdraftPolicy != OverdraftAllow && c.OverdraftPolicy != OverdraftReject {
		return fmt.Errorf("OVERDRAFT_POLICY must be %q or %q, got %q", OverdraftAllow, OverdraftReject, c.OverdraftPolicy)
	}
	if c.InitialBankBalance < 0 {
		return fmt.Errorf("INITIAL_BANK_BALANCE must not be negative")
	}
	if c.CardNoMaxAttempts < 1 {
		return fmt.Errorf("CARD_NO_MAX_ATTEMPTS must be at least 1")
	}
	if c.DefaultHistoryLimit < 1 {
		return fmt.Errorf("DEFAULT_HISTORY_LIMIT must be at least 1")
	}
	if c.ConflictMaxRetries < 0 {
		return fmt.Errorf("CONFLICT_MAX_RETRIES must not be negative")
	}
	return nil
}
