package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	defaultAppName            = "FaucetBot"
	defaultPort               = "3001"
	defaultLogLevel           = "info"
	defaultDataDir            = "./data"
	defaultClaimIntervalHours = 24
	defaultDistribution       = "0.04"
	defaultMinMaster          = "0.1"
	defaultMinWallet          = "0.05"
	defaultPerWallet          = 1
	defaultPerIP              = 3
	defaultBurstPerMinute     = 10
	defaultShutdownDelay      = 10 * time.Second
	defaultIdempotencyTTL     = 24 * time.Hour
	defaultConfirmTimeout     = 2 * time.Minute
	defaultClaimStartupDelay  = 10 * time.Second
)

// Claim sources.
const (
	ClaimSourceBrowser  = "browser"
	ClaimSourceStatic   = "static"
	ClaimSourceDisabled = "disabled"
)

// Ledger backends.
const (
	LedgerFile     = "file"
	LedgerPostgres = "postgres"
	LedgerRedis    = "redis"
	LedgerMemory   = "memory"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName  string
	Port     string
	LogLevel string
	DataDir  string

	RPCURL           string
	MasterPrivateKey string

	GoogleEmail         string
	GooglePassword      string
	FaucetWalletAddress string
	Headless            bool
	ChromiumPath        string
	ClaimSource         string
	ClaimInterval       time.Duration
	ClaimStartupDelay   time.Duration

	DistributionAmount        decimal.Decimal
	MinMasterBalance          decimal.Decimal
	MinWalletBalanceThreshold decimal.Decimal
	MaxRequestsPerWallet      int
	MaxRequestsPerIP          int
	ConfirmTimeout            time.Duration

	LedgerBackend         string
	DatabaseURL           string
	RedisURL              string
	IdempotencyTTL        time.Duration
	RequestBurstPerMinute int
	AdminTokenHash        string
	TrustedProxyHeader    string
	ShutdownPeriod        time.Duration
}

// Load reads a .env file when present, then populates a Config from the
// environment. Variables already set take precedence over the file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		AppName:             getEnv("APP_NAME", defaultAppName),
		Port:                getEnv("PORT", defaultPort),
		LogLevel:            strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DataDir:             getEnv("DATA_DIR", defaultDataDir),
		RPCURL:              os.Getenv("SEPOLIA_RPC_URL"),
		MasterPrivateKey:    os.Getenv("MASTER_WALLET_PRIVATE_KEY"),
		GoogleEmail:         os.Getenv("GOOGLE_EMAIL"),
		GooglePassword:      os.Getenv("GOOGLE_PASSWORD"),
		FaucetWalletAddress: os.Getenv("FAUCET_WALLET_ADDRESS"),
		Headless:            getEnv("HEADLESS", "true") == "true",
		ChromiumPath:        os.Getenv("CHROMIUM_EXECUTABLE_PATH"),
		ClaimSource:         strings.ToLower(getEnv("CLAIM_SOURCE", ClaimSourceBrowser)),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisURL:            os.Getenv("REDIS_URL"),
		AdminTokenHash:      os.Getenv("ADMIN_TOKEN_HASH"),
		TrustedProxyHeader:  os.Getenv("TRUSTED_PROXY_HEADER"),
	}

	var err error
	if cfg.LedgerBackend, err = ledgerBackend(cfg.DatabaseURL); err != nil {
		return Config{}, err
	}

	hours, err := intEnv("CLAIM_INTERVAL_HOURS", defaultClaimIntervalHours)
	if err != nil {
		return Config{}, err
	}
	cfg.ClaimInterval = time.Duration(hours) * time.Hour

	if cfg.MaxRequestsPerWallet, err = intEnv("MAX_REQUESTS_PER_WALLET_PER_DAY", defaultPerWallet); err != nil {
		return Config{}, err
	}
	if cfg.MaxRequestsPerIP, err = intEnv("MAX_REQUESTS_PER_IP_PER_DAY", defaultPerIP); err != nil {
		return Config{}, err
	}
	if cfg.RequestBurstPerMinute, err = intEnv("REQUEST_BURST_PER_MINUTE", defaultBurstPerMinute); err != nil {
		return Config{}, err
	}

	if cfg.DistributionAmount, err = etherEnv("DISTRIBUTION_AMOUNT", defaultDistribution); err != nil {
		return Config{}, err
	}
	if cfg.MinMasterBalance, err = etherEnv("MIN_MASTER_BALANCE", defaultMinMaster); err != nil {
		return Config{}, err
	}
	if cfg.MinWalletBalanceThreshold, err = etherEnv("MIN_WALLET_BALANCE_THRESHOLD", defaultMinWallet); err != nil {
		return Config{}, err
	}

	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT", defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.ConfirmTimeout, err = durationEnv("CONFIRM_TIMEOUT", defaultConfirmTimeout); err != nil {
		return Config{}, err
	}
	if cfg.ClaimStartupDelay, err = durationEnv("CLAIM_STARTUP_DELAY", defaultClaimStartupDelay); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	required := map[string]string{
		"SEPOLIA_RPC_URL":           c.RPCURL,
		"MASTER_WALLET_PRIVATE_KEY": c.MasterPrivateKey,
	}
	switch c.ClaimSource {
	case ClaimSourceBrowser:
		required["GOOGLE_EMAIL"] = c.GoogleEmail
		required["GOOGLE_PASSWORD"] = c.GooglePassword
		required["FAUCET_WALLET_ADDRESS"] = c.FaucetWalletAddress
	case ClaimSourceStatic, ClaimSourceDisabled:
	default:
		return fmt.Errorf("invalid CLAIM_SOURCE: %q", c.ClaimSource)
	}
	for _, key := range []string{"SEPOLIA_RPC_URL", "MASTER_WALLET_PRIVATE_KEY", "GOOGLE_EMAIL", "GOOGLE_PASSWORD", "FAUCET_WALLET_ADDRESS"} {
		if v, ok := required[key]; ok && v == "" {
			return fmt.Errorf("missing required environment variable: %s", key)
		}
	}

	if c.ClaimInterval <= 0 {
		return fmt.Errorf("CLAIM_INTERVAL_HOURS must be positive")
	}
	if !c.DistributionAmount.IsPositive() {
		return fmt.Errorf("DISTRIBUTION_AMOUNT must be positive")
	}
	if c.MaxRequestsPerWallet < 1 || c.MaxRequestsPerIP < 1 {
		return fmt.Errorf("request limits must be at least 1")
	}
	if c.LedgerBackend == LedgerPostgres && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must be set for the postgres ledger")
	}
	if c.LedgerBackend == LedgerRedis && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL must be set for the redis ledger")
	}
	return nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func ledgerBackend(databaseURL string) (string, error) {
	fallback := LedgerFile
	if databaseURL != "" {
		fallback = LedgerPostgres
	}
	backend := strings.ToLower(getEnv("LEDGER_BACKEND", fallback))
	switch backend {
	case LedgerFile, LedgerPostgres, LedgerRedis, LedgerMemory:
		return backend, nil
	default:
		return "", fmt.Errorf("invalid LEDGER_BACKEND: %q", backend)
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func etherEnv(key, fallback string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(getEnv(key, fallback))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return d, nil
}

// durationEnv reads <key>_SECONDS as whole seconds, falling back to <key> as a
// Go duration string.
func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	secondsKey := key + "_SECONDS"
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}
