// Package config provides configuration loading and management for the application.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// PREDICTPOOL_BACKEND_BASE_URL for backend.base_url.
const EnvPrefix = "PREDICTPOOL"

// Config holds all application configuration
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Poller    PollerConfig    `mapstructure:"poller"`
	Price     PriceConfig     `mapstructure:"price"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Server    ServerConfig    `mapstructure:"server"`
	UI        UIConfig        `mapstructure:"ui"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// AppConfig identifies the application towards wallets and telemetry.
type AppConfig struct {
	Name      string `mapstructure:"name"`
	ProjectID string `mapstructure:"project_id"`
}

// BackendConfig holds the prediction backend API settings
type BackendConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ReadRetries    int           `mapstructure:"read_retries"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

// PollerConfig controls the epoch/round refresh cycle
type PollerConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	RoundWindow time.Duration `mapstructure:"round_window"`
}

// PriceConfig holds the spot price feed settings
type PriceConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BaseURL  string        `mapstructure:"base_url"`
	Symbol   string        `mapstructure:"symbol"`
	Interval time.Duration `mapstructure:"interval"`
}

// ChainConfig describes the chain the staking contract lives on
type ChainConfig struct {
	ID              int64         `mapstructure:"id"`
	Name            string        `mapstructure:"name"`
	RPCURL          string        `mapstructure:"rpc_url"`
	StakingContract string        `mapstructure:"staking_contract"`
	NativeSymbol    string        `mapstructure:"native_symbol"`
	ShareSymbol     string        `mapstructure:"share_symbol"`
	WaitReceipt     bool          `mapstructure:"wait_receipt"`
	ReceiptTimeout  time.Duration `mapstructure:"receipt_timeout"`
}

// WalletConfig tells the daemon where to find the signing key
type WalletConfig struct {
	PrivateKey      string `mapstructure:"private_key"`
	KeyFile         string `mapstructure:"key_file"`
	KeyPassphrase   string `mapstructure:"key_passphrase"`
	RequireApproval bool   `mapstructure:"require_approval"`
}

// ServerConfig holds the local HTTP/WebSocket API settings
type ServerConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	Addr           string  `mapstructure:"addr"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// UIConfig controls the terminal view
type UIConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// TelemetryConfig holds tracing settings. An empty endpoint disables tracing.
type TelemetryConfig struct {
	OtelEndpoint string  `mapstructure:"otel_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	// Insecure sends spans over plain HTTP, for a collector on localhost
	Insecure bool `mapstructure:"insecure"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from an optional file, a .env file in the working
// directory and PREDICTPOOL_* environment variables, in increasing order of
// precedence.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// defaults only contain scalar values of the right kind
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults configures default values for all configuration options.
// Every key needs a default so that AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "predictpool")
	v.SetDefault("app.project_id", "")

	v.SetDefault("backend.base_url", "http://localhost:5000")
	v.SetDefault("backend.timeout", "10s")
	v.SetDefault("backend.read_retries", 0)
	v.SetDefault("backend.rate_limit_rps", 10.0)
	v.SetDefault("backend.rate_limit_burst", 20)

	v.SetDefault("poller.interval", "2s")
	v.SetDefault("poller.round_window", "30s")

	v.SetDefault("price.enabled", true)
	v.SetDefault("price.base_url", "https://api.binance.com")
	v.SetDefault("price.symbol", "ETHUSDT")
	v.SetDefault("price.interval", "2s")

	v.SetDefault("chain.id", 10143)
	v.SetDefault("chain.name", "Monad Testnet")
	v.SetDefault("chain.rpc_url", "https://testnet-rpc.monad.xyz")
	v.SetDefault("chain.staking_contract", "")
	v.SetDefault("chain.native_symbol", "MON")
	v.SetDefault("chain.share_symbol", "gMON")
	v.SetDefault("chain.wait_receipt", true)
	v.SetDefault("chain.receipt_timeout", "2m")

	v.SetDefault("wallet.private_key", "")
	v.SetDefault("wallet.key_file", "")
	v.SetDefault("wallet.key_passphrase", "")
	v.SetDefault("wallet.require_approval", false)

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.addr", "127.0.0.1:8787")
	v.SetDefault("server.rate_limit_rps", 20.0)
	v.SetDefault("server.rate_limit_burst", 40)

	v.SetDefault("ui.enabled", true)
	v.SetDefault("ui.refresh_interval", "1s")

	v.SetDefault("telemetry.otel_endpoint", "")
	v.SetDefault("telemetry.service_name", "predictpool-client")
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("telemetry.insecure", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be positive")
	}
	if c.Backend.ReadRetries < 0 {
		return fmt.Errorf("backend.read_retries must not be negative")
	}
	if c.Backend.RateLimitRPS <= 0 || c.Backend.RateLimitBurst < 1 {
		return fmt.Errorf("backend.rate_limit_rps and backend.rate_limit_burst must be positive")
	}

	if c.Poller.Interval < 100*time.Millisecond {
		return fmt.Errorf("poller.interval must be at least 100ms")
	}
	if c.Poller.RoundWindow <= 0 {
		return fmt.Errorf("poller.round_window must be positive")
	}

	if c.Price.Enabled {
		if c.Price.BaseURL == "" || c.Price.Symbol == "" {
			return fmt.Errorf("price.base_url and price.symbol are required when the price feed is enabled")
		}
		if c.Price.Interval < 100*time.Millisecond {
			return fmt.Errorf("price.interval must be at least 100ms")
		}
	}

	if c.Chain.ID <= 0 {
		return fmt.Errorf("chain.id must be positive")
	}
	if c.Chain.StakingContract != "" && !common.IsHexAddress(c.Chain.StakingContract) {
		return fmt.Errorf("chain.staking_contract is not a valid address: %q", c.Chain.StakingContract)
	}

	if c.Wallet.PrivateKey != "" && c.Wallet.KeyFile != "" {
		return fmt.Errorf("wallet.private_key and wallet.key_file are mutually exclusive")
	}
	if c.Wallet.KeyFile != "" && c.Wallet.KeyPassphrase == "" {
		return fmt.Errorf("wallet.key_passphrase is required when wallet.key_file is set")
	}

	if c.Server.Enabled && c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required when the server is enabled")
	}
	if c.Server.Enabled && (c.Server.RateLimitRPS <= 0 || c.Server.RateLimitBurst < 1) {
		return fmt.Errorf("server.rate_limit_rps and server.rate_limit_burst must be positive")
	}
	if c.UI.Enabled && c.UI.RefreshInterval <= 0 {
		return fmt.Errorf("ui.refresh_interval must be positive")
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be between 0 and 1")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// HasWallet reports whether a signing key is configured.
func (c *Config) HasWallet() bool {
	return c.Wallet.PrivateKey != "" || c.Wallet.KeyFile != ""
}

// HasStaking reports whether the staking contract is configured.
func (c *Config) HasStaking() bool {
	return c.Chain.StakingContract != ""
}
