package config

import (
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultMaxBlockRangeSize = 1000
	defaultBlockPollInterval = 15 * time.Second
	defaultRPCTimeout        = 30 * time.Second
	defaultGasLimit          = 300000
)

type RPCConfig struct {
	Host    string   `yaml:"host"`
	Timeout Duration `yaml:"timeout"`
}

// ChainConfig holds the static per-chain parameters loaded once at startup.
type ChainConfig struct {
	Name                       string         `yaml:"name"`
	ChainID                    uint64         `yaml:"chain_id"`
	RPC                        *RPCConfig     `yaml:"rpc"`
	BridgeAddress              Address        `yaml:"bridge_address"`
	RequiredBlockConfirmations uint64         `yaml:"required_block_confirmations"`
	HistoricalScanWindowBlocks uint64         `yaml:"historical_scan_window_blocks"`
	MaxBlockRangeSize          uint64         `yaml:"max_block_range_size"`
	BlockPollInterval          Duration       `yaml:"block_poll_interval"`
	SafeLogsRequest            bool           `yaml:"safe_logs_request"`
	GasLimit                   uint64         `yaml:"gas_limit"`
	GasPriceMultiplier         uint64         `yaml:"gas_price_multiplier"`
}

type RelayerConfig struct {
	// PrivateKey is a hex-encoded signing key, usually provided through the
	// environment as ${RELAYER_PRIVATE_KEY}.
	PrivateKey string `yaml:"private_key"`
	// MaxRefundFee caps the planner's refund fee, in the asset's base units.
	// No cap is applied when unset.
	MaxRefundFee *BigInt `yaml:"max_refund_fee"`
	// LiquidityRecheckInterval re-enqueues requests deferred for insufficient
	// liquidity after this interval. Zero disables proactive rechecks, the
	// next historical scan remains the backstop.
	LiquidityRecheckInterval Duration `yaml:"liquidity_recheck_interval"`
}

type DBConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       string `yaml:"database"`
}

type PresenterConfig struct {
	Host string `yaml:"host"`
}

type Config struct {
	Chains    map[string]*ChainConfig `yaml:"chains"`
	Relayer   *RelayerConfig          `yaml:"relayer"`
	DBConfig  *DBConfig               `yaml:"postgres"`
	Presenter *PresenterConfig        `yaml:"presenter"`
	LogLevel  string                  `yaml:"log_level"`
}

func (cfg *ChainConfig) applyDefaults() {
	if cfg.MaxBlockRangeSize == 0 {
		cfg.MaxBlockRangeSize = defaultMaxBlockRangeSize
	}
	if cfg.BlockPollInterval == 0 {
		cfg.BlockPollInterval = Duration(defaultBlockPollInterval)
	}
	if cfg.GasLimit == 0 {
		cfg.GasLimit = defaultGasLimit
	}
	if cfg.GasPriceMultiplier == 0 {
		cfg.GasPriceMultiplier = 1
	}
	if cfg.RPC != nil && cfg.RPC.Timeout == 0 {
		cfg.RPC.Timeout = Duration(defaultRPCTimeout)
	}
}

func (cfg *ChainConfig) validate(name string) error {
	if cfg.ChainID == 0 {
		return fmt.Errorf("chain %q: missing chain_id", name)
	}
	if cfg.RPC == nil || cfg.RPC.Host == "" {
		return fmt.Errorf("chain %q: missing rpc host", name)
	}
	if cfg.BridgeAddress == (Address{}) {
		return fmt.Errorf("chain %q: missing bridge_address", name)
	}
	if cfg.RequiredBlockConfirmations == 0 {
		return fmt.Errorf("chain %q: missing required_block_confirmations", name)
	}
	if cfg.HistoricalScanWindowBlocks == 0 {
		return fmt.Errorf("chain %q: missing historical_scan_window_blocks", name)
	}
	return nil
}

func (cfg *Config) Validate() error {
	if len(cfg.Chains) == 0 {
		return fmt.Errorf("no chains configured")
	}
	seen := make(map[uint64]string, len(cfg.Chains))
	for name, chain := range cfg.Chains {
		if chain == nil {
			return fmt.Errorf("chain %q: empty config", name)
		}
		if chain.Name == "" {
			chain.Name = name
		}
		chain.applyDefaults()
		if err := chain.validate(name); err != nil {
			return err
		}
		if other, ok := seen[chain.ChainID]; ok {
			return fmt.Errorf("chains %q and %q share chain_id %d", other, name, chain.ChainID)
		}
		seen[chain.ChainID] = name
	}
	if cfg.Relayer == nil || cfg.Relayer.PrivateKey == "" {
		return fmt.Errorf("missing relayer private_key")
	}
	if cfg.LogLevel != "" {
		if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
			return fmt.Errorf("invalid log_level: %w", err)
		}
	}
	return nil
}

// Level returns the configured log level, defaulting to info.
func (cfg *Config) Level() logrus.Level {
	if cfg.LogLevel == "" {
		return logrus.InfoLevel
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// MaxRefundFee returns the configured refund fee cap or nil when uncapped.
func (cfg *RelayerConfig) MaxRefundFeeValue() *big.Int {
	if cfg.MaxRefundFee == nil {
		return nil
	}
	return (*big.Int)(cfg.MaxRefundFee)
}

// ReadConfigWithEnv parses the given yaml blob after expanding ${VAR}
// references from the process environment.
func ReadConfigWithEnv(blob []byte) (*Config, error) {
	blob = []byte(os.ExpandEnv(string(blob)))
	cfg := new(Config)
	if err := parseYaml(cfg, blob); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func ReadConfigFromFile(path string) (*Config, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("can't read config file: %w", err)
	}
	return ReadConfigWithEnv(blob)
}
