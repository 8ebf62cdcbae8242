package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env     string                  `yaml:"env"`
	Feed    FeedConfig              `yaml:"feed"`
	Metrics MetricsConfig           `yaml:"metrics"`
	Markets map[string]MarketConfig `yaml:"markets"`
	Assets  map[string]AssetConfig  `yaml:"assets"`
	Wallet  map[string]WalletConfig `yaml:"wallet"`
}

type FeedConfig struct {
	URL          string `yaml:"url"`
	ReconnectSec int    `yaml:"reconnectSec"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// MarketConfig 描述一个双资产市场；assets 为 [基础资产, 计价资产]。
type MarketConfig struct {
	Assets                []string               `yaml:"assets"`
	PriceDecimalPrecision *int                   `yaml:"priceDecimalPrecision"`
	Chains                map[string]ChainConfig `yaml:"chains"`
}

// ChainConfig 保存一条链上的 DEX 入口与额度参数（均以最小不可分单位计）。
type ChainConfig struct {
	WalletAddress   string `yaml:"walletAddress"`
	MinOrderAmount  int64  `yaml:"minOrderAmount"`
	ExchangeFeeBase int64  `yaml:"exchangeFeeBase"`
}

// AssetConfig 保存资产的单位值与所在链节点地址。
type AssetConfig struct {
	UnitValue int64  `yaml:"unitValue"`
	APIURL    string `yaml:"apiUrl"`
}

type WalletConfig struct {
	Address string `yaml:"address"`
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides select fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("DEX_FEED_URL"); v != "" {
		cfg.Feed.URL = v
	}
	if v := os.Getenv("DEX_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	return cfg, Validate(cfg)
}

// Validate ensures required fields are present and consistent.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if len(cfg.Markets) == 0 {
		return errors.New("markets config is required")
	}
	for id, mkt := range cfg.Markets {
		if len(mkt.Assets) != 2 {
			return fmt.Errorf("market %s must list exactly two assets", id)
		}
		if mkt.Assets[0] == mkt.Assets[1] {
			return fmt.Errorf("market %s assets must be distinct", id)
		}
		if mkt.PriceDecimalPrecision != nil && *mkt.PriceDecimalPrecision < 0 {
			return fmt.Errorf("market %s priceDecimalPrecision must be >= 0", id)
		}
		for _, asset := range mkt.Assets {
			ac, ok := cfg.Assets[asset]
			if !ok {
				return fmt.Errorf("market %s references unknown asset %s", id, asset)
			}
			if ac.UnitValue <= 0 {
				return fmt.Errorf("asset %s unitValue must be > 0", asset)
			}
			if ac.APIURL == "" {
				return fmt.Errorf("asset %s apiUrl is required", asset)
			}
			chain, ok := mkt.Chains[asset]
			if !ok {
				return fmt.Errorf("market %s missing chain config for %s", id, asset)
			}
			if chain.WalletAddress == "" {
				return fmt.Errorf("market %s chain %s walletAddress is required", id, asset)
			}
			if chain.MinOrderAmount < 0 || chain.ExchangeFeeBase < 0 {
				return fmt.Errorf("market %s chain %s amounts must be >= 0", id, asset)
			}
		}
	}
	return nil
}
