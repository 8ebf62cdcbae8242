package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
env: test
feed:
  url: wss://feed.example
  reconnectSec: 5
metrics:
  addr: ":9105"
markets:
  clsk/lsk:
    assets: [clsk, lsk]
    priceDecimalPrecision: 2
    chains:
      clsk:
        walletAddress: dex-clsk-addr
        minOrderAmount: 1000000000
        exchangeFeeBase: 10000000
      lsk:
        walletAddress: dex-lsk-addr
        minOrderAmount: 1000000000
        exchangeFeeBase: 10000000
assets:
  clsk:
    unitValue: 100000000
    apiUrl: https://clsk.example/api
  lsk:
    unitValue: 100000000
    apiUrl: https://lsk.example/api
wallet:
  clsk:
    address: my-clsk-addr
  lsk:
    address: my-lsk-addr
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadParsesFullConfig(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Env != "test" || cfg.Feed.URL != "wss://feed.example" {
		t.Fatalf("unexpected top-level config: %+v", cfg)
	}
	mkt, ok := cfg.Markets["clsk/lsk"]
	if !ok {
		t.Fatalf("market missing")
	}
	if len(mkt.Assets) != 2 || mkt.Assets[0] != "clsk" {
		t.Fatalf("asset order must be [base, quote]: %+v", mkt.Assets)
	}
	if mkt.PriceDecimalPrecision == nil || *mkt.PriceDecimalPrecision != 2 {
		t.Fatalf("precision not parsed: %+v", mkt.PriceDecimalPrecision)
	}
	if mkt.Chains["clsk"].MinOrderAmount != 1000000000 {
		t.Fatalf("chain config not parsed: %+v", mkt.Chains["clsk"])
	}
	if cfg.Assets["lsk"].UnitValue != 100000000 {
		t.Fatalf("asset config not parsed: %+v", cfg.Assets["lsk"])
	}
	if cfg.Wallet["clsk"].Address != "my-clsk-addr" {
		t.Fatalf("wallet config not parsed: %+v", cfg.Wallet)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("DEX_FEED_URL", "wss://override.example")
	t.Setenv("DEX_METRICS_ADDR", ":9110")
	cfg, err := LoadWithEnvOverrides(writeTempConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Feed.URL != "wss://override.example" {
		t.Fatalf("feed url override not applied: %s", cfg.Feed.URL)
	}
	if cfg.Metrics.Addr != ":9110" {
		t.Fatalf("metrics addr override not applied: %s", cfg.Metrics.Addr)
	}
}

func TestValidateRejectsBrokenConfigs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"missing env", func(c *AppConfig) { c.Env = "" }},
		{"no markets", func(c *AppConfig) { c.Markets = nil }},
		{"one asset", func(c *AppConfig) {
			m := c.Markets["clsk/lsk"]
			m.Assets = []string{"clsk"}
			c.Markets["clsk/lsk"] = m
		}},
		{"duplicate assets", func(c *AppConfig) {
			m := c.Markets["clsk/lsk"]
			m.Assets = []string{"clsk", "clsk"}
			c.Markets["clsk/lsk"] = m
		}},
		{"unknown asset", func(c *AppConfig) { delete(c.Assets, "lsk") }},
		{"zero unit value", func(c *AppConfig) {
			a := c.Assets["clsk"]
			a.UnitValue = 0
			c.Assets["clsk"] = a
		}},
		{"missing chain", func(c *AppConfig) {
			m := c.Markets["clsk/lsk"]
			delete(m.Chains, "lsk")
			c.Markets["clsk/lsk"] = m
		}},
		{"empty wallet address", func(c *AppConfig) {
			m := c.Markets["clsk/lsk"]
			ch := m.Chains["clsk"]
			ch.WalletAddress = ""
			m.Chains["clsk"] = ch
			c.Markets["clsk/lsk"] = m
		}},
		{"negative fee", func(c *AppConfig) {
			m := c.Markets["clsk/lsk"]
			ch := m.Chains["clsk"]
			ch.ExchangeFeeBase = -1
			m.Chains["clsk"] = ch
			c.Markets["clsk/lsk"] = m
		}},
	}
	for _, tc := range cases {
		cfg, err := Load(writeTempConfig(t, sampleYAML))
		if err != nil {
			t.Fatalf("%s: baseline load failed: %v", tc.name, err)
		}
		tc.mutate(&cfg)
		if err := Validate(cfg); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
