package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// Config drives the felixpadd daemon: where to listen, where state lives and
// the presale engine's privileged identities. Addresses are 0x-prefixed hex.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	LogFile       string `toml:"LogFile"`

	// FeeBps is the initial settlement fee; later changes go through the
	// owner-gated changeFee operation. The reference deployment uses 200.
	FeeBps       uint32 `toml:"FeeBps"`
	FeeOwner     string `toml:"FeeOwner"`
	FeeCollector string `toml:"FeeCollector"`
	Vault        string `toml:"Vault"`
	PoolVault    string `toml:"PoolVault"`

	RateLimitPerSecond float64 `toml:"RateLimitPerSecond"`

	OtelEnabled  bool   `toml:"OtelEnabled"`
	OtelEndpoint string `toml:"OtelEndpoint"`
	OtelInsecure bool   `toml:"OtelInsecure"`

	ExplorerEnabled bool   `toml:"ExplorerEnabled"`
	ExplorerDSN     string `toml:"ExplorerDSN"`

	// GenesisAlloc seeds native-currency balances on first boot: hex address
	// to decimal wei amount.
	GenesisAlloc map[string]string `toml:"GenesisAlloc"`
}

// Load loads the configuration from the given path, writing a default file if
// none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8645"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./data"
	}
	if cfg.RateLimitPerSecond <= 0 {
		cfg.RateLimitPerSecond = 50
	}
	if strings.TrimSpace(cfg.ExplorerDSN) == "" {
		cfg.ExplorerDSN = filepath.Join(cfg.DataDir, "explorer.db")
	}
}

func validate(cfg *Config) error {
	if cfg.FeeBps > 10_000 {
		return fmt.Errorf("config: FeeBps %d above 10000", cfg.FeeBps)
	}
	for name, value := range map[string]string{
		"FeeOwner":     cfg.FeeOwner,
		"FeeCollector": cfg.FeeCollector,
		"Vault":        cfg.Vault,
		"PoolVault":    cfg.PoolVault,
	} {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("config: %s address required", name)
		}
		if !common.IsHexAddress(value) {
			return fmt.Errorf("config: %s is not a hex address: %q", name, value)
		}
	}
	for addr, amount := range cfg.GenesisAlloc {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("config: GenesisAlloc key is not a hex address: %q", addr)
		}
		if _, ok := new(big.Int).SetString(strings.TrimSpace(amount), 10); !ok {
			return fmt.Errorf("config: GenesisAlloc[%s] is not a decimal amount: %q", addr, amount)
		}
	}
	return nil
}

// Address parses a validated hex address field into its 20-byte form.
func Address(field string) [20]byte {
	return [20]byte(common.HexToAddress(field))
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress:      ":8645",
		DataDir:            "./data",
		FeeBps:             200,
		FeeOwner:           "0x1000000000000000000000000000000000000001",
		FeeCollector:       "0x1000000000000000000000000000000000000002",
		Vault:              "0x1000000000000000000000000000000000000003",
		PoolVault:          "0x1000000000000000000000000000000000000004",
		RateLimitPerSecond: 50,
	}
	applyDefaults(cfg)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
