package config

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"stakefarm/native/farming"
)

// PeriodConfig describes one schedule period. Rates are decimal strings to
// keep full integer precision in the TOML file.
type PeriodConfig struct {
	StakingRatePerTick string `toml:"StakingRatePerTick"`
	OthersRatePerTick  string `toml:"OthersRatePerTick"`
	LengthTicks        uint64 `toml:"LengthTicks"`
}

// GenesisAccount seeds one address with an initial farm-token balance. Genesis
// entries apply only on first start; a restored ledger snapshot wins.
type GenesisAccount struct {
	Address string `toml:"Address"`
	Balance string `toml:"Balance"`
}

type Config struct {
	ListenAddress        string  `toml:"ListenAddress"`
	DataDir              string  `toml:"DataDir"`
	Environment          string  `toml:"Environment"`
	LogPath              string  `toml:"LogPath"`
	LogMaxSizeMB         int     `toml:"LogMaxSizeMB"`
	LogMaxBackups        int     `toml:"LogMaxBackups"`
	LogMaxAgeDays        int     `toml:"LogMaxAgeDays"`
	RPCRequestsPerMinute float64 `toml:"RPCRequestsPerMinute"`
	RPCBurst             int     `toml:"RPCBurst"`

	StartTick       uint64         `toml:"StartTick"`
	RewardSupplyCap string         `toml:"RewardSupplyCap"`
	ModuleAddress   string         `toml:"ModuleAddress"`
	OthersAddress   string         `toml:"OthersAddress"`
	Periods         []PeriodConfig   `toml:"Periods"`
	Genesis         []GenesisAccount `toml:"Genesis"`
}

// Load reads the configuration from path, creating a default file when none
// exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8661"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./farmdata"
	}
	if c.RPCRequestsPerMinute <= 0 {
		c.RPCRequestsPerMinute = 600
	}
	if c.RPCBurst <= 0 {
		c.RPCBurst = 20
	}
	if c.LogMaxSizeMB <= 0 {
		c.LogMaxSizeMB = 100
	}
}

// Validate checks the schedule and address fields without building them.
func (c *Config) Validate() error {
	if len(c.Periods) == 0 {
		return fmt.Errorf("config: at least one schedule period required")
	}
	if _, err := c.Schedule(); err != nil {
		return err
	}
	if _, err := c.SupplyCap(); err != nil {
		return err
	}
	if c.ModuleAddress != "" {
		if _, err := ParseAddress(c.ModuleAddress); err != nil {
			return fmt.Errorf("config: ModuleAddress: %w", err)
		}
	}
	if c.OthersAddress != "" {
		if _, err := ParseAddress(c.OthersAddress); err != nil {
			return fmt.Errorf("config: OthersAddress: %w", err)
		}
	}
	if _, err := c.GenesisBalances(); err != nil {
		return err
	}
	return nil
}

// GenesisBalances parses the genesis table into address/amount pairs.
func (c *Config) GenesisBalances() (map[[20]byte]*big.Int, error) {
	if len(c.Genesis) == 0 {
		return nil, nil
	}
	out := make(map[[20]byte]*big.Int, len(c.Genesis))
	for i, entry := range c.Genesis {
		addr, err := ParseAddress(entry.Address)
		if err != nil {
			return nil, fmt.Errorf("config: genesis entry %d: %w", i, err)
		}
		amount, err := parseAmount(entry.Balance)
		if err != nil {
			return nil, fmt.Errorf("config: genesis entry %d: %w", i, err)
		}
		if amount.Sign() > 0 {
			out[addr] = amount
		}
	}
	return out, nil
}

// Schedule builds the immutable emission schedule from the period table.
func (c *Config) Schedule() (*farming.Schedule, error) {
	periods := make([]farming.SchedulePeriod, 0, len(c.Periods))
	for i, p := range c.Periods {
		staking, err := parseAmount(p.StakingRatePerTick)
		if err != nil {
			return nil, fmt.Errorf("config: period %d staking rate: %w", i, err)
		}
		others, err := parseAmount(p.OthersRatePerTick)
		if err != nil {
			return nil, fmt.Errorf("config: period %d others rate: %w", i, err)
		}
		periods = append(periods, farming.SchedulePeriod{
			StakingRatePerTick: staking,
			OthersRatePerTick:  others,
			LengthTicks:        p.LengthTicks,
		})
	}
	return farming.NewSchedule(periods)
}

// SupplyCap parses the reward supply cap; empty means uncapped.
func (c *Config) SupplyCap() (*big.Int, error) {
	trimmed := strings.TrimSpace(c.RewardSupplyCap)
	if trimmed == "" {
		return nil, nil
	}
	capAmount, err := parseAmount(trimmed)
	if err != nil {
		return nil, fmt.Errorf("config: RewardSupplyCap: %w", err)
	}
	if capAmount.Sign() == 0 {
		return nil, nil
	}
	return capAmount, nil
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return amount, nil
}

// ParseAddress decodes a 20-byte hex address, with or without 0x prefix.
func ParseAddress(value string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimSpace(value)
	trimmed = strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("decode address: %w", err)
	}
	if len(decoded) != 20 {
		return addr, fmt.Errorf("address must be 20 bytes (got %d)", len(decoded))
	}
	copy(addr[:], decoded)
	return addr, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		StartTick:       1,
		RewardSupplyCap: "0",
		ModuleAddress:   strings.Repeat("f", 40),
		OthersAddress:   strings.Repeat("e", 40),
		Periods: []PeriodConfig{
			{StakingRatePerTick: "1000", OthersRatePerTick: "8000", LengthTicks: 100_000},
		},
	}
	cfg.applyDefaults()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
