package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Protocol carries the deploy-time lending constants. They are fixed at
// startup and never runtime-mutable.
type Protocol struct {
	MarginFractionBps    uint64 `toml:"MarginFractionBps"`
	BorrowRateBps        uint64 `toml:"BorrowRateBps"`
	PoolAPYBps           uint64 `toml:"PoolAPYBps"`
	LoanDurationSeconds  uint64 `toml:"LoanDurationSeconds"`
	PoolInterestShareBps uint64 `toml:"PoolInterestShareBps"`
}

// Allocation seeds a settlement-asset balance at startup.
type Allocation struct {
	Address string `toml:"Address"`
	Amount  string `toml:"Amount"`
}

// Pauses halts individual module flows. A paused module rejects every
// mutating entry point until the flag is cleared and the node restarted.
type Pauses struct {
	Vault      bool `toml:"Vault"`
	Collateral bool `toml:"Collateral"`
	Loan       bool `toml:"Loan"`
	Wallet     bool `toml:"Wallet"`
}

// IsPaused reports whether the named module is halted.
func (p Pauses) IsPaused(module string) bool {
	switch module {
	case "vault":
		return p.Vault
	case "collateral":
		return p.Collateral
	case "loan":
		return p.Loan
	case "wallet":
		return p.Wallet
	default:
		return false
	}
}

type Config struct {
	RPCAddress    string       `toml:"RPCAddress"`
	DataDir       string       `toml:"DataDir"`
	JournalPath   string       `toml:"JournalPath"`
	NetworkName   string       `toml:"NetworkName"`
	FeeCollector  string       `toml:"FeeCollector"`
	AllowedVenues []string     `toml:"AllowedVenues"`
	AllowedTokens []string     `toml:"AllowedTokens"`
	Genesis       []Allocation `toml:"Genesis"`
	Protocol      Protocol     `toml:"protocol"`
	Pauses        Pauses       `toml:"pauses"`
}

func defaultConfig() *Config {
	return &Config{
		RPCAddress:    "127.0.0.1:8645",
		DataDir:       "./data",
		JournalPath:   "./data/events.db",
		NetworkName:   "marginvault-local",
		AllowedVenues: []string{"venue-a"},
		AllowedTokens: []string{"WETH", "WBTC"},
		Genesis:       []Allocation{},
		Protocol: Protocol{
			MarginFractionBps:    2_000,
			BorrowRateBps:        800,
			PoolAPYBps:           600,
			LoanDurationSeconds:  2_592_000,
			PoolInterestShareBps: 8_000,
		},
	}
}

// Load reads the configuration from path, creating a default file when none
// exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func createDefault(path string) (*Config, error) {
	cfg := defaultConfig()
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

func applyDefaults(cfg *Config) {
	defaults := defaultConfig()
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = defaults.RPCAddress
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = defaults.DataDir
	}
	if strings.TrimSpace(cfg.JournalPath) == "" {
		cfg.JournalPath = defaults.JournalPath
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = defaults.NetworkName
	}
	if cfg.AllowedVenues == nil {
		cfg.AllowedVenues = append([]string{}, defaults.AllowedVenues...)
	}
	if cfg.AllowedTokens == nil {
		cfg.AllowedTokens = append([]string{}, defaults.AllowedTokens...)
	}
	if cfg.Protocol == (Protocol{}) {
		cfg.Protocol = defaults.Protocol
	}
}

func validate(cfg *Config) error {
	p := cfg.Protocol
	if p.MarginFractionBps == 0 || p.MarginFractionBps > 10_000 {
		return fmt.Errorf("config: MarginFractionBps must be in (0, 10000], got %d", p.MarginFractionBps)
	}
	if p.BorrowRateBps == 0 || p.BorrowRateBps > 10_000 {
		return fmt.Errorf("config: BorrowRateBps must be in (0, 10000], got %d", p.BorrowRateBps)
	}
	if p.PoolAPYBps == 0 || p.PoolAPYBps > 10_000 {
		return fmt.Errorf("config: PoolAPYBps must be in (0, 10000], got %d", p.PoolAPYBps)
	}
	if p.PoolInterestShareBps > 10_000 {
		return fmt.Errorf("config: PoolInterestShareBps must be at most 10000, got %d", p.PoolInterestShareBps)
	}
	if p.LoanDurationSeconds == 0 {
		return fmt.Errorf("config: LoanDurationSeconds must be positive")
	}
	if cfg.FeeCollector != "" {
		if _, err := ParseAddress(cfg.FeeCollector); err != nil {
			return fmt.Errorf("config: FeeCollector: %w", err)
		}
	}
	for i, alloc := range cfg.Genesis {
		if _, err := ParseAddress(alloc.Address); err != nil {
			return fmt.Errorf("config: Genesis[%d]: %w", i, err)
		}
	}
	return nil
}

// ParseAddress decodes a 20-byte hex address with optional 0x prefix.
func ParseAddress(s string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if len(raw) != 20 {
		return addr, fmt.Errorf("invalid address %q: expected 20 bytes, got %d", s, len(raw))
	}
	copy(addr[:], raw)
	return addr, nil
}
