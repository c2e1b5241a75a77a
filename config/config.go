package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"anchorcore/native/anchor"
)

// Config is the operator-facing configuration for an anchor deployment.
type Config struct {
	DataDir     string         `toml:"DataDir"`
	Environment string         `toml:"Environment"`
	Protocol    ProtocolConfig `toml:"protocol"`
	Oracle      OracleConfig   `toml:"oracle"`
}

// ProtocolConfig carries the fixed thresholds consumed by the invariant
// guard. Wei amounts are decimal strings so precision survives TOML decoding.
type ProtocolConfig struct {
	MinMintWei      string `toml:"MinMintWei"`
	MinBurnWei      string `toml:"MinBurnWei"`
	MaxDebtRatioBps uint64 `toml:"MaxDebtRatioBps"`
}

// Parameters converts the textual configuration into runtime protocol
// parameters, applying defaults for unset fields.
func (pc ProtocolConfig) Parameters() (anchor.Params, error) {
	params := anchor.Params{MaxDebtRatioBps: pc.MaxDebtRatioBps}
	if strings.TrimSpace(pc.MinMintWei) != "" {
		amount, err := anchor.ParseWeiAmount(pc.MinMintWei)
		if err != nil {
			return anchor.Params{}, fmt.Errorf("protocol: invalid MinMintWei: %w", err)
		}
		params.MinMintWei = amount
	}
	if strings.TrimSpace(pc.MinBurnWei) != "" {
		amount, err := anchor.ParseWeiAmount(pc.MinBurnWei)
		if err != nil {
			return anchor.Params{}, fmt.Errorf("protocol: invalid MinBurnWei: %w", err)
		}
		params.MinBurnWei = amount
	}
	return params.Normalise(), nil
}

// OracleConfig controls the price reference aggregator.
type OracleConfig struct {
	Priority           []string `toml:"Priority"`
	MaxSampleAgeSecond int64    `toml:"MaxSampleAgeSeconds"`
}

// Normalise applies defaults and canonical casing to the oracle settings.
func (oc OracleConfig) Normalise() OracleConfig {
	cfg := OracleConfig{
		Priority:           append([]string{}, oc.Priority...),
		MaxSampleAgeSecond: oc.MaxSampleAgeSecond,
	}
	if len(cfg.Priority) == 0 {
		cfg.Priority = []string{"manual"}
	}
	for i := range cfg.Priority {
		cfg.Priority[i] = strings.ToLower(strings.TrimSpace(cfg.Priority[i]))
	}
	if cfg.MaxSampleAgeSecond <= 0 {
		cfg.MaxSampleAgeSecond = 120
	}
	return cfg
}

// MaxSampleAge returns the configured freshness window as a duration.
func (oc OracleConfig) MaxSampleAge() time.Duration {
	normalised := oc.Normalise()
	return time.Duration(normalised.MaxSampleAgeSecond) * time.Second
}

// JournalDir returns the database path used for the transition journal.
func (c *Config) JournalDir() string {
	return filepath.Join(c.DataDir, "journal")
}

// LedgerDir returns the database path used for the persisted token ledgers.
func (c *Config) LedgerDir() string {
	return filepath.Join(c.DataDir, "ledger")
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s contains unknown keys: %v", path, undecoded)
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./anchor-data"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
	cfg.Oracle = cfg.Oracle.Normalise()
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		DataDir:     "./anchor-data",
		Environment: "local",
		Protocol: ProtocolConfig{
			MinMintWei:      "1000000000000000",
			MinBurnWei:      "1000000000000000",
			MaxDebtRatioBps: 9000,
		},
	}
	applyDefaults(cfg)
	if err := Save(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to disk.
func Save(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
