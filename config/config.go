// Package config loads the devnet node configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"l2resolver/ens"
)

const (
	DefaultResolverAddress    = "0x8464135c8F25Da09e49BC8782676a84730C318bC"
	DefaultRecordStoreAddress = "0x39Dc8A3A607970FA9F417D284E958D4cA69296C8"
)

type Config struct {
	ListenAddress       string   `toml:"ListenAddress"`
	DataDir             string   `toml:"DataDir"`
	IndexPath           string   `toml:"IndexPath"`
	ProposeIntervalSecs uint64   `toml:"ProposeIntervalSecs"`
	RetryAfterSecs      uint64   `toml:"RetryAfterSecs"`
	LookupTimeoutSecs   uint64   `toml:"LookupTimeoutSecs"`
	GatewayURLs         []string `toml:"GatewayURLs"`
	ResolverAddress     string   `toml:"ResolverAddress"`
	RecordStoreAddress  string   `toml:"RecordStoreAddress"`
	Seeds               []Seed   `toml:"Seed"`
}

// Seed describes records written to the devnet ledger at startup.
type Seed struct {
	Name        string            `toml:"Name"`
	Owner       string            `toml:"Owner"`
	Text        map[string]string `toml:"Text,omitempty"`
	Addr        string            `toml:"Addr,omitempty"`
	Contenthash string            `toml:"Contenthash,omitempty"`
}

// Load loads the configuration from the given path, writing a default file
// first when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the devnet configuration written on first start.
func Default() *Config {
	cfg := &Config{
		Seeds: []Seed{{
			Name:  "alice.eth",
			Owner: "0x00000000000000000000000000000000000a11ce",
			Text: map[string]string{
				"network.profile": `{"displayName":"alice"}`,
				"url":             "https://alice.example",
			},
			Addr: "0x00000000000000000000000000000000000a11ce",
		}},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = "127.0.0.1:8080"
	}
	if c.ProposeIntervalSecs == 0 {
		c.ProposeIntervalSecs = 2
	}
	if c.RetryAfterSecs == 0 {
		c.RetryAfterSecs = c.ProposeIntervalSecs
	}
	if c.LookupTimeoutSecs == 0 {
		c.LookupTimeoutSecs = 10
	}
	if len(c.GatewayURLs) == 0 {
		c.GatewayURLs = []string{"http://" + c.ListenAddress + "/{sender}/{data}.json"}
	}
	if strings.TrimSpace(c.ResolverAddress) == "" {
		c.ResolverAddress = DefaultResolverAddress
	}
	if strings.TrimSpace(c.RecordStoreAddress) == "" {
		c.RecordStoreAddress = DefaultRecordStoreAddress
	}
}

func (c *Config) Validate() error {
	if !common.IsHexAddress(c.ResolverAddress) {
		return fmt.Errorf("ResolverAddress %q is not a hex address", c.ResolverAddress)
	}
	if !common.IsHexAddress(c.RecordStoreAddress) {
		return fmt.Errorf("RecordStoreAddress %q is not a hex address", c.RecordStoreAddress)
	}
	for _, url := range c.GatewayURLs {
		if !strings.Contains(url, "{sender}") {
			return fmt.Errorf("gateway URL %q lacks a {sender} placeholder", url)
		}
	}
	for i, seed := range c.Seeds {
		if _, err := seed.Decode(); err != nil {
			return fmt.Errorf("seed %d: %w", i, err)
		}
	}
	return nil
}

func (c *Config) ProposeInterval() time.Duration {
	return time.Duration(c.ProposeIntervalSecs) * time.Second
}

func (c *Config) RetryAfter() time.Duration {
	return time.Duration(c.RetryAfterSecs) * time.Second
}

func (c *Config) LookupTimeout() time.Duration {
	return time.Duration(c.LookupTimeoutSecs) * time.Second
}

func (c *Config) Resolver() common.Address { return common.HexToAddress(c.ResolverAddress) }

func (c *Config) RecordStore() common.Address { return common.HexToAddress(c.RecordStoreAddress) }

// SeedRecords is a validated Seed.
type SeedRecords struct {
	Name        string
	Wire        []byte
	Owner       common.Address
	Text        map[string]string
	Addr        *common.Address
	Contenthash []byte
}

// Decode normalises the name and parses the hex fields.
func (s Seed) Decode() (SeedRecords, error) {
	name, err := ens.Normalize(s.Name)
	if err != nil {
		return SeedRecords{}, err
	}
	if name == "" {
		return SeedRecords{}, fmt.Errorf("%w: seed name required", ens.ErrInvalidName)
	}
	wire, err := ens.DNSEncode(name)
	if err != nil {
		return SeedRecords{}, err
	}
	if !common.IsHexAddress(s.Owner) {
		return SeedRecords{}, fmt.Errorf("owner %q is not a hex address", s.Owner)
	}
	out := SeedRecords{Name: name, Wire: wire, Owner: common.HexToAddress(s.Owner), Text: s.Text}
	if s.Addr != "" {
		if !common.IsHexAddress(s.Addr) {
			return SeedRecords{}, fmt.Errorf("addr %q is not a hex address", s.Addr)
		}
		addr := common.HexToAddress(s.Addr)
		out.Addr = &addr
	}
	if s.Contenthash != "" {
		hash, err := hexutil.Decode(s.Contenthash)
		if err != nil {
			return SeedRecords{}, fmt.Errorf("contenthash: %w", err)
		}
		out.Contenthash = hash
	}
	return out, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
