package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requestsPerMinute"`
	RatePerSecond     float64 `yaml:"ratePerSecond"`
	Burst             int     `yaml:"burst"`
}

// PerSecond returns the configured rate, converting requestsPerMinute when
// ratePerSecond is unset.
func (r RateLimitConfig) PerSecond() float64 {
	if r.RatePerSecond > 0 {
		return r.RatePerSecond
	}
	if r.RequestsPerMinute > 0 {
		return r.RequestsPerMinute / 60.0
	}
	return 0
}

type ObservabilityConfig struct {
	ServiceName   string `yaml:"serviceName"`
	Metrics       bool   `yaml:"metrics"`
	Tracing       bool   `yaml:"tracing"`
	LogRequests   bool   `yaml:"logRequests"`
	MetricsPrefix string `yaml:"metricsPrefix"`
}

// ChainConfig names the RPC endpoints and contracts a gateway reads.
type ChainConfig struct {
	L1RPC        string `yaml:"l1RPC"`
	L2RPC        string `yaml:"l2RPC"`
	OutputOracle string `yaml:"outputOracle"`
	ENSRegistry  string `yaml:"ensRegistry"`
	RecordStore  string `yaml:"recordStore"`
}

type Config struct {
	ListenAddress      string              `yaml:"listen"`
	ReadTimeout        time.Duration       `yaml:"readTimeout"`
	WriteTimeout       time.Duration       `yaml:"writeTimeout"`
	IdleTimeout        time.Duration       `yaml:"idleTimeout"`
	LookupTimeout      time.Duration       `yaml:"lookupTimeout"`
	RetryAfter         time.Duration       `yaml:"retryAfter"`
	CheckpointCacheTTL time.Duration       `yaml:"checkpointCacheTTL"`
	Chain              ChainConfig         `yaml:"chain"`
	RateLimit          RateLimitConfig     `yaml:"rateLimit"`
	AllowedOrigins     []string            `yaml:"allowedOrigins"`
	Observability      ObservabilityConfig `yaml:"observability"`
	Security           SecurityConfig      `yaml:"security"`
}

type SecurityConfig struct {
	AllowInsecure   bool   `yaml:"allowInsecure"`
	TLSCertFile     string `yaml:"tlsCertFile"`
	TLSKeyFile      string `yaml:"tlsKeyFile"`
	TLSClientCAFile string `yaml:"tlsClientCAFile"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		ListenAddress:      ":8080",
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       30 * time.Second,
		IdleTimeout:        120 * time.Second,
		LookupTimeout:      10 * time.Second,
		RetryAfter:         12 * time.Second,
		CheckpointCacheTTL: 12 * time.Second,
		Chain: ChainConfig{
			L1RPC: "http://127.0.0.1:8545",
			L2RPC: "http://127.0.0.1:9545",
		},
		RateLimit: RateLimitConfig{RatePerSecond: 20, Burst: 40},
		Observability: ObservabilityConfig{
			ServiceName:   "l2resolver-gateway",
			Metrics:       true,
			Tracing:       true,
			LogRequests:   true,
			MetricsPrefix: "gateway",
		},
	}
}

// Load reads the YAML file at path over the defaults and validates the result.
// Endpoint and address fields may be overridden with L2R_GATEWAY_* variables.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (cfg *Config) applyEnv() {
	overrides := map[string]*string{
		"L2R_GATEWAY_L1_RPC":        &cfg.Chain.L1RPC,
		"L2R_GATEWAY_L2_RPC":        &cfg.Chain.L2RPC,
		"L2R_GATEWAY_OUTPUT_ORACLE": &cfg.Chain.OutputOracle,
		"L2R_GATEWAY_ENS_REGISTRY":  &cfg.Chain.ENSRegistry,
		"L2R_GATEWAY_RECORD_STORE":  &cfg.Chain.RecordStore,
	}
	for name, target := range overrides {
		if value := strings.TrimSpace(os.Getenv(name)); value != "" {
			*target = value
		}
	}
}

func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		return fmt.Errorf("listen address required")
	}
	for name, endpoint := range map[string]string{"chain.l1RPC": cfg.Chain.L1RPC, "chain.l2RPC": cfg.Chain.L2RPC} {
		if strings.TrimSpace(endpoint) == "" {
			return fmt.Errorf("%s required", name)
		}
		if _, err := url.Parse(endpoint); err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
	}
	for name, addr := range map[string]string{
		"chain.outputOracle": cfg.Chain.OutputOracle,
		"chain.ensRegistry":  cfg.Chain.ENSRegistry,
		"chain.recordStore":  cfg.Chain.RecordStore,
	} {
		if !common.IsHexAddress(strings.TrimSpace(addr)) {
			return fmt.Errorf("%s must be a hex address, got %q", name, addr)
		}
	}
	if cfg.RetryAfter < 0 || cfg.CheckpointCacheTTL < 0 || cfg.LookupTimeout < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if cfg.RateLimit.PerSecond() > 0 && cfg.RateLimit.Burst <= 0 {
		return fmt.Errorf("rateLimit.burst must be positive when a rate is set")
	}
	hasCert := strings.TrimSpace(cfg.Security.TLSCertFile) != ""
	hasKey := strings.TrimSpace(cfg.Security.TLSKeyFile) != ""
	if hasCert != hasKey {
		return fmt.Errorf("security.tlsCertFile and security.tlsKeyFile must be set together")
	}
	return nil
}

// Address parses one of the chain contract addresses. Validate has already
// rejected malformed values.
func (c ChainConfig) Address(raw string) common.Address {
	return common.HexToAddress(strings.TrimSpace(raw))
}

// EnforceSecureScheme ensures the supplied URL uses HTTPS or WSS outside of
// the dev environment.
func EnforceSecureScheme(env string, target *url.URL) error {
	if target == nil {
		return fmt.Errorf("target URL is nil")
	}
	switch strings.ToLower(strings.TrimSpace(target.Scheme)) {
	case "https", "wss":
		return nil
	case "http", "ws":
		if isDevEnv(env) || isLoopbackHost(target.Hostname()) {
			return nil
		}
		if strings.TrimSpace(env) == "" {
			env = "(unset)"
		}
		return fmt.Errorf("plaintext endpoints are not permitted for environment %s", env)
	case "":
		return fmt.Errorf("URL scheme is required")
	default:
		return fmt.Errorf("unsupported URL scheme %q", target.Scheme)
	}
}

func isDevEnv(env string) bool {
	return strings.EqualFold(strings.TrimSpace(env), "dev")
}

func isLoopbackHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
