// Package config loads the keeper and CLI configuration.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"github.com/moebius-network/moebius/common/callenc"
)

// MemoryNetwork runs against an in-process ledger seeded by the devnet.
const MemoryNetwork = "memory"

const (
	ArgsStatic = "static"
	ArgsRandom = "random"
)

// Config is the root configuration.
type Config struct {
	Network NetworkConfig `mapstructure:"network"`
	Signer  SignerConfig  `mapstructure:"signer"`
	Relay   RelayConfig   `mapstructure:"relay"`
	ABIs    []ABIConfig   `mapstructure:"abis"`
	Keeper  KeeperConfig  `mapstructure:"keeper"`
	Watcher WatcherConfig `mapstructure:"watcher"`
	Server  ServerConfig  `mapstructure:"server"`
	Redis   RedisConfig   `mapstructure:"redis"`
	NATS    NATSConfig    `mapstructure:"nats"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// NetworkConfig selects the ledger endpoint.
type NetworkConfig struct {
	Name         string        `mapstructure:"name"`
	RPCURL       string        `mapstructure:"rpc_url"`
	ChainID      int64         `mapstructure:"chain_id"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// IsMemory reports whether the in-process ledger is selected.
func (n NetworkConfig) IsMemory() bool {
	return n.Name == MemoryNetwork
}

// SignerConfig holds the signing credential. PrivateKeyFile wins over
// PrivateKey when both are set.
type SignerConfig struct {
	PrivateKey     string `mapstructure:"private_key"`
	PrivateKeyFile string `mapstructure:"private_key_file"`
}

// Key returns the hex private key, reading PrivateKeyFile if set.
func (s SignerConfig) Key() (string, error) {
	if s.PrivateKeyFile == "" {
		return strings.TrimSpace(s.PrivateKey), nil
	}
	data, err := os.ReadFile(s.PrivateKeyFile)
	if err != nil {
		return "", fmt.Errorf("read private key file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// RelayConfig locates the deployed relay.
type RelayConfig struct {
	Address string `mapstructure:"address"`
}

// ABIConfig registers a contract ABI beyond the built-in ones. Path is a JSON
// ABI file, relative to the config file's directory unless absolute.
type ABIConfig struct {
	Name string `mapstructure:"name"`
	Path string `mapstructure:"path"`
}

// KeeperConfig lists the scheduled tasks.
type KeeperConfig struct {
	Tasks []TaskConfig `mapstructure:"tasks"`
}

// TaskConfig is one KeeperTask.
type TaskConfig struct {
	Name       string `mapstructure:"name"`
	Target     string `mapstructure:"target"`
	ABI        string `mapstructure:"abi"`
	EntryPoint string `mapstructure:"entry_point"`
	// Args are literal argument values; callenc coerces hex and decimal text.
	Args     []string `mapstructure:"args"`
	ArgsMode string   `mapstructure:"args_mode"`
	Seed     int64    `mapstructure:"seed"`

	Period           time.Duration `mapstructure:"period"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	InclusionTimeout time.Duration `mapstructure:"inclusion_timeout"`
	GasLimit         uint64        `mapstructure:"gas_limit"`
	GasPrice         string        `mapstructure:"gas_price"`

	Confirm ConfirmConfig `mapstructure:"confirm"`
}

// GasPriceWei parses GasPrice. Empty means let the node suggest one.
func (t TaskConfig) GasPriceWei() (*big.Int, error) {
	if t.GasPrice == "" {
		return nil, nil
	}
	p, ok := new(big.Int).SetString(t.GasPrice, 0)
	if !ok || p.Sign() < 0 {
		return nil, fmt.Errorf("task %s: invalid gas_price %q", t.Name, t.GasPrice)
	}
	return p, nil
}

// ConfirmConfig enables reading the dispatch result back after inclusion.
type ConfirmConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// CorrelationKey is base58 or 0x-hex.
	CorrelationKey string `mapstructure:"correlation_key"`
	// ResultTypes overrides the PackedResult schema known for the task's abi.
	ResultTypes  []string      `mapstructure:"result_types"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// WatcherConfig drives the relay log watcher.
type WatcherConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	FromBlock uint64        `mapstructure:"from_block"`
	Interval  time.Duration `mapstructure:"interval"`
	ChunkSize uint64        `mapstructure:"chunk_size"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

// NATSConfig holds NATS message broker configuration
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Enabled       bool          `mapstructure:"enabled"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultPath returns $MOEBIUS_CONFIG_DIR/config.yaml, defaulting the
// directory to /etc/moebius.
func DefaultPath() string {
	dir := os.Getenv("MOEBIUS_CONFIG_DIR")
	if dir == "" {
		dir = "/etc/moebius"
	}
	return filepath.Join(dir, "config.yaml")
}

// Load reads path (DefaultPath when empty) and MOEBIUS_* environment
// overrides. A missing default file is not an error; a missing explicit
// file is.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("MOEBIUS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !(errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	for i := range cfg.Keeper.Tasks {
		applyTaskDefaults(&cfg.Keeper.Tasks[i])
	}
	if err := registerABIs(cfg.ABIs, filepath.Dir(path)); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// registerABIs adds the configured ABIs to the callenc registry so tasks and
// validation can look them up by name.
func registerABIs(abis []ABIConfig, baseDir string) error {
	for _, a := range abis {
		if a.Name == "" || a.Path == "" {
			return fmt.Errorf("abis: name and path are required (got %q, %q)", a.Name, a.Path)
		}
		path := a.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("abis: %s: %w", a.Name, err)
		}
		if _, err := callenc.Register(a.Name, data); err != nil {
			return fmt.Errorf("abis: %w", err)
		}
	}
	return nil
}

// setDefaults sets all default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("network.name", MemoryNetwork)
	v.SetDefault("network.poll_interval", "2s")

	v.SetDefault("watcher.enabled", false)
	v.SetDefault("watcher.interval", "15s")
	v.SetDefault("watcher.chunk_size", 5000)

	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", false)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// applyTaskDefaults fills per-task values viper cannot default inside a list.
func applyTaskDefaults(t *TaskConfig) {
	if t.ArgsMode == "" {
		t.ArgsMode = ArgsStatic
	}
	if t.RetryDelay == 0 {
		t.RetryDelay = t.Period
	}
	if t.Confirm.PollInterval == 0 {
		t.Confirm.PollInterval = time.Second
	}
}

// Validate reports every configuration error found.
func (c *Config) Validate() error {
	var errs []error

	if !c.Network.IsMemory() {
		if c.Network.RPCURL == "" {
			errs = append(errs, fmt.Errorf("network %s: rpc_url is required", c.Network.Name))
		}
		if !common.IsHexAddress(c.Relay.Address) {
			errs = append(errs, fmt.Errorf("relay.address %q is not an address", c.Relay.Address))
		}
	}

	if c.Watcher.Enabled && c.Watcher.Interval <= 0 {
		errs = append(errs, fmt.Errorf("watcher.interval must be positive, got %s", c.Watcher.Interval))
	}

	seen := make(map[string]bool)
	for _, t := range c.Keeper.Tasks {
		if t.Name == "" {
			errs = append(errs, errors.New("keeper task without a name"))
			continue
		}
		if seen[t.Name] {
			errs = append(errs, fmt.Errorf("task %s: duplicate name", t.Name))
		}
		seen[t.Name] = true
		errs = append(errs, t.validate(c.Network.IsMemory())...)
	}
	return errors.Join(errs...)
}

func (t TaskConfig) validate(memory bool) []error {
	var errs []error
	fail := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("task %s: "+format, append([]interface{}{t.Name}, args...)...))
	}

	schema, err := callenc.Lookup(t.ABI)
	if err != nil {
		fail("%v", err)
	} else if t.EntryPoint == "" {
		fail("entry_point is required")
	} else if _, err := schema.Method(t.EntryPoint); err != nil {
		fail("%v", err)
	}

	// On the memory network an empty target means the devnet contract for abi.
	if !(memory && t.Target == "") && !common.IsHexAddress(t.Target) {
		fail("target %q is not an address", t.Target)
	}
	if t.Period <= 0 {
		fail("period must be positive")
	}
	if t.RetryDelay < 0 || t.InclusionTimeout < 0 {
		fail("retry_delay and inclusion_timeout must not be negative")
	}
	switch t.ArgsMode {
	case ArgsStatic, ArgsRandom:
	default:
		fail("args_mode %q must be %s or %s", t.ArgsMode, ArgsStatic, ArgsRandom)
	}
	if _, err := t.GasPriceWei(); err != nil {
		errs = append(errs, err)
	}
	if t.Confirm.Enabled && t.Confirm.CorrelationKey == "" {
		fail("confirm.correlation_key is required when confirm is enabled")
	}
	return errs
}
