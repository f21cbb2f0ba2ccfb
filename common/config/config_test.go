package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moebius-network/moebius/common/callenc"
)

const sampleYAML = `
network:
  name: sepolia
  rpc_url: http://localhost:8545
  chain_id: 11155111
relay:
  address: "0x4f2a9ac3a70400636190e1df213fd7aa0bcf794d"
keeper:
  tasks:
    - name: uniswap-oracle
      target: "0x20412cA3DA74560695529C7c5D34C1e766B52AeB"
      abi: UniswapOracle
      entry_point: updateAndConsult
      args: ["0xc778417e063141139fce010982780140aa0cd5ab", "1000000000000000000"]
      period: 60s
      gas_limit: 120000
      gas_price: "4000000000"
      confirm:
        enabled: true
        correlation_key: DyYDszBZ8m92i9bJeQMhErkqQ4UPBG4pVZxmQL3CNnC
logging:
  level: debug
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_File(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "sepolia", cfg.Network.Name)
	assert.Equal(t, int64(11155111), cfg.Network.ChainID)
	assert.Equal(t, 2*time.Second, cfg.Network.PollInterval)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 8090, cfg.Server.Port)

	require.Len(t, cfg.Keeper.Tasks, 1)
	task := cfg.Keeper.Tasks[0]
	assert.Equal(t, "updateAndConsult", task.EntryPoint)
	assert.Equal(t, 60*time.Second, task.Period)
	assert.Equal(t, 60*time.Second, task.RetryDelay, "retry delay defaults to period")
	assert.Equal(t, ArgsStatic, task.ArgsMode)
	assert.Equal(t, uint64(120000), task.GasLimit)
	assert.Len(t, task.Args, 2)
	assert.True(t, task.Confirm.Enabled)

	price, err := task.GasPriceWei()
	require.NoError(t, err)
	assert.Equal(t, int64(4_000_000_000), price.Int64())

	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MOEBIUS_LOGGING_LEVEL", "warn")
	t.Setenv("MOEBIUS_NETWORK_RPC_URL", "http://node:8545")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "http://node:8545", cfg.Network.RPCURL)
}

func TestLoad_DefaultPathMissingIsFine(t *testing.T) {
	t.Setenv("MOEBIUS_CONFIG_DIR", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Network.IsMemory())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ExplicitPathMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Network: NetworkConfig{Name: "sepolia", RPCURL: "http://localhost:8545"},
			Relay:   RelayConfig{Address: "0x4f2a9ac3a70400636190e1df213fd7aa0bcf794d"},
			Keeper: KeeperConfig{Tasks: []TaskConfig{{
				Name:       "simple",
				Target:     "0x20412cA3DA74560695529C7c5D34C1e766B52AeB",
				ABI:        "SimpleContract",
				EntryPoint: "getValues",
				ArgsMode:   ArgsStatic,
				Period:     time.Minute,
			}}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing rpc url", func(c *Config) { c.Network.RPCURL = "" }, "rpc_url is required"},
		{"bad relay", func(c *Config) { c.Relay.Address = "relay" }, "relay.address"},
		{"unknown abi", func(c *Config) { c.Keeper.Tasks[0].ABI = "Nope" }, "unknown schema"},
		{"unknown entry point", func(c *Config) { c.Keeper.Tasks[0].EntryPoint = "nope" }, "unknown entry point"},
		{"empty entry point", func(c *Config) { c.Keeper.Tasks[0].EntryPoint = "" }, "entry_point is required"},
		{"zero period", func(c *Config) { c.Keeper.Tasks[0].Period = 0 }, "period must be positive"},
		{"bad target", func(c *Config) { c.Keeper.Tasks[0].Target = "" }, "is not an address"},
		{"bad args mode", func(c *Config) { c.Keeper.Tasks[0].ArgsMode = "fuzzy" }, "args_mode"},
		{"bad gas price", func(c *Config) { c.Keeper.Tasks[0].GasPrice = "cheap" }, "invalid gas_price"},
		{"confirm without key", func(c *Config) { c.Keeper.Tasks[0].Confirm.Enabled = true }, "correlation_key is required"},
		{"duplicate", func(c *Config) { c.Keeper.Tasks = append(c.Keeper.Tasks, c.Keeper.Tasks[0]) }, "duplicate name"},
		{"unnamed", func(c *Config) { c.Keeper.Tasks[0].Name = "" }, "without a name"},
		{"watcher zero interval", func(c *Config) {
			c.Watcher = WatcherConfig{Enabled: true}
		}, "watcher.interval must be positive"},
		{"disabled watcher ignores interval", func(c *Config) { c.Watcher = WatcherConfig{} }, ""},
		{"memory allows empty target", func(c *Config) {
			c.Network.Name = MemoryNetwork
			c.Keeper.Tasks[0].Target = ""
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSignerKey(t *testing.T) {
	assert.Equal(t, "abc", must(SignerConfig{PrivateKey: " abc\n"}.Key()))

	path := filepath.Join(t.TempDir(), "key")
	require.NoError(t, os.WriteFile(path, []byte("0xdef\n"), 0o600))
	assert.Equal(t, "0xdef", must(SignerConfig{PrivateKey: "ignored", PrivateKeyFile: path}.Key()))

	_, err := SignerConfig{PrivateKeyFile: filepath.Join(t.TempDir(), "missing")}.Key()
	assert.Error(t, err)
}

func must(s string, err error) string {
	if err != nil {
		panic(err)
	}
	return s
}

const vaultABI = `[
  {"type":"function","name":"harvest","stateMutability":"nonpayable",
   "inputs":[{"name":"amount","type":"uint256"}],"outputs":[]}
]`

func TestLoad_RegistersABIs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vault.json"), []byte(vaultABI), 0o600))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
abis:
  - name: ConfigVault
    path: vault.json
keeper:
  tasks:
    - name: harvest
      abi: ConfigVault
      entry_point: harvest
      args: ["1"]
      period: 1m
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.ABIs, 1)
	assert.Equal(t, "ConfigVault", cfg.ABIs[0].Name)

	schema, err := callenc.Lookup("ConfigVault")
	require.NoError(t, err)
	_, err = schema.Method("harvest")
	assert.NoError(t, err)
	// The memory network allows an empty target, so the task validates.
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ABIErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing path", "abis:\n  - name: X\n"},
		{"missing file", "abis:\n  - name: X\n    path: nope.json\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.ErrorContains(t, err, "abis")
		})
	}
}

func TestLoad_WatcherIntervalFromEnv(t *testing.T) {
	t.Setenv("MOEBIUS_WATCHER_ENABLED", "true")
	t.Setenv("MOEBIUS_WATCHER_INTERVAL", "0s")

	cfg, err := Load(writeConfig(t, "watcher:\n  interval: 0s\n"))
	require.NoError(t, err)
	assert.True(t, cfg.Watcher.Enabled)
	assert.Zero(t, cfg.Watcher.Interval)
	assert.ErrorContains(t, cfg.Validate(), "watcher.interval must be positive")
}
