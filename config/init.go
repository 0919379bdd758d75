package config

import (
	"fmt"
	"io"
	"os"
	"sort"

	ethav "github.com/KOREAN139/ethereum-address-validator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/kelseyhightower/envconfig"
	yaml "gopkg.in/yaml.v2"

	"gococo/types"
)

// reading config error is fatal, and exits main thread
func processError(err error) {
	fmt.Println(err)
	os.Exit(2)
}

func readFile(cfg *Configuration, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return decode(cfg, f)
}

func decode(cfg *Configuration, r io.Reader) error {
	decoder := yaml.NewDecoder(r)
	return decoder.Decode(cfg)
}

func readEnv(cfg *Configuration) error {
	return envconfig.Process("", cfg)
}

func applyDefaults(cfg *Configuration) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Polling.BalanceIntervalSec <= 0 {
		cfg.Polling.BalanceIntervalSec = DEFAULT_BALANCE_INTERVAL_SEC
	}
	if cfg.Polling.PositionIntervalSec <= 0 {
		cfg.Polling.PositionIntervalSec = DEFAULT_POSITION_INTERVAL_SEC
	}
	if cfg.Polling.ConfirmIntervalMs <= 0 {
		cfg.Polling.ConfirmIntervalMs = DEFAULT_CONFIRM_INTERVAL_MS
	}
	if cfg.Polling.ConfirmMaxWaitSec <= 0 {
		cfg.Polling.ConfirmMaxWaitSec = DEFAULT_CONFIRM_MAX_WAIT_SEC
	}
	if cfg.Polling.ScanWindow <= 0 {
		cfg.Polling.ScanWindow = DEFAULT_SCAN_WINDOW
	}
	if cfg.Polling.ActivityLimit <= 0 {
		cfg.Polling.ActivityLimit = DEFAULT_ACTIVITY_LIMIT
	}
	if cfg.DefaultChain == 0 {
		cfg.DefaultChain = 5042002
	}
}

// Load reads the yml file at path, then lets the environment override it
func Load(path string) (*Configuration, error) {
	var cfg Configuration
	if err := readFile(&cfg, path); err != nil {
		return nil, err
	}
	if err := readEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func Init() {
	cfg, err := Load("config.yml")
	if err != nil {
		processError(err)
	}
	EVMChains = ApplyOverrides(EVMChains, cfg.Chains)
	if err := Validate(cfg, EVMChains); err != nil {
		processError(err)
	}
	Config = *cfg
}

// ApplyOverrides returns a copy of chains with the deployment specific values merged in
func ApplyOverrides(chains map[int]ChainConfig, overrides map[int]ChainOverride) map[int]ChainConfig {
	merged := make(map[int]ChainConfig, len(chains))
	for id, chain := range chains {
		merged[id] = chain
	}
	for id, o := range overrides {
		chain, ok := merged[id]
		if !ok {
			continue
		}
		if len(o.RPCList) > 0 {
			chain.RPCList = o.RPCList
		}
		if o.VoucherHub != "" {
			chain.VoucherHub = o.VoucherHub
		}
		if o.BundlerURL != "" {
			chain.BundlerURL = o.BundlerURL
		}
		merged[id] = chain
	}
	return merged
}

func validateAddress(field, addr string) error {
	if addr == "" {
		return nil
	}
	if !common.IsHexAddress(addr) {
		return fmt.Errorf("%w: %s is not an address: %q", types.ErrConfiguration, field, addr)
	}
	if err := ethav.Validate(common.HexToAddress(addr).Hex()); err != nil {
		return fmt.Errorf("%w: %s: %s", types.ErrConfiguration, field, err.Error())
	}
	return nil
}

// Validate checks the account section and every address in the chain table
func Validate(cfg *Configuration, chains map[int]ChainConfig) error {
	if cfg.Account.Address == "" {
		return fmt.Errorf("%w: account address is not configured", types.ErrConfiguration)
	}
	if err := validateAddress("account.address", cfg.Account.Address); err != nil {
		return err
	}
	if _, ok := chains[cfg.DefaultChain]; !ok {
		return fmt.Errorf("%w: default chain %d is not configured", types.ErrConfiguration, cfg.DefaultChain)
	}

	for _, id := range ChainIDs(chains) {
		chain := chains[id]
		if len(chain.RPCList) == 0 {
			return fmt.Errorf("%w: chain %d has no RPC endpoints", types.ErrConfiguration, id)
		}
		if chain.TokenAddress == "" {
			return fmt.Errorf("%w: chain %d has no token address", types.ErrConfiguration, id)
		}
		fields := map[string]string{
			"token":      chain.TokenAddress,
			"vault":      chain.Vault,
			"flashLoan":  chain.FlashLoan,
			"borrower":   chain.Borrower,
			"voucherHub": chain.VoucherHub,
			"entryPoint": chain.EntryPoint,
		}
		for name, addr := range fields {
			if err := validateAddress(fmt.Sprintf("chain %d %s", id, name), addr); err != nil {
				return err
			}
		}
	}
	return nil
}

// ChainIDs returns the configured chain ids in ascending order
func ChainIDs(chains map[int]ChainConfig) []int {
	ids := make([]int, 0, len(chains))
	for id := range chains {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Chain looks up a chain, a missing one is a configuration error
func Chain(chainID int) (ChainConfig, error) {
	chain, ok := EVMChains[chainID]
	if !ok {
		return ChainConfig{}, fmt.Errorf("%w: chain %d is not configured", types.ErrConfiguration, chainID)
	}
	return chain, nil
}
