package config

type Configuration struct {
	// Server config
	Server struct {
		UseSSL    bool   `yaml:"ssl"`
		Port      int    `yaml:"port"`
		RedisPort int    `yaml:"redis_port"`
		RedisHost string `yaml:"redis_host"`
		LogLevel  string `yaml:"log_level"`
	} `yaml:"server"`
	// custodial account signing on the user's behalf
	Account struct {
		Address string `yaml:"address"`
		// important private stuff
		PrivateKey string `yaml:"private_key" split_words:"true"`
		// wallet can sign user operation batches itself
		NativeUserOps bool `yaml:"native_user_ops" split_words:"true"`
	} `yaml:"account"`
	Polling struct {
		BalanceIntervalSec  int `yaml:"balance_interval_sec" split_words:"true"`
		PositionIntervalSec int `yaml:"position_interval_sec" split_words:"true"`
		ConfirmIntervalMs   int `yaml:"confirm_interval_ms" split_words:"true"`
		ConfirmMaxWaitSec   int `yaml:"confirm_max_wait_sec" split_words:"true"`
		ScanWindow          int `yaml:"scan_window" split_words:"true"`
		ActivityLimit       int `yaml:"activity_limit" split_words:"true"`
	} `yaml:"polling"`
	// chain the vault flows run on when a request does not name one
	DefaultChain int `yaml:"default_chain" split_words:"true"`
	// per-deployment additions to the static chain table, keyed by chain id
	Chains map[int]ChainOverride `yaml:"chains" ignored:"true"`
}

// ChainOverride carries the addresses that differ per deployment
type ChainOverride struct {
	RPCList    []string `yaml:"rpc"`
	VoucherHub string   `yaml:"voucher_hub"`
	BundlerURL string   `yaml:"bundler_url"`
}

var Config Configuration

// gas safety margin, percent of the node estimate
const GAS_MARGIN_PERCENT = 120

// fee rate put into new strategies; the registry may enforce its own
const DEFAULT_FEE_BPS = 10

// defaults applied when config leaves polling values empty
const (
	DEFAULT_BALANCE_INTERVAL_SEC  = 10
	DEFAULT_POSITION_INTERVAL_SEC = 15
	DEFAULT_CONFIRM_INTERVAL_MS   = 1000
	DEFAULT_CONFIRM_MAX_WAIT_SEC  = 60
	DEFAULT_SCAN_WINDOW           = 5000 // log providers cap getLogs ranges at 10k
	DEFAULT_ACTIVITY_LIMIT        = 10
)

// ERC-4337 v0.7 entry point, same address on every chain
const ENTRY_POINT_V07 = "0x0000000071727De22E5E9d8BAf0edAc6f37da032"

// EVM-chains configs
type ChainConfig struct {
	Name          string
	ChainID       int
	RPCList       []string
	TokenSymbol   string
	TokenAddress  string // USDC
	TokenDecimals int
	Vault         string // Aqua liquidity vault
	FlashLoan     string // strategy registry, also the vault app; empty when not deployed
	Borrower      string
	VoucherHub    string // cross-chain voucher issuer/redeemer; empty when bridging is unsupported
	EntryPoint    string
	BundlerURL    string // endpoint accepting eth_sendUserOperation
}

// HasFlashLoan reports whether the registry is deployed on the chain
func (c ChainConfig) HasFlashLoan() bool {
	return c.FlashLoan != "" && c.Borrower != ""
}

// HasBridge reports whether vouchers can be issued or redeemed on the chain
func (c ChainConfig) HasBridge() bool {
	return c.VoucherHub != "" && c.EntryPoint != "" && c.BundlerURL != ""
}

const aquaUniversal = "0x499943E74FB0cE105688beeE8Ef2ABec5D936d31"

var EVMChains = map[int]ChainConfig{
	5042002: {
		Name:          "Arc Testnet",
		ChainID:       5042002,
		RPCList:       []string{"https://rpc.testnet.arc.network", "https://arc-testnet.drpc.org"},
		TokenSymbol:   "USDC",
		TokenAddress:  "0x3600000000000000000000000000000000000000",
		TokenDecimals: 6,
		Vault:         "0x33Fb47472D03Ce0174830A6bD21e39F65d6d5425",
		FlashLoan:     "0x6c86812F1a5aeb738951B6f8A0b3b3FB4C856f82",
		Borrower:      "0x524902FA5e3535117E24e9D6826e5950bfbEF94E",
		EntryPoint:    ENTRY_POINT_V07,
	}, // Arc testnet, separate Aqua deployment
	1: {
		Name:          "Eth",
		ChainID:       1,
		RPCList:       []string{"https://eth.drpc.org", "https://eth.llamarpc.com"},
		TokenSymbol:   "USDC",
		TokenAddress:  "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		TokenDecimals: 6,
		Vault:         aquaUniversal,
		EntryPoint:    ENTRY_POINT_V07,
	}, // Ethereum
	8453: {
		Name:          "Base",
		ChainID:       8453,
		RPCList:       []string{"https://mainnet.base.org", "https://base.llamarpc.com", "https://base.drpc.org"},
		TokenSymbol:   "USDC",
		TokenAddress:  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		TokenDecimals: 6,
		Vault:         aquaUniversal,
		EntryPoint:    ENTRY_POINT_V07,
	}, // Base
	84532: {
		Name:          "Base Sepolia",
		ChainID:       84532,
		RPCList:       []string{"https://sepolia.base.org", "https://base-sepolia.drpc.org"},
		TokenSymbol:   "USDC",
		TokenAddress:  "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		TokenDecimals: 6,
		Vault:         aquaUniversal,
		EntryPoint:    ENTRY_POINT_V07,
	}, // Base Sepolia
	10: {
		Name:          "Optimism",
		ChainID:       10,
		RPCList:       []string{"https://optimism.llamarpc.com", "https://optimism.drpc.org"},
		TokenSymbol:   "USDC",
		TokenAddress:  "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85",
		TokenDecimals: 6,
		Vault:         aquaUniversal,
		EntryPoint:    ENTRY_POINT_V07,
	}, // Optimism
	42161: {
		Name:          "Arbitrum",
		ChainID:       42161,
		RPCList:       []string{"https://arbitrum.llamarpc.com", "https://arbitrum.drpc.org"},
		TokenSymbol:   "USDC",
		TokenAddress:  "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
		TokenDecimals: 6,
		Vault:         aquaUniversal,
		EntryPoint:    ENTRY_POINT_V07,
	}, // Arbitrum
	137: {
		Name:          "Polygon",
		ChainID:       137,
		RPCList:       []string{"https://polygon.llamarpc.com", "https://polygon.drpc.org"},
		TokenSymbol:   "USDC",
		TokenAddress:  "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
		TokenDecimals: 6,
		Vault:         aquaUniversal,
		EntryPoint:    ENTRY_POINT_V07,
	}, // Polygon
}

var RedisStatusSets = map[string]string{
	"building":             "bridgeops:building",             // voucher request built and signed
	"sourcesubmitted":      "bridgeops:sourcesubmitted",      // source leg acknowledged by the entry point
	"awaitingfulfillment":  "bridgeops:awaitingfulfillment",  // source leg confirmed, destination leg in flight
	"destinationconfirmed": "bridgeops:destinationconfirmed", // voucher redeemed on destination chain
	"failed":               "bridgeops:failed",               // terminal failure in any phase
}
