package contracts

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"gococo/codec"
	"gococo/types"
)

var (
	ERC20ABI = mustParseABI(`[
		{"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
		{"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
		{"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
		{"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
	]`)
	VaultABI = mustParseABI(`[
		{"inputs":[{"name":"app","type":"address"},{"name":"strategy","type":"bytes"},{"name":"tokens","type":"address[]"},{"name":"amounts","type":"uint256[]"}],"name":"ship","outputs":[{"name":"strategyHash","type":"bytes32"}],"stateMutability":"nonpayable","type":"function"},
		{"inputs":[{"name":"app","type":"address"},{"name":"strategyHash","type":"bytes32"},{"name":"tokens","type":"address[]"}],"name":"dock","outputs":[],"stateMutability":"nonpayable","type":"function"},
		{"inputs":[{"name":"maker","type":"address"},{"name":"app","type":"address"},{"name":"strategyHash","type":"bytes32"},{"name":"token","type":"address"}],"name":"rawBalances","outputs":[{"name":"balance","type":"uint256"}],"stateMutability":"view","type":"function"}
	]`)
	RegistryABI = mustParseABI(`[
		{"inputs":[{"components":[{"name":"maker","type":"address"},{"name":"token","type":"address"},{"name":"salt","type":"bytes32"},{"name":"feeBps","type":"uint256"}],"name":"strategy","type":"tuple"}],"name":"registerStrategy","outputs":[],"stateMutability":"nonpayable","type":"function"},
		{"anonymous":false,"inputs":[{"indexed":true,"name":"maker","type":"address"},{"indexed":true,"name":"token","type":"address"},{"indexed":false,"name":"strategyHash","type":"bytes32"}],"name":"StrategyRegistered","type":"event"},
		{"anonymous":false,"inputs":[{"indexed":true,"name":"borrower","type":"address"},{"indexed":true,"name":"maker","type":"address"},{"indexed":false,"name":"token","type":"address"},{"indexed":false,"name":"amount","type":"uint256"},{"indexed":false,"name":"fee","type":"uint256"},{"indexed":false,"name":"strategyHash","type":"bytes32"}],"name":"LoanExecuted","type":"event"}
	]`)
	VoucherHubABI = mustParseABI(`[
		{"inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"},{"name":"destinationChainId","type":"uint256"},{"name":"ref","type":"bytes32"}],"name":"issueVoucher","outputs":[],"stateMutability":"nonpayable","type":"function"},
		{"inputs":[{"name":"ref","type":"bytes32"},{"name":"token","type":"address"},{"name":"amount","type":"uint256"},{"name":"recipient","type":"address"}],"name":"redeemVoucher","outputs":[],"stateMutability":"nonpayable","type":"function"}
	]`)
	AccountABI = mustParseABI(`[
		{"inputs":[{"name":"dest","type":"address[]"},{"name":"value","type":"uint256[]"},{"name":"data","type":"bytes[]"}],"name":"executeBatch","outputs":[],"stateMutability":"nonpayable","type":"function"}
	]`)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

var (
	StrategyRegisteredTopic = RegistryABI.Events["StrategyRegistered"].ID
	LoanExecutedTopic       = RegistryABI.Events["LoanExecuted"].ID
)

func pack(contract abi.ABI, method string, args ...any) ([]byte, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: pack %s: %s", types.ErrConfiguration, method, err.Error())
	}
	return data, nil
}

func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return pack(ERC20ABI, "approve", spender, amount)
}

func PackTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	return pack(ERC20ABI, "transfer", to, amount)
}

func PackBalanceOf(owner common.Address) ([]byte, error) {
	return pack(ERC20ABI, "balanceOf", owner)
}

func PackRegisterStrategy(s codec.Strategy) ([]byte, error) {
	// same structural checks as the hash
	if _, err := s.Encode(); err != nil {
		return nil, err
	}
	return pack(RegistryABI, "registerStrategy", s.Tuple())
}

func PackShip(app common.Address, encodedStrategy []byte, tokens []common.Address, amounts []*big.Int) ([]byte, error) {
	if len(tokens) != len(amounts) {
		return nil, fmt.Errorf("%w: ship with %d tokens and %d amounts", types.ErrConfiguration, len(tokens), len(amounts))
	}
	return pack(VaultABI, "ship", app, encodedStrategy, tokens, amounts)
}

func PackDock(app common.Address, strategyHash common.Hash, tokens []common.Address) ([]byte, error) {
	return pack(VaultABI, "dock", app, [32]byte(strategyHash), tokens)
}

func PackRawBalances(maker, app common.Address, strategyHash common.Hash, token common.Address) ([]byte, error) {
	return pack(VaultABI, "rawBalances", maker, app, [32]byte(strategyHash), token)
}

func PackIssueVoucher(token common.Address, amount *big.Int, destinationChainID int, ref common.Hash) ([]byte, error) {
	return pack(VoucherHubABI, "issueVoucher", token, amount, big.NewInt(int64(destinationChainID)), [32]byte(ref))
}

func PackRedeemVoucher(ref common.Hash, token common.Address, amount *big.Int, recipient common.Address) ([]byte, error) {
	return pack(VoucherHubABI, "redeemVoucher", [32]byte(ref), token, amount, recipient)
}

func PackExecuteBatch(dest []common.Address, value []*big.Int, data [][]byte) ([]byte, error) {
	if len(dest) != len(value) || len(dest) != len(data) {
		return nil, fmt.Errorf("%w: executeBatch arrays differ in length", types.ErrConfiguration)
	}
	return pack(AccountABI, "executeBatch", dest, value, data)
}

// UnpackUint reads the single uint256 returned by a view call
func UnpackUint(contract abi.ABI, method string, output []byte) (*big.Int, error) {
	values, err := contract.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: empty result", method)
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack %s: unexpected %T", method, values[0])
	}
	return v, nil
}
