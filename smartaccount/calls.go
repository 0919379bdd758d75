package smartaccount

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"gococo/contracts"
	"gococo/types"
)

// ChainTarget is a contract that may live at a different address on every chain
type ChainTarget struct {
	Name      string
	Addresses map[int]common.Address
}

// Everywhere is a target deployed at one address on the given chains
func Everywhere(name string, addr common.Address, chainIDs ...int) ChainTarget {
	t := ChainTarget{Name: name, Addresses: make(map[int]common.Address, len(chainIDs))}
	for _, id := range chainIDs {
		t.Addresses[id] = addr
	}
	return t
}

func (t ChainTarget) On(chainID int) (common.Address, error) {
	addr, ok := t.Addresses[chainID]
	if !ok || addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s has no address on chain %d", types.ErrConfiguration, t.Name, chainID)
	}
	return addr, nil
}

// Call is one contract call inside a batch. Args may hold ChainTarget
// values, resolved for the chain being encoded, and numeric strings.
type Call struct {
	Target ChainTarget
	ABI    abi.ABI
	Method string
	Args   []any
	Value  *big.Int
}

func parseNumeric(s string) (*big.Int, bool) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return new(big.Int).SetString(s[2:], 16)
	}
	return new(big.Int).SetString(s, 10)
}

func resolveArg(chainID int, arg any) (any, error) {
	switch v := arg.(type) {
	case ChainTarget:
		return v.On(chainID)
	case []ChainTarget:
		out := make([]common.Address, len(v))
		for i, t := range v {
			addr, err := t.On(chainID)
			if err != nil {
				return nil, err
			}
			out[i] = addr
		}
		return out, nil
	case string:
		if n, ok := parseNumeric(v); ok {
			return n, nil
		}
		return v, nil
	case []string:
		out := make([]*big.Int, len(v))
		for i, s := range v {
			n, ok := parseNumeric(s)
			if !ok {
				return v, nil
			}
			out[i] = n
		}
		return out, nil
	}
	return arg, nil
}

func (c Call) resolve(chainID int) (common.Address, []byte, error) {
	to, err := c.Target.On(chainID)
	if err != nil {
		return common.Address{}, nil, err
	}
	args := make([]any, len(c.Args))
	for i, a := range c.Args {
		if args[i], err = resolveArg(chainID, a); err != nil {
			return common.Address{}, nil, fmt.Errorf("%s.%s arg %d: %w", c.Target.Name, c.Method, i, err)
		}
	}
	data, err := c.ABI.Pack(c.Method, args...)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("%w: pack %s.%s: %s", types.ErrConfiguration, c.Target.Name, c.Method, err.Error())
	}
	return to, data, nil
}

// EncodeCalls resolves every call for chainID and packs them into one
// executeBatch payload, preserving order
func EncodeCalls(chainID int, calls []Call) ([]byte, error) {
	if len(calls) == 0 {
		return nil, fmt.Errorf("%w: empty call batch", types.ErrConfiguration)
	}
	dest := make([]common.Address, len(calls))
	value := make([]*big.Int, len(calls))
	data := make([][]byte, len(calls))
	for i, c := range calls {
		to, payload, err := c.resolve(chainID)
		if err != nil {
			return nil, err
		}
		dest[i] = to
		data[i] = payload
		value[i] = new(big.Int)
		if c.Value != nil {
			value[i].Set(c.Value)
		}
	}
	return contracts.PackExecuteBatch(dest, value, data)
}
