package codec

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"gococo/types"
)

// Strategy is a maker's liquidity declaration. Its identity is the hash of
// its encoding, so the same fields always locate the same deposit.
type Strategy struct {
	Maker  common.Address
	Token  common.Address
	Salt   [32]byte
	FeeBps uint64 // encoded as given, the registry may enforce another rate
}

// field names must match the abi component names after camel-casing
type strategyTuple struct {
	Maker  common.Address
	Token  common.Address
	Salt   [32]byte
	FeeBps *big.Int
}

var strategyArgs abi.Arguments

func init() {
	tupleType, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "maker", Type: "address"},
		{Name: "token", Type: "address"},
		{Name: "salt", Type: "bytes32"},
		{Name: "feeBps", Type: "uint256"},
	})
	if err != nil {
		panic(err)
	}
	strategyArgs = abi.Arguments{{Name: "strategy", Type: tupleType}}
}

// StrategyArguments is the abi description of the encoded tuple
func StrategyArguments() abi.Arguments {
	return strategyArgs
}

func (s Strategy) validate() error {
	if s.Maker == (common.Address{}) {
		return fmt.Errorf("%w: strategy maker is the zero address", types.ErrConfiguration)
	}
	if s.Token == (common.Address{}) {
		return fmt.Errorf("%w: strategy token is the zero address", types.ErrConfiguration)
	}
	return nil
}

// Tuple returns the value the abi packer expects for this strategy
func (s Strategy) Tuple() any {
	return strategyTuple{
		Maker:  s.Maker,
		Token:  s.Token,
		Salt:   s.Salt,
		FeeBps: new(big.Int).SetUint64(s.FeeBps),
	}
}

// Encode produces abi.encode((address,address,bytes32,uint256))
func (s Strategy) Encode() ([]byte, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	encoded, err := strategyArgs.Pack(s.Tuple())
	if err != nil {
		return nil, fmt.Errorf("%w: encode strategy: %s", types.ErrConfiguration, err.Error())
	}
	return encoded, nil
}

// Hash is keccak256 of Encode
func (s Strategy) Hash() (common.Hash, error) {
	encoded, err := s.Encode()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(encoded), nil
}

// NewSalt derives a fresh salt from a random UUID
func NewSalt() [32]byte {
	id := uuid.New()
	var salt [32]byte
	copy(salt[16:], id[:])
	return salt
}

func SaltFromHex(s string) ([32]byte, error) {
	var salt [32]byte
	b := common.FromHex(s)
	if len(b) == 0 || len(b) > 32 {
		return salt, fmt.Errorf("%w: salt %q is not a 32-byte value", types.ErrConfiguration, s)
	}
	copy(salt[32-len(b):], b)
	return salt, nil
}
