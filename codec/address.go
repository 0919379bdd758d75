package codec

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"gococo/types"
)

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// PadAddress left-pads an address to a 32-byte word, as used in log topics
func PadAddress(addr common.Address) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(addr.Bytes(), 32))
}

// AddressFromWord recovers the address held in the low 20 bytes of a word
func AddressFromWord(word common.Hash) (common.Address, error) {
	for _, b := range word[:12] {
		if b != 0 {
			return common.Address{}, fmt.Errorf("%w: word %s does not hold an address", types.ErrConfiguration, word.Hex())
		}
	}
	return common.BytesToAddress(word[12:]), nil
}

// WordFromBig encodes a uint256
func WordFromBig(v *big.Int) (common.Hash, error) {
	if v == nil || v.Sign() < 0 || v.Cmp(maxUint256) > 0 {
		return common.Hash{}, fmt.Errorf("%w: %v does not fit uint256", types.ErrConfiguration, v)
	}
	return common.BigToHash(v), nil
}

func BigFromWord(word common.Hash) *big.Int {
	return new(big.Int).SetBytes(word[:])
}
