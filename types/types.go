package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Address Book is stored in Redis, one key per record plus a set per owner
type AddressBookRecord struct {
	ID        string
	Owner     string // account the entry belongs to
	Name      string
	ChainID   int
	Address   string
	TsCreated int64
}

// Bridge operation is the journal record of one voucher bridge invocation
// (source leg and destination leg) having a phase status
type BridgeOperation struct {
	ID           string
	Status       string // phase name, see bridge.Phase
	SourceChain  int
	DestChain    int
	TsCreated    int64
	TsUpdated    int64
	Token        string // token address on the source chain
	Amount       string // raw token units
	Account      string // smart account that signs both legs
	Recipient    string
	Reference    string // voucher reference, hex bytes32
	SourceOpHash string // entry point acknowledgement for the source leg
	SourceTxHash string
	DestOpHash   string
	DestTxHash   string
	Message      string // messages that help to track processing/errors
}

// UserOperation is the packed (entry point v0.7) operation record submitted on
// behalf of the smart account. ChainID and EntryPoint bind the operation hash.
type UserOperation struct {
	ChainID            int
	EntryPoint         common.Address
	Sender             common.Address
	Nonce              *big.Int
	InitCode           []byte // factory address + factory data, empty when deployed
	CallData           []byte
	AccountGasLimits   common.Hash // verificationGasLimit(16 bytes) | callGasLimit(16 bytes)
	PreVerificationGas *big.Int
	GasFees            common.Hash // maxPriorityFeePerGas(16 bytes) | maxFeePerGas(16 bytes)
	PaymasterAndData   []byte
	Signature          []byte
}

// PackUint128Pair packs two values into one word as hi(16 bytes) | lo(16 bytes)
func PackUint128Pair(hi, lo *big.Int) common.Hash {
	var word common.Hash
	if hi != nil {
		b := hi.Bytes()
		if len(b) > 16 {
			b = b[len(b)-16:]
		}
		copy(word[16-len(b):16], b)
	}
	if lo != nil {
		b := lo.Bytes()
		if len(b) > 16 {
			b = b[len(b)-16:]
		}
		copy(word[32-len(b):], b)
	}
	return word
}

// UnpackUint128Pair is the inverse of PackUint128Pair
func UnpackUint128Pair(word common.Hash) (hi, lo *big.Int) {
	return new(big.Int).SetBytes(word[:16]), new(big.Int).SetBytes(word[16:])
}
