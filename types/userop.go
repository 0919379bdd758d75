package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func safeBig(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// Hash is the entry point v0.7 user operation hash, bound to the entry point
// and chain. The signature is not part of it.
func (op *UserOperation) Hash() common.Hash {
	if op == nil {
		return common.Hash{}
	}

	packed := make([]byte, 0, 8*32)
	packed = append(packed, common.LeftPadBytes(op.Sender.Bytes(), 32)...)
	packed = append(packed, common.BigToHash(safeBig(op.Nonce)).Bytes()...)
	packed = append(packed, crypto.Keccak256(op.InitCode)...)
	packed = append(packed, crypto.Keccak256(op.CallData)...)
	packed = append(packed, op.AccountGasLimits.Bytes()...)
	packed = append(packed, common.BigToHash(safeBig(op.PreVerificationGas)).Bytes()...)
	packed = append(packed, op.GasFees.Bytes()...)
	packed = append(packed, crypto.Keccak256(op.PaymasterAndData)...)
	inner := crypto.Keccak256(packed)

	outer := make([]byte, 0, 3*32)
	outer = append(outer, inner...)
	outer = append(outer, common.LeftPadBytes(op.EntryPoint.Bytes(), 32)...)
	outer = append(outer, common.BigToHash(big.NewInt(int64(op.ChainID))).Bytes()...)
	return crypto.Keccak256Hash(outer)
}

// Copy returns a deep copy so signing never mutates the caller's operation
func (op *UserOperation) Copy() *UserOperation {
	cp := *op
	if op.Nonce != nil {
		cp.Nonce = new(big.Int).Set(op.Nonce)
	}
	if op.PreVerificationGas != nil {
		cp.PreVerificationGas = new(big.Int).Set(op.PreVerificationGas)
	}
	cp.InitCode = common.CopyBytes(op.InitCode)
	cp.CallData = common.CopyBytes(op.CallData)
	cp.PaymasterAndData = common.CopyBytes(op.PaymasterAndData)
	cp.Signature = common.CopyBytes(op.Signature)
	return &cp
}
