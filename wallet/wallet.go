package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	log "github.com/sirupsen/logrus"

	"gococo/types"
)

// Signer is the signing capability of one account
type Signer interface {
	Address() common.Address
	SignTx(ctx context.Context, chainID *big.Int, tx *ethtypes.Transaction) (*ethtypes.Transaction, error)
	// SignMessage signs the EIP-191 personal message hash of msg
	SignMessage(ctx context.Context, msg []byte) ([]byte, error)
}

// UserOpSigner can sign a whole batch of user operations at once
type UserOpSigner interface {
	Signer
	SignUserOps(ctx context.Context, ops []*types.UserOperation) ([]*types.UserOperation, error)
}

// ApprovalFunc is asked before every signature; false declines it
type ApprovalFunc func(ctx context.Context, what string) bool

// KeySigner signs with a private key held by the service
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	approve ApprovalFunc
}

var _ UserOpSigner = (*KeySigner)(nil)

func NewKeySigner(hexKey string, approve ApprovalFunc) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: bad private key: %s", types.ErrConfiguration, err.Error())
	}
	return &KeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		approve: approve,
	}, nil
}

func (s *KeySigner) Address() common.Address {
	return s.address
}

func (s *KeySigner) approved(ctx context.Context, what string) error {
	if s.approve != nil && !s.approve(ctx, what) {
		log.Printf("Signer %s declined %s", s.address.Hex(), what)
		return fmt.Errorf("%w: %s", types.ErrUserDeclined, what)
	}
	return nil
}

func (s *KeySigner) SignTx(ctx context.Context, chainID *big.Int, tx *ethtypes.Transaction) (*ethtypes.Transaction, error) {
	to := "contract creation"
	if tx.To() != nil {
		to = tx.To().Hex()
	}
	if err := s.approved(ctx, fmt.Sprintf("transaction to %s on chain %s", to, chainID)); err != nil {
		return nil, err
	}
	opts, err := bind.NewKeyedTransactorWithChainID(s.key, chainID)
	if err != nil {
		return nil, err
	}
	return opts.Signer(s.address, tx)
}

func (s *KeySigner) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	if err := s.approved(ctx, "message "+hexutil.Encode(msg)); err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(accounts.TextHash(msg), s.key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

// SignUserOps signs every operation hash as a personal message in one approval
func (s *KeySigner) SignUserOps(ctx context.Context, ops []*types.UserOperation) ([]*types.UserOperation, error) {
	if err := s.approved(ctx, fmt.Sprintf("%d user operations", len(ops))); err != nil {
		return nil, err
	}
	signed := make([]*types.UserOperation, len(ops))
	for i, op := range ops {
		hash := op.Hash()
		sig, err := crypto.Sign(accounts.TextHash(hash.Bytes()), s.key)
		if err != nil {
			return nil, fmt.Errorf("sign user operation %d: %w", i, err)
		}
		sig[64] += 27
		signed[i] = op.Copy()
		signed[i].Signature = sig
	}
	return signed, nil
}

// RecoverMessageSigner returns the account that produced sig over the personal message msg
func RecoverMessageSigner(msg []byte, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("signature has %d bytes", len(sig))
	}
	sig = common.CopyBytes(sig)
	if sig[64] != 27 && sig[64] != 28 && sig[64] != 0 && sig[64] != 1 {
		return common.Address{}, fmt.Errorf("wrong signature recovery id %d", sig[64])
	}
	if sig[64] == 27 || sig[64] == 28 {
		sig[64] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash(msg), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("cannot decode public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
