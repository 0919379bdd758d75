package contracts

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"gococo/codec"
)

type StrategyRegistered struct {
	Maker        common.Address
	Token        common.Address
	StrategyHash common.Hash
	BlockNumber  uint64
	TxHash       common.Hash
}

type LoanExecuted struct {
	Borrower     common.Address
	Maker        common.Address
	Token        common.Address
	Amount       *big.Int
	Fee          *big.Int
	StrategyHash common.Hash
	BlockNumber  uint64
	TxHash       common.Hash
	LogIndex     uint
}

func checkShape(l ethtypes.Log, topic common.Hash, topics, dataWords int) error {
	if len(l.Topics) == 0 || l.Topics[0] != topic {
		return fmt.Errorf("log %s:%d is not the expected event", l.TxHash.Hex(), l.Index)
	}
	if len(l.Topics) != topics {
		return fmt.Errorf("log %s:%d has %d topics, want %d", l.TxHash.Hex(), l.Index, len(l.Topics), topics)
	}
	if len(l.Data) != dataWords*32 {
		return fmt.Errorf("log %s:%d has %d data bytes, want %d", l.TxHash.Hex(), l.Index, len(l.Data), dataWords*32)
	}
	return nil
}

func DecodeStrategyRegistered(l ethtypes.Log) (*StrategyRegistered, error) {
	if err := checkShape(l, StrategyRegisteredTopic, 3, 1); err != nil {
		return nil, err
	}
	maker, err := codec.AddressFromWord(l.Topics[1])
	if err != nil {
		return nil, err
	}
	token, err := codec.AddressFromWord(l.Topics[2])
	if err != nil {
		return nil, err
	}

	var ev struct {
		StrategyHash [32]byte
	}
	if err := RegistryABI.UnpackIntoInterface(&ev, "StrategyRegistered", l.Data); err != nil {
		return nil, fmt.Errorf("decode StrategyRegistered: %w", err)
	}
	return &StrategyRegistered{
		Maker:        maker,
		Token:        token,
		StrategyHash: common.Hash(ev.StrategyHash),
		BlockNumber:  l.BlockNumber,
		TxHash:       l.TxHash,
	}, nil
}

func DecodeLoanExecuted(l ethtypes.Log) (*LoanExecuted, error) {
	if err := checkShape(l, LoanExecutedTopic, 3, 4); err != nil {
		return nil, err
	}
	borrower, err := codec.AddressFromWord(l.Topics[1])
	if err != nil {
		return nil, err
	}
	maker, err := codec.AddressFromWord(l.Topics[2])
	if err != nil {
		return nil, err
	}

	var ev struct {
		Token        common.Address
		Amount       *big.Int
		Fee          *big.Int
		StrategyHash [32]byte
	}
	if err := RegistryABI.UnpackIntoInterface(&ev, "LoanExecuted", l.Data); err != nil {
		return nil, fmt.Errorf("decode LoanExecuted: %w", err)
	}
	return &LoanExecuted{
		Borrower:     borrower,
		Maker:        maker,
		Token:        ev.Token,
		Amount:       ev.Amount,
		Fee:          ev.Fee,
		StrategyHash: common.Hash(ev.StrategyHash),
		BlockNumber:  l.BlockNumber,
		TxHash:       l.TxHash,
		LogIndex:     l.Index,
	}, nil
}
