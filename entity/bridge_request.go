package entity

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var ErrMalformedRequest = errors.New("malformed bridge request")

// BridgeRequest is the canonical form of an observed BridgeRequested event.
// It is immutable once decoded; the on-chain ledger remains the source of
// truth for its settlement state.
type BridgeRequest struct {
	BridgeID      common.Hash
	AssetID       common.Hash
	SourceChainID uint64
	DestChainID   uint64
	Sender        common.Address
	Recipient     common.Address
	Amount        *big.Int
	Fee           *big.Int
	BlockNumber   uint64
	TxHash        common.Hash
}

func (r *BridgeRequest) Validate() error {
	if r.Amount == nil || r.Amount.Sign() <= 0 {
		return fmt.Errorf("requested amount must be positive: %w", ErrMalformedRequest)
	}
	if r.SourceChainID == r.DestChainID {
		return fmt.Errorf("source chain %d equals destination chain: %w", r.SourceChainID, ErrMalformedRequest)
	}
	if r.BridgeID == (common.Hash{}) {
		return fmt.Errorf("empty bridge id: %w", ErrMalformedRequest)
	}
	return nil
}
