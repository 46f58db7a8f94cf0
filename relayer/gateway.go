package relayer

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/r-cryptocurrency/moonbridge/contract"
	"github.com/r-cryptocurrency/moonbridge/entity"
	"github.com/r-cryptocurrency/moonbridge/ethclient"
)

// ErrAlreadyProcessed reports that the bridge contract has already marked the
// request as processed, by this relayer in a prior run or by a competing one.
// It is a benign outcome, not a failure.
var ErrAlreadyProcessed = errors.New("bridge request already processed on-chain")

// Ledger is one chain's bridge contract as seen by the settlement flow:
// liquidity and processed-state reads plus the two settlement writes.
type Ledger interface {
	ChainID() uint64
	AvailableLiquidity(ctx context.Context, assetID common.Hash) (*big.Int, error)
	IsProcessed(ctx context.Context, bridgeID common.Hash) (bool, error)
	Fulfill(ctx context.Context, req *entity.BridgeRequest) error
	RefundPartialFill(ctx context.Context, bridgeID common.Hash, fulfilledAmount *big.Int) error
}

type contractLedger struct {
	chainID  uint64
	contract *contract.BridgeContract
	sender   *ethclient.Sender
}

func NewLedger(chainID uint64, bridge *contract.BridgeContract, sender *ethclient.Sender) Ledger {
	return &contractLedger{
		chainID:  chainID,
		contract: bridge,
		sender:   sender,
	}
}

func (l *contractLedger) ChainID() uint64 {
	return l.chainID
}

func (l *contractLedger) AvailableLiquidity(ctx context.Context, assetID common.Hash) (*big.Int, error) {
	return l.contract.AvailableLiquidity(ctx, assetID)
}

func (l *contractLedger) IsProcessed(ctx context.Context, bridgeID common.Hash) (bool, error) {
	return l.contract.IsProcessed(ctx, bridgeID)
}

// Fulfill submits fulfillBridge with the full requested amount. The contract
// fills what liquidity allows and records the fulfilled portion itself, so
// the calldata amount is the request's, not the plan's.
func (l *contractLedger) Fulfill(ctx context.Context, req *entity.BridgeRequest) error {
	data, err := l.contract.PackFulfillBridge(req.BridgeID, req.AssetID, req.Recipient, req.Amount, req.SourceChainID)
	if err != nil {
		return fmt.Errorf("can't pack fulfillBridge calldata: %w", err)
	}
	return l.submit(ctx, req.BridgeID, data)
}

func (l *contractLedger) RefundPartialFill(ctx context.Context, bridgeID common.Hash, fulfilledAmount *big.Int) error {
	data, err := l.contract.PackProcessPartialFillRefund(bridgeID, fulfilledAmount)
	if err != nil {
		return fmt.Errorf("can't pack processPartialFillRefund calldata: %w", err)
	}
	return l.submit(ctx, bridgeID, data)
}

// submit sends the transaction and classifies failures: when a submission is
// rejected or the receipt reports a revert, the processed flag is re-read to
// distinguish a lost race (ErrAlreadyProcessed) from a genuine failure.
func (l *contractLedger) submit(ctx context.Context, bridgeID common.Hash, data []byte) error {
	receipt, err := l.sender.Send(ctx, l.contract.Address(), nil, data)
	if err != nil {
		return l.classify(ctx, bridgeID, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return l.classify(ctx, bridgeID, fmt.Errorf("transaction %s reverted", receipt.TxHash))
	}
	return nil
}

func (l *contractLedger) classify(ctx context.Context, bridgeID common.Hash, cause error) error {
	processed, err := l.contract.IsProcessed(ctx, bridgeID)
	if err != nil {
		return fmt.Errorf("%w (processed-state recheck also failed: %v)", cause, err)
	}
	if processed {
		return ErrAlreadyProcessed
	}
	return cause
}
