package contract

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/r-cryptocurrency/moonbridge/contract/bridgeabi"
	"github.com/r-cryptocurrency/moonbridge/ethclient"
)

// BridgeContract exposes the five ledger operations the relayer needs against
// one chain's bridge contract. Reads go through eth_call; writes are packed
// here and submitted by the caller's transaction sender.
type BridgeContract struct {
	*Contract
}

func NewBridgeContract(client ethclient.Client, addr common.Address) *BridgeContract {
	return &BridgeContract{NewContract(client, addr, bridgeabi.BridgeABI)}
}

// AvailableLiquidity reads the pool balance usable for fulfillments of the
// given asset. A disabled or unknown asset legitimately reads as zero, only
// transport-level failures surface as errors.
func (c *BridgeContract) AvailableLiquidity(ctx context.Context, assetID common.Hash) (*big.Int, error) {
	res, err := c.Call(ctx, "getAvailableLiquidity", assetID)
	if err != nil {
		return nil, fmt.Errorf("cannot read available liquidity: %w", err)
	}
	values, err := c.Unpack("getAvailableLiquidity", res)
	if err != nil {
		return nil, err
	}
	liquidity, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected getAvailableLiquidity result type %T", values[0])
	}
	return liquidity, nil
}

// IsProcessed is the authoritative idempotency oracle. Errors mean
// unknown-state and must never be coerced to false by callers.
func (c *BridgeContract) IsProcessed(ctx context.Context, bridgeID common.Hash) (bool, error) {
	res, err := c.Call(ctx, "processedBridges", bridgeID)
	if err != nil {
		return false, fmt.Errorf("cannot read processed state: %w", err)
	}
	values, err := c.Unpack("processedBridges", res)
	if err != nil {
		return false, err
	}
	processed, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected processedBridges result type %T", values[0])
	}
	return processed, nil
}

func (c *BridgeContract) PackFulfillBridge(bridgeID, assetID common.Hash, recipient common.Address, amount *big.Int, fromChainID uint64) ([]byte, error) {
	return c.Pack("fulfillBridge", bridgeID, assetID, recipient, amount, new(big.Int).SetUint64(fromChainID))
}

func (c *BridgeContract) PackProcessPartialFillRefund(bridgeID common.Hash, fulfilledAmount *big.Int) ([]byte, error) {
	return c.Pack("processPartialFillRefund", bridgeID, fulfilledAmount)
}
