package monitor

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/r-cryptocurrency/moonbridge/entity"
)

// decodeBridgeRequest normalizes a decoded BridgeRequested log into the
// canonical request record. Indexed fields are read straight from the
// topics, the rest from the unpacked data map.
func decodeBridgeRequest(log *entity.Log, data map[string]interface{}) (*entity.BridgeRequest, error) {
	if len(log.Topics) != 4 {
		return nil, fmt.Errorf("expected 4 topics, got %d: %w", len(log.Topics), entity.ErrMalformedRequest)
	}
	recipient, ok := data["recipient"].(common.Address)
	if !ok {
		return nil, fmt.Errorf("missing recipient: %w", entity.ErrMalformedRequest)
	}
	amount, ok := data["amount"].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("missing amount: %w", entity.ErrMalformedRequest)
	}
	toChainID, ok := data["toChainId"].(*big.Int)
	if !ok || !toChainID.IsUint64() {
		return nil, fmt.Errorf("missing or oversized toChainId: %w", entity.ErrMalformedRequest)
	}
	fee, _ := data["fee"].(*big.Int)

	req := &entity.BridgeRequest{
		BridgeID:      log.Topics[1],
		AssetID:       log.Topics[2],
		SourceChainID: log.ChainID,
		DestChainID:   toChainID.Uint64(),
		Sender:        common.BytesToAddress(log.Topics[3].Bytes()),
		Recipient:     recipient,
		Amount:        amount,
		Fee:           fee,
		BlockNumber:   log.BlockNumber,
		TxHash:        log.TransactionHash,
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}
