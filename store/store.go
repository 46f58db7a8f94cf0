// Package store holds the relayer's local view of settlement attempts. The
// store is advisory: it prevents one relayer from launching two concurrent
// attempts for the same bridge id, but the on-chain processed-state check
// remains the authoritative guard before any write. The interface admits a
// shared durable backend so multiple relayer instances can coordinate claims.
package store

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/r-cryptocurrency/moonbridge/entity"
)

// RecordStore tracks one ProcessingRecord per observed bridge id.
//
// TryClaim is an atomic claim-if-absent: it returns claimed=true to exactly
// one caller while no record exists or while the existing record is in a
// retryable state (error, insufficient_liquidity, refund_owed; a later
// rediscovery is expected to pick those up again). It returns false while
// an attempt is in flight or once the request completed. On a successful
// claim, prior is the record state the claim replaced (nil for a first
// claim), captured in the same atomic step so a caller resuming a
// refund_owed attempt can never act on a stale pre-claim read.
type RecordStore interface {
	TryClaim(ctx context.Context, bridgeID common.Hash) (claimed bool, prior *entity.ProcessingRecord, err error)
	Update(ctx context.Context, record *entity.ProcessingRecord) error
	Get(ctx context.Context, bridgeID common.Hash) (*entity.ProcessingRecord, error)
	List(ctx context.Context) ([]*entity.ProcessingRecord, error)
}

func retryable(status entity.ProcessingStatus) bool {
	switch status {
	case entity.StatusError, entity.StatusInsufficientLiquidity, entity.StatusRefundOwed:
		return true
	case entity.StatusProcessing, entity.StatusCompleted:
		return false
	}
	return false
}
