package entity

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type ProcessingStatus string

const (
	// StatusProcessing marks a request owned by an in-flight settlement attempt.
	StatusProcessing ProcessingStatus = "processing"
	// StatusCompleted marks a request reported processed on the destination,
	// including any refund owed for a partial fill.
	StatusCompleted ProcessingStatus = "completed"
	// StatusInsufficientLiquidity marks a request deferred because the
	// destination pool could not cover any part of it. Not an error, the
	// request stays pending on-chain and is picked up by a later scan.
	StatusInsufficientLiquidity ProcessingStatus = "insufficient_liquidity"
	// StatusRefundOwed marks a partially fulfilled request whose source-chain
	// refund has not been accepted yet. The fulfill already happened, so this
	// state must stay visible until a later attempt completes the refund.
	StatusRefundOwed ProcessingStatus = "refund_owed"
	// StatusError marks a failed attempt. Retried on rediscovery.
	StatusError ProcessingStatus = "error"
)

// ProcessingRecord tracks the local view of one settlement attempt. It is
// advisory only: every state-changing decision re-checks on-chain state first.
type ProcessingRecord struct {
	BridgeID  common.Hash      `db:"bridge_id" json:"bridge_id"`
	Status    ProcessingStatus `db:"status" json:"status"`
	LastError string           `db:"last_error" json:"last_error,omitempty"`
	// FulfilledAmount is recorded for refund_owed records, in base units, so a
	// later attempt can retry the owed refund without re-deriving the plan.
	FulfilledAmount string    `db:"fulfilled_amount" json:"fulfilled_amount,omitempty"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}
