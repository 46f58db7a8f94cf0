package relayer

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/r-cryptocurrency/moonbridge/entity"
	"github.com/r-cryptocurrency/moonbridge/logging"
	"github.com/r-cryptocurrency/moonbridge/store"
	"github.com/r-cryptocurrency/moonbridge/utils"
)

// Outcome labels the result of one settlement attempt. The values double as
// the metric label for settlement counters.
type Outcome string

const (
	OutcomeCompleted             Outcome = "completed"
	OutcomeAlreadyProcessed      Outcome = "already_processed"
	OutcomeDuplicate             Outcome = "duplicate"
	OutcomeUnknownChain          Outcome = "unknown_chain"
	OutcomeInsufficientLiquidity Outcome = "insufficient_liquidity"
	OutcomeRefundOwed            Outcome = "refund_owed"
	OutcomeError                 Outcome = "error"
)

// Orchestrator drives the settlement state machine for discovered bridge
// requests: claim, processed-state check, liquidity read, fulfill, partial
// refund. Each request settles in its own goroutine; per-chain transaction
// ordering is enforced further down by the chain's Sender.
type Orchestrator struct {
	logger          logging.Logger
	store           store.RecordStore
	planner         *Planner
	ledgers         map[uint64]Ledger
	recheckInterval time.Duration

	// settleCtx outlives the intake context so attempts that already started
	// a transaction are not abandoned mid-flight on shutdown.
	settleCtx    context.Context
	stopSettling context.CancelFunc
	wg           sync.WaitGroup
}

func NewOrchestrator(
	logger logging.Logger,
	recordStore store.RecordStore,
	planner *Planner,
	ledgers map[uint64]Ledger,
	recheckInterval time.Duration,
) *Orchestrator {
	settleCtx, stopSettling := context.WithCancel(context.Background())
	return &Orchestrator{
		logger:          logger,
		store:           recordStore,
		planner:         planner,
		ledgers:         ledgers,
		recheckInterval: recheckInterval,
		settleCtx:       settleCtx,
		stopSettling:    stopSettling,
	}
}

// Enqueue launches a settlement attempt for the request in its own goroutine.
// ctx bounds scheduling only: once cancelled no new attempts or liquidity
// rechecks start, but an attempt already past the claim keeps running until
// it reaches a terminal state. Requests deferred for insufficient liquidity
// are retried every recheckInterval while ctx lives (disabled when zero).
func (o *Orchestrator) Enqueue(ctx context.Context, req *entity.BridgeRequest) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		for {
			outcome := o.Settle(o.settleCtx, req)
			if outcome != OutcomeInsufficientLiquidity || o.recheckInterval <= 0 {
				return
			}
			if utils.ContextSleep(ctx, o.recheckInterval) == nil {
				return
			}
		}
	}()
}

// Wait blocks until all enqueued attempts have reached a terminal state.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Abort cancels in-flight attempts. Only meant for forced shutdown when
// draining via Wait takes too long.
func (o *Orchestrator) Abort() {
	o.stopSettling()
}

func (o *Orchestrator) Settle(ctx context.Context, req *entity.BridgeRequest) Outcome {
	outcome := o.settle(ctx, req)
	SettlementAttempts.WithLabelValues(string(outcome)).Inc()
	return outcome
}

func (o *Orchestrator) settle(ctx context.Context, req *entity.BridgeRequest) Outcome {
	log := o.logger.WithFields(logrus.Fields{
		"bridge_id":    req.BridgeID,
		"source_chain": req.SourceChainID,
		"dest_chain":   req.DestChainID,
		"amount":       req.Amount,
	})

	dest, ok := o.ledgers[req.DestChainID]
	if !ok {
		log.Error("no ledger configured for destination chain, dropping request")
		return OutcomeUnknownChain
	}
	source, ok := o.ledgers[req.SourceChainID]
	if !ok {
		log.Error("no ledger configured for source chain, dropping request")
		return OutcomeUnknownChain
	}

	claimed, prior, err := o.store.TryClaim(ctx, req.BridgeID)
	if err != nil {
		log.WithError(err).Error("can't claim bridge request")
		return OutcomeError
	}
	if !claimed {
		log.Debug("bridge request already claimed, skipping")
		return OutcomeDuplicate
	}

	// The fulfill already happened for refund_owed records, only the
	// compensating refund is outstanding. The prior state comes from the
	// claim itself, so a duplicate attempt can never observe a stale status
	// and bury the owed refund behind the processed-state short circuit.
	if prior != nil && prior.Status == entity.StatusRefundOwed {
		return o.retryOwedRefund(ctx, log, source, req, prior)
	}

	processed, err := dest.IsProcessed(ctx, req.BridgeID)
	if err != nil {
		return o.fail(ctx, log, req, "can't read processed state", err)
	}
	if processed {
		log.Info("bridge request already processed on-chain")
		o.record(ctx, log, &entity.ProcessingRecord{BridgeID: req.BridgeID, Status: entity.StatusCompleted})
		return OutcomeAlreadyProcessed
	}

	liquidity, err := dest.AvailableLiquidity(ctx, req.AssetID)
	if err != nil {
		return o.fail(ctx, log, req, "can't read available liquidity", err)
	}

	plan := o.planner.Plan(req, liquidity)
	if plan.FulfillAmount.Sign() == 0 {
		log.WithField("liquidity", liquidity).Info("no liquidity for bridge request, deferring")
		o.record(ctx, log, &entity.ProcessingRecord{BridgeID: req.BridgeID, Status: entity.StatusInsufficientLiquidity})
		return OutcomeInsufficientLiquidity
	}

	log = log.WithFields(logrus.Fields{
		"liquidity":      liquidity,
		"fulfill_amount": plan.FulfillAmount,
		"refund_amount":  plan.RefundAmount,
	})

	err = dest.Fulfill(ctx, req)
	if errors.Is(err, ErrAlreadyProcessed) {
		// Whoever fulfilled first did not necessarily submit the refund, so a
		// partial plan still owes one.
		log.Info("fulfillment already processed on-chain, checking owed refund")
	} else if err != nil {
		return o.fail(ctx, log, req, "can't fulfill bridge request", err)
	}

	if plan.Partial() {
		err = source.RefundPartialFill(ctx, req.BridgeID, plan.FulfillAmount)
		if err != nil && !errors.Is(err, ErrAlreadyProcessed) {
			log.WithError(err).Error("fulfilled but partial refund failed, refund is owed on source chain")
			o.record(ctx, log, &entity.ProcessingRecord{
				BridgeID:        req.BridgeID,
				Status:          entity.StatusRefundOwed,
				LastError:       err.Error(),
				FulfilledAmount: plan.FulfillAmount.String(),
			})
			return OutcomeRefundOwed
		}
	}

	log.Info("bridge request settled")
	o.record(ctx, log, &entity.ProcessingRecord{BridgeID: req.BridgeID, Status: entity.StatusCompleted})
	return OutcomeCompleted
}

func (o *Orchestrator) retryOwedRefund(ctx context.Context, log logrus.FieldLogger, source Ledger, req *entity.BridgeRequest, prior *entity.ProcessingRecord) Outcome {
	fulfilled, ok := new(big.Int).SetString(prior.FulfilledAmount, 10)
	if !ok {
		log.WithField("fulfilled_amount", prior.FulfilledAmount).Error("can't parse recorded fulfilled amount, refund still owed")
		o.record(ctx, log, prior)
		return OutcomeRefundOwed
	}

	log = log.WithField("fulfilled_amount", fulfilled)
	log.Info("retrying owed partial refund")
	err := source.RefundPartialFill(ctx, req.BridgeID, fulfilled)
	if err != nil && !errors.Is(err, ErrAlreadyProcessed) {
		log.WithError(err).Error("owed partial refund failed again")
		o.record(ctx, log, &entity.ProcessingRecord{
			BridgeID:        req.BridgeID,
			Status:          entity.StatusRefundOwed,
			LastError:       err.Error(),
			FulfilledAmount: prior.FulfilledAmount,
		})
		return OutcomeRefundOwed
	}

	log.Info("owed partial refund settled")
	o.record(ctx, log, &entity.ProcessingRecord{BridgeID: req.BridgeID, Status: entity.StatusCompleted})
	return OutcomeCompleted
}

func (o *Orchestrator) fail(ctx context.Context, log logrus.FieldLogger, req *entity.BridgeRequest, msg string, err error) Outcome {
	log.WithError(err).Error(msg)
	o.record(ctx, log, &entity.ProcessingRecord{
		BridgeID:  req.BridgeID,
		Status:    entity.StatusError,
		LastError: err.Error(),
	})
	return OutcomeError
}

func (o *Orchestrator) record(ctx context.Context, log logrus.FieldLogger, record *entity.ProcessingRecord) {
	if err := o.store.Update(ctx, record); err != nil {
		log.WithError(err).Error("can't update processing record")
	}
}
