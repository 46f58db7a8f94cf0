package relayer_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/r-cryptocurrency/moonbridge/entity"
	"github.com/r-cryptocurrency/moonbridge/logging"
	"github.com/r-cryptocurrency/moonbridge/relayer"
	"github.com/r-cryptocurrency/moonbridge/store"
)

const (
	sourceChainID = 42170
	destChainID   = 1
)

// callLog records ledger writes across chains so tests can assert ordering.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (c *callLog) add(call string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
}

func (c *callLog) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

type fakeLedger struct {
	chainID    uint64
	liquidity  *big.Int
	processed  bool
	fulfillErr error
	refundErr  error
	log        *callLog

	mu       sync.Mutex
	fulfills []*entity.BridgeRequest
	refunds  []*big.Int
}

func (f *fakeLedger) ChainID() uint64 {
	return f.chainID
}

func (f *fakeLedger) AvailableLiquidity(context.Context, common.Hash) (*big.Int, error) {
	return new(big.Int).Set(f.liquidity), nil
}

func (f *fakeLedger) IsProcessed(context.Context, common.Hash) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processed, nil
}

func (f *fakeLedger) Fulfill(_ context.Context, req *entity.BridgeRequest) error {
	f.mu.Lock()
	f.fulfills = append(f.fulfills, req)
	if f.fulfillErr == nil {
		f.processed = true
	}
	f.mu.Unlock()
	f.log.add(fmt.Sprintf("fulfill@%d", f.chainID))
	return f.fulfillErr
}

func (f *fakeLedger) RefundPartialFill(_ context.Context, _ common.Hash, fulfilledAmount *big.Int) error {
	f.mu.Lock()
	f.refunds = append(f.refunds, fulfilledAmount)
	f.mu.Unlock()
	f.log.add(fmt.Sprintf("refund@%d", f.chainID))
	return f.refundErr
}

func (f *fakeLedger) fulfillCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fulfills)
}

type settleFixture struct {
	orchestrator *relayer.Orchestrator
	store        store.RecordStore
	source       *fakeLedger
	dest         *fakeLedger
	log          *callLog
}

func newSettleFixture(destLiquidity *big.Int) *settleFixture {
	log := new(callLog)
	source := &fakeLedger{chainID: sourceChainID, liquidity: big.NewInt(0), log: log}
	dest := &fakeLedger{chainID: destChainID, liquidity: destLiquidity, log: log}
	recordStore := store.NewMemoryStore()
	orchestrator := relayer.NewOrchestrator(
		logging.New(),
		recordStore,
		relayer.NewPlanner(nil),
		map[uint64]relayer.Ledger{
			sourceChainID: source,
			destChainID:   dest,
		},
		0,
	)
	return &settleFixture{
		orchestrator: orchestrator,
		store:        recordStore,
		source:       source,
		dest:         dest,
		log:          log,
	}
}

func newRequest(amount *big.Int) *entity.BridgeRequest {
	return &entity.BridgeRequest{
		BridgeID:      common.HexToHash("0xaa"),
		AssetID:       common.HexToHash("0xbb"),
		SourceChainID: sourceChainID,
		DestChainID:   destChainID,
		Sender:        common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Recipient:     common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Amount:        amount,
		Fee:           big.NewInt(0),
	}
}

func requireStatus(t *testing.T, s store.RecordStore, bridgeID common.Hash, status entity.ProcessingStatus) {
	t.Helper()
	record, err := s.Get(context.Background(), bridgeID)
	require.NoError(t, err)
	require.Equal(t, status, record.Status)
}

func TestSettleFullFill(t *testing.T) {
	t.Parallel()

	f := newSettleFixture(eth(10))
	req := newRequest(eth(5))

	outcome := f.orchestrator.Settle(context.Background(), req)

	require.Equal(t, relayer.OutcomeCompleted, outcome)
	require.Equal(t, []string{"fulfill@1"}, f.log.snapshot())
	requireStatus(t, f.store, req.BridgeID, entity.StatusCompleted)
}

func TestSettlePartialFill(t *testing.T) {
	t.Parallel()

	f := newSettleFixture(eth(3))
	req := newRequest(eth(10))

	outcome := f.orchestrator.Settle(context.Background(), req)

	require.Equal(t, relayer.OutcomeCompleted, outcome)
	// Fulfillment on the destination strictly precedes the refund on the source.
	require.Equal(t, []string{"fulfill@1", "refund@42170"}, f.log.snapshot())
	require.Equal(t, eth(3), f.source.refunds[0])
	requireStatus(t, f.store, req.BridgeID, entity.StatusCompleted)
}

func TestSettleAlreadyProcessed(t *testing.T) {
	t.Parallel()

	f := newSettleFixture(eth(10))
	f.dest.processed = true
	req := newRequest(eth(5))

	outcome := f.orchestrator.Settle(context.Background(), req)

	require.Equal(t, relayer.OutcomeAlreadyProcessed, outcome)
	require.Empty(t, f.log.snapshot())
	requireStatus(t, f.store, req.BridgeID, entity.StatusCompleted)
}

func TestSettleFulfillLostRace(t *testing.T) {
	t.Parallel()

	f := newSettleFixture(eth(3))
	f.dest.fulfillErr = relayer.ErrAlreadyProcessed
	req := newRequest(eth(10))

	outcome := f.orchestrator.Settle(context.Background(), req)

	require.Equal(t, relayer.OutcomeCompleted, outcome)
	// An already-done fulfill does not exempt the owed partial refund.
	require.Equal(t, []string{"fulfill@1", "refund@42170"}, f.log.snapshot())
	require.Equal(t, eth(3), f.source.refunds[0])
	requireStatus(t, f.store, req.BridgeID, entity.StatusCompleted)
}

func TestSettleRefundOwedRetriedWithoutSecondFulfill(t *testing.T) {
	t.Parallel()

	f := newSettleFixture(eth(3))
	f.source.refundErr = errors.New("refund reverted")
	req := newRequest(eth(10))

	outcome := f.orchestrator.Settle(context.Background(), req)
	require.Equal(t, relayer.OutcomeRefundOwed, outcome)

	record, err := f.store.Get(context.Background(), req.BridgeID)
	require.NoError(t, err)
	require.Equal(t, eth(3).String(), record.FulfilledAmount)

	// The destination reports the request processed since the first fulfill
	// succeeded, but the retry must go straight to the refund instead of
	// short-circuiting to completed.
	f.source.refundErr = nil

	outcome = f.orchestrator.Settle(context.Background(), req)
	require.Equal(t, relayer.OutcomeCompleted, outcome)
	require.Equal(t, []string{"fulfill@1", "refund@42170", "refund@42170"}, f.log.snapshot())
	require.Equal(t, eth(3), f.source.refunds[1])
	requireStatus(t, f.store, req.BridgeID, entity.StatusCompleted)
}

func TestSettleInsufficientLiquidity(t *testing.T) {
	t.Parallel()

	f := newSettleFixture(big.NewInt(0))
	req := newRequest(eth(10))

	outcome := f.orchestrator.Settle(context.Background(), req)

	require.Equal(t, relayer.OutcomeInsufficientLiquidity, outcome)
	require.Empty(t, f.log.snapshot())
	requireStatus(t, f.store, req.BridgeID, entity.StatusInsufficientLiquidity)

	// The deferred request is claimable again once liquidity returns.
	f.dest.liquidity = eth(10)
	outcome = f.orchestrator.Settle(context.Background(), req)
	require.Equal(t, relayer.OutcomeCompleted, outcome)
	requireStatus(t, f.store, req.BridgeID, entity.StatusCompleted)
}

func TestSettleRefundOwed(t *testing.T) {
	t.Parallel()

	f := newSettleFixture(eth(3))
	f.source.refundErr = errors.New("refund reverted")
	req := newRequest(eth(10))

	outcome := f.orchestrator.Settle(context.Background(), req)

	require.Equal(t, relayer.OutcomeRefundOwed, outcome)
	require.Equal(t, []string{"fulfill@1", "refund@42170"}, f.log.snapshot())

	record, err := f.store.Get(context.Background(), req.BridgeID)
	require.NoError(t, err)
	require.Equal(t, entity.StatusRefundOwed, record.Status)
	require.Contains(t, record.LastError, "refund reverted")
}

func TestSettleRefundLostRace(t *testing.T) {
	t.Parallel()

	f := newSettleFixture(eth(3))
	f.source.refundErr = relayer.ErrAlreadyProcessed
	req := newRequest(eth(10))

	outcome := f.orchestrator.Settle(context.Background(), req)

	require.Equal(t, relayer.OutcomeCompleted, outcome)
	requireStatus(t, f.store, req.BridgeID, entity.StatusCompleted)
}

func TestSettleFulfillError(t *testing.T) {
	t.Parallel()

	f := newSettleFixture(eth(10))
	f.dest.fulfillErr = errors.New("nonce too low")
	req := newRequest(eth(5))

	outcome := f.orchestrator.Settle(context.Background(), req)

	require.Equal(t, relayer.OutcomeError, outcome)
	requireStatus(t, f.store, req.BridgeID, entity.StatusError)

	// Errored requests are retryable on rediscovery.
	f.dest.fulfillErr = nil
	outcome = f.orchestrator.Settle(context.Background(), req)
	require.Equal(t, relayer.OutcomeCompleted, outcome)
}

func TestSettleDuplicate(t *testing.T) {
	t.Parallel()

	f := newSettleFixture(eth(10))
	req := newRequest(eth(5))

	require.Equal(t, relayer.OutcomeCompleted, f.orchestrator.Settle(context.Background(), req))
	require.Equal(t, relayer.OutcomeDuplicate, f.orchestrator.Settle(context.Background(), req))
	require.Equal(t, 1, f.dest.fulfillCount())
}

func TestSettleUnknownDestinationChain(t *testing.T) {
	t.Parallel()

	f := newSettleFixture(eth(10))
	req := newRequest(eth(5))
	req.DestChainID = 999

	outcome := f.orchestrator.Settle(context.Background(), req)

	require.Equal(t, relayer.OutcomeUnknownChain, outcome)
	require.Empty(t, f.log.snapshot())
	_, err := f.store.Get(context.Background(), req.BridgeID)
	require.Error(t, err)
}

// heldClaimStore delays the claim until the gate opens, so tests can pin down
// which state a concurrent attempt observes when it finally claims.
type heldClaimStore struct {
	store.RecordStore
	gate <-chan struct{}
}

func (s *heldClaimStore) TryClaim(ctx context.Context, bridgeID common.Hash) (bool, *entity.ProcessingRecord, error) {
	<-s.gate
	return s.RecordStore.TryClaim(ctx, bridgeID)
}

func TestSettleDuplicateClaimResumesOwedRefund(t *testing.T) {
	t.Parallel()

	f := newSettleFixture(eth(3))
	f.source.refundErr = errors.New("refund reverted")
	req := newRequest(eth(10))

	// The second attempt starts before the first finishes but only reaches its
	// claim after refund_owed has been recorded. The claim hands it that state
	// directly, so the processed destination must not short-circuit it past
	// the owed refund.
	gate := make(chan struct{})
	second := relayer.NewOrchestrator(
		logging.New(),
		&heldClaimStore{RecordStore: f.store, gate: gate},
		relayer.NewPlanner(nil),
		map[uint64]relayer.Ledger{
			sourceChainID: f.source,
			destChainID:   f.dest,
		},
		0,
	)
	done := make(chan relayer.Outcome, 1)
	go func() {
		done <- second.Settle(context.Background(), req)
	}()

	outcome := f.orchestrator.Settle(context.Background(), req)
	require.Equal(t, relayer.OutcomeRefundOwed, outcome)

	f.source.refundErr = nil
	close(gate)

	require.Equal(t, relayer.OutcomeCompleted, <-done)
	require.Equal(t, []string{"fulfill@1", "refund@42170", "refund@42170"}, f.log.snapshot())
	require.Equal(t, eth(3), f.source.refunds[1])
	requireStatus(t, f.store, req.BridgeID, entity.StatusCompleted)
}

func TestSettleLogsLiquiditySnapshot(t *testing.T) {
	t.Parallel()

	logger, hook := logrustest.NewNullLogger()
	f := newSettleFixture(eth(3))
	orchestrator := relayer.NewOrchestrator(
		logger,
		f.store,
		relayer.NewPlanner(nil),
		map[uint64]relayer.Ledger{
			sourceChainID: f.source,
			destChainID:   f.dest,
		},
		0,
	)
	req := newRequest(eth(10))

	require.Equal(t, relayer.OutcomeCompleted, orchestrator.Settle(context.Background(), req))

	var settled bool
	for _, e := range hook.AllEntries() {
		if e.Message != "bridge request settled" {
			continue
		}
		settled = true
		require.Equal(t, eth(3), e.Data["liquidity"])
		require.Equal(t, eth(3), e.Data["fulfill_amount"])
		require.Equal(t, eth(7), e.Data["refund_amount"])
	}
	require.True(t, settled)
}

func TestEnqueueConcurrentDuplicates(t *testing.T) {
	t.Parallel()

	f := newSettleFixture(eth(10))
	req := newRequest(eth(5))

	ctx := context.Background()
	for i := 0; i < 16; i++ {
		f.orchestrator.Enqueue(ctx, req)
	}
	f.orchestrator.Wait()

	require.Equal(t, 1, f.dest.fulfillCount())
	requireStatus(t, f.store, req.BridgeID, entity.StatusCompleted)
}
