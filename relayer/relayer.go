package relayer

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/r-cryptocurrency/moonbridge/config"
	"github.com/r-cryptocurrency/moonbridge/contract"
	"github.com/r-cryptocurrency/moonbridge/entity"
	"github.com/r-cryptocurrency/moonbridge/ethclient"
	"github.com/r-cryptocurrency/moonbridge/logging"
	"github.com/r-cryptocurrency/moonbridge/monitor"
	"github.com/r-cryptocurrency/moonbridge/store"
)

// chainEndpoint bundles the per-chain pieces: one rpc client shared by the
// request monitor, the ledger reads and the transaction sender.
type chainEndpoint struct {
	cfg     *config.ChainConfig
	monitor *monitor.RequestMonitor
}

// Relayer ties the per-chain request monitors to the settlement orchestrator.
// One Relayer instance serves all configured chains.
type Relayer struct {
	logger       logging.Logger
	orchestrator *Orchestrator
	endpoints    []*chainEndpoint

	// intakeCtx is assigned in Run before any monitor starts and bounds the
	// scheduling of new settlement attempts.
	intakeCtx context.Context
}

func New(logger logging.Logger, cfg *config.Config, recordStore store.RecordStore, privateKey *ecdsa.PrivateKey) (*Relayer, error) {
	r := &Relayer{logger: logger}

	var relayerAddress common.Address
	ledgers := make(map[uint64]Ledger, len(cfg.Chains))
	for _, chainCfg := range cfg.Chains {
		chainLogger := logger.WithField("chain", chainCfg.Name)
		client, err := ethclient.NewClient(chainCfg.RPC.Host, chainCfg.RPC.Timeout.Duration(), chainCfg.ChainID)
		if err != nil {
			return nil, fmt.Errorf("can't dial rpc client for chain %s: %w", chainCfg.Name, err)
		}
		bridge := contract.NewBridgeContract(client, chainCfg.BridgeAddress.Addr())
		sender := ethclient.NewSender(chainLogger, client, privateKey, chainCfg.GasLimit, chainCfg.GasPriceMultiplier)
		relayerAddress = sender.Address()
		ledgers[chainCfg.ChainID] = NewLedger(chainCfg.ChainID, bridge, sender)
		r.endpoints = append(r.endpoints, &chainEndpoint{
			cfg:     chainCfg,
			monitor: monitor.NewRequestMonitor(chainLogger, client, chainCfg, r.handleRequest),
		})
	}
	logger.WithField("relayer_address", relayerAddress).Info("relayer account initialized")

	r.orchestrator = NewOrchestrator(
		logger,
		recordStore,
		NewPlanner(cfg.Relayer.MaxRefundFeeValue()),
		ledgers,
		cfg.Relayer.LiquidityRecheckInterval.Duration(),
	)
	return r, nil
}

func (r *Relayer) handleRequest(req *entity.BridgeRequest) {
	r.orchestrator.Enqueue(r.intakeCtx, req)
}

// Run backfills the historical window on every chain concurrently, then
// starts live polling and blocks until ctx is cancelled. Requests discovered
// during backfill settle while the backfill of other chains is still running.
// On cancellation no new settlement attempts start, and Run returns only
// after the in-flight ones reached a terminal state.
func (r *Relayer) Run(ctx context.Context) error {
	r.intakeCtx = ctx

	errChan := make(chan error, len(r.endpoints))
	for _, endpoint := range r.endpoints {
		endpoint := endpoint
		go func() {
			errChan <- endpoint.monitor.Backfill(ctx)
		}()
	}
	for range r.endpoints {
		if err := <-errChan; err != nil {
			return fmt.Errorf("historical backfill failed: %w", err)
		}
	}

	for _, endpoint := range r.endpoints {
		r.logger.WithField("chain", endpoint.cfg.Name).Info("starting live request monitor")
		endpoint.monitor.Start(ctx)
	}

	<-ctx.Done()
	r.logger.Info("shutting down, draining in-flight settlement attempts")
	r.orchestrator.Wait()
	return nil
}

// Abort cancels in-flight settlement attempts when draining takes too long.
func (r *Relayer) Abort() {
	r.orchestrator.Abort()
}
