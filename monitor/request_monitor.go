package monitor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/r-cryptocurrency/moonbridge/config"
	"github.com/r-cryptocurrency/moonbridge/contract"
	"github.com/r-cryptocurrency/moonbridge/contract/bridgeabi"
	"github.com/r-cryptocurrency/moonbridge/entity"
	"github.com/r-cryptocurrency/moonbridge/ethclient"
	"github.com/r-cryptocurrency/moonbridge/logging"
	"github.com/r-cryptocurrency/moonbridge/utils"
)

const (
	defaultBlockRangesChanCap = 10
	fetchRetryInterval        = 10 * time.Second
)

// RequestHandler receives every confirmed, well-formed bridge request exactly
// as it leaves the ingestion pipeline, from backfill and live polling alike.
// It must be safe to call concurrently for different bridge ids.
type RequestHandler func(req *entity.BridgeRequest)

// RequestMonitor discovers BridgeRequested events on one chain. At startup
// Backfill replays a bounded historical window; afterwards the head tracker
// polls for new blocks and only releases logs once they are at least the
// configured confirmation depth below the chain head, so a request is never
// handed downstream before its source block is considered final enough.
type RequestMonitor struct {
	cfg             *config.ChainConfig
	logger          logging.Logger
	client          ethclient.Client
	contract        *contract.BridgeContract
	handler         RequestHandler
	blocksRangeChan chan *BlocksRange
	nextBlock       uint64

	headBlockMetric    prometheus.Gauge
	fetchedBlockMetric prometheus.Gauge
	requestsMetric     prometheus.Counter
	malformedMetric    prometheus.Counter
}

func NewRequestMonitor(logger logging.Logger, client ethclient.Client, cfg *config.ChainConfig, handler RequestHandler) *RequestMonitor {
	chainID := fmt.Sprintf("%d", cfg.ChainID)
	return &RequestMonitor{
		cfg:                cfg,
		logger:             logger,
		client:             client,
		contract:           contract.NewBridgeContract(client, cfg.BridgeAddress.Addr()),
		handler:            handler,
		blocksRangeChan:    make(chan *BlocksRange, defaultBlockRangesChanCap),
		headBlockMetric:    LatestHeadBlock.WithLabelValues(chainID),
		fetchedBlockMetric: LatestFetchedBlock.WithLabelValues(chainID),
		requestsMetric:     RequestsDiscovered.WithLabelValues(chainID),
		malformedMetric:    MalformedEvents.WithLabelValues(chainID),
	}
}

// Backfill replays the configured historical block window up to the current
// confirmed head and dispatches every request found through the same path as
// live events. Blocks until the whole window is processed so that a restarted
// relayer recovers without a separate code path.
func (m *RequestMonitor) Backfill(ctx context.Context) error {
	head, err := m.client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("can't fetch block number for backfill: %w", err)
	}
	confirmed := confirmedHead(head, m.cfg.RequiredBlockConfirmations)
	m.headBlockMetric.Set(float64(confirmed))

	fromBlock := uint64(0)
	if head > m.cfg.HistoricalScanWindowBlocks {
		fromBlock = head - m.cfg.HistoricalScanWindowBlocks
	}
	m.nextBlock = confirmed + 1
	if fromBlock > confirmed {
		return nil
	}

	m.logger.WithFields(logrus.Fields{
		"from_block": fromBlock,
		"to_block":   confirmed,
	}).Info("replaying historical bridge requests")

	for _, blocksRange := range SplitBlockRange(fromBlock, confirmed, m.cfg.MaxBlockRangeSize) {
		for {
			err := m.tryToFetchLogs(ctx, blocksRange)
			if err == nil {
				break
			}
			m.logger.WithError(err).WithFields(logrus.Fields{
				"from_block": blocksRange.From,
				"to_block":   blocksRange.To,
			}).Error("failed backfill logs fetching, retrying")
			if utils.ContextSleep(ctx, fetchRetryInterval) == nil {
				return ctx.Err()
			}
		}
	}
	return nil
}

// Start launches the live head tracker and logs fetcher. Backfill must have
// completed first.
func (m *RequestMonitor) Start(ctx context.Context) {
	go m.startHeadTracker(ctx)
	go m.startLogsFetcher(ctx)
}

func (m *RequestMonitor) startHeadTracker(ctx context.Context) {
	m.logger.Info("starting new blocks tracker")

	for {
		head, err := m.client.BlockNumber(ctx)
		if err != nil {
			m.logger.WithError(err).Error("can't fetch latest block number")
		} else {
			confirmed := confirmedHead(head, m.cfg.RequiredBlockConfirmations)
			m.headBlockMetric.Set(float64(confirmed))

			for m.nextBlock <= confirmed {
				end := m.nextBlock + m.cfg.MaxBlockRangeSize - 1
				if end > confirmed {
					end = confirmed
				}
				m.logger.WithFields(logrus.Fields{
					"from_block": m.nextBlock,
					"to_block":   end,
				}).Debug("scheduling new block range logs search")
				select {
				case m.blocksRangeChan <- &BlocksRange{From: m.nextBlock, To: end}:
				case <-ctx.Done():
					return
				}
				m.nextBlock = end + 1
			}
		}

		if utils.ContextSleep(ctx, m.cfg.BlockPollInterval.Duration()) == nil {
			return
		}
	}
}

func (m *RequestMonitor) startLogsFetcher(ctx context.Context) {
	m.logger.Info("starting logs fetcher")
	for {
		select {
		case <-ctx.Done():
			return
		case blocksRange := <-m.blocksRangeChan:
			for {
				err := m.tryToFetchLogs(ctx, blocksRange)
				if err != nil {
					m.logger.WithError(err).WithFields(logrus.Fields{
						"from_block": blocksRange.From,
						"to_block":   blocksRange.To,
					}).Error("failed logs fetching, retrying")
					if utils.ContextSleep(ctx, fetchRetryInterval) == nil {
						return
					}
					continue
				}
				break
			}
		}
	}
}

func (m *RequestMonitor) tryToFetchLogs(ctx context.Context, blocksRange *BlocksRange) error {
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(blocksRange.From),
		ToBlock:   new(big.Int).SetUint64(blocksRange.To),
		Addresses: []common.Address{m.contract.Address()},
		Topics:    [][]common.Hash{{bridgeabi.BridgeABI.Events["BridgeRequested"].ID}},
	}
	var logsBatch []types.Log
	var err error
	if m.cfg.SafeLogsRequest {
		logsBatch, err = m.client.FilterLogsSafe(ctx, q)
	} else {
		logsBatch, err = m.client.FilterLogs(ctx, q)
	}
	if err != nil {
		return err
	}
	sort.Slice(logsBatch, func(i, j int) bool {
		a, b := logsBatch[i], logsBatch[j]
		return a.BlockNumber < b.BlockNumber || (a.BlockNumber == b.BlockNumber && a.Index < b.Index)
	})
	if len(logsBatch) > 0 {
		m.logger.WithFields(logrus.Fields{
			"count":      len(logsBatch),
			"from_block": blocksRange.From,
			"to_block":   blocksRange.To,
		}).Info("fetched bridge request logs in range")
	}
	for i := range logsBatch {
		m.processLog(entity.NewLog(m.cfg.ChainID, logsBatch[i]))
	}
	m.fetchedBlockMetric.Set(float64(blocksRange.To))
	return nil
}

func (m *RequestMonitor) processLog(log *entity.Log) {
	event, data, err := m.contract.ParseLog(log)
	if err != nil || event != bridgeabi.BridgeRequested {
		m.logger.WithFields(logrus.Fields{
			"block_number": log.BlockNumber,
			"tx_hash":      log.TransactionHash,
			"log_index":    log.LogIndex,
		}).Debug("skipping non-request log")
		return
	}
	req, err := decodeBridgeRequest(log, data)
	if err != nil {
		if errors.Is(err, entity.ErrMalformedRequest) {
			m.malformedMetric.Inc()
			// never retried, retrying would not change the input
			m.logger.WithError(err).WithFields(logrus.Fields{
				"block_number": log.BlockNumber,
				"tx_hash":      log.TransactionHash,
				"log_index":    log.LogIndex,
			}).Error("dropping malformed bridge request event")
			return
		}
		m.logger.WithError(err).WithField("tx_hash", log.TransactionHash).Error("can't decode bridge request event")
		return
	}
	m.requestsMetric.Inc()
	m.logger.WithFields(logrus.Fields{
		"request_id":    req.BridgeID,
		"dest_chain_id": req.DestChainID,
		"amount":        req.Amount,
		"block_number":  req.BlockNumber,
	}).Info("discovered bridge request")
	m.handler(req)
}

func confirmedHead(head, confirmations uint64) uint64 {
	if head < confirmations {
		return 0
	}
	return head - confirmations
}
