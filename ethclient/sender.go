package ethclient

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/r-cryptocurrency/moonbridge/logging"
	"github.com/r-cryptocurrency/moonbridge/utils"
)

const defaultReceiptPollInterval = 3 * time.Second

// Sender signs and submits transactions from the relayer account on one
// chain. All submissions on a chain go through the same Sender and are
// serialized by its mutex, so two settlement attempts can never race on the
// account nonce.
type Sender struct {
	mu                  sync.Mutex
	logger              logging.Logger
	client              Client
	privateKey          *ecdsa.PrivateKey
	address             common.Address
	signer              types.Signer
	gasLimit            uint64
	gasPriceMultiplier  uint64
	receiptPollInterval time.Duration
}

func NewSender(logger logging.Logger, client Client, privateKey *ecdsa.PrivateKey, gasLimit, gasPriceMultiplier uint64) *Sender {
	return &Sender{
		logger:              logger,
		client:              client,
		privateKey:          privateKey,
		address:             crypto.PubkeyToAddress(privateKey.PublicKey),
		signer:              types.LatestSignerForChainID(new(big.Int).SetUint64(client.ChainID())),
		gasLimit:            gasLimit,
		gasPriceMultiplier:  gasPriceMultiplier,
		receiptPollInterval: defaultReceiptPollInterval,
	}
}

func (s *Sender) Address() common.Address {
	return s.address
}

// Send submits a signed transaction and blocks until its receipt is
// available or ctx is cancelled. A non-nil receipt with a failed status is
// returned without error, interpreting a revert is up to the caller.
func (s *Sender) Send(ctx context.Context, to common.Address, value *big.Int, data []byte) (*types.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nonce, err := s.client.PendingNonceAt(ctx, s.address)
	if err != nil {
		return nil, fmt.Errorf("can't get account nonce: %w", err)
	}
	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't get suggested gas price: %w", err)
	}
	if s.gasPriceMultiplier > 1 {
		gasPrice = new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(s.gasPriceMultiplier))
	}

	tx := types.NewTransaction(nonce, to, value, s.gasLimit, gasPrice, data)
	signedTx, err := types.SignTx(tx, s.signer, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("can't sign transaction: %w", err)
	}
	if err = s.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("can't submit transaction: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"tx_hash":   signedTx.Hash(),
		"nonce":     nonce,
		"gas_price": gasPrice,
	}).Info("submitted transaction")

	return s.waitMined(ctx, signedTx.Hash())
}

func (s *Sender) waitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	for {
		receipt, err := s.client.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if errors.Is(err, ethereum.NotFound) {
			s.logger.WithField("tx_hash", txHash).Debug("transaction receipt not available yet")
		} else {
			s.logger.WithError(err).WithField("tx_hash", txHash).Warn("can't fetch transaction receipt, retrying")
		}
		if utils.ContextSleep(ctx, s.receiptPollInterval) == nil {
			return nil, fmt.Errorf("interrupted while waiting for receipt of %s: %w", txHash, ctx.Err())
		}
	}
}
