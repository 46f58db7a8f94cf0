package entity

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Log is a chain event log in the form passed between the fetcher and the
// event decoder.
type Log struct {
	ChainID         uint64
	Address         common.Address
	Topics          []common.Hash
	Data            []byte
	BlockNumber     uint64
	LogIndex        uint
	TransactionHash common.Hash
}

func NewLog(chainID uint64, log types.Log) *Log {
	return &Log{
		ChainID:         chainID,
		Address:         log.Address,
		Topics:          log.Topics,
		Data:            log.Data,
		BlockNumber:     log.BlockNumber,
		LogIndex:        log.Index,
		TransactionHash: log.TxHash,
	}
}
