package monitor

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/r-cryptocurrency/moonbridge/contract"
	"github.com/r-cryptocurrency/moonbridge/contract/bridgeabi"
	"github.com/r-cryptocurrency/moonbridge/entity"
)

func requestLog(t *testing.T, sourceChainID uint64, amount, toChainID int64) *entity.Log {
	t.Helper()

	event := bridgeabi.BridgeABI.Events["BridgeRequested"]
	data, err := event.Inputs.NonIndexed().Pack(
		common.HexToAddress("0x00000000000000000000000000000000000000bb"),
		big.NewInt(amount),
		big.NewInt(toChainID),
		big.NewInt(1),
	)
	require.NoError(t, err)

	return &entity.Log{
		ChainID: sourceChainID,
		Topics: []common.Hash{
			event.ID,
			common.HexToHash("0x0101010101010101010101010101010101010101010101010101010101010101"),
			common.HexToHash("0x4d4f4f4e00000000000000000000000000000000000000000000000000000000"),
			common.BytesToHash(common.HexToAddress("0x00000000000000000000000000000000000000aa").Bytes()),
		},
		Data:            data,
		BlockNumber:     42,
		TransactionHash: common.HexToHash("0xbeef"),
	}
}

func TestDecodeBridgeRequest(t *testing.T) {
	t.Parallel()

	log := requestLog(t, 1, 1000, 100)
	_, data, err := contract.ParseLog(bridgeabi.BridgeABI, log)
	require.NoError(t, err)

	req, err := decodeBridgeRequest(log, data)
	require.NoError(t, err)
	require.Equal(t, log.Topics[1], req.BridgeID)
	require.Equal(t, log.Topics[2], req.AssetID)
	require.Equal(t, uint64(1), req.SourceChainID)
	require.Equal(t, uint64(100), req.DestChainID)
	require.Equal(t, common.HexToAddress("0x00000000000000000000000000000000000000aa"), req.Sender)
	require.Equal(t, common.HexToAddress("0x00000000000000000000000000000000000000bb"), req.Recipient)
	require.Equal(t, big.NewInt(1000), req.Amount)
	require.Equal(t, big.NewInt(1), req.Fee)
	require.Equal(t, uint64(42), req.BlockNumber)
}

func TestDecodeBridgeRequestMalformed(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name string
		log  *entity.Log
	}{
		{name: "same source and destination chain", log: requestLog(t, 100, 1000, 100)},
		{name: "zero amount", log: requestLog(t, 1, 0, 100)},
	} {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, data, err := contract.ParseLog(bridgeabi.BridgeABI, tt.log)
			require.NoError(t, err)

			_, err = decodeBridgeRequest(tt.log, data)
			require.ErrorIs(t, err, entity.ErrMalformedRequest)
		})
	}
}
