package store_test

import (
	"context"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/r-cryptocurrency/moonbridge/db"
	"github.com/r-cryptocurrency/moonbridge/entity"
	"github.com/r-cryptocurrency/moonbridge/store"
)

var testBridgeID = common.HexToHash("0x0101010101010101010101010101010101010101010101010101010101010101")

func TestTryClaim(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := store.NewMemoryStore()

	claimed, prior, err := s.TryClaim(ctx, testBridgeID)
	require.NoError(t, err)
	require.True(t, claimed)
	require.Nil(t, prior)

	claimed, _, err = s.TryClaim(ctx, testBridgeID)
	require.NoError(t, err)
	require.False(t, claimed)

	record, err := s.Get(ctx, testBridgeID)
	require.NoError(t, err)
	require.Equal(t, entity.StatusProcessing, record.Status)
}

func TestTryClaimConcurrent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := store.NewMemoryStore()

	const attempts = 32
	var wg sync.WaitGroup
	results := make(chan bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, _, err := s.TryClaim(ctx, testBridgeID)
			require.NoError(t, err)
			results <- claimed
		}()
	}
	wg.Wait()
	close(results)

	winners := 0
	for claimed := range results {
		if claimed {
			winners++
		}
	}
	require.Equal(t, 1, winners)
}

func TestTryClaimAfterTerminalStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	for _, tt := range []struct {
		status      entity.ProcessingStatus
		reclaimable bool
	}{
		{entity.StatusError, true},
		{entity.StatusInsufficientLiquidity, true},
		{entity.StatusRefundOwed, true},
		{entity.StatusCompleted, false},
		{entity.StatusProcessing, false},
	} {
		tt := tt
		t.Run(string(tt.status), func(t *testing.T) {
			t.Parallel()

			s := store.NewMemoryStore()
			claimed, _, err := s.TryClaim(ctx, testBridgeID)
			require.NoError(t, err)
			require.True(t, claimed)

			require.NoError(t, s.Update(ctx, &entity.ProcessingRecord{
				BridgeID: testBridgeID,
				Status:   tt.status,
			}))

			claimed, prior, err := s.TryClaim(ctx, testBridgeID)
			require.NoError(t, err)
			require.Equal(t, tt.reclaimable, claimed)
			if tt.reclaimable {
				require.NotNil(t, prior)
				require.Equal(t, tt.status, prior.Status)
			} else {
				require.Nil(t, prior)
			}
		})
	}
}

func TestGetMissing(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	_, err := s.Get(context.Background(), testBridgeID)
	require.ErrorIs(t, err, db.ErrNotFound)
}

func TestList(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := store.NewMemoryStore()

	other := common.HexToHash("0x02")
	_, _, err := s.TryClaim(ctx, testBridgeID)
	require.NoError(t, err)
	_, _, err = s.TryClaim(ctx, other)
	require.NoError(t, err)
	require.NoError(t, s.Update(ctx, &entity.ProcessingRecord{BridgeID: other, Status: entity.StatusCompleted}))

	records, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, other, records[0].BridgeID)
	require.Equal(t, entity.StatusCompleted, records[0].Status)
}
