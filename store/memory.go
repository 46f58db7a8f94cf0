package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/r-cryptocurrency/moonbridge/db"
	"github.com/r-cryptocurrency/moonbridge/entity"
)

// memoryStore is the default, process-local record store. Records are never
// evicted; bounded growth over a process lifetime is an accepted tradeoff.
type memoryStore struct {
	mu      sync.Mutex
	records map[common.Hash]*entity.ProcessingRecord
}

func NewMemoryStore() RecordStore {
	return &memoryStore{
		records: make(map[common.Hash]*entity.ProcessingRecord),
	}
}

func (s *memoryStore) TryClaim(_ context.Context, bridgeID common.Hash) (bool, *entity.ProcessingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prior *entity.ProcessingRecord
	if record, ok := s.records[bridgeID]; ok {
		if !retryable(record.Status) {
			return false, nil, nil
		}
		clone := *record
		prior = &clone
	}
	s.records[bridgeID] = &entity.ProcessingRecord{
		BridgeID:  bridgeID,
		Status:    entity.StatusProcessing,
		UpdatedAt: time.Now(),
	}
	return true, prior, nil
}

func (s *memoryStore) Update(_ context.Context, record *entity.ProcessingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *record
	clone.UpdatedAt = time.Now()
	s.records[record.BridgeID] = &clone
	return nil
}

func (s *memoryStore) Get(_ context.Context, bridgeID common.Hash) (*entity.ProcessingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[bridgeID]
	if !ok {
		return nil, db.ErrNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *memoryStore) List(_ context.Context) ([]*entity.ProcessingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]*entity.ProcessingRecord, 0, len(s.records))
	for _, record := range s.records {
		clone := *record
		records = append(records, &clone)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})
	return records, nil
}
