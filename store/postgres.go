package store

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/ethereum/go-ethereum/common"

	"github.com/r-cryptocurrency/moonbridge/db"
	"github.com/r-cryptocurrency/moonbridge/entity"
)

const defaultListLimit = 500

// postgresStore is the durable backend for multi-instance deployments: the
// claim upsert is a single statement, so concurrent relayers sharing one
// database resolve claims in the database rather than in memory.
type postgresStore struct {
	table string
	db    *db.DB
}

func NewPostgresStore(table string, dbConn *db.DB) RecordStore {
	return &postgresStore{
		table: table,
		db:    dbConn,
	}
}

// TryClaim claims and reads the replaced state in one statement, so the
// prior status can never be stale relative to the claim itself. A concurrent
// claimer blocks on the row lock inside the upsert and re-evaluates the
// status filter against the committed row.
func (s *postgresStore) TryClaim(ctx context.Context, bridgeID common.Hash) (bool, *entity.ProcessingRecord, error) {
	q := fmt.Sprintf(`
		WITH prior AS (
			SELECT status, last_error, fulfilled_amount, updated_at
			FROM %[1]s
			WHERE bridge_id = $1
		), claim AS (
			INSERT INTO %[1]s (bridge_id, status)
			VALUES ($1, $2)
			ON CONFLICT (bridge_id) DO UPDATE
				SET status = EXCLUDED.status, last_error = '', updated_at = NOW()
				WHERE %[1]s.status IN ($3, $4, $5)
			RETURNING bridge_id
		)
		SELECT
			EXISTS (SELECT 1 FROM claim) AS claimed,
			COALESCE((SELECT status FROM prior), '') AS prior_status,
			COALESCE((SELECT last_error FROM prior), '') AS prior_last_error,
			COALESCE((SELECT fulfilled_amount FROM prior), '') AS prior_fulfilled_amount`, s.table)

	var res struct {
		Claimed              bool   `db:"claimed"`
		PriorStatus          string `db:"prior_status"`
		PriorLastError       string `db:"prior_last_error"`
		PriorFulfilledAmount string `db:"prior_fulfilled_amount"`
	}
	err := s.db.GetContext(ctx, &res, q,
		bridgeID, entity.StatusProcessing,
		entity.StatusError, entity.StatusInsufficientLiquidity, entity.StatusRefundOwed)
	if err != nil {
		return false, nil, fmt.Errorf("can't claim processing record: %w", err)
	}
	if !res.Claimed {
		return false, nil, nil
	}
	if res.PriorStatus == "" {
		return true, nil, nil
	}
	return true, &entity.ProcessingRecord{
		BridgeID:        bridgeID,
		Status:          entity.ProcessingStatus(res.PriorStatus),
		LastError:       res.PriorLastError,
		FulfilledAmount: res.PriorFulfilledAmount,
	}, nil
}

func (s *postgresStore) Update(ctx context.Context, record *entity.ProcessingRecord) error {
	q, args, err := sq.Insert(s.table).
		Columns("bridge_id", "status", "last_error", "fulfilled_amount").
		Values(record.BridgeID, record.Status, record.LastError, record.FulfilledAmount).
		Suffix(`ON CONFLICT (bridge_id) DO UPDATE
			SET status = EXCLUDED.status, last_error = EXCLUDED.last_error,
			fulfilled_amount = EXCLUDED.fulfilled_amount, updated_at = NOW()`).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("can't upsert processing record: %w", err)
	}
	return nil
}

func (s *postgresStore) Get(ctx context.Context, bridgeID common.Hash) (*entity.ProcessingRecord, error) {
	q, args, err := sq.Select("bridge_id", "status", "last_error", "fulfilled_amount", "updated_at").
		From(s.table).
		Where(sq.Eq{"bridge_id": bridgeID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	record := new(entity.ProcessingRecord)
	err = s.db.GetContext(ctx, record, q, args...)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, db.ErrNotFound
		}
		return nil, fmt.Errorf("can't get processing record: %w", err)
	}
	return record, nil
}

func (s *postgresStore) List(ctx context.Context) ([]*entity.ProcessingRecord, error) {
	q, args, err := sq.Select("bridge_id", "status", "last_error", "fulfilled_amount", "updated_at").
		From(s.table).
		OrderBy("updated_at DESC").
		Limit(defaultListLimit).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	var records []*entity.ProcessingRecord
	err = s.db.SelectContext(ctx, &records, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't list processing records: %w", err)
	}
	return records, nil
}
