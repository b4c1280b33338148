package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrNotConfigured indicates the storage pool was not initialised.
var ErrNotConfigured = errors.New("storage: pool not configured")

const (
	upsertPricedRowSQL = `INSERT INTO priced_rows (
        driver_id,
        period_key,
        period_start,
        period_end,
        miles,
        risk_score,
        model_multiplier,
        final_multiplier,
        final_monthly_premium,
        prior_claim_count,
        car_value,
        breakdown
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
    )
    ON CONFLICT (driver_id, period_key) DO UPDATE
    SET
        period_start          = EXCLUDED.period_start,
        period_end            = EXCLUDED.period_end,
        miles                 = EXCLUDED.miles,
        risk_score            = EXCLUDED.risk_score,
        model_multiplier      = EXCLUDED.model_multiplier,
        final_multiplier      = EXCLUDED.final_multiplier,
        final_monthly_premium = EXCLUDED.final_monthly_premium,
        prior_claim_count     = EXCLUDED.prior_claim_count,
        car_value             = EXCLUDED.car_value,
        breakdown             = EXCLUDED.breakdown;`

	listRecentPricedRowsSQL = `SELECT
        driver_id,
        period_key,
        period_start,
        period_end,
        miles,
        risk_score,
        model_multiplier,
        final_multiplier,
        final_monthly_premium,
        prior_claim_count,
        car_value,
        breakdown,
        created_at
    FROM priced_rows
    ORDER BY created_at DESC, driver_id
    LIMIT $1;`

	premiumStatsSQL = `SELECT
        COUNT(*),
        COALESCE(AVG(final_monthly_premium), 0),
        COALESCE(MIN(final_monthly_premium), 0),
        COALESCE(MAX(final_monthly_premium), 0)
    FROM priced_rows;`

	insertRunSQL = `INSERT INTO pipeline_runs (
        bucket_ts,
        input_events,
        valid_events,
        invalid_events,
        feature_rows,
        priced_rows,
        status,
        error
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    RETURNING id, created_at;`

	listRecentRunsSQL = `SELECT
        id,
        bucket_ts,
        input_events,
        valid_events,
        invalid_events,
        feature_rows,
        priced_rows,
        status,
        error,
        created_at
    FROM pipeline_runs
    ORDER BY created_at DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// PricedRowStore defines persistence operations for priced driver-period rows.
type PricedRowStore interface {
	UpsertPricedRows(ctx context.Context, records []PricedRowRecord) error
	ListRecentPricedRows(ctx context.Context, limit int) ([]PricedRowRecord, error)
	PremiumStats(ctx context.Context) (PremiumStats, error)
}

// RunStore defines operations for pipeline run auditing.
type RunStore interface {
	InsertRun(ctx context.Context, run RunRecord) (RunRecord, error)
	ListRecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to priced rows and pipeline runs.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// UpsertPricedRows persists or updates a batch of priced rows keyed by
// (driver_id, period_key).
func (s *Store) UpsertPricedRows(ctx context.Context, records []PricedRowRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	for _, rec := range records {
		_, execErr := pool.Exec(ctx, upsertPricedRowSQL,
			rec.DriverID,
			rec.PeriodKey,
			rec.PeriodStart,
			rec.PeriodEnd,
			rec.Miles,
			rec.RiskScore,
			rec.ModelMultiplier,
			rec.FinalMultiplier,
			rec.FinalMonthlyPremium.String(),
			rec.PriorClaimCount,
			rec.CarValue,
			[]byte(rec.Breakdown),
		)
		if execErr != nil {
			return fmt.Errorf("upsert priced row %s/%s: %w", rec.DriverID, rec.PeriodKey, execErr)
		}
	}
	return nil
}

// ListRecentPricedRows lists the most recently written priced rows.
func (s *Store) ListRecentPricedRows(ctx context.Context, limit int) ([]PricedRowRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentPricedRowsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent priced rows: %w", queryErr)
	}
	defer rows.Close()

	records := make([]PricedRowRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanPricedRow(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// PremiumStats summarizes the stored premium distribution.
func (s *Store) PremiumStats(ctx context.Context) (PremiumStats, error) {
	pool, err := s.getPool()
	if err != nil {
		return PremiumStats{}, err
	}

	var stats PremiumStats
	var meanStr, minStr, maxStr string
	if scanErr := pool.QueryRow(ctx, premiumStatsSQL).Scan(&stats.Rows, &meanStr, &minStr, &maxStr); scanErr != nil {
		return PremiumStats{}, fmt.Errorf("premium stats: %w", scanErr)
	}

	var convErr error
	if stats.MeanPremium, convErr = decimal.NewFromString(meanStr); convErr != nil {
		return PremiumStats{}, fmt.Errorf("parse mean premium: %w", convErr)
	}
	if stats.MinPremium, convErr = decimal.NewFromString(minStr); convErr != nil {
		return PremiumStats{}, fmt.Errorf("parse min premium: %w", convErr)
	}
	if stats.MaxPremium, convErr = decimal.NewFromString(maxStr); convErr != nil {
		return PremiumStats{}, fmt.Errorf("parse max premium: %w", convErr)
	}
	return stats, nil
}

// InsertRun persists a pipeline run record.
func (s *Store) InsertRun(ctx context.Context, run RunRecord) (RunRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return RunRecord{}, err
	}

	var errMsg interface{}
	if run.Error != nil {
		errMsg = *run.Error
	}

	row := pool.QueryRow(ctx, insertRunSQL,
		run.Bucket,
		run.InputEvents,
		run.ValidEvents,
		run.InvalidCount,
		run.FeatureRows,
		run.PricedRows,
		run.Status,
		errMsg,
	)
	if scanErr := row.Scan(&run.ID, &run.CreatedAt); scanErr != nil {
		return RunRecord{}, fmt.Errorf("insert pipeline run: %w", scanErr)
	}
	return run, nil
}

// ListRecentRuns lists most recent pipeline runs.
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentRunsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent runs: %w", queryErr)
	}
	defer rows.Close()

	runs := make([]RunRecord, 0, limit)
	for rows.Next() {
		var run RunRecord
		var errMsg sql.NullString
		if err := rows.Scan(
			&run.ID,
			&run.Bucket,
			&run.InputEvents,
			&run.ValidEvents,
			&run.InvalidCount,
			&run.FeatureRows,
			&run.PricedRows,
			&run.Status,
			&errMsg,
			&run.CreatedAt,
		); err != nil {
			return nil, err
		}
		if errMsg.Valid {
			msg := errMsg.String
			run.Error = &msg
		}
		runs = append(runs, run)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return runs, nil
}

func scanPricedRow(rows pgx.Rows) (PricedRowRecord, error) {
	var (
		rec        PricedRowRecord
		premiumStr string
		breakdown  json.RawMessage
	)

	if err := rows.Scan(
		&rec.DriverID,
		&rec.PeriodKey,
		&rec.PeriodStart,
		&rec.PeriodEnd,
		&rec.Miles,
		&rec.RiskScore,
		&rec.ModelMultiplier,
		&rec.FinalMultiplier,
		&premiumStr,
		&rec.PriorClaimCount,
		&rec.CarValue,
		&breakdown,
		&rec.CreatedAt,
	); err != nil {
		return PricedRowRecord{}, err
	}

	premium, err := decimal.NewFromString(premiumStr)
	if err != nil {
		return PricedRowRecord{}, fmt.Errorf("parse final premium: %w", err)
	}
	rec.FinalMonthlyPremium = premium
	rec.Breakdown = breakdown
	return rec, nil
}
