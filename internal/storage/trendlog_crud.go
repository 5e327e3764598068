package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/KevinKickass/OpenEnergyCore/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateTrendLog persists a new trend log. The register descriptor is
// stored as JSONB snapshot alongside the log.
func (p *PostgresClient) CreateTrendLog(ctx context.Context, log types.TrendLog) (types.TrendLog, error) {
	registerJSON, err := json.Marshal(log.Register)
	if err != nil {
		return types.TrendLog{}, fmt.Errorf("failed to marshal register: %w", err)
	}

	err = p.pool.QueryRow(ctx, `
		INSERT INTO trend_logs (
			analyzer_id, register_id, register, period, interval,
			is_kwh_counter, percentage_threshold, cleanup_period, end_date
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`, log.AnalyzerID, log.RegisterID, registerJSON, log.Period, log.Interval,
		log.IsKWHCounter, log.PercentageThreshold, log.CleanupPeriod, log.EndDate,
	).Scan(&log.ID, &log.CreatedAt, &log.UpdatedAt)

	if err != nil {
		return types.TrendLog{}, fmt.Errorf("failed to insert trend log: %w", err)
	}
	return log, nil
}

func (p *PostgresClient) GetTrendLog(ctx context.Context, id uuid.UUID) (*types.TrendLog, error) {
	var log types.TrendLog
	var registerJSON []byte

	err := p.pool.QueryRow(ctx, `
		SELECT id, analyzer_id, register_id, register, period, interval,
		       is_kwh_counter, percentage_threshold, cleanup_period, end_date,
		       created_at, updated_at
		FROM trend_logs
		WHERE id = $1
	`, id).Scan(
		&log.ID, &log.AnalyzerID, &log.RegisterID, &registerJSON, &log.Period,
		&log.Interval, &log.IsKWHCounter, &log.PercentageThreshold,
		&log.CleanupPeriod, &log.EndDate, &log.CreatedAt, &log.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get trend log: %w", err)
	}

	if err := json.Unmarshal(registerJSON, &log.Register); err != nil {
		return nil, fmt.Errorf("failed to unmarshal register: %w", err)
	}
	return &log, nil
}

func (p *PostgresClient) ListTrendLogs(ctx context.Context) ([]types.TrendLog, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, analyzer_id, register_id, register, period, interval,
		       is_kwh_counter, percentage_threshold, cleanup_period, end_date,
		       created_at, updated_at
		FROM trend_logs
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query trend logs: %w", err)
	}
	defer rows.Close()

	logs := make([]types.TrendLog, 0)
	for rows.Next() {
		var log types.TrendLog
		var registerJSON []byte
		err := rows.Scan(
			&log.ID, &log.AnalyzerID, &log.RegisterID, &registerJSON, &log.Period,
			&log.Interval, &log.IsKWHCounter, &log.PercentageThreshold,
			&log.CleanupPeriod, &log.EndDate, &log.CreatedAt, &log.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trend log: %w", err)
		}
		if err := json.Unmarshal(registerJSON, &log.Register); err != nil {
			return nil, fmt.Errorf("failed to unmarshal register: %w", err)
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// UpdateTrendLog updates the policy fields of an existing log. The register
// snapshot stays immutable.
func (p *PostgresClient) UpdateTrendLog(ctx context.Context, log types.TrendLog) error {
	result, err := p.pool.Exec(ctx, `
		UPDATE trend_logs
		SET period = $1, interval = $2, is_kwh_counter = $3,
		    percentage_threshold = $4, cleanup_period = $5, end_date = $6,
		    updated_at = NOW()
		WHERE id = $7
	`, log.Period, log.Interval, log.IsKWHCounter,
		log.PercentageThreshold, log.CleanupPeriod, log.EndDate, log.ID)

	if err != nil {
		return fmt.Errorf("failed to update trend log: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTrendLog removes the log and, via FK cascade, all its samples
func (p *PostgresClient) DeleteTrendLog(ctx context.Context, id uuid.UUID) error {
	result, err := p.pool.Exec(ctx, `
		DELETE FROM trend_logs WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete trend log: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertSample appends one sample. Samples are append-only.
func (p *PostgresClient) InsertSample(ctx context.Context, sample types.Sample) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO samples (trend_log_id, timestamp, value)
		VALUES ($1, $2, $3)
	`, sample.TrendLogID, sample.Timestamp, sample.Value)
	if err != nil {
		return fmt.Errorf("failed to insert sample: %w", err)
	}
	return nil
}

// FetchSamples returns the most recent samples of a log in chronological
// order. Returns ErrNotFound when the log itself no longer exists, so
// callers can tell a deleted log apart from one that has no samples yet.
func (p *PostgresClient) FetchSamples(ctx context.Context, trendLogID uuid.UUID, limit int) ([]types.Sample, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM trend_logs WHERE id = $1)
	`, trendLogID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check trend log: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	rows, err := p.pool.Query(ctx, `
		SELECT trend_log_id, timestamp, value
		FROM (
			SELECT trend_log_id, timestamp, value
			FROM samples
			WHERE trend_log_id = $1
			ORDER BY timestamp DESC
			LIMIT $2
		) recent
		ORDER BY timestamp
	`, trendLogID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	samples := make([]types.Sample, 0, limit)
	for rows.Next() {
		var s types.Sample
		if err := rows.Scan(&s.TrendLogID, &s.Timestamp, &s.Value); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// LatestSample returns the newest sample of a log, or nil if none exists
func (p *PostgresClient) LatestSample(ctx context.Context, trendLogID uuid.UUID) (*types.Sample, error) {
	var s types.Sample
	err := p.pool.QueryRow(ctx, `
		SELECT trend_log_id, timestamp, value
		FROM samples
		WHERE trend_log_id = $1
		ORDER BY timestamp DESC
		LIMIT 1
	`, trendLogID).Scan(&s.TrendLogID, &s.Timestamp, &s.Value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest sample: %w", err)
	}
	return &s, nil
}

// DeleteSamplesBefore removes all samples of a log older than cutoff.
// Used by the cleanup reaper for onChange logs.
func (p *PostgresClient) DeleteSamplesBefore(ctx context.Context, trendLogID uuid.UUID, cutoff time.Time) (int64, error) {
	result, err := p.pool.Exec(ctx, `
		DELETE FROM samples
		WHERE trend_log_id = $1 AND timestamp < $2
	`, trendLogID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete samples: %w", err)
	}
	return result.RowsAffected(), nil
}
