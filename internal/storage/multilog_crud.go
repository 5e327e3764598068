package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/KevinKickass/OpenEnergyCore/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SaveMultiLogConfig upserts a named dashboard selection. The log ID list
// is replaced as a whole; the engine prunes it before saving.
func (p *PostgresClient) SaveMultiLogConfig(ctx context.Context, cfg types.MultiLogConfig) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO multi_log_configs (id, config_name, trend_log_ids, log_limit, refresh_rate)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id)
		DO UPDATE SET
			config_name = EXCLUDED.config_name,
			trend_log_ids = EXCLUDED.trend_log_ids,
			log_limit = EXCLUDED.log_limit,
			refresh_rate = EXCLUDED.refresh_rate,
			updated_at = NOW()
	`, cfg.ID, cfg.Name, cfg.TrendLogIDs, cfg.LogLimit, cfg.RefreshRate)
	if err != nil {
		return fmt.Errorf("failed to save multi-log config: %w", err)
	}
	return nil
}

func (p *PostgresClient) GetMultiLogConfig(ctx context.Context, id uuid.UUID) (*types.MultiLogConfig, error) {
	var cfg types.MultiLogConfig
	err := p.pool.QueryRow(ctx, `
		SELECT id, config_name, trend_log_ids, log_limit, refresh_rate, created_at, updated_at
		FROM multi_log_configs
		WHERE id = $1
	`, id).Scan(
		&cfg.ID, &cfg.Name, &cfg.TrendLogIDs, &cfg.LogLimit,
		&cfg.RefreshRate, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get multi-log config: %w", err)
	}
	return &cfg, nil
}

func (p *PostgresClient) ListMultiLogConfigs(ctx context.Context) ([]types.MultiLogConfig, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, config_name, trend_log_ids, log_limit, refresh_rate, created_at, updated_at
		FROM multi_log_configs
		ORDER BY config_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list multi-log configs: %w", err)
	}
	defer rows.Close()

	configs := make([]types.MultiLogConfig, 0)
	for rows.Next() {
		var cfg types.MultiLogConfig
		err := rows.Scan(
			&cfg.ID, &cfg.Name, &cfg.TrendLogIDs, &cfg.LogLimit,
			&cfg.RefreshRate, &cfg.CreatedAt, &cfg.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan multi-log config: %w", err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

func (p *PostgresClient) DeleteMultiLogConfig(ctx context.Context, id uuid.UUID) error {
	result, err := p.pool.Exec(ctx, `
		DELETE FROM multi_log_configs WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete multi-log config: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
