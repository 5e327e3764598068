package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/KevinKickass/OpenEnergyCore/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SaveOrUpdateAnalyzer upserts an analyzer by name
func (p *PostgresClient) SaveOrUpdateAnalyzer(ctx context.Context, analyzer types.Analyzer) (uuid.UUID, error) {
	var id uuid.UUID
	err := p.pool.QueryRow(ctx, `
		INSERT INTO analyzers (analyzer_name, profile, ip_address, port, unit_id, enabled)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (analyzer_name)
		DO UPDATE SET
			profile = EXCLUDED.profile,
			ip_address = EXCLUDED.ip_address,
			port = EXCLUDED.port,
			unit_id = EXCLUDED.unit_id,
			enabled = EXCLUDED.enabled,
			updated_at = NOW()
		RETURNING id
	`, analyzer.Name, analyzer.Profile, analyzer.IPAddress,
		analyzer.Port, analyzer.UnitID, analyzer.Enabled,
	).Scan(&id)

	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to upsert analyzer: %w", err)
	}
	return id, nil
}

func (p *PostgresClient) GetAnalyzer(ctx context.Context, id uuid.UUID) (*types.Analyzer, error) {
	var a types.Analyzer
	err := p.pool.QueryRow(ctx, `
		SELECT id, analyzer_name, profile, ip_address, port, unit_id, enabled
		FROM analyzers
		WHERE id = $1
	`, id).Scan(&a.ID, &a.Name, &a.Profile, &a.IPAddress, &a.Port, &a.UnitID, &a.Enabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get analyzer: %w", err)
	}
	return &a, nil
}

// ListAnalyzers returns all enabled analyzers
func (p *PostgresClient) ListAnalyzers(ctx context.Context) ([]types.Analyzer, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, analyzer_name, profile, ip_address, port, unit_id, enabled
		FROM analyzers
		WHERE enabled = true
		ORDER BY analyzer_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyzers: %w", err)
	}
	defer rows.Close()

	analyzers := make([]types.Analyzer, 0)
	for rows.Next() {
		var a types.Analyzer
		err := rows.Scan(&a.ID, &a.Name, &a.Profile, &a.IPAddress, &a.Port, &a.UnitID, &a.Enabled)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analyzer: %w", err)
		}
		analyzers = append(analyzers, a)
	}
	return analyzers, rows.Err()
}

// DeleteAnalyzer removes the analyzer and, via FK cascade, its trend logs
func (p *PostgresClient) DeleteAnalyzer(ctx context.Context, id uuid.UUID) error {
	result, err := p.pool.Exec(ctx, `
		DELETE FROM analyzers WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete analyzer: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
