package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/KevinKickass/OpenEnergyCore/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SaveOrUpdateUnitTree upserts a building tree by its root name. The whole
// tree is stored as one JSONB document.
func (p *PostgresClient) SaveOrUpdateUnitTree(ctx context.Context, tree types.UnitNode) (uuid.UUID, error) {
	treeJSON, err := json.Marshal(tree)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal unit tree: %w", err)
	}

	var id uuid.UUID
	err = p.pool.QueryRow(ctx, `
		INSERT INTO unit_trees (tree_name, definition)
		VALUES ($1, $2)
		ON CONFLICT (tree_name)
		DO UPDATE SET
			definition = EXCLUDED.definition,
			updated_at = NOW()
		RETURNING id
	`, tree.Name, treeJSON).Scan(&id)

	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to upsert unit tree: %w", err)
	}
	return id, nil
}

func (p *PostgresClient) GetUnitTree(ctx context.Context, id uuid.UUID) (*types.UnitNode, error) {
	var treeJSON []byte
	err := p.pool.QueryRow(ctx, `
		SELECT definition FROM unit_trees WHERE id = $1
	`, id).Scan(&treeJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get unit tree: %w", err)
	}

	var tree types.UnitNode
	if err := json.Unmarshal(treeJSON, &tree); err != nil {
		return nil, fmt.Errorf("failed to unmarshal unit tree: %w", err)
	}
	return &tree, nil
}

func (p *PostgresClient) ListUnitTrees(ctx context.Context) ([]types.UnitNode, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT definition FROM unit_trees ORDER BY tree_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query unit trees: %w", err)
	}
	defer rows.Close()

	trees := make([]types.UnitNode, 0)
	for rows.Next() {
		var treeJSON []byte
		if err := rows.Scan(&treeJSON); err != nil {
			return nil, fmt.Errorf("failed to scan unit tree: %w", err)
		}
		var tree types.UnitNode
		if err := json.Unmarshal(treeJSON, &tree); err != nil {
			return nil, fmt.Errorf("failed to unmarshal unit tree: %w", err)
		}
		trees = append(trees, tree)
	}
	return trees, rows.Err()
}

func (p *PostgresClient) DeleteUnitTree(ctx context.Context, id uuid.UUID) error {
	result, err := p.pool.Exec(ctx, `
		DELETE FROM unit_trees WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete unit tree: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
