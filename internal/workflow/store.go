// Package workflow stores compiled WorkflowGraphs, keyed by workflowId
// (not by a content hash), so a trigger firing long after the Planner Adapter ran can
// still look up the graph it produced.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flowgrid/platform/internal/platform/db"
	"github.com/flowgrid/platform/internal/runtime/model"
)

// Store persists WorkflowGraphs in Postgres, one row per workflowId holding
// the latest version.
type Store struct {
	db *db.DB
}

// New builds a Store.
func New(database *db.DB) *Store {
	return &Store{db: database}
}

// EnsureSchema creates the backing table if it doesn't already exist.
func EnsureSchema(ctx context.Context, database *db.DB) error {
	_, err := database.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS workflow_graphs (
			workflow_id TEXT PRIMARY KEY,
			version     INT NOT NULL,
			graph       JSONB NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}

// Put inserts or replaces the graph for g.WorkflowID, assigning the next
// version number.
func (s *Store) Put(ctx context.Context, g *model.WorkflowGraph) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshal workflow graph: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO workflow_graphs (workflow_id, version, graph)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (workflow_id) DO UPDATE SET
			version = workflow_graphs.version + 1,
			graph = EXCLUDED.graph,
			created_at = now()
	`, g.WorkflowID, g.Version+1, data)
	if err != nil {
		return fmt.Errorf("store workflow graph: %w", err)
	}
	return nil
}

// Get fetches the current graph for workflowID, returning (nil, nil) if
// none is registered.
func (s *Store) Get(ctx context.Context, workflowID string) (*model.WorkflowGraph, error) {
	var version int
	var data []byte
	err := s.db.QueryRow(ctx, `SELECT version, graph FROM workflow_graphs WHERE workflow_id = $1`, workflowID).Scan(&version, &data)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get workflow graph: %w", err)
	}

	var g model.WorkflowGraph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("unmarshal workflow graph: %w", err)
	}
	g.WorkflowID = workflowID
	g.Version = version
	return &g, nil
}

// Exists reports whether workflowID has a registered graph.
func (s *Store) Exists(ctx context.Context, workflowID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM workflow_graphs WHERE workflow_id = $1)`, workflowID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check workflow graph existence: %w", err)
	}
	return exists, nil
}
