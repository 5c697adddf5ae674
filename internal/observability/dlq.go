package observability

import (
	"context"
	"fmt"

	obsmodel "github.com/flowgrid/platform/internal/observability/model"
	"github.com/flowgrid/platform/internal/retry"
)

// ListDLQ implements spec's listDLQ({workflowId?}), joining the retry
// manager's Redis-backed DLQ index against the Postgres executions
// table since DLQItem itself carries no workflow id.
func (s *Store) ListDLQ(ctx context.Context, retryMgr *retry.Manager, workflowID string) ([]obsmodel.DLQItem, error) {
	items, err := retryMgr.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list dlq: %w", err)
	}
	if workflowID == "" {
		return items, nil
	}

	filtered := make([]obsmodel.DLQItem, 0, len(items))
	for _, item := range items {
		wfID, ok, err := s.workflowIDForExecution(ctx, item.ExecutionID)
		if err != nil {
			return nil, err
		}
		if ok && wfID == workflowID {
			filtered = append(filtered, item)
		}
	}
	return filtered, nil
}

func (s *Store) workflowIDForExecution(ctx context.Context, executionID string) (string, bool, error) {
	var workflowID string
	err := s.db.QueryRow(ctx, `SELECT workflow_id FROM executions WHERE execution_id = $1`, executionID).Scan(&workflowID)
	if err != nil {
		if isNoRows(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("lookup workflow for execution %s: %w", executionID, err)
	}
	return workflowID, true, nil
}
