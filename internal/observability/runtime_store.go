package observability

import (
	"context"
	"sync"

	obsmodel "github.com/flowgrid/platform/internal/observability/model"
)

// RuntimeStore adapts Store + Recorder to runtime.Store, the narrow
// write-path interface the Runner depends on. It tracks each
// execution's node executions in memory just long enough to fold them
// into one stats sample when the execution reaches a terminal status.
type RuntimeStore struct {
	store    *Store
	recorder *Recorder

	mu    sync.Mutex
	nodes map[string][]obsmodel.NodeExecution
}

// NewRuntimeStore builds a RuntimeStore.
func NewRuntimeStore(store *Store, recorder *Recorder) *RuntimeStore {
	return &RuntimeStore{store: store, recorder: recorder, nodes: make(map[string][]obsmodel.NodeExecution)}
}

// SaveExecution persists exec and, once terminal, records a stats
// sample and drops the cached node list.
func (rs *RuntimeStore) SaveExecution(ctx context.Context, exec *obsmodel.Execution) error {
	if err := rs.store.SaveExecution(ctx, exec); err != nil {
		return err
	}

	if exec.Status.Terminal() {
		rs.mu.Lock()
		nodes := rs.nodes[exec.ExecutionID]
		delete(rs.nodes, exec.ExecutionID)
		rs.mu.Unlock()

		rs.recorder.RecordExecution(ctx, exec, nodes)
	}
	return nil
}

// SaveNodeExecution persists ne and keeps a copy in the per-execution
// cache used by the eventual stats sample.
func (rs *RuntimeStore) SaveNodeExecution(ctx context.Context, ne *obsmodel.NodeExecution) error {
	if err := rs.store.SaveNodeExecution(ctx, ne); err != nil {
		return err
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	list := rs.nodes[ne.ExecutionID]
	replaced := false
	for i, existing := range list {
		if existing.NodeID == ne.NodeID {
			list[i] = *ne
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, *ne)
	}
	rs.nodes[ne.ExecutionID] = list
	return nil
}
