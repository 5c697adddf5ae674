package runtime

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	obsmodel "github.com/flowgrid/platform/internal/observability/model"
	"github.com/flowgrid/platform/internal/platform/logger"
	"github.com/flowgrid/platform/internal/registry"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New(t.TempDir(), logger.New("error", "json"))
	_, err := reg.Load()
	require.NoError(t, err)
	return reg
}

// fakeInvoker returns a canned output, optionally failing a fixed number
// of times per node before succeeding, to exercise the retry/DLQ path.
type fakeInvoker struct {
	mu         sync.Mutex
	failCounts map[string]int
	output     any
	httpStatus int
	failErr    error
}

func (f *fakeInvoker) Invoke(ctx context.Context, req InvokeRequest) (InvokeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	remaining := f.failCounts[req.NodeID]
	if remaining > 0 {
		f.failCounts[req.NodeID] = remaining - 1
		return InvokeResult{HTTPStatusCode: f.httpStatus}, f.failErr
	}
	return InvokeResult{Output: f.output, HTTPStatusCode: 200}, nil
}

type fakeStore struct {
	mu         sync.Mutex
	executions []obsmodel.Execution
	nodes      []obsmodel.NodeExecution
}

func (s *fakeStore) SaveExecution(ctx context.Context, exec *obsmodel.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions = append(s.executions, *exec)
	return nil
}

func (s *fakeStore) SaveNodeExecution(ctx context.Context, ne *obsmodel.NodeExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = append(s.nodes, *ne)
	return nil
}

func (s *fakeStore) latest(nodeID string) *obsmodel.NodeExecution {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last *obsmodel.NodeExecution
	for i := range s.nodes {
		if s.nodes[i].NodeID == nodeID {
			n := s.nodes[i]
			last = &n
		}
	}
	return last
}

type fakeTimeline struct {
	mu     sync.Mutex
	events []TimelineEvent
}

func (f *fakeTimeline) Publish(evt TimelineEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
}

type fakeCreds struct{}

func (fakeCreds) Credentials(ctx context.Context, userID, appID string) (map[string]string, error) {
	return map[string]string{}, nil
}
