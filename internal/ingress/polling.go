package ingress

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/flowgrid/platform/internal/platform/logger"
)

// pollQueue is a min-heap of registered pollers ordered by NextPoll,
// standing in for a timer wheel with one entry per trigger.
type pollQueue []*PollingTrigger

func (q pollQueue) Len() int            { return len(q) }
func (q pollQueue) Less(i, j int) bool  { return q[i].NextPoll.Before(q[j].NextPoll) }
func (q pollQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *pollQueue) Push(x any)         { *q = append(*q, x.(*PollingTrigger)) }
func (q *pollQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// Scheduler runs a single goroutine that ticks registered polling
// triggers in order of next-due time and emits new items as TriggerEvents.
type Scheduler struct {
	mu       sync.Mutex
	queue    pollQueue
	poller   Poller
	dedupe   *Dedupe
	sink     Sink
	log      *logger.Logger
	minInterval time.Duration

	cursors map[string]map[string]any
}

// NewScheduler builds a Scheduler enforcing minInterval between ticks of
// any single trigger.
func NewScheduler(poller Poller, dedupe *Dedupe, sink Sink, log *logger.Logger, minInterval time.Duration) *Scheduler {
	return &Scheduler{
		poller:      poller,
		dedupe:      dedupe,
		sink:        sink,
		log:         log,
		minInterval: minInterval,
		cursors:     make(map[string]map[string]any),
	}
}

// Register adds a polling trigger to the schedule.
func (s *Scheduler) Register(trigger *PollingTrigger) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if trigger.Interval < s.minInterval {
		trigger.Interval = s.minInterval
	}
	if trigger.NextPoll.IsZero() {
		trigger.NextPoll = time.Now().Add(trigger.Interval)
	}
	heap.Push(&s.queue, trigger)
}

// Run drives the scheduler loop until ctx is cancelled, waking whenever
// the earliest-due trigger's tick arrives.
func (s *Scheduler) Run(ctx context.Context) {
	timer := time.NewTimer(s.minInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.tickDue(ctx)
			timer.Reset(s.nextWait())
		}
	}
}

func (s *Scheduler) nextWait() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queue.Len() == 0 {
		return s.minInterval
	}
	wait := time.Until(s.queue[0].NextPoll)
	if wait < 0 {
		return 0
	}
	return wait
}

func (s *Scheduler) tickDue(ctx context.Context) {
	now := time.Now()
	var due []*PollingTrigger

	s.mu.Lock()
	for s.queue.Len() > 0 && !s.queue[0].NextPoll.After(now) {
		trigger := heap.Pop(&s.queue).(*PollingTrigger)
		due = append(due, trigger)
	}
	s.mu.Unlock()

	for _, trigger := range due {
		s.TickOne(ctx, trigger)

		trigger.NextPoll = time.Now().Add(trigger.Interval)
		s.mu.Lock()
		heap.Push(&s.queue, trigger)
		s.mu.Unlock()
	}
}

// TickOne runs a single poll cycle for trigger, used by both the
// background loop and the manual admin tick endpoint.
func (s *Scheduler) TickOne(ctx context.Context, trigger *PollingTrigger) {
	if !trigger.IsActive {
		return
	}

	s.mu.Lock()
	cursor := s.cursors[trigger.ID]
	s.mu.Unlock()

	results, nextCursor, err := s.poller.Poll(trigger.AppID, trigger.TriggerID, cursor)
	if err != nil {
		s.log.Error("poll failed", "trigger_id", trigger.ID, "error", err)
		return
	}

	s.mu.Lock()
	s.cursors[trigger.ID] = nextCursor
	s.mu.Unlock()

	for _, result := range results {
		s.emit(ctx, trigger, result)
	}
}

func (s *Scheduler) emit(ctx context.Context, trigger *PollingTrigger, result PollResult) {
	var dedupeHash string
	if trigger.DedupeKey != "" {
		value, _ := result.Item[trigger.DedupeKey].(string)
		dedupeHash = PollHash(trigger.ID, value)

		duplicate, err := s.dedupe.SeenOrRecord(ctx, NamespacePolling, trigger.ID, dedupeHash)
		if err != nil {
			s.log.Error("poll dedupe check failed", "trigger_id", trigger.ID, "error", err)
			return
		}
		if duplicate {
			return
		}
	}

	event := TriggerEvent{
		PollID:    trigger.ID,
		AppID:     trigger.AppID,
		TriggerID: trigger.TriggerID,
		Payload:   result.Item,
		Headers:   map[string]string{"x-trigger-type": "polling"},
		Timestamp: time.Now(),
		DedupeHash: dedupeHash,
	}

	if err := s.sink.Accept(event); err != nil {
		s.log.Error("failed to accept polled event", "trigger_id", trigger.ID, "error", err)
	}
}
