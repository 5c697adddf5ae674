package ingress

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowgrid/platform/internal/platform/logger"
)

type fakePoller struct {
	items []PollResult
}

func (f *fakePoller) Poll(appID, triggerID string, cursor map[string]any) ([]PollResult, map[string]any, error) {
	return f.items, map[string]any{"called": true}, nil
}

type fakeSink struct {
	events []TriggerEvent
}

func (f *fakeSink) Accept(event TriggerEvent) error {
	f.events = append(f.events, event)
	return nil
}

func TestSchedulerTickOneDedupesPolledItems(t *testing.T) {
	mr := newMiniRedis(t)
	dedupe := NewDedupe(mr, 1000)

	poller := &fakePoller{items: []PollResult{
		{Item: map[string]any{"id": "msg-1"}},
		{Item: map[string]any{"id": "msg-1"}},
		{Item: map[string]any{"id": "msg-2"}},
	}}
	sink := &fakeSink{}
	log := logger.New("error", "json")

	sched := NewScheduler(poller, dedupe, sink, log, time.Second)
	trigger := &PollingTrigger{ID: "t1", AppID: "gmail", TriggerID: "new_email", IsActive: true, DedupeKey: "id"}

	sched.TickOne(context.Background(), trigger)

	require.Len(t, sink.events, 2)
}

func TestSchedulerSkipsInactiveTrigger(t *testing.T) {
	mr := newMiniRedis(t)
	dedupe := NewDedupe(mr, 1000)
	poller := &fakePoller{items: []PollResult{{Item: map[string]any{"id": "x"}}}}
	sink := &fakeSink{}
	log := logger.New("error", "json")

	sched := NewScheduler(poller, dedupe, sink, log, time.Second)
	trigger := &PollingTrigger{ID: "t1", IsActive: false}

	sched.TickOne(context.Background(), trigger)

	require.Empty(t, sink.events)
}
