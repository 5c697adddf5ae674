package main

import (
	"context"
	"fmt"
	"time"

	"github.com/flowgrid/platform/internal/ingress"
	obsmodel "github.com/flowgrid/platform/internal/observability/model"
	"github.com/flowgrid/platform/internal/platform/logger"
	"github.com/flowgrid/platform/internal/runtime"
	"github.com/flowgrid/platform/internal/triggers"
	"github.com/flowgrid/platform/internal/workflow"
)

// executionLauncher builds a new Execution against a registered workflow's
// compiled graph and runs it in the background, so callers (the trigger
// sink, the retry endpoints) never block on a full run completing.
type executionLauncher struct {
	runner  *runtime.Runner
	wfStore *workflow.Store
	log     *logger.Logger
}

// launch looks up workflowID's graph and starts a new Execution with the
// given trigger data, optionally linked to a parent execution.
func (l *executionLauncher) launch(workflowID, triggerType, userID string, triggerData map[string]any, parentExecutionID *string) (*obsmodel.Execution, error) {
	ctx := context.Background()

	graph, err := l.wfStore.Get(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("load workflow graph: %w", err)
	}
	if graph == nil {
		return nil, fmt.Errorf("workflow %q is not registered", workflowID)
	}

	exec := &obsmodel.Execution{
		ExecutionID:       newID("exec"),
		WorkflowID:        workflowID,
		Status:            obsmodel.ExecutionPending,
		StartTime:         time.Now(),
		TriggerType:       triggerType,
		TriggerData:       triggerData,
		CorrelationID:     newID("corr"),
		UserID:            userID,
		ParentExecutionID: parentExecutionID,
	}

	go func() {
		runCtx := context.Background()
		if err := l.runner.Execute(runCtx, graph, exec); err != nil {
			l.log.Error("execution ended with error", "execution_id", exec.ExecutionID, "error", err)
		}
	}()

	return exec, nil
}

// triggerSink adapts ingress.Sink to the launcher: every accepted
// webhook/poll delivery resolves its owning workflow through the trigger
// registry and starts a new execution.
type triggerSink struct {
	launcher *executionLauncher
	trigReg  *triggers.Registry
	log      *logger.Logger
}

func (s *triggerSink) Accept(event ingress.TriggerEvent) error {
	workflowID, triggerType, err := s.resolveWorkflow(event)
	if err != nil {
		return err
	}

	_, err = s.launcher.launch(workflowID, triggerType, "", event.Payload, nil)
	return err
}

func (s *triggerSink) resolveWorkflow(event ingress.TriggerEvent) (workflowID, triggerType string, err error) {
	if event.WebhookID != "" {
		t, ok := s.trigReg.GetWebhookTrigger(event.WebhookID)
		if !ok {
			return "", "", fmt.Errorf("no registration for webhook %q", event.WebhookID)
		}
		return t.WorkflowID, "webhook", nil
	}
	if event.PollID != "" {
		t, ok := s.trigReg.GetPollingTrigger(event.PollID)
		if !ok {
			return "", "", fmt.Errorf("no registration for poll %q", event.PollID)
		}
		return t.WorkflowID, "polling", nil
	}
	return "", "", fmt.Errorf("trigger event carries neither a webhook nor poll id")
}
