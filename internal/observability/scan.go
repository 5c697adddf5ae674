package observability

import (
	"encoding/json"
	"fmt"
	"time"

	obsmodel "github.com/flowgrid/platform/internal/observability/model"
)

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*obsmodel.Execution, error) {
	var (
		exec                                    obsmodel.Execution
		status                                  string
		durationMs                              *int64
		triggerData, finalOutput, metadataBytes []byte
	)

	err := row.Scan(
		&exec.ExecutionID, &exec.WorkflowID, &exec.UserID, &status, &exec.StartTime,
		&exec.EndTime, &durationMs, &exec.TriggerType, &triggerData, &exec.TotalNodes,
		&exec.CompletedNodes, &exec.FailedNodes, &finalOutput, &exec.Error,
		&exec.CorrelationID, &exec.ParentExecutionID, &metadataBytes,
	)
	if err != nil {
		return nil, err
	}

	exec.Status = obsmodel.ExecutionStatus(status)
	if durationMs != nil {
		d := msToDuration(*durationMs)
		exec.Duration = &d
	}
	if err := unmarshalIfPresent(triggerData, &exec.TriggerData); err != nil {
		return nil, fmt.Errorf("unmarshal trigger data: %w", err)
	}
	if err := unmarshalIfPresent(finalOutput, &exec.FinalOutput); err != nil {
		return nil, fmt.Errorf("unmarshal final output: %w", err)
	}
	if err := unmarshalIfPresent(metadataBytes, &exec.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal execution metadata: %w", err)
	}

	return &exec, nil
}

func scanNodeExecution(row rowScanner) (*obsmodel.NodeExecution, error) {
	var (
		ne                                          obsmodel.NodeExecution
		status                                      string
		durationMs                                  *int64
		input, output, retryHistory, metadataBytes []byte
	)

	err := row.Scan(
		&ne.ExecutionID, &ne.NodeID, &ne.NodeType, &status, &ne.StartTime, &ne.EndTime,
		&durationMs, &ne.Attempt, &ne.MaxAttempts, &input, &output, &ne.Error,
		&ne.CorrelationID, &retryHistory, &metadataBytes,
	)
	if err != nil {
		return nil, err
	}

	ne.Status = obsmodel.NodeExecutionStatus(status)
	if durationMs != nil {
		d := msToDuration(*durationMs)
		ne.Duration = &d
	}
	if err := unmarshalIfPresent(input, &ne.Input); err != nil {
		return nil, fmt.Errorf("unmarshal node input: %w", err)
	}
	if err := unmarshalIfPresent(output, &ne.Output); err != nil {
		return nil, fmt.Errorf("unmarshal node output: %w", err)
	}
	if err := unmarshalIfPresent(retryHistory, &ne.RetryHistory); err != nil {
		return nil, fmt.Errorf("unmarshal retry history: %w", err)
	}
	if err := unmarshalIfPresent(metadataBytes, &ne.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal node metadata: %w", err)
	}

	return &ne, nil
}

func unmarshalIfPresent(raw []byte, dest any) error {
	if len(raw) == 0 {
		return nil
	}
	if string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dest)
}

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
