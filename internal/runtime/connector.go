package runtime

import "context"

// InvokeRequest carries everything an Invoker needs to run one action.{app}
// node: resolved parameters, stored credentials, and the execution context
// needed for idempotency and correlation.
type InvokeRequest struct {
	AppID         string
	OperationID   string
	Params        map[string]any
	Credentials   map[string]string
	ExecutionID   string
	NodeID        string
	CorrelationID string
	IdempotencyKey string
}

// InvokeResult is what a connector call returns on success.
type InvokeResult struct {
	Output         any
	HTTPStatusCode int
	Headers        map[string]string
}

// Invoker is the connector invocation boundary: action.{appId}:{opId}
// nodes are dispatched through it. Concrete adapters (HTTP connectors,
// first-party SDKs) live outside this package and are injected at
// bootstrap time.
type Invoker interface {
	Invoke(ctx context.Context, req InvokeRequest) (InvokeResult, error)
}
