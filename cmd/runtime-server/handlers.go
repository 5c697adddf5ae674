package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/flowgrid/platform/internal/ingress"
	"github.com/flowgrid/platform/internal/observability"
	"github.com/flowgrid/platform/internal/planner"
	"github.com/flowgrid/platform/internal/platform/logger"
	"github.com/flowgrid/platform/internal/platform/ratelimit"
	"github.com/flowgrid/platform/internal/registry"
	"github.com/flowgrid/platform/internal/retry"
	"github.com/flowgrid/platform/internal/runtime"
	"github.com/flowgrid/platform/internal/triggers"
	"github.com/flowgrid/platform/internal/workflow"
)

// controlAPI mounts the runtime control surface: workflow/trigger
// registration, execution lifecycle, and the run-log read path.
type controlAPI struct {
	reg       *registry.Registry
	wfStore   *workflow.Store
	trigReg   *triggers.Registry
	obsStore  *observability.Store
	recorder  *observability.Recorder
	retryMgr  *retry.Manager
	runner    *runtime.Runner
	launcher  *executionLauncher
	scheduler *ingress.Scheduler
	limiter   *ratelimit.Limiter
	log       *logger.Logger
}

// globalRateLimitMiddleware protects the whole control API from being
// overwhelmed, independent of any per-tenant/per-workflow accounting.
func (a *controlAPI) globalRateLimitMiddleware(limit int64, windowSec int) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			result, err := a.limiter.CheckGlobal(c.Request().Context(), limit, windowSec)
			if err != nil {
				a.log.Warn("rate limit check failed, allowing request", "error", err)
				return next(c)
			}
			if !result.Allowed {
				return c.JSON(http.StatusTooManyRequests, map[string]any{
					"ok":                false,
					"error":             "global rate limit exceeded",
					"retryAfterSeconds": result.RetryAfterSeconds,
				})
			}
			return next(c)
		}
	}
}

func (a *controlAPI) register(e *echo.Echo) {
	e.Use(a.globalRateLimitMiddleware(100, 60))

	e.POST("/workflows", a.registerWorkflow)
	e.POST("/triggers/webhook", a.registerWebhookTrigger)
	e.POST("/triggers/poll", a.registerPollTrigger)
	e.POST("/triggers/poll/:triggerId/tick", a.tickPollTrigger)

	e.POST("/executions", a.createExecution)
	e.GET("/executions", a.listExecutions)
	e.GET("/executions/:id", a.getExecution)
	e.POST("/executions/:id/retry", a.retryExecution)
	e.POST("/executions/:id/nodes/:nodeId/retry", a.retryNode)

	e.GET("/dlq", a.listDLQ)
	e.GET("/stats", a.getStats)

	e.POST("/admin/registry/reload", a.reloadRegistry)
}

func errJSON(c echo.Context, status int, err error) error {
	return c.JSON(status, map[string]any{"ok": false, "error": err.Error()})
}

// registerWorkflowRequest is the Planner Adapter's compiled plan plus the
// business identity it should be stored under.
type registerWorkflowRequest struct {
	WorkflowID    string                  `json:"workflowId"`
	Apps          []string                `json:"apps"`
	Trigger       planner.PlanTrigger     `json:"trigger"`
	Steps         []planner.PlanStep      `json:"steps"`
	MissingInputs []planner.MissingInput  `json:"missingInputs"`
}

func (a *controlAPI) registerWorkflow(c echo.Context) error {
	var req registerWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return errJSON(c, http.StatusBadRequest, err)
	}
	if req.WorkflowID == "" {
		return errJSON(c, http.StatusBadRequest, errMissingField("workflowId"))
	}

	plan := planner.Plan{
		Apps:          req.Apps,
		Trigger:       req.Trigger,
		Steps:         req.Steps,
		MissingInputs: req.MissingInputs,
	}

	graph, err := planner.Compile(plan, a.reg)
	if err != nil {
		return errJSON(c, http.StatusBadRequest, err)
	}
	graph.WorkflowID = req.WorkflowID

	existing, err := a.wfStore.Get(c.Request().Context(), req.WorkflowID)
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, err)
	}
	if existing != nil {
		graph.Version = existing.Version
	}

	if err := a.wfStore.Put(c.Request().Context(), graph); err != nil {
		return errJSON(c, http.StatusInternalServerError, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"ok":         true,
		"workflowId": req.WorkflowID,
		"version":    graph.Version + 1,
		"nodeCount":  len(graph.Nodes),
	})
}

type registerWebhookRequest struct {
	WorkflowID string `json:"workflowId"`
	AppID      string `json:"appId"`
	TriggerID  string `json:"triggerId"`
	Secret     string `json:"secret"`
}

func (a *controlAPI) registerWebhookTrigger(c echo.Context) error {
	var req registerWebhookRequest
	if err := c.Bind(&req); err != nil {
		return errJSON(c, http.StatusBadRequest, err)
	}

	appID := registry.NormalizeAppID(req.AppID)
	id := triggers.NextWebhookID(req.WorkflowID, appID, req.TriggerID)
	a.trigReg.RegisterWebhook(&ingress.WebhookTrigger{
		ID:         id,
		AppID:      appID,
		TriggerID:  req.TriggerID,
		WorkflowID: req.WorkflowID,
		Secret:     req.Secret,
		IsActive:   true,
	})

	return c.JSON(http.StatusOK, map[string]any{"ok": true, "webhookId": id, "url": "/webhooks/" + id})
}

type registerPollRequest struct {
	WorkflowID string `json:"workflowId"`
	AppID      string `json:"appId"`
	TriggerID  string `json:"triggerId"`
	IntervalS  int    `json:"intervalSeconds"`
	DedupeKey  string `json:"dedupeKey"`
}

func (a *controlAPI) registerPollTrigger(c echo.Context) error {
	var req registerPollRequest
	if err := c.Bind(&req); err != nil {
		return errJSON(c, http.StatusBadRequest, err)
	}

	appID := registry.NormalizeAppID(req.AppID)
	id := triggers.NextPollID(req.WorkflowID, appID, req.TriggerID)
	trigger := &ingress.PollingTrigger{
		ID:         id,
		AppID:      appID,
		TriggerID:  req.TriggerID,
		WorkflowID: req.WorkflowID,
		Interval:   time.Duration(req.IntervalS) * time.Second,
		IsActive:   true,
		DedupeKey:  req.DedupeKey,
	}
	a.trigReg.RegisterPolling(trigger)
	a.scheduler.Register(trigger)

	return c.JSON(http.StatusOK, map[string]any{"ok": true, "pollId": id})
}

func (a *controlAPI) tickPollTrigger(c echo.Context) error {
	triggerID := c.Param("triggerId")
	trigger, ok := a.trigReg.GetPollingTrigger(triggerID)
	if !ok {
		return errJSON(c, http.StatusNotFound, errNotFound("poll trigger"))
	}
	a.scheduler.TickOne(c.Request().Context(), trigger)
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}

type createExecutionRequest struct {
	WorkflowID  string         `json:"workflowId"`
	UserID      string         `json:"userId"`
	TriggerData map[string]any `json:"triggerData"`
}

func (a *controlAPI) createExecution(c echo.Context) error {
	var req createExecutionRequest
	if err := c.Bind(&req); err != nil {
		return errJSON(c, http.StatusBadRequest, err)
	}

	graph, err := a.wfStore.Get(c.Request().Context(), req.WorkflowID)
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, err)
	}
	if graph == nil {
		return errJSON(c, http.StatusNotFound, errNotFound("workflow"))
	}

	if req.UserID != "" {
		tier := ratelimit.TierOf(graph)
		result, err := a.limiter.CheckTier(c.Request().Context(), req.UserID, tier)
		if err != nil {
			a.log.Warn("tiered rate limit check failed, allowing request", "error", err)
		} else if !result.Allowed {
			return c.JSON(http.StatusTooManyRequests, map[string]any{
				"ok":                false,
				"error":             "tenant rate limit exceeded",
				"tier":              tier,
				"retryAfterSeconds": result.RetryAfterSeconds,
			})
		}
	}

	exec, err := a.launcher.launch(req.WorkflowID, "manual", req.UserID, req.TriggerData, nil)
	if err != nil {
		return errJSON(c, http.StatusBadRequest, err)
	}

	return c.JSON(http.StatusAccepted, map[string]any{"ok": true, "executionId": exec.ExecutionID})
}

func (a *controlAPI) listExecutions(c echo.Context) error {
	filter := observability.QueryFilter{
		WorkflowID: c.QueryParam("workflowId"),
		UserID:     c.QueryParam("userId"),
		Status:     c.QueryParam("status"),
		SortBy:     c.QueryParam("sortBy"),
		SortOrder:  c.QueryParam("sortOrder"),
	}
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}
	if v := c.QueryParam("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.Since = &t
		}
	}
	if v := c.QueryParam("until"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.Until = &t
		}
	}

	result, err := a.obsStore.QueryExecutions(c.Request().Context(), filter)
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "items": result.Items, "total": result.Total})
}

func (a *controlAPI) getExecution(c echo.Context) error {
	exec, err := a.obsStore.GetExecution(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, err)
	}
	if exec == nil {
		return errJSON(c, http.StatusNotFound, errNotFound("execution"))
	}

	nodes, err := a.obsStore.ListNodeExecutions(c.Request().Context(), exec.ExecutionID)
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, err)
	}

	return c.JSON(http.StatusOK, map[string]any{"ok": true, "execution": exec, "nodes": nodes})
}

func (a *controlAPI) retryExecution(c echo.Context) error {
	ctx := c.Request().Context()
	original, err := a.obsStore.GetExecution(ctx, c.Param("id"))
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, err)
	}
	if original == nil {
		return errJSON(c, http.StatusNotFound, errNotFound("execution"))
	}

	parentID := original.ExecutionID
	exec, err := a.launcher.launch(original.WorkflowID, original.TriggerType, original.UserID, original.TriggerData, &parentID)
	if err != nil {
		return errJSON(c, http.StatusBadRequest, err)
	}

	return c.JSON(http.StatusAccepted, map[string]any{"ok": true, "executionId": exec.ExecutionID, "parentExecutionId": parentID})
}

func (a *controlAPI) retryNode(c echo.Context) error {
	ctx := c.Request().Context()
	exec, err := a.obsStore.GetExecution(ctx, c.Param("id"))
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, err)
	}
	if exec == nil {
		return errJSON(c, http.StatusNotFound, errNotFound("execution"))
	}

	graph, err := a.wfStore.Get(ctx, exec.WorkflowID)
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, err)
	}
	if graph == nil {
		return errJSON(c, http.StatusNotFound, errNotFound("workflow graph"))
	}

	nodeID := c.Param("nodeId")
	ne, err := a.runner.RetryDLQNode(ctx, graph, nodeID, exec)
	if err != nil {
		return errJSON(c, http.StatusBadRequest, err)
	}

	return c.JSON(http.StatusOK, map[string]any{"ok": true, "node": ne})
}

func (a *controlAPI) listDLQ(c echo.Context) error {
	items, err := a.obsStore.ListDLQ(c.Request().Context(), a.retryMgr, c.QueryParam("workflowId"))
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "items": items})
}

func (a *controlAPI) getStats(c echo.Context) error {
	window := c.QueryParam("window")
	if window == "" {
		window = "day"
	}
	stats, err := a.recorder.Stats(c.Request().Context(), window)
	if err != nil {
		return errJSON(c, http.StatusBadRequest, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "stats": stats})
}

func (a *controlAPI) reloadRegistry(c echo.Context) error {
	n, err := a.reg.Reload()
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "connectorCount": n})
}

type apiError string

func (e apiError) Error() string { return string(e) }

func errMissingField(name string) error { return apiError("missing required field: " + name) }
func errNotFound(what string) error     { return apiError(what + " not found") }
