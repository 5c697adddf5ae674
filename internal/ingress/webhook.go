package ingress

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/flowgrid/platform/internal/platform/logger"
	"github.com/flowgrid/platform/internal/webhook/verify"
)

// TriggerStore resolves a registered webhook by id.
type TriggerStore interface {
	GetWebhookTrigger(id string) (*WebhookTrigger, bool)
	SchemeFor(appID string) (verify.Scheme, bool)
}

// WebhookIntake handles inbound webhook HTTP deliveries.
type WebhookIntake struct {
	store                 TriggerStore
	dedupe                *Dedupe
	sink                   Sink
	log                    *logger.Logger
	timestampToleranceSec  int
}

// NewWebhookIntake builds a WebhookIntake.
func NewWebhookIntake(store TriggerStore, dedupe *Dedupe, sink Sink, log *logger.Logger, timestampToleranceSec int) *WebhookIntake {
	return &WebhookIntake{
		store:                 store,
		dedupe:                dedupe,
		sink:                  sink,
		log:                   log,
		timestampToleranceSec: timestampToleranceSec,
	}
}

// Register mounts POST /webhooks/:webhookId on e.
func (w *WebhookIntake) Register(e *echo.Echo) {
	e.POST("/webhooks/:webhookId", w.handle)
}

// handle reads the raw request body once and plumbs those exact bytes to
// the verifier — never a re-serialized payload — per the correctness
// requirement that webhook schemes operate on raw bytes only.
func (w *WebhookIntake) handle(c echo.Context) error {
	webhookID := c.Param("webhookId")

	trigger, ok := w.store.GetWebhookTrigger(webhookID)
	if !ok || !trigger.IsActive {
		return c.JSON(http.StatusNotFound, map[string]any{"ok": false, "error": "unknown webhook"})
	}

	rawBody, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"ok": false, "error": "cannot read body"})
	}

	scheme, ok := w.store.SchemeFor(trigger.AppID)
	if ok {
		result := verify.Verify(scheme, verify.Request{
			Method:  c.Request().Method,
			Host:    c.Request().Host,
			Path:    c.Request().URL.Path,
			Headers: c.Request().Header,
			Body:    rawBody,
		}, trigger.Secret, w.timestampToleranceSec)

		if !result.Verified {
			w.log.Warn("webhook signature rejected", "webhook_id", webhookID, "reason", result.Reason)
			return c.JSON(http.StatusBadRequest, map[string]any{"ok": false, "error": result.Reason})
		}
	}

	now := time.Now()
	dedupeHash := Hash(webhookID, rawBody)

	duplicate, err := w.dedupe.SeenOrRecord(c.Request().Context(), NamespaceWebhook, trigger.AppID, dedupeHash)
	if err != nil {
		w.log.Error("dedupe check failed", "webhook_id", webhookID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]any{"ok": false})
	}
	if duplicate {
		return c.JSON(http.StatusOK, map[string]any{"ok": true, "duplicate": true})
	}

	var payload map[string]any
	if len(rawBody) > 0 {
		if err := json.Unmarshal(rawBody, &payload); err != nil {
			payload = map[string]any{"_raw": string(rawBody)}
		}
	}

	headers := make(map[string]string, len(c.Request().Header))
	for k := range c.Request().Header {
		headers[k] = c.Request().Header.Get(k)
	}
	headers["x-trigger-type"] = "webhook"

	event := TriggerEvent{
		WebhookID:  webhookID,
		AppID:      trigger.AppID,
		TriggerID:  trigger.TriggerID,
		Payload:    payload,
		Headers:    headers,
		Timestamp:  now,
		DedupeHash: dedupeHash,
	}

	if err := w.sink.Accept(event); err != nil {
		w.log.Error("failed to accept trigger event", "webhook_id", webhookID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]any{"ok": false})
	}

	w.log.Info("webhook accepted", "webhook_id", webhookID, "workflow_id", trigger.WorkflowID)
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}
