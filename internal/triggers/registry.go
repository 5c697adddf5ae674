// Package triggers holds the live WebhookTrigger/PollingTrigger rows a
// compiled WorkflowGraph's trigger node is registered as, and the signature
// scheme each connector app expects — the registration surface
// internal/ingress reads from on every delivery.
package triggers

import (
	"fmt"
	"sync"

	"github.com/flowgrid/platform/internal/ingress"
	"github.com/flowgrid/platform/internal/webhook/verify"
)

// appSchemes maps a connector appId to the webhook signature scheme it
// uses, consulted by SchemeFor. Apps absent from this map skip signature
// verification (verify.Verify is only invoked when a scheme is found).
var appSchemes = map[string]verify.Scheme{
	"slack":     verify.SchemeSlack,
	"stripe":    verify.SchemeStripe,
	"shopify":   verify.SchemeShopify,
	"github":    verify.SchemeGitHub,
	"gitlab":    verify.SchemeGitLab,
	"bitbucket": verify.SchemeBitbucket,
	"intercom":  verify.SchemeIntercom,
	"zendesk":   verify.SchemeZendesk,
	"hubspot":   verify.SchemeHubSpot,
}

// Registry is an in-memory registration table, built once per process and
// populated via Register{Webhook,Polling}. It satisfies both
// ingress.TriggerStore and the lookup the polling scheduler needs.
type Registry struct {
	mu       sync.RWMutex
	webhooks map[string]*ingress.WebhookTrigger
	polling  map[string]*ingress.PollingTrigger
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{
		webhooks: make(map[string]*ingress.WebhookTrigger),
		polling:  make(map[string]*ingress.PollingTrigger),
	}
}

// RegisterWebhook adds or replaces a webhook trigger registration.
func (r *Registry) RegisterWebhook(t *ingress.WebhookTrigger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.webhooks[t.ID] = t
}

// RegisterPolling adds a polling trigger registration.
func (r *Registry) RegisterPolling(t *ingress.PollingTrigger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polling[t.ID] = t
}

// GetWebhookTrigger implements ingress.TriggerStore.
func (r *Registry) GetWebhookTrigger(id string) (*ingress.WebhookTrigger, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.webhooks[id]
	return t, ok
}

// GetPollingTrigger looks up a registered polling trigger by id, used by
// the manual admin tick endpoint.
func (r *Registry) GetPollingTrigger(id string) (*ingress.PollingTrigger, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.polling[id]
	return t, ok
}

// SchemeFor implements ingress.TriggerStore.
func (r *Registry) SchemeFor(appID string) (verify.Scheme, bool) {
	s, ok := appSchemes[appID]
	return s, ok
}

// NextWebhookID mints a registration id deterministic enough for tests and
// unique enough for the handful of webhooks one workflow registers.
func NextWebhookID(workflowID, appID, triggerID string) string {
	return fmt.Sprintf("wh_%s_%s_%s", workflowID, appID, triggerID)
}

// NextPollID mints a polling registration id.
func NextPollID(workflowID, appID, triggerID string) string {
	return fmt.Sprintf("poll_%s_%s_%s", workflowID, appID, triggerID)
}
