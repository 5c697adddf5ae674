package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/flowgrid/platform/internal/platform/logger"
)

// Registry is the process-wide connector catalog. Readers hold the
// published *Catalog pointer for the duration of a single lookup only;
// Reload swaps it atomically so readers never observe a half-loaded state.
type Registry struct {
	dir     string
	log     *logger.Logger
	catalog atomic.Pointer[Catalog]
}

// New constructs a Registry that loads definition files from dir.
func New(dir string, log *logger.Logger) *Registry {
	return &Registry{dir: dir, log: log}
}

// Load reads every *.yaml/*.yml file under dir, skipping malformed
// definitions with a diagnostic rather than failing the process. It
// returns the number of connectors successfully loaded.
func (r *Registry) Load() (int, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return 0, fmt.Errorf("read connector directory: %w", err)
	}

	connectors := make(map[string]*ConnectorDefinition)
	categories := make(map[string][]string)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(r.dir, name)
		raw, err := os.ReadFile(path)
		if err != nil {
			r.log.Warn("skipping connector file", "file", path, "error", err)
			continue
		}

		var def ConnectorDefinition
		if err := yaml.Unmarshal(raw, &def); err != nil {
			r.log.Warn("skipping malformed connector definition", "file", path, "error", err)
			continue
		}

		if def.ID == "" {
			r.log.Warn("skipping connector definition missing id", "file", path)
			continue
		}

		id := NormalizeAppID(def.ID)
		if _, exists := connectors[id]; exists {
			r.log.Warn("skipping duplicate connector id", "id", id, "file", path)
			continue
		}

		def.ID = id
		connectors[id] = &def
		categories[def.Category] = append(categories[def.Category], id)
	}

	r.catalog.Store(&Catalog{connectors: connectors, categories: categories})
	r.log.Info("connector registry loaded", "count", len(connectors), "dir", r.dir)

	return len(connectors), nil
}

// Reload re-reads the connector directory and atomically republishes the
// catalog. Safe to call concurrently with lookups.
func (r *Registry) Reload() (int, error) {
	return r.Load()
}

func (r *Registry) snapshot() *Catalog {
	c := r.catalog.Load()
	if c == nil {
		return &Catalog{connectors: map[string]*ConnectorDefinition{}, categories: map[string][]string{}}
	}
	return c
}

// ListConnectors returns every loaded connector definition.
func (r *Registry) ListConnectors() []*ConnectorDefinition {
	cat := r.snapshot()
	out := make([]*ConnectorDefinition, 0, len(cat.connectors))
	for _, c := range cat.connectors {
		out = append(out, c)
	}
	return out
}

// GetConnector looks up a connector by normalized appId.
func (r *Registry) GetConnector(appID string) (*ConnectorDefinition, bool) {
	cat := r.snapshot()
	c, ok := cat.connectors[NormalizeAppID(appID)]
	return c, ok
}

// GetFunction resolves a node type ("{role}.{appId}:{opId}" or the short
// form "{appId}:{opId}") to its FunctionDefinition.
func (r *Registry) GetFunction(nodeType string) (*FunctionDefinition, bool) {
	role := ""
	rest := nodeType
	if idx := strings.IndexByte(nodeType, '.'); idx >= 0 {
		role = nodeType[:idx]
		rest = nodeType[idx+1:]
	}

	colon := strings.IndexByte(rest, ':')
	if colon < 0 {
		return nil, false
	}
	appID := NormalizeAppID(rest[:colon])
	opID := rest[colon+1:]

	if appID == CoreAppID {
		return &FunctionDefinition{AppID: appID, OperationID: opID, Role: role}, true
	}

	conn, ok := r.GetConnector(appID)
	if !ok {
		return nil, false
	}

	for i := range conn.Actions {
		if conn.Actions[i].ID == opID {
			return &FunctionDefinition{AppID: appID, OperationID: opID, Role: role, Connector: conn, Operation: &conn.Actions[i]}, true
		}
	}
	for i := range conn.Triggers {
		if conn.Triggers[i].ID == opID {
			return &FunctionDefinition{AppID: appID, OperationID: opID, Role: role, Connector: conn, Operation: &conn.Triggers[i]}, true
		}
	}

	return nil, false
}

// IsValidNodeType is the sole authority the Planner Adapter and Runtime use
// to reject unknown node types.
func (r *Registry) IsValidNodeType(nodeType string) bool {
	_, ok := r.GetFunction(nodeType)
	return ok
}

// GetNodeCatalog returns the full catalog for UI consumption.
func (r *Registry) GetNodeCatalog() NodeCatalog {
	cat := r.snapshot()
	connectors := make([]*ConnectorDefinition, 0, len(cat.connectors))
	for _, c := range cat.connectors {
		connectors = append(connectors, c)
	}
	return NodeCatalog{Connectors: connectors, Categories: cat.categories}
}

// Search finds connectors whose id, name, or category contains query
// (case-insensitive).
func (r *Registry) Search(query string) []*ConnectorDefinition {
	query = strings.ToLower(query)
	cat := r.snapshot()
	var out []*ConnectorDefinition
	for _, c := range cat.connectors {
		if strings.Contains(strings.ToLower(c.ID), query) ||
			strings.Contains(strings.ToLower(c.Name), query) ||
			strings.Contains(strings.ToLower(c.Category), query) {
			out = append(out, c)
		}
	}
	return out
}
