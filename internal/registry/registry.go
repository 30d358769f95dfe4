// File: internal/registry/registry.go
// The registry compiles declarative action definitions plus handler functions
// into monitored, cached, invocable tools, and resolves them by id, category
// and storefront mode.
package registry

import (
	"fmt"
	"hash/fnv"
	"sort"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/shoptalk-labs/shoptalk/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Validator is the slice of the Judge the registry needs for per-action input
// review.
type Validator interface {
	Validate(content string, state *schemas.ConversationState) schemas.ValidationResult
}

// Filter selects tools by category and/or mode. A tool matches a mode filter
// if its own mode is "both" or equals the filter.
type Filter struct {
	Category schemas.ActionCategory
	Mode     schemas.ActionMode
}

// Registry owns every compiled tool. All mutation goes through its lock;
// no entry is ever updated in place across keys.
type Registry struct {
	mu       sync.RWMutex
	defs     map[string]schemas.ActionDefinition
	handlers map[string]schemas.ActionHandler
	cache    *lruCache[*CompiledTool]

	judge    Validator
	recorder Recorder
	logger   *zap.Logger

	cacheHits   uint64
	cacheMisses uint64
}

// New creates a registry. The recorder receives one sample per invocation;
// pass a PerfRecorder for the default in-memory ring.
func New(judge Validator, recorder Recorder, cacheSize int, logger *zap.Logger) *Registry {
	return &Registry{
		defs:     make(map[string]schemas.ActionDefinition),
		handlers: make(map[string]schemas.ActionHandler),
		cache:    newLRUCache[*CompiledTool](cacheSize),
		judge:    judge,
		recorder: recorder,
		logger:   logger.Named("registry"),
	}
}

// Register validates the definition, binds it to the handler and compiles it.
// Registering an id twice is a configuration error.
func (r *Registry) Register(def schemas.ActionDefinition, handler schemas.ActionHandler) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("invalid action definition: %w", err)
	}
	if handler == nil {
		return &schemas.ValidationError{Field: "handler", Reason: "handler is required"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[def.ID]; exists {
		return &schemas.DuplicateActionError{ID: def.ID}
	}

	r.defs[def.ID] = def
	r.handlers[def.ID] = handler
	r.compileLocked(def, handler)

	r.logger.Info("Action registered",
		zap.String("action_id", def.ID),
		zap.String("category", string(def.Category)),
		zap.String("mode", string(def.Mode)))
	return nil
}

// Update merges a partial definition into the existing one. The id is
// immutable; the merged definition supersedes the old one and its cache entry
// is invalidated.
func (r *Registry) Update(id string, partial schemas.ActionDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.defs[id]
	if !exists {
		return &schemas.ValidationError{Field: "id", Reason: fmt.Sprintf("action %q is not registered", id)}
	}

	merged := mergeDefinition(current, partial)
	merged.ID = id
	if err := merged.Validate(); err != nil {
		return fmt.Errorf("invalid action update: %w", err)
	}

	r.cache.remove(toolCacheKey(current))
	r.defs[id] = merged
	r.compileLocked(merged, r.handlers[id])

	r.logger.Info("Action updated", zap.String("action_id", id))
	return nil
}

// Unregister removes an action and its cache entry.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if def, exists := r.defs[id]; exists {
		r.cache.remove(toolCacheKey(def))
		delete(r.defs, id)
		delete(r.handlers, id)
		r.logger.Info("Action unregistered", zap.String("action_id", id))
	}
}

// GetTool resolves a compiled tool by action id, recompiling on a cache miss.
func (r *Registry) GetTool(id string) (*CompiledTool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	def, exists := r.defs[id]
	if !exists {
		return nil, false
	}
	return r.toolLocked(def), true
}

// GetToolsBy returns all compiled tools matching the filter, ordered by id
// for deterministic selection.
func (r *Registry) GetToolsBy(f Filter) []*CompiledTool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.defs))
	for id, def := range r.defs {
		if f.Category != "" && def.Category != f.Category {
			continue
		}
		if !def.Mode.Matches(f.Mode) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tools := make([]*CompiledTool, 0, len(ids))
	for _, id := range ids {
		tools = append(tools, r.toolLocked(r.defs[id]))
	}
	return tools
}

// Definitions returns a copy of every registered definition, ordered by id.
func (r *Registry) Definitions() []schemas.ActionDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]schemas.ActionDefinition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CacheStats reports tool-cache hit/miss counters.
func (r *Registry) CacheStats() (hits, misses uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cacheHits, r.cacheMisses
}

// toolLocked fetches the compiled tool from cache or recompiles. Caller must
// hold the write lock.
func (r *Registry) toolLocked(def schemas.ActionDefinition) *CompiledTool {
	key := toolCacheKey(def)
	if tool, ok := r.cache.get(key); ok {
		r.cacheHits++
		return tool
	}
	r.cacheMisses++
	return r.compileLocked(def, r.handlers[def.ID])
}

func (r *Registry) compileLocked(def schemas.ActionDefinition, handler schemas.ActionHandler) *CompiledTool {
	tool := r.compile(def, handler)
	r.cache.put(toolCacheKey(def), tool)
	return tool
}

// toolCacheKey hashes the identity-bearing parts of a definition. Hot-reload
// churn that does not change (id, name, mode, category, schema) hits the
// cache and skips recompilation.
func toolCacheKey(def schemas.ActionDefinition) string {
	schemaJSON, err := json.Marshal(def.Parameters)
	if err != nil {
		schemaJSON = []byte("{}")
	}
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s", def.ID, def.Name, def.Mode, def.Category, schemaJSON)
	return fmt.Sprintf("%x", h.Sum64())
}

// mergeDefinition overlays the non-zero fields of partial onto current.
func mergeDefinition(current, partial schemas.ActionDefinition) schemas.ActionDefinition {
	merged := current
	if partial.Name != "" {
		merged.Name = partial.Name
	}
	if partial.Description != "" {
		merged.Description = partial.Description
	}
	if partial.Category != "" {
		merged.Category = partial.Category
	}
	if partial.Mode != "" {
		merged.Mode = partial.Mode
	}
	if partial.Parameters.Properties != nil {
		merged.Parameters = partial.Parameters
	}
	if partial.Security != nil {
		merged.Security = partial.Security
	}
	if partial.RateLimit != nil {
		merged.RateLimit = partial.RateLimit
	}
	return merged
}
