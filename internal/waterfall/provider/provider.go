// Package provider defines the enrichment client contract and a registry of
// configured clients.
package provider

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// Params are the inputs of one enrichment call, sent as a JSON object.
type Params map[string]any

// Response is a provider's answer. Cost is the actual billing when
// CostKnown is set; otherwise callers bill their rate-card estimate.
type Response struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data,omitempty"`
	Cost      float64         `json:"cost"`
	CostKnown bool            `json:"-"`
}

// Client is an enrichment provider (domain email search, email
// verification, person enrichment, registry lookup).
type Client interface {
	Name() string
	Call(ctx context.Context, params Params) (*Response, error)
}

// Registry maps provider names to clients.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Register adds or replaces a client under its name.
func (r *Registry) Register(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.Name()] = c
}

// Get returns the named client, or nil.
func (r *Registry) Get(name string) Client {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clients[name]
}

// List returns the registered names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
