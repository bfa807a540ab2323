// Package provider exposes every LLM backend behind one chat-completion
// capability and wires them into a registry at startup.
package provider

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/journal-harness/internal/model"
)

// Client is the uniform chat-completion capability.
type Client interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Message is one conversational turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a provider-neutral chat call.
type ChatRequest struct {
	Model       string
	System      string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// ChatResponse is the text and token usage of a successful call.
type ChatResponse struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// UserMessage is a single-turn conversation.
func UserMessage(content string) []Message {
	return []Message{{Role: "user", Content: content}}
}

// Registry maps provider names to clients. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
	stubbed map[string]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client), stubbed: make(map[string]bool)}
}

// Register adds or replaces a provider.
func (r *Registry) Register(name string, c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = c
	delete(r.stubbed, name)
}

// RegisterStub adds a provider served by a stub so listings can flag it.
func (r *Registry) RegisterStub(name string, c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = c
	r.stubbed[name] = true
}

// Get returns the client for name. Unknown names are configuration errors.
func (r *Registry) Get(name string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[name]
	if !ok {
		return nil, eris.Wrapf(model.ErrInvalidConfig, "unknown provider %q", name)
	}
	return c, nil
}

// IsStub reports whether name is served by the offline stub.
func (r *Registry) IsStub(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stubbed[name]
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.clients))
	for name := range r.clients {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
