package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/floegence/datachat-agent/internal/ai/llm"
)

var (
	ErrToolUnregistered = errors.New("tool is not registered")
	ErrDuplicateTool    = errors.New("tool is already registered")
)

// Registry holds the tools available to one agent variant.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: map[string]Tool{}}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(t Tool) error {
	if t == nil {
		return errors.New("nil tool")
	}
	def := t.Definition()
	name := strings.TrimSpace(def.Name)
	if name == "" {
		return errors.New("tool name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Lookup returns the definition of a registered tool.
func (r *Registry) Lookup(name string) (Definition, bool) {
	if r == nil {
		return Definition{}, false
	}
	r.mu.RLock()
	t, ok := r.tools[strings.TrimSpace(name)]
	r.mu.RUnlock()
	if !ok {
		return Definition{}, false
	}
	return t.Definition(), true
}

// Kind returns the registered kind of a tool, KindGeneric when unknown.
func (r *Registry) Kind(name string) Kind {
	def, ok := r.Lookup(name)
	if !ok || def.Kind == "" {
		return KindGeneric
	}
	return def.Kind
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Specs returns the model-facing tool specs in registration order.
func (r *Registry) Specs() []llm.ToolSpec {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]llm.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		def := r.tools[name].Definition()
		out = append(out, llm.ToolSpec{Name: def.Name, Description: def.Description, Parameters: def.Parameters})
	}
	return out
}

func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	if r == nil {
		return "", ErrToolUnregistered
	}
	r.mu.RLock()
	t, ok := r.tools[strings.TrimSpace(name)]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrToolUnregistered, name)
	}
	if args == nil {
		args = map[string]any{}
	}
	return t.Call(ctx, args)
}

// Merge returns a registry holding the tools of all inputs. Duplicate names fail.
func Merge(registries ...*Registry) (*Registry, error) {
	out := &Registry{tools: map[string]Tool{}}
	for _, r := range registries {
		if r == nil {
			continue
		}
		r.mu.RLock()
		names := append([]string(nil), r.order...)
		items := make([]Tool, 0, len(names))
		for _, n := range names {
			items = append(items, r.tools[n])
		}
		r.mu.RUnlock()
		for _, t := range items {
			if err := out.Register(t); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}
