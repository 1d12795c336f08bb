// Package tools exposes retrieval operations as function-calling tools.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

var (
	ErrToolNotFound     = errors.New("tool not found")
	ErrInvalidArguments = errors.New("invalid tool arguments")
)

// Tool is a callable function with a schema a model can choose from.
type Tool interface {
	Definition() llms.Tool
	// Call runs the tool with the JSON encoded arguments chosen by the model.
	Call(ctx context.Context, arguments string) (any, error)
}

type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds t under its function name, replacing any tool with the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Definition().Function.Name] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Definitions lists every registered schema sorted by name.
func (r *Registry) Definitions() []llms.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]llms.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition())
	}
	sort.Slice(defs, func(i, j int) bool {
		return defs[i].Function.Name < defs[j].Function.Name
	})
	return defs
}

// Call runs the named tool and encodes its result as JSON. A nil result encodes as "null".
func (r *Registry) Call(ctx context.Context, name, arguments string) (string, error) {
	t, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	result, err := t.Call(ctx, arguments)
	if err != nil {
		return "", err
	}

	out, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("error encoding %s result: %w", name, err)
	}
	return string(out), nil
}

// Dispatch runs a tool call requested by a model.
func (r *Registry) Dispatch(ctx context.Context, call llms.ToolCall) (string, error) {
	if call.FunctionCall == nil {
		return "", fmt.Errorf("%w: tool call %s has no function", ErrInvalidArguments, call.ID)
	}
	return r.Call(ctx, call.FunctionCall.Name, call.FunctionCall.Arguments)
}
