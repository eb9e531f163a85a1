// File: internal/infra/adapters/ai/multi_adapter.go
package ai

import (
	"context"
	"strings"

	"ai-stream-relay/internal/domain"
	"ai-stream-relay/internal/domain/model"
	"ai-stream-relay/internal/domain/ports/adapter"
)

var _ adapter.ModelAdapter = (*MultiAdapter)(nil)

// MultiAdapter routes each call to the provider owning the requested model.
// Routing order: the request's explicit provider, then the configured
// model-to-provider map, then model name heuristics, then the default.
type MultiAdapter struct {
	defaultProvider string
	byProvider      map[string]adapter.ModelAdapter
	modelToProvider map[string]string
}

func NewMultiAdapter(
	defaultProvider string,
	byProvider map[string]adapter.ModelAdapter,
	modelToProvider map[string]string,
) *MultiAdapter {
	return &MultiAdapter{
		defaultProvider: strings.ToLower(defaultProvider),
		byProvider:      byProvider,
		modelToProvider: modelToProvider,
	}
}

func (m *MultiAdapter) Provider() string { return "multi" }

// ResolveProvider names the provider a model routes to without touching it,
// so callers can consult per-provider circuit breakers first.
func (m *MultiAdapter) ResolveProvider(modelID string) string {
	if p := m.modelToProvider[modelID]; p != "" {
		return strings.ToLower(p)
	}
	l := strings.ToLower(modelID)
	switch {
	case strings.HasPrefix(l, "gemini"):
		return "gemini"
	case strings.HasPrefix(l, "gpt") || strings.HasPrefix(l, "o1") || strings.HasPrefix(l, "o3"):
		return "openai"
	default:
		return m.defaultProvider
	}
}

// ForProvider returns the adapter registered under name.
func (m *MultiAdapter) ForProvider(name string) (adapter.ModelAdapter, bool) {
	a, ok := m.byProvider[strings.ToLower(name)]
	return a, ok && a != nil
}

// Providers lists registered provider names.
func (m *MultiAdapter) Providers() []string {
	out := make([]string, 0, len(m.byProvider))
	for name, a := range m.byProvider {
		if a != nil {
			out = append(out, name)
		}
	}
	return out
}

func (m *MultiAdapter) pick(modelID string) adapter.ModelAdapter {
	if a := m.byProvider[m.ResolveProvider(modelID)]; a != nil {
		return a
	}
	// last resort: first available
	for _, a := range m.byProvider {
		if a != nil {
			return a
		}
	}
	return nil
}

func (m *MultiAdapter) ListModels(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(m.modelToProvider)+4)

	// 1) models explicitly mapped in config
	for name := range m.modelToProvider {
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}

	// 2) union of each provider's ListModels (often returns their default)
	for _, a := range m.byProvider {
		if a == nil {
			continue
		}
		list, _ := a.ListModels(ctx)
		for _, name := range list {
			if name == "" {
				continue
			}
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				out = append(out, name)
			}
		}
	}
	return out, nil
}

func (m *MultiAdapter) Capabilities(modelID string) (adapter.Capabilities, error) {
	a := m.pick(modelID)
	if a == nil {
		return adapter.Capabilities{}, domain.ErrNoProvider
	}
	return a.Capabilities(modelID)
}

func (m *MultiAdapter) CountTokens(ctx context.Context, modelID string, messages []model.RequestMessage) (int, error) {
	a := m.pick(modelID)
	if a == nil {
		return 0, domain.ErrNoProvider
	}
	return a.CountTokens(ctx, modelID, messages)
}

func (m *MultiAdapter) StreamChat(ctx context.Context, req adapter.StreamRequest) (adapter.EventStream, error) {
	a := m.pick(req.Model)
	if a == nil {
		return nil, domain.ErrNoProvider
	}
	return a.StreamChat(ctx, req)
}
