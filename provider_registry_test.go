package agentcore

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeProvider struct {
	id       ProviderID
	prefixes []string
}

func (p *fakeProvider) Name() ProviderID { return p.id }

func (p *fakeProvider) SupportsModel(model string) bool {
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

func (p *fakeProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	return nil, errors.New("not implemented")
}

func (p *fakeProvider) Stream(ctx context.Context, req *Request) (<-chan StreamEvent, error) {
	return nil, errors.New("not implemented")
}

func TestProviderRegistry_Select(t *testing.T) {
	registry := NewProviderRegistry()
	anthropic := &fakeProvider{id: ProviderAnthropic, prefixes: []string{"claude-"}}
	openai := &fakeProvider{id: ProviderOpenAI, prefixes: []string{"gpt-", "o1"}}
	for _, p := range []Provider{anthropic, openai} {
		if err := registry.Register(p); err != nil {
			t.Fatalf("Register(%s): %v", p.Name(), err)
		}
	}

	tests := []struct {
		model string
		want  ProviderID
	}{
		{"claude-sonnet-4-5", ProviderAnthropic},
		{"gpt-4o", ProviderOpenAI},
		{"o1-mini", ProviderOpenAI},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			p, err := registry.Select(tt.model)
			if err != nil {
				t.Fatalf("Select: %v", err)
			}
			if p.Name() != tt.want {
				t.Errorf("Select(%s) = %s, want %s", tt.model, p.Name(), tt.want)
			}
		})
	}
}

func TestProviderRegistry_SelectUnknownModel(t *testing.T) {
	registry := NewProviderRegistry()
	if err := registry.Register(&fakeProvider{id: ProviderOpenAI, prefixes: []string{"gpt-"}}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, err := registry.Select("palm-2")
	if err == nil {
		t.Fatal("expected an error for an unsupported model")
	}
	if !errors.Is(err, ErrInvalidModel) {
		t.Errorf("error %v should wrap ErrInvalidModel", err)
	}
	var modelErr *ModelError
	if !errors.As(err, &modelErr) || modelErr.Model != "palm-2" {
		t.Errorf("error should be a ModelError naming the model, got %v", err)
	}
}

func TestProviderRegistry_RejectsDuplicates(t *testing.T) {
	registry := NewProviderRegistry()
	p := &fakeProvider{id: ProviderOpenAI, prefixes: []string{"gpt-"}}
	if err := registry.Register(p); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := registry.Register(&fakeProvider{id: ProviderOpenAI}); err == nil {
		t.Error("registering the same provider name twice should fail")
	}
	if got := len(registry.Providers()); got != 1 {
		t.Errorf("registry holds %d providers, want 1", got)
	}
}
