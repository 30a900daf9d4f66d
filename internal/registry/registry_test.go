package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/finsight-dev/finsight/agent"
)

// stubAgent carries only a descriptor; the registry never invokes behavior.
type stubAgent struct {
	desc agent.Descriptor
}

func (s *stubAgent) Initialize(ctx context.Context, desc agent.Descriptor) error { return nil }
func (s *stubAgent) Process(ctx context.Context, subject string, upstream map[string]*agent.Result, params map[string]any) (*agent.Result, error) {
	return agent.NewResult(s.desc.Name, subject), nil
}
func (s *stubAgent) Shutdown(ctx context.Context) error { return nil }
func (s *stubAgent) Describe() agent.Descriptor         { return s.desc }

func stub(name string, enabled bool, deps ...string) *stubAgent {
	return &stubAgent{desc: agent.Descriptor{Name: name, DependsOn: deps, Enabled: enabled}}
}

func TestRegistry_Add(t *testing.T) {
	tests := []struct {
		name    string
		agents  []agent.Agent
		wantErr bool
		wantIs  error
	}{
		{
			name:   "single agent",
			agents: []agent.Agent{stub("data_collector", true)},
		},
		{
			name:   "distinct names",
			agents: []agent.Agent{stub("data_collector", true), stub("technical_analyst", true, "data_collector")},
		},
		{
			name:    "duplicate name rejected",
			agents:  []agent.Agent{stub("data_collector", true), stub("data_collector", true)},
			wantErr: true,
			wantIs:  ErrDuplicateAgent,
		},
		{
			name:    "empty name rejected",
			agents:  []agent.Agent{stub("", true)},
			wantErr: true,
		},
		{
			name:    "nil instance rejected",
			agents:  []agent.Agent{nil},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			var lastErr error
			for _, a := range tt.agents {
				lastErr = r.Add(a)
			}
			if (lastErr != nil) != tt.wantErr {
				t.Errorf("Add() error = %v, wantErr %v", lastErr, tt.wantErr)
				return
			}
			if tt.wantIs != nil && !errors.Is(lastErr, tt.wantIs) {
				t.Errorf("Add() error = %v, want %v", lastErr, tt.wantIs)
			}
		})
	}
}

func TestRegistry_Lookups(t *testing.T) {
	r := New()
	if err := r.Add(stub("data_collector", true)); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if err := r.Add(stub("technical_analyst", true, "data_collector")); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if err := r.Add(stub("sentiment_analyzer", false, "data_collector")); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	if got := r.Len(); got != 3 {
		t.Errorf("Len() = %d, want 3", got)
	}

	if _, err := r.Get("technical_analyst"); err != nil {
		t.Errorf("Get() error: %v", err)
	}
	if _, err := r.Get("nobody"); !errors.Is(err, ErrAgentUnknown) {
		t.Errorf("Get() error = %v, want ErrAgentUnknown", err)
	}

	desc, err := r.Descriptor("technical_analyst")
	if err != nil {
		t.Fatalf("Descriptor() error: %v", err)
	}
	if len(desc.DependsOn) != 1 || desc.DependsOn[0] != "data_collector" {
		t.Errorf("Descriptor() deps = %v", desc.DependsOn)
	}

	wantNames := []string{"data_collector", "sentiment_analyzer", "technical_analyst"}
	names := r.Names()
	if len(names) != len(wantNames) {
		t.Fatalf("Names() = %v", names)
	}
	for i := range wantNames {
		if names[i] != wantNames[i] {
			t.Errorf("Names()[%d] = %s, want %s", i, names[i], wantNames[i])
		}
	}

	enabled := r.Enabled()
	if len(enabled) != 2 {
		t.Fatalf("Enabled() returned %d descriptors, want 2", len(enabled))
	}
	for _, d := range enabled {
		if d.Name == "sentiment_analyzer" {
			t.Error("Enabled() should exclude disabled agents")
		}
	}

	r.Remove("technical_analyst")
	if r.Contains("technical_analyst") {
		t.Error("Contains() after Remove() should be false")
	}
}

func TestRegistry_DescriptorImmutable(t *testing.T) {
	a := stub("data_collector", true)
	r := New()
	if err := r.Add(a); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	// Mutating the instance's own descriptor afterwards must not leak into
	// the captured copy.
	a.desc.Enabled = false
	desc, err := r.Descriptor("data_collector")
	if err != nil {
		t.Fatalf("Descriptor() error: %v", err)
	}
	if !desc.Enabled {
		t.Error("captured descriptor changed after registration")
	}
}
