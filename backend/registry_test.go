package backend

import (
	"errors"
	"reflect"
	"testing"
)

func TestNewRegistry(t *testing.T) {
	reg, err := NewRegistry(descriptors("b", "a", "c")...)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	if got, want := reg.Names(), []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
	if !reg.Has("a") || reg.Has("missing") {
		t.Error("Has() returned wrong membership")
	}

	for _, s := range reg.Snapshot() {
		if s.State != StateDisconnected {
			t.Errorf("%s state = %v, want disconnected", s.Name, s.State)
		}
	}
}

func TestNewRegistry_Errors(t *testing.T) {
	tests := []struct {
		name  string
		descs []Descriptor
		want  error
	}{
		{"duplicate", descriptors("a", "a"), ErrServiceExists},
		{"empty name", []Descriptor{{Command: "npx"}}, ErrConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.descs...)
			if !errors.Is(err, tt.want) {
				t.Errorf("NewRegistry() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRegistry_DescriptorIsCopied(t *testing.T) {
	args := []string{"-y", "pkg"}
	env := map[string]string{"KEY": "v"}
	reg, err := NewRegistry(Descriptor{Name: "svc", Command: "npx", Args: args, Env: env})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	args[0] = "mutated"
	env["KEY"] = "mutated"

	d, ok := reg.Descriptor("svc")
	if !ok {
		t.Fatal("Descriptor() returned false")
	}
	if d.Args[0] != "-y" || d.Env["KEY"] != "v" {
		t.Errorf("Descriptor() = %+v, want original args and env", d)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "disconnected"},
		{StateConnecting, "connecting"},
		{StateConnected, "connected"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
