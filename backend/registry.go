package backend

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// State is the lifecycle position of one service connection.
type State int

// Connection states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Status is a point-in-time view of one service.
type Status struct {
	Name         string    `json:"name"`
	DisplayName  string    `json:"displayName"`
	State        State     `json:"-"`
	StateName    string    `json:"state"`
	LastUsed     time.Time `json:"lastUsed,omitempty"`
	Capabilities int       `json:"capabilities"`
}

type connState struct {
	desc         Descriptor
	state        State
	backend      Backend
	lastUsed     time.Time
	capabilities []string
}

// Registry owns the configured descriptors and one connection state per
// descriptor. States are created eagerly and live as long as the registry.
// Only the Broker moves a state between Disconnected, Connecting and
// Connected.
type Registry struct {
	mu     sync.RWMutex
	states map[string]*connState
}

// NewRegistry creates a registry with a disconnected state for each descriptor.
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	r := &Registry{states: make(map[string]*connState, len(descs))}
	for _, d := range descs {
		if d.Name == "" {
			return nil, fmt.Errorf("%w: descriptor name is required", ErrConfiguration)
		}
		if _, exists := r.states[d.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrServiceExists, d.Name)
		}
		d.Args = append([]string(nil), d.Args...)
		if d.Env != nil {
			env := make(map[string]string, len(d.Env))
			for k, v := range d.Env {
				env[k] = v
			}
			d.Env = env
		}
		r.states[d.Name] = &connState{desc: d}
	}
	return r, nil
}

// Descriptor returns the descriptor registered under name.
func (r *Registry) Descriptor(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.states[name]
	if !ok {
		return Descriptor{}, false
	}
	return s.desc, true
}

// Descriptors returns all descriptors sorted by name.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.states))
	for _, s := range r.states {
		out = append(out, s.desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns descriptor names sorted for deterministic output.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.states))
	for name := range r.states {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.states[name]
	return ok
}

// Snapshot returns the status of every service sorted by name.
func (r *Registry) Snapshot() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Status, 0, len(r.states))
	for _, s := range r.states {
		out = append(out, Status{
			Name:         s.desc.Name,
			DisplayName:  s.desc.DisplayName,
			State:        s.state,
			StateName:    s.state.String(),
			LastUsed:     s.lastUsed,
			Capabilities: len(s.capabilities),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// connected returns the names of services with a live backend.
func (r *Registry) connected() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for name, s := range r.states {
		if s.state == StateConnected {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// reuse returns the live backend for name and refreshes its lastUsed.
func (r *Registry) reuse(name string, now time.Time) (b Backend, live bool, exists bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[name]
	if !ok {
		return nil, false, false
	}
	if s.state != StateConnected {
		return nil, false, true
	}
	s.touch(now)
	return s.backend, true, true
}

func (r *Registry) beginConnect(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.states[name]; ok && s.state == StateDisconnected {
		s.state = StateConnecting
	}
}

func (r *Registry) setConnected(name string, b Backend, capabilities []string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[name]
	if !ok {
		return
	}
	s.state = StateConnected
	s.backend = b
	s.capabilities = capabilities
	s.touch(now)
}

// take moves name to Disconnected and returns the backend it held.
func (r *Registry) take(name string) Backend {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[name]
	if !ok {
		return nil
	}
	b := s.backend
	s.state = StateDisconnected
	s.backend = nil
	s.capabilities = nil
	return b
}

// takeIf is take, but only while name still holds b.
func (r *Registry) takeIf(name string, b Backend) Backend {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[name]
	if !ok || s.state != StateConnected || s.backend != b {
		return nil
	}
	s.state = StateDisconnected
	s.backend = nil
	s.capabilities = nil
	return b
}

// takeIdle is take, but only if name has not been used since cutoff.
func (r *Registry) takeIdle(name string, cutoff time.Time) Backend {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[name]
	if !ok || s.state != StateConnected || !s.lastUsed.Before(cutoff) {
		return nil
	}
	b := s.backend
	s.state = StateDisconnected
	s.backend = nil
	s.capabilities = nil
	return b
}

func (r *Registry) touch(name string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.states[name]; ok && s.state == StateConnected {
		s.touch(now)
	}
}

func (r *Registry) lastUsed(name string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.states[name]
	if !ok || s.lastUsed.IsZero() {
		return time.Time{}, false
	}
	return s.lastUsed, true
}

func (r *Registry) capabilities(name string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.states[name]
	if !ok || s.state != StateConnected || s.capabilities == nil {
		return nil, false
	}
	return append([]string(nil), s.capabilities...), true
}

// touch advances lastUsed, keeping it strictly increasing.
func (s *connState) touch(now time.Time) {
	if !now.After(s.lastUsed) {
		now = s.lastUsed.Add(time.Nanosecond)
	}
	s.lastUsed = now
}
