package breaker

import (
	"fmt"

	"go.uber.org/zap"
)

// Registry holds one long-lived breaker per named dependency. It is built at
// process start and injected; there is no package-level instance, so tests
// construct isolated registries.
type Registry struct {
	breakers map[string]*Breaker
}

// NewRegistry builds breakers for all given settings. Duplicate or invalid
// settings are configuration errors.
func NewRegistry(settings []Settings, logger *zap.Logger, opts ...Option) (*Registry, error) {
	reg := &Registry{breakers: make(map[string]*Breaker, len(settings))}
	for _, s := range settings {
		if _, ok := reg.breakers[s.Name]; ok {
			return nil, fmt.Errorf("duplicate breaker %q", s.Name)
		}
		b, err := New(s, logger, opts...)
		if err != nil {
			return nil, err
		}
		reg.breakers[s.Name] = b
	}
	return reg, nil
}

// Get returns the breaker for a named dependency. A missing name is a
// configuration error: dependencies are declared up front, never on demand.
func (r *Registry) Get(name string) (*Breaker, error) {
	b, ok := r.breakers[name]
	if !ok {
		return nil, fmt.Errorf("unknown breaker %q", name)
	}
	return b, nil
}

// States snapshots every breaker's state, keyed by dependency name.
func (r *Registry) States() map[string]string {
	states := make(map[string]string, len(r.breakers))
	for name, b := range r.breakers {
		states[name] = b.State().String()
	}
	return states
}
