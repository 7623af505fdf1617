package ratelimit

import (
	"fmt"
	"time"
)

// Scope selects which part of a request's identity a policy counts against.
type Scope string

const (
	// ScopeIP buckets requests by client IP.
	ScopeIP Scope = "ip"
	// ScopeUser buckets requests by authenticated user, falling back to IP
	// for anonymous traffic.
	ScopeUser Scope = "user"
)

// Policy is a named fixed-window rate limit. Policies are immutable and
// defined at process start; handlers refer to them by name only.
type Policy struct {
	Name        string
	Window      time.Duration
	MaxRequests int
	Scope       Scope
}

func (p Policy) validate() error {
	if p.Name == "" {
		return fmt.Errorf("rate limit policy missing name")
	}
	if p.Window <= 0 {
		return fmt.Errorf("policy %q: window must be positive, got %s", p.Name, p.Window)
	}
	if p.MaxRequests <= 0 {
		return fmt.Errorf("policy %q: max requests must be positive, got %d", p.Name, p.MaxRequests)
	}
	switch p.Scope {
	case ScopeIP, ScopeUser:
	default:
		return fmt.Errorf("policy %q: unknown scope %q", p.Name, p.Scope)
	}
	return nil
}

// PolicySet is the immutable registry of named policies, built once at
// startup. Lookups by unknown name are configuration errors, not runtime
// conditions.
type PolicySet struct {
	policies map[string]Policy
	names    []string
}

// NewPolicySet validates the given policies and builds a registry.
func NewPolicySet(policies []Policy) (*PolicySet, error) {
	set := &PolicySet{policies: make(map[string]Policy, len(policies))}
	for _, p := range policies {
		if err := p.validate(); err != nil {
			return nil, err
		}
		if _, ok := set.policies[p.Name]; ok {
			return nil, fmt.Errorf("duplicate rate limit policy %q", p.Name)
		}
		set.policies[p.Name] = p
		set.names = append(set.names, p.Name)
	}
	return set, nil
}

// Get returns the policy registered under name.
func (s *PolicySet) Get(name string) (Policy, error) {
	p, ok := s.policies[name]
	if !ok {
		return Policy{}, fmt.Errorf("unknown rate limit policy %q", name)
	}
	return p, nil
}

// Names returns policy names in registration order.
func (s *PolicySet) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}
