package input

import "sync/atomic"

// EatPolicy decides whether an escalated event is suppressed. It is called
// from the hook callback and must not block.
type EatPolicy interface {
	EatKeyboard(ev KeyboardEvent) bool
	EatMouse(ev MouseEvent) bool
}

// PassThrough never suppresses input.
type PassThrough struct{}

func (PassThrough) EatKeyboard(KeyboardEvent) bool { return false }
func (PassThrough) EatMouse(MouseEvent) bool       { return false }

// SuppressPolicy eats a fixed set of virtual-key codes and mouse kinds.
// It is immutable once built.
type SuppressPolicy struct {
	keys  map[uint32]struct{}
	mouse [MouseMiddleUp + 1]bool
}

// NewSuppressPolicy builds a policy from key codes and mouse kinds.
func NewSuppressPolicy(keys []uint32, mouse []MouseKind) *SuppressPolicy {
	p := &SuppressPolicy{keys: make(map[uint32]struct{}, len(keys))}
	for _, k := range keys {
		p.keys[k] = struct{}{}
	}
	for _, m := range mouse {
		if int(m) < len(p.mouse) {
			p.mouse[m] = true
		}
	}
	return p
}

func (p *SuppressPolicy) EatKeyboard(ev KeyboardEvent) bool {
	_, ok := p.keys[ev.Code]
	return ok
}

func (p *SuppressPolicy) EatMouse(ev MouseEvent) bool {
	return int(ev.Kind) < len(p.mouse) && p.mouse[ev.Kind]
}

// Empty reports whether the policy never eats anything.
func (p *SuppressPolicy) Empty() bool {
	if len(p.keys) > 0 {
		return false
	}
	for _, on := range p.mouse {
		if on {
			return false
		}
	}
	return true
}

type policyBox struct{ p EatPolicy }

// SwitchablePolicy delegates to a policy that can be replaced or switched
// off while hooks are armed.
type SwitchablePolicy struct {
	current  atomic.Pointer[policyBox]
	disabled atomic.Bool
}

// NewSwitchablePolicy wraps p. A nil p behaves as PassThrough.
func NewSwitchablePolicy(p EatPolicy) *SwitchablePolicy {
	s := &SwitchablePolicy{}
	s.Store(p)
	return s
}

// Store replaces the delegate.
func (s *SwitchablePolicy) Store(p EatPolicy) {
	if p == nil {
		p = PassThrough{}
	}
	s.current.Store(&policyBox{p: p})
}

// Disable turns all suppression off until Enable is called.
func (s *SwitchablePolicy) Disable() { s.disabled.Store(true) }

// Enable re-arms the delegate.
func (s *SwitchablePolicy) Enable() { s.disabled.Store(false) }

// Enabled reports whether the delegate is consulted.
func (s *SwitchablePolicy) Enabled() bool { return !s.disabled.Load() }

func (s *SwitchablePolicy) EatKeyboard(ev KeyboardEvent) bool {
	if s.disabled.Load() {
		return false
	}
	return s.current.Load().p.EatKeyboard(ev)
}

func (s *SwitchablePolicy) EatMouse(ev MouseEvent) bool {
	if s.disabled.Load() {
		return false
	}
	return s.current.Load().p.EatMouse(ev)
}
