package signal

import (
	"fmt"
	"iter"
	"slices"
	"sync"
)

// Group is a named set of signals.
type Group struct {
	mu      sync.Mutex
	signals map[string]*Signal
	order   []string
}

// NewGroup returns a group pre-populated with the named signals.
func NewGroup(names ...string) *Group {
	g := &Group{signals: make(map[string]*Signal)}
	for _, n := range names {
		g.Signal(n)
	}
	return g
}

// Signal returns the named signal, creating it on first use.
func (g *Group) Signal(name string) *Signal {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.signals[name]; ok {
		return s
	}
	s := New(name)
	g.signals[name] = s
	g.order = append(g.order, name)
	return s
}

// Lookup returns the named signal if it exists.
func (g *Group) Lookup(name string) (*Signal, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.signals[name]
	return s, ok
}

// Names returns the signal names in creation order.
func (g *Group) Names() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.order)
}

// Connect is shorthand for g.Signal(name).Connect.
func (g *Group) Connect(name string, fn Receiver, opts ...Option) ID {
	return g.Signal(name).Connect(fn, opts...)
}

// Notify sends strictly: the first receiver error aborts and is returned.
func (g *Group) Notify(name string, sender any, args Args) ([]Result, error) {
	s, ok := g.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown signal %q", name)
	}
	return s.Send(sender, args)
}

// NotifyAll runs every receiver and then returns the last error seen, so
// one failing receiver does not starve the others.
func (g *Group) NotifyAll(name string, sender any, args Args) ([]Result, error) {
	s, ok := g.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown signal %q", name)
	}
	results := s.SendRobust(sender, args)
	var last error
	for _, r := range results {
		if r.Err != nil {
			last = fmt.Errorf("signal %s: receiver %s: %w", name, r.Receiver, r.Err)
		}
	}
	return results, last
}

// NotifySafe yields each receiver's result as it runs. It never fails; an
// unknown signal yields nothing.
func (g *Group) NotifySafe(name string, sender any, args Args) iter.Seq[Result] {
	return func(yield func(Result) bool) {
		s, ok := g.Lookup(name)
		if !ok {
			return
		}
		for _, r := range s.snapshot() {
			if !matchesSender(r.sender, sender) {
				continue
			}
			res, alive := s.callRobust(r, sender, args)
			if !alive {
				s.markDead(r)
				continue
			}
			if !yield(res) {
				return
			}
		}
	}
}
