// Package signal is a small in-process event dispatcher. A Signal keeps an
// ordered list of receivers; Send calls them in registration order.
//
// Receivers bound to an owner with ConnectWeak do not keep the owner alive.
// Once the owner is collected the receiver is skipped and its slot is
// compacted on the next send.
package signal

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"weak"
)

// Args carries the keyword arguments of a send.
type Args map[string]any

// Receiver handles a signal. sender is whatever the caller passed to Send.
type Receiver func(sender any, args Args) (any, error)

// ID identifies a connection for Disconnect.
type ID uint64

// Result is the outcome of one receiver.
type Result struct {
	Receiver string
	Value    any
	Err      error
}

// PanicError wraps a panic raised by a receiver. Send returns it as the
// failing error, SendRobust reports it in the receiver's Result.
type PanicError struct {
	Receiver string
	Value    any
	Stack    []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("receiver %s panicked: %v", e.Receiver, e.Value)
}

type registration struct {
	id     ID
	name   string
	sender any
	weak   bool
	// call returns alive=false once a weak owner has been collected.
	call func(sender any, args Args) (v any, err error, alive bool)
}

// Option configures a connection.
type Option func(*registration)

// FromSender restricts the receiver to sends from sender. Senders are
// compared with ==, so pass pointers or other comparable values.
func FromSender(sender any) Option {
	return func(r *registration) { r.sender = sender }
}

// Named sets the receiver name reported in Results and logs.
func Named(name string) Option {
	return func(r *registration) { r.name = name }
}

// Signal is a named event.
type Signal struct {
	Name string

	mu     sync.Mutex
	nextID ID
	recv   []*registration
}

// New returns a signal with no receivers.
func New(name string) *Signal {
	return &Signal{Name: name}
}

func (s *Signal) add(r *registration, opts []Option) ID {
	for _, opt := range opts {
		opt(r)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	r.id = s.nextID
	if r.name == "" {
		r.name = fmt.Sprintf("%s#%d", s.Name, r.id)
	}
	s.recv = append(s.recv, r)
	return r.id
}

// Connect registers fn. The signal holds fn strongly.
func (s *Signal) Connect(fn Receiver, opts ...Option) ID {
	return s.add(&registration{
		call: func(sender any, args Args) (any, error, bool) {
			v, err := fn(sender, args)
			return v, err, true
		},
	}, opts)
}

// ConnectWeak registers method bound to owner without keeping owner
// reachable. method must not capture owner itself; use a method expression
// such as (*Hook).OnBackup.
func ConnectWeak[T any](s *Signal, owner *T, method func(owner *T, sender any, args Args) (any, error), opts ...Option) ID {
	wp := weak.Make(owner)
	return s.add(&registration{
		weak: true,
		call: func(sender any, args Args) (any, error, bool) {
			o := wp.Value()
			if o == nil {
				return nil, nil, false
			}
			v, err := method(o, sender, args)
			return v, err, true
		},
	}, opts)
}

// Disconnect removes a connection. It reports whether id was connected.
func (s *Signal) Disconnect(id ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.recv {
		if r.id == id {
			s.recv = append(s.recv[:i:i], s.recv[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of receivers, including weak ones whose owner
// was collected since the last send.
func (s *Signal) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recv)
}

// snapshot copies the receiver list so receivers may connect or disconnect
// while a send is in progress.
func (s *Signal) snapshot() []*registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*registration(nil), s.recv...)
}

func (s *Signal) markDead(r *registration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.recv {
		if cur == r {
			s.recv = append(s.recv[:i:i], s.recv[i+1:]...)
			return
		}
	}
}

func matchesSender(filter, sender any) (ok bool) {
	if filter == nil {
		return true
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return filter == sender
}

// Send calls every matching receiver in order and stops at the first error.
// A panicking receiver counts as an error (*PanicError). The results
// gathered so far are returned alongside that error.
func (s *Signal) Send(sender any, args Args) ([]Result, error) {
	var results []Result
	for _, r := range s.snapshot() {
		if !matchesSender(r.sender, sender) {
			continue
		}
		res, alive := s.callRobust(r, sender, args)
		if !alive {
			s.markDead(r)
			continue
		}
		results = append(results, res)
		if res.Err != nil {
			return results, fmt.Errorf("signal %s: receiver %s: %w", s.Name, r.name, res.Err)
		}
	}
	return results, nil
}

// SendRobust calls every matching receiver and never fails. Errors and
// panics are reported in the receiver's Result.
func (s *Signal) SendRobust(sender any, args Args) []Result {
	var results []Result
	for _, r := range s.snapshot() {
		if !matchesSender(r.sender, sender) {
			continue
		}
		res, alive := s.callRobust(r, sender, args)
		if !alive {
			s.markDead(r)
			continue
		}
		results = append(results, res)
	}
	return results
}

func (s *Signal) callRobust(r *registration, sender any, args Args) (res Result, alive bool) {
	res.Receiver = r.name
	defer func() {
		if rec := recover(); rec != nil {
			res.Err = &PanicError{Receiver: r.name, Value: rec, Stack: debug.Stack()}
			alive = true
		}
	}()
	v, err, alive := r.call(sender, args)
	res.Value, res.Err = v, err
	return res, alive
}

// FirstError returns the first receiver error in results, or nil.
func FirstError(results []Result) error {
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}

// Errors joins every receiver error in results.
func Errors(results []Result) error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Receiver, r.Err))
		}
	}
	return errors.Join(errs...)
}
