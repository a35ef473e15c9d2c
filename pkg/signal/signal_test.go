package signal

import (
	"errors"
	"runtime"
	"slices"
	"testing"
)

func TestSendOrderAndStrictness(t *testing.T) {
	s := New("pre-backup")
	var calls []string
	s.Connect(func(any, Args) (any, error) { calls = append(calls, "a"); return 1, nil }, Named("a"))
	s.Connect(func(any, Args) (any, error) { calls = append(calls, "b"); return nil, errors.New("boom") }, Named("b"))
	s.Connect(func(any, Args) (any, error) { calls = append(calls, "c"); return 3, nil }, Named("c"))

	results, err := s.Send(nil, nil)
	if err == nil {
		t.Fatal("Send should fail on the raising receiver")
	}
	if !slices.Equal(calls, []string{"a", "b"}) {
		t.Errorf("Send must stop at the first error, called %v", calls)
	}
	if len(results) != 2 || results[0].Value != 1 || results[1].Receiver != "b" {
		t.Errorf("unexpected results %+v", results)
	}

	calls = nil
	robust := s.SendRobust(nil, nil)
	if len(robust) != 3 {
		t.Fatalf("SendRobust must return one entry per receiver, got %d", len(robust))
	}
	if !slices.Equal(calls, []string{"a", "b", "c"}) {
		t.Errorf("receivers not called in registration order: %v", calls)
	}
	if robust[1].Err == nil || robust[2].Value != 3 {
		t.Errorf("unexpected robust results %+v", robust)
	}
	if FirstError(robust) == nil || Errors(robust) == nil {
		t.Error("expected the receiver error to be reported")
	}
}

func TestSendRobustRecoversPanics(t *testing.T) {
	s := New("post-backup")
	s.Connect(func(any, Args) (any, error) { panic("kaboom") }, Named("panicky"))
	s.Connect(func(any, Args) (any, error) { return "ok", nil })

	results := s.SendRobust("job", Args{"k": 1})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	var pe *PanicError
	if !errors.As(results[0].Err, &pe) || pe.Receiver != "panicky" {
		t.Errorf("expected a PanicError from the first receiver, got %v", results[0].Err)
	}
	if results[1].Value != "ok" {
		t.Errorf("second receiver should still run, got %+v", results[1])
	}
}

func TestSendTurnsPanicIntoError(t *testing.T) {
	s := New("pre-backup")
	s.Connect(func(any, Args) (any, error) { panic("hook blew up") }, Named("panicky"))
	ran := false
	s.Connect(func(any, Args) (any, error) { ran = true; return nil, nil })

	results, err := s.Send("job", nil)
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected a PanicError, got %v", err)
	}
	if pe.Receiver != "panicky" || pe.Value != "hook blew up" || len(pe.Stack) == 0 {
		t.Errorf("unexpected panic error: %+v", pe)
	}
	if len(results) != 1 || results[0].Err == nil {
		t.Errorf("expected the failing result only, got %+v", results)
	}
	if ran {
		t.Error("Send should stop at the panicking receiver")
	}
}

func TestSenderFilterAndDisconnect(t *testing.T) {
	type job struct{ name string }
	mine, other := &job{"mine"}, &job{"other"}

	s := New("fail-backup")
	hits := 0
	s.Connect(func(any, Args) (any, error) { hits++; return nil, nil }, FromSender(mine))
	anyID := s.Connect(func(sender any, args Args) (any, error) { return args["n"], nil })

	if r := s.SendRobust(other, Args{"n": 7}); len(r) != 1 || r[0].Value != 7 {
		t.Errorf("filtered receiver must not see other senders: %+v", r)
	}
	s.SendRobust(mine, nil)
	if hits != 1 {
		t.Errorf("expected filtered receiver to run once, ran %d", hits)
	}

	// A non-comparable sender never matches a filter but does not panic.
	if r := s.SendRobust([]int{1}, nil); len(r) != 1 {
		t.Errorf("expected only the unfiltered receiver, got %d", len(r))
	}

	if !s.Disconnect(anyID) {
		t.Error("Disconnect should report a connected receiver")
	}
	if s.Disconnect(anyID) {
		t.Error("second Disconnect should report false")
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 receiver left, got %d", s.Len())
	}
}

type owner struct {
	name string
	seen []string
}

func (o *owner) receive(sender any, args Args) (any, error) {
	o.seen = append(o.seen, o.name)
	return o.name, nil
}

func connectTransient(s *Signal) {
	o := &owner{name: "transient"}
	ConnectWeak(s, o, (*owner).receive)
}

func TestWeakReceivers(t *testing.T) {
	s := New("pre-backup")
	kept := &owner{name: "kept"}
	ConnectWeak(s, kept, (*owner).receive)
	connectTransient(s)

	var results []Result
	for range 10 {
		runtime.GC()
		results = s.SendRobust(nil, nil)
		if len(results) == 1 {
			break
		}
	}
	if len(results) != 1 || results[0].Value != "kept" {
		t.Fatalf("collected weak receiver should be dropped, got %+v", results)
	}
	if s.Len() != 1 {
		t.Errorf("dead receiver should be compacted, have %d", s.Len())
	}
	runtime.KeepAlive(kept)
}

func TestGroup(t *testing.T) {
	g := NewGroup("pre-backup", "post-backup", "fail-backup")
	if !slices.Equal(g.Names(), []string{"pre-backup", "post-backup", "fail-backup"}) {
		t.Errorf("unexpected names %v", g.Names())
	}

	var order []string
	g.Connect("post-backup", func(any, Args) (any, error) { order = append(order, "1"); return nil, errors.New("first") })
	g.Connect("post-backup", func(any, Args) (any, error) { order = append(order, "2"); return nil, errors.New("last") })
	g.Connect("post-backup", func(any, Args) (any, error) { order = append(order, "3"); return nil, nil })

	t.Run("NotifyAll runs everything and returns the last error", func(t *testing.T) {
		order = nil
		results, err := g.NotifyAll("post-backup", nil, nil)
		if len(results) != 3 || len(order) != 3 {
			t.Fatalf("expected all receivers to run, got %v", order)
		}
		if err == nil || !errors.Is(err, results[1].Err) {
			t.Errorf("expected the last error, got %v", err)
		}
	})

	t.Run("Notify stops early", func(t *testing.T) {
		order = nil
		if _, err := g.Notify("post-backup", nil, nil); err == nil {
			t.Error("expected Notify to fail")
		}
		if len(order) != 1 {
			t.Errorf("expected one receiver to run, got %v", order)
		}
	})

	t.Run("NotifySafe yields lazily", func(t *testing.T) {
		order = nil
		for res := range g.NotifySafe("post-backup", nil, nil) {
			if res.Err == nil {
				t.Error("first result should carry its error")
			}
			break
		}
		if len(order) != 1 {
			t.Errorf("breaking out should stop further receivers, ran %v", order)
		}
		n := 0
		for range g.NotifySafe("missing", nil, nil) {
			n++
		}
		if n != 0 {
			t.Error("unknown signal should yield nothing")
		}
	})

	if _, err := g.Notify("missing", nil, nil); err == nil {
		t.Error("Notify on an unknown signal should fail")
	}
	if g.Signal("report-low-space") == nil || len(g.Names()) != 4 {
		t.Error("Signal should create new signals on demand")
	}
}
