package session

import (
	"strings"
	"time"
)

// InjectorOutcome is the terminal result of one delivery attempt.
type InjectorOutcome struct {
	Delivered bool
	Err       error
}

// InjectorTask owns the write-once delivery of the secret into the rendezvous
// pipe over an independent transport connection. It is created alongside the
// session's interactive transport, runs concurrently, and terminates after
// its single attempt succeeds or fails — never retried.
//
// The task is supervised rather than fire-and-forget: the coordinator never
// blocks session startup on it, but retains the handle so cleanup logic and
// tests can observe the terminal outcome deterministically.
type InjectorTask struct {
	done    chan struct{}
	outcome InjectorOutcome
}

// startInjector launches the delivery goroutine. The secret is streamed as
// the remote command's standard input — never as an argument, never via an
// intermediate file. startDelay is an optional cushion before connecting;
// correctness comes from the injector script's existence poll, not from the
// delay.
func startInjector(tr Transport, target Target, hs Handshake, secret string, startDelay time.Duration) *InjectorTask {
	t := &InjectorTask{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		if startDelay > 0 {
			time.Sleep(startDelay)
		}
		_, err := tr.Run(target, hs.InjectorScript(), strings.NewReader(secret))
		if err != nil {
			t.outcome = InjectorOutcome{Delivered: false, Err: err}
			return
		}
		t.outcome = InjectorOutcome{Delivered: true}
	}()
	return t
}

// Wait blocks until the delivery attempt finishes or the timeout elapses.
// Returns true when the task has terminated.
func (t *InjectorTask) Wait(timeout time.Duration) bool {
	if t == nil {
		return true
	}
	if timeout <= 0 {
		<-t.done
		return true
	}
	select {
	case <-t.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Outcome returns the delivery result and whether the task has finished.
// Safe to call at any time; the outcome is only meaningful once finished.
func (t *InjectorTask) Outcome() (InjectorOutcome, bool) {
	if t == nil {
		return InjectorOutcome{}, true
	}
	select {
	case <-t.done:
		return t.outcome, true
	default:
		return InjectorOutcome{}, false
	}
}
