// Package cleanup keeps track of the teardown actions for resources acquired
// during a build (backing files, loop mappings, mounts, temp directories).
//
// An action is registered at the moment its resource is acquired and is run
// either explicitly, when the resource is released in the normal flow, or by
// Unwind at the end of the build.
package cleanup

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// Func releases a resource.
type Func func(ctx context.Context) error

// Entry is a registered cleanup action.
type Entry struct {
	name      string
	fn        Func
	onFailure bool
	done      bool
	stack     *Stack
}

// Name returns the description the entry was registered with.
func (e *Entry) Name() string {
	return e.name
}

// Run executes the action now. The action runs at most once; later calls
// and the final Unwind skip it.
func (e *Entry) Run(ctx context.Context) error {
	e.stack.mu.Lock()
	if e.done {
		e.stack.mu.Unlock()
		return nil
	}
	e.done = true
	e.stack.mu.Unlock()

	if err := e.fn(ctx); err != nil {
		return fmt.Errorf("%s: %w", e.name, err)
	}

	return nil
}

// Dismiss drops the action without running it.
func (e *Entry) Dismiss() {
	e.stack.mu.Lock()
	defer e.stack.mu.Unlock()

	e.done = true
}

// Stack is a LIFO list of cleanup actions.
type Stack struct {
	mu      sync.Mutex
	entries []*Entry
	logger  *logrus.Entry
}

// New creates an empty Stack.
func New(logger *logrus.Entry) *Stack {
	if logger == nil {
		logger = logrus.WithField("component", "cleanup")
	}

	return &Stack{logger: logger}
}

func (s *Stack) push(name string, fn Func, onFailure bool) *Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &Entry{name: name, fn: fn, onFailure: onFailure, stack: s}
	s.entries = append(s.entries, e)

	s.logger.Debugf("registered cleanup %q", name)

	return e
}

// Push registers an action that always runs on Unwind.
func (s *Stack) Push(name string, fn Func) *Entry {
	return s.push(name, fn, false)
}

// PushOnFailure registers an action that only runs when Unwind is told the
// build failed.
func (s *Stack) PushOnFailure(name string, fn Func) *Entry {
	return s.push(name, fn, true)
}

// Pending returns the number of actions not yet run or dismissed.
func (s *Stack) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.entries {
		if !e.done {
			n++
		}
	}

	return n
}

// Unwind runs all pending actions, most recent first. Every action is
// attempted; their errors are collected.
func (s *Stack) Unwind(ctx context.Context, failed bool) error {
	s.mu.Lock()
	entries := s.entries
	s.entries = nil
	s.mu.Unlock()

	var result *multierror.Error

	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]

		if e.onFailure && !failed {
			e.Dismiss()
			continue
		}

		s.mu.Lock()
		done := e.done
		s.mu.Unlock()

		if done {
			continue
		}

		s.logger.Debugf("running cleanup %q", e.name)

		if err := e.Run(ctx); err != nil {
			s.logger.Warnf("cleanup failed: %v", err)
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}
