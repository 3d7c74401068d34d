// Package fake provides a scripted process.Runner for tests.
package fake

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/slonopotamus/stevedore/internal/process"
)

// Call is one recorded invocation.
type Call struct {
	Name string
	Args []string
}

func (c Call) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Runner records every call and answers through Handler. A nil Handler
// succeeds with empty output.
type Runner struct {
	mu    sync.Mutex
	calls []Call

	Handler func(name string, args []string) ([]byte, error)
}

// Run implements process.Runner.
func (r *Runner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Name: name, Args: append([]string(nil), args...)})
	h := r.Handler
	r.mu.Unlock()

	if h == nil {
		return nil, nil
	}
	return h(name, args)
}

// Calls returns every recorded call in order.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Matching returns the calls whose args start with prefix.
func (r *Runner) Matching(prefix ...string) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if hasPrefix(c.Args, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets recorded calls.
func (r *Runner) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}

// Fail builds the error a real command exiting with code would produce.
func Fail(code int, stderr string) error {
	return &process.CommandError{
		Code:   code,
		Stderr: []byte(stderr),
		Err:    fmt.Errorf("exit status %d", code),
	}
}

// HasPrefix reports whether args starts with prefix.
func HasPrefix(args []string, prefix ...string) bool {
	return hasPrefix(args, prefix)
}

func hasPrefix(args, prefix []string) bool {
	if len(args) < len(prefix) {
		return false
	}
	for i, p := range prefix {
		if args[i] != p {
			return false
		}
	}
	return true
}
