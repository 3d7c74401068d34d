package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Runner runs a CLI command to completion and returns its stdout.
// A non-zero exit status is reported as a *CommandError.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands on the local host with no console window.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := Command(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), nil
	}

	cerr := &CommandError{
		Name:   name,
		Args:   args,
		Code:   -1,
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
		Err:    err,
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		cerr.Code = exitErr.ExitCode()
	}
	if ctx.Err() != nil {
		cerr.Err = ctx.Err()
	}
	return stdout.Bytes(), cerr
}

// CommandError describes a CLI command that failed to start or exited
// non-zero.
type CommandError struct {
	Name   string
	Args   []string
	Code   int // -1 when the command never ran to exit
	Stdout []byte
	Stderr []byte
	Err    error

	// Message, when set, replaces the raw output in Error(). Callers that
	// know the output encoding fill it in.
	Message string
}

func (e *CommandError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = strings.TrimSpace(string(e.Stderr))
		if msg == "" {
			msg = strings.TrimSpace(string(e.Stdout))
		}
	}
	cmdline := strings.TrimSpace(e.Name + " " + strings.Join(e.Args, " "))
	if msg == "" {
		return fmt.Sprintf("%s: %v", cmdline, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", cmdline, e.Err, msg)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
