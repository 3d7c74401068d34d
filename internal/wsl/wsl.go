// Package wsl drives WSL distributions through wsl.exe.
//
// Every operation is a one-shot CLI call keyed by distribution name. Exit
// status is success or failure; stdout is the payload.
package wsl

import (
	"bufio"
	"context"
	"errors"
	"strings"

	"github.com/slonopotamus/stevedore/internal/process"
)

// Backend is the registration surface of the host virtualization layer.
type Backend interface {
	// IsRegistered reports whether a distribution with this name exists.
	IsRegistered(ctx context.Context, name string) (bool, error)
	// Import registers a distribution from a root filesystem tarball,
	// storing its disk under installDir.
	Import(ctx context.Context, name, installDir, artifact, version string) error
}

// noDistributionsCode is the error code wsl.exe prints, in any locale, when
// `--list` finds nothing installed.
const noDistributionsCode = "WSL_E_DEFAULT_DISTRO_NOT_FOUND"

// errNoNative means the native registration query is unavailable and the
// caller should fall back to parsing `wsl --list`.
var errNoNative = errors.New("native wsl api unavailable")

// Client is a wsl.exe driver. It implements Backend.
type Client struct {
	bin    string
	runner process.Runner

	// native queries registration without spawning wsl.exe.
	native func(name string) (bool, error)
}

// New returns a Client running bin (default "wsl") through runner.
func New(bin string, runner process.Runner) *Client {
	if bin == "" {
		bin = "wsl"
	}
	if runner == nil {
		runner = process.ExecRunner{}
	}
	return &Client{
		bin:    bin,
		runner: runner,
		native: nativeIsRegistered,
	}
}

// Bin is the wsl.exe path used for every call.
func (c *Client) Bin() string {
	return c.bin
}

// IsRegistered implements Backend.
func (c *Client) IsRegistered(ctx context.Context, name string) (bool, error) {
	if ok, err := c.native(name); !errors.Is(err, errNoNative) {
		return ok, err
	}

	names, err := c.List(ctx)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return true, nil
		}
	}
	return false, nil
}

// List returns the names of all registered distributions.
func (c *Client) List(ctx context.Context) ([]string, error) {
	out, err := c.run(ctx, "--list", "--quiet")
	if err != nil {
		if noDistributions(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	sc := bufio.NewScanner(strings.NewReader(decodeOutput(out)))
	for sc.Scan() {
		if n := strings.TrimSpace(sc.Text()); n != "" {
			names = append(names, n)
		}
	}
	return names, nil
}

// Import implements Backend.
func (c *Client) Import(ctx context.Context, name, installDir, artifact, version string) error {
	args := []string{"--import", name, installDir, artifact}
	if version != "" {
		args = append(args, "--version", version)
	}
	_, err := c.run(ctx, args...)
	return err
}

// Exec runs argv inside the distribution, without a shell, and returns stdout.
func (c *Client) Exec(ctx context.Context, name string, argv ...string) ([]byte, error) {
	return c.run(ctx, c.ExecArgs(name, argv...)...)
}

// ExecArgs returns the wsl.exe arguments that run argv inside the distribution.
func (c *Client) ExecArgs(name string, argv ...string) []string {
	return append([]string{"--distribution", name, "--exec"}, argv...)
}

// Terminate stops the running instance of the distribution. Registration
// and disk are untouched.
func (c *Client) Terminate(ctx context.Context, name string) error {
	_, err := c.run(ctx, "--terminate", name)
	return err
}

// Unregister removes the distribution and deletes its disk.
func (c *Client) Unregister(ctx context.Context, name string) error {
	_, err := c.run(ctx, "--unregister", name)
	return err
}

// noDistributions reports whether a failed `wsl --list` only means that no
// distribution is installed.
func noDistributions(err error) bool {
	var cerr *process.CommandError
	if !errors.As(err, &cerr) {
		return false
	}
	msg := cerr.Message
	return strings.Contains(msg, noDistributionsCode) ||
		strings.Contains(msg, "has no installed distributions")
}

func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	out, err := c.runner.Run(ctx, c.bin, args...)
	if err != nil {
		var cerr *process.CommandError
		if errors.As(err, &cerr) && cerr.Message == "" {
			cerr.Message = strings.TrimSpace(decodeOutput(cerr.Stdout) + " " + decodeOutput(cerr.Stderr))
		}
	}
	return out, err
}
