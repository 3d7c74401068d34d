package dockerctx

import (
	"context"
	"strings"

	"github.com/slonopotamus/stevedore/internal/process"
)

// Client is the `docker context` command surface.
type Client interface {
	Create(ctx context.Context, name, host string) error
	Update(ctx context.Context, name, host string) error
	Use(ctx context.Context, name string) error
	// Show returns the name of the active context.
	Show(ctx context.Context) (string, error)
}

// CLI drives contexts through the docker binary.
type CLI struct {
	bin    string
	runner process.Runner
}

// NewCLI returns a CLI running bin (default "docker") through runner.
func NewCLI(bin string, runner process.Runner) *CLI {
	if bin == "" {
		bin = "docker"
	}
	if runner == nil {
		runner = process.ExecRunner{}
	}
	return &CLI{bin: bin, runner: runner}
}

// Create implements Client.
func (c *CLI) Create(ctx context.Context, name, host string) error {
	_, err := c.runner.Run(ctx, c.bin, "context", "create", name, "--docker", "host="+host)
	return err
}

// Update implements Client.
func (c *CLI) Update(ctx context.Context, name, host string) error {
	_, err := c.runner.Run(ctx, c.bin, "context", "update", name, "--docker", "host="+host)
	return err
}

// Use implements Client.
func (c *CLI) Use(ctx context.Context, name string) error {
	_, err := c.runner.Run(ctx, c.bin, "context", "use", name)
	return err
}

// Show implements Client.
func (c *CLI) Show(ctx context.Context) (string, error) {
	out, err := c.runner.Run(ctx, c.bin, "context", "show")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
