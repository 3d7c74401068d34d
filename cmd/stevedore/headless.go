//go:build !uifrontend

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/slonopotamus/stevedore/internal/supervisor"
)

// runSession starts the session and blocks until SIGINT or SIGTERM.
func runSession(ctx context.Context, sup *supervisor.Supervisor) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		for range sigCh {
			sup.Quit()
		}
	}()

	if err := sup.Start(ctx); err != nil {
		return err
	}
	return sup.Run(ctx)
}
