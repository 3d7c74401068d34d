// Package endpoint parses docker host addresses and waits for them to accept
// connections.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ErrUnsupported is returned for address schemes this host cannot dial.
var ErrUnsupported = errors.New("unsupported endpoint scheme")

// Address is a parsed docker host address.
type Address struct {
	Scheme string // "npipe" or "unix"
	Path   string // OS-native pipe or socket path
}

func (a Address) String() string {
	return a.Scheme + "://" + a.Path
}

// Parse accepts "npipe:////./pipe/<name>" and "unix:///<path>".
func Parse(raw string) (Address, error) {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return Address{}, fmt.Errorf("parse endpoint %q: missing scheme", raw)
	}
	switch scheme {
	case "npipe":
		// npipe:////./pipe/name → \\.\pipe\name
		p := strings.ReplaceAll(rest, "/", `\`)
		if !strings.HasPrefix(p, `\\`) {
			return Address{}, fmt.Errorf("parse endpoint %q: pipe path must start with //", raw)
		}
		return Address{Scheme: scheme, Path: p}, nil
	case "unix":
		if rest == "" {
			return Address{}, fmt.Errorf("parse endpoint %q: empty socket path", raw)
		}
		return Address{Scheme: scheme, Path: rest}, nil
	default:
		return Address{}, fmt.Errorf("parse endpoint %q: %w", raw, ErrUnsupported)
	}
}

// Dial opens one connection to the endpoint.
func Dial(ctx context.Context, a Address) (net.Conn, error) {
	switch a.Scheme {
	case "unix":
		var d net.Dialer
		return d.DialContext(ctx, "unix", a.Path)
	case "npipe":
		return dialPipe(ctx, a.Path)
	default:
		return nil, fmt.Errorf("dial %s: %w", a, ErrUnsupported)
	}
}

// WaitReady polls the endpoint until it accepts a connection or timeout
// elapses.
func WaitReady(ctx context.Context, raw string, timeout time.Duration) error {
	addr, err := Parse(raw)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	for {
		attempt, attemptCancel := context.WithTimeout(ctx, 500*time.Millisecond)
		conn, err := Dial(attempt, addr)
		attemptCancel()
		if err == nil {
			conn.Close()
			return nil
		}
		if errors.Is(err, ErrUnsupported) {
			return err
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for %s: %w", addr, lastErr)
		case <-time.After(100 * time.Millisecond):
		}
	}
}
