//go:build !windows

package endpoint

import (
	"context"
	"fmt"
	"net"
)

func dialPipe(_ context.Context, path string) (net.Conn, error) {
	return nil, fmt.Errorf("dial %s: named pipes: %w", path, ErrUnsupported)
}
