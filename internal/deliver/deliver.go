// SPDX-License-Identifier: MIT

// Package deliver pushes a rendered guide document into TVHeadend's XMLTV
// grabber socket.
package deliver

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/domevanzy/Zattoo-EPG/internal/log"
)

// DefaultSocketPath is where a stock TVHeadend install listens when the
// external XMLTV grabber is enabled.
const DefaultSocketPath = "/var/lib/tvheadend/epggrab/xmltv.sock"

// Push writes the complete payload to the unix stream socket at path.
// TVHeadend reads until EOF, so closing the connection completes the hand-in.
func Push(ctx context.Context, path string, payload []byte) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("tvheadend socket %s: %w", path, err)
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return fmt.Errorf("dial tvheadend socket: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("write guide to tvheadend: %w", err)
	}

	logger := log.WithComponent("deliver")
	logger.Info().
		Str("event", "tvheadend.pushed").
		Str("path", path).
		Int("bytes", len(payload)).
		Msg("guide handed to tvheadend")
	return nil
}
