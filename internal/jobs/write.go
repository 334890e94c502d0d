// SPDX-License-Identifier: MIT
package jobs

import (
	"context"
	"fmt"

	"github.com/google/renameio/v2"

	"github.com/domevanzy/Zattoo-EPG/internal/log"
)

// writeGuide replaces the XMLTV file atomically. renameio fsyncs the
// pending file before the rename, so readers see either the previous
// document or the complete new one, never a partial write.
func writeGuide(ctx context.Context, path string, payload []byte) error {
	logger := log.WithComponentFromContext(ctx, "jobs")

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending XMLTV file: %w", err)
	}
	defer func() {
		// Cleanup is a no-op once the file has been committed.
		if err := pending.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending XMLTV file")
		}
	}()

	if _, err := pending.Write(payload); err != nil {
		return fmt.Errorf("write XMLTV data: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace XMLTV file: %w", err)
	}

	logger.Info().
		Str("event", "guide.written").
		Str("path", path).
		Int("bytes", len(payload)).
		Msg("XMLTV file replaced")
	return nil
}
