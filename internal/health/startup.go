// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/domevanzy/Zattoo-EPG/internal/config"
	"github.com/domevanzy/Zattoo-EPG/internal/log"
)

// PerformStartupChecks probes the environment before the first run so
// misconfiguration fails fast instead of after a full acquisition cycle.
func PerformStartupChecks(_ context.Context, cfg config.Config) error {
	logger := log.WithComponent("startup")
	logger.Info().Str("event", "startup.checks").Msg("running pre-flight checks")

	if !cfg.TVHeadend.Only && cfg.Output != "" {
		if err := checkOutputDir(logger, cfg.Output); err != nil {
			return fmt.Errorf("output directory check failed: %w", err)
		}
	}
	if cfg.Listen != "" {
		if err := checkListenAddr(logger, cfg.Listen); err != nil {
			return fmt.Errorf("listen address check failed: %w", err)
		}
	}
	if cfg.TVHeadend.Enabled || cfg.TVHeadend.Only {
		checkSocket(logger, cfg.TVHeadend.Socket)
	}

	logger.Info().Str("event", "startup.checks_passed").Msg("pre-flight checks passed")
	return nil
}

// checkOutputDir verifies the guide file's directory exists and is writable
// by probing with a temp file.
func checkOutputDir(logger zerolog.Logger, output string) error {
	dir := filepath.Dir(output)
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", dir)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", dir)
	}

	probe := filepath.Join(dir, ".write_test")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s: %w", dir, err)
	}
	_ = os.Remove(probe)

	logger.Info().Str("dir", dir).Msg("output directory is writable")
	return nil
}

func checkListenAddr(logger zerolog.Logger, addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 0 || portNum > 65535 {
		return fmt.Errorf("invalid listen port %q in %q", port, addr)
	}
	logger.Info().Str("addr", addr).Msg("listen address is valid")
	return nil
}

// checkSocket only warns: TVHeadend may come up after the grabber, and
// delivery failures degrade individual runs rather than startup.
func checkSocket(logger zerolog.Logger, socket string) {
	if _, err := os.Stat(socket); err != nil {
		logger.Warn().
			Str("socket", socket).
			Str("event", "startup.socket_missing").
			Msg("tvheadend socket not present yet; delivery will fail until it appears")
		return
	}
	logger.Info().Str("socket", socket).Msg("tvheadend socket present")
}
