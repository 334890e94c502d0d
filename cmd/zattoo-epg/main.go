// SPDX-License-Identifier: MIT

// Command zattoo-epg grabs the Zattoo programme guide and writes it as
// XMLTV. By default it runs once and exits; with -listen it stays up,
// refreshes the guide periodically and serves an operational HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/domevanzy/Zattoo-EPG/internal/config"
	"github.com/domevanzy/Zattoo-EPG/internal/health"
	"github.com/domevanzy/Zattoo-EPG/internal/jobs"
	zlog "github.com/domevanzy/Zattoo-EPG/internal/log"
	"github.com/domevanzy/Zattoo-EPG/internal/ratelimit"
	"github.com/domevanzy/Zattoo-EPG/internal/telemetry"
	"github.com/domevanzy/Zattoo-EPG/internal/zattoo"
	xrate "golang.org/x/time/rate"
)

var (
	version   = "v1.1.0"
	commit    = "none"
	buildDate = "unknown"
)

// flags holds the parsed command line. Only flags the user actually set
// override the loaded configuration.
type flags struct {
	configPath  string
	country     string
	days        int
	output      string
	noDetails   bool
	interactive bool
	tvheadend   bool
	tvhOnly     bool
	tvhSocket   string
	listen      string
	logLevel    string
	showVersion bool

	set map[string]bool
}

func parseFlags(args []string) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("zattoo-epg", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "path to config file (YAML)")
	fs.StringVar(&f.country, "country", "", "service region: DE or CH")
	fs.IntVar(&f.days, "days", 0, "guide horizon in days (1-14)")
	fs.StringVar(&f.output, "output", "", "XMLTV output path")
	fs.BoolVar(&f.noDetails, "no-details", false, "skip per-programme detail enrichment")
	fs.BoolVar(&f.interactive, "interactive", false, "prompt for credentials")
	fs.BoolVar(&f.tvheadend, "tvheadend", false, "push the guide to the TVHeadend socket after writing")
	fs.BoolVar(&f.tvhOnly, "tvheadend-only", false, "push to TVHeadend without writing a file")
	fs.StringVar(&f.tvhSocket, "tvheadend-socket", "", "TVHeadend xmltv socket path")
	fs.StringVar(&f.listen, "listen", "", "daemon mode: HTTP listen address, e.g. :8080")
	fs.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.BoolVar(&f.showVersion, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	f.set = make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	return f, nil
}

// apply overlays set flags onto the loaded configuration.
func (f flags) apply(cfg *config.Config) {
	if f.set["country"] {
		cfg.Country = f.country
	}
	if f.set["days"] {
		cfg.Days = f.days
	}
	if f.set["output"] {
		cfg.Output = f.output
	}
	if f.set["no-details"] {
		cfg.Details = !f.noDetails
	}
	if f.set["tvheadend"] {
		cfg.TVHeadend.Enabled = f.tvheadend
	}
	if f.set["tvheadend-only"] {
		cfg.TVHeadend.Only = f.tvhOnly
		if f.tvhOnly {
			cfg.TVHeadend.Enabled = true
			cfg.Output = ""
		}
	}
	if f.set["tvheadend-socket"] {
		cfg.TVHeadend.Socket = f.tvhSocket
	}
	if f.set["listen"] {
		cfg.Listen = f.listen
	}
	if f.set["log-level"] {
		cfg.LogLevel = f.logLevel
	}
}

// runOptions maps the resolved configuration onto pipeline options.
func runOptions(cfg config.Config) jobs.Options {
	opts := jobs.Options{
		Days:               cfg.Days,
		WithDetails:        cfg.Details,
		Language:           cfg.Language(),
		Generator:          "zattoo-epg " + version,
		OutputPath:         cfg.Output,
		ScheduleWorkers:    cfg.ScheduleWorkers,
		DetailWorkers:      cfg.DetailWorkers,
		DetailBatchSize:    cfg.DetailBatchSize,
		DetailRetries:      cfg.DetailMaxRetries,
		DetailFailureLimit: cfg.DetailFailureLimit,
	}
	if cfg.TVHeadend.Enabled || cfg.TVHeadend.Only {
		opts.TVHeadendSocket = cfg.TVHeadend.Socket
		opts.TVHeadendOnly = cfg.TVHeadend.Only
	}
	return opts
}

// buildDeps wires the provider client and the shared rate governor.
func buildDeps(cfg config.Config) (jobs.Deps, error) {
	client, err := zattoo.New(zattoo.Options{
		BaseURL:     cfg.BaseURL,
		LogoBaseURL: cfg.LogoBaseURL,
		Country:     cfg.Country,
		UserAgent:   cfg.UserAgent,
		Timeout:     cfg.Timeout,
		Credentials: zattoo.Credentials{Email: cfg.Email, Password: cfg.Password},
	})
	if err != nil {
		return jobs.Deps{}, err
	}
	governor := ratelimit.New(ratelimit.Config{
		InitialRate:   xrate.Limit(cfg.Rate.Limit),
		Burst:         cfg.Rate.Burst,
		MinRate:       xrate.Limit(cfg.Rate.Floor),
		RecoveryAfter: cfg.Rate.Recovery,
	})
	return jobs.Deps{Client: client, Governor: governor}, nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	f, err := parseFlags(args)
	if err != nil {
		return 2
	}
	if f.showVersion {
		fmt.Printf("zattoo-epg %s (commit: %s, built: %s)\n", version, commit, buildDate)
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(f.configPath)
	if err != nil {
		logger := zlog.WithComponent("main")
		logger.Error().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", f.configPath).
			Msg("failed to load configuration")
		return 1
	}
	f.apply(&cfg)

	// Configure is once-only; this must be the first logger touch so the
	// resolved level sticks.
	zlog.Configure(zlog.Config{Level: cfg.LogLevel, Service: "zattoo-epg"})
	logger := zlog.WithComponent("main")

	if err := cfg.Validate(); err != nil {
		logger.Error().
			Err(err).
			Str("event", "config.invalid").
			Msg("configuration is invalid")
		return 1
	}

	if f.interactive {
		email, password, err := config.PromptCredentials(os.Stdin, os.Stderr)
		if err != nil {
			logger.Error().
				Err(err).
				Str("event", "login.prompt_failed").
				Msg("interactive login failed")
			return 1
		}
		cfg.Email, cfg.Password = email, password
	}
	if err := cfg.ValidateCredentials(); err != nil {
		logger.Error().
			Err(err).
			Str("event", "config.credentials_missing").
			Msg("no usable credentials; set them in the config file, environment or use -interactive")
		return 1
	}

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Error().
			Err(err).
			Str("event", "startup.check_failed").
			Msg("startup checks failed, verify configuration and permissions")
		return 1
	}

	tracer, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    "zattoo-epg",
		ServiceVersion: version,
		Protocol:       cfg.OTel.Protocol,
		Endpoint:       cfg.OTel.Endpoint,
		SampleRatio:    cfg.OTel.SampleRatio,
		Insecure:       cfg.OTel.Insecure,
	})
	if err != nil {
		logger.Error().
			Err(err).
			Str("event", "telemetry.setup_failed").
			Msg("failed to set up tracing")
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("country", cfg.Country).
		Int("days", cfg.Days).
		Bool("details", cfg.Details).
		Bool("daemon", !cfg.OneShot()).
		Msg("starting zattoo-epg")

	if cfg.OneShot() {
		return runOnce(ctx, cfg)
	}
	return runDaemon(ctx, cfg, f.configPath)
}

// runOnce performs a single grab. Degraded runs still exit 0; the stats
// line tells the operator what was missed.
func runOnce(ctx context.Context, cfg config.Config) int {
	logger := zlog.WithComponent("main")

	deps, err := buildDeps(cfg)
	if err != nil {
		logger.Error().Err(err).Str("event", "setup.failed").Msg("cannot build provider client")
		return 1
	}

	ctx = zlog.ContextWithRunID(ctx, newRunID())
	if _, err := jobs.Run(ctx, deps, runOptions(cfg)); err != nil {
		logger.Error().
			Err(err).
			Str("event", "run.failed").
			Msg("guide acquisition failed")
		return 1
	}
	return 0
}
