// SPDX-License-Identifier: MIT

// Package config resolves the grabber configuration from defaults, an
// optional YAML file and environment variables, in ascending precedence
// (ENV > file > defaults). Command-line flags are applied on top by the
// caller.
package config

import (
	"time"
)

// Environment variable keys. Every knob is reachable without a config file.
const (
	EnvCountry         = "ZATTOO_COUNTRY"
	EnvEmail           = "ZATTOO_EMAIL"
	EnvPassword        = "ZATTOO_PASSWORD"
	EnvDays            = "ZATTOO_DAYS"
	EnvDetails         = "ZATTOO_DETAILS"
	EnvOutput          = "ZATTOO_OUTPUT"
	EnvBaseURL         = "ZATTOO_BASE_URL"
	EnvTimeout         = "ZATTOO_HTTP_TIMEOUT"
	EnvUserAgent       = "ZATTOO_USER_AGENT"
	EnvScheduleWorkers = "ZATTOO_SCHEDULE_WORKERS"
	EnvDetailWorkers   = "ZATTOO_DETAIL_WORKERS"
	EnvRateLimit       = "ZATTOO_RATE_LIMIT"
	EnvRateBurst       = "ZATTOO_RATE_BURST"
	EnvTVHSocket       = "ZATTOO_TVHEADEND_SOCKET"
	EnvTVHEnabled      = "ZATTOO_TVHEADEND"
	EnvTVHOnly         = "ZATTOO_TVHEADEND_ONLY"
	EnvListen          = "ZATTOO_LISTEN"
	EnvRefreshInterval = "ZATTOO_REFRESH_INTERVAL"
	EnvLogLevel        = "ZATTOO_LOG_LEVEL"
	EnvOTLPEnabled     = "ZATTOO_OTLP_ENABLED"
	EnvOTLPEndpoint    = "ZATTOO_OTLP_ENDPOINT"
	EnvOTLPProtocol    = "ZATTOO_OTLP_PROTOCOL"
	EnvOTLPSampleRatio = "ZATTOO_OTLP_SAMPLE_RATIO"
	EnvOTLPInsecure    = "ZATTOO_OTLP_INSECURE"
)

// Config holds every setting of a grab run and of daemon mode.
type Config struct {
	// Provider account and market.
	Country  string // "DE" or "CH"
	Email    string
	Password string

	// Grab parameters.
	Days    int    // guide horizon in days, 1..14
	Details bool   // fetch per-programme details
	Output  string // XMLTV output path; empty with TVHeadend.Only

	// Upstream endpoints. BaseURL is overridable for tests.
	BaseURL     string
	LogoBaseURL string

	// HTTP client.
	Timeout   time.Duration // per-request timeout
	UserAgent string

	// Worker bounds and enrichment tuning.
	ScheduleWorkers    int
	DetailWorkers      int
	DetailBatchSize    int
	DetailMaxRetries   int // retries per detail batch
	DetailFailureLimit int // consecutive failures before enrichment stops

	Rate      RateConfig
	TVHeadend TVHeadendConfig

	// Daemon mode. Empty Listen means one-shot.
	Listen          string
	RefreshInterval time.Duration

	OTel     OTelConfig
	LogLevel string
}

// RateConfig tunes the shared request governor.
type RateConfig struct {
	Limit    float64       `yaml:"limit"`    // steady-state requests per second
	Burst    int           `yaml:"burst"`    // token bucket depth
	Floor    float64       `yaml:"floor"`    // lowest rate after throttle backoff
	Recovery time.Duration `yaml:"recovery"` // quiet period before the rate is raised again
}

// TVHeadendConfig controls delivery over the TVHeadend xmltv socket.
type TVHeadendConfig struct {
	Enabled bool   `yaml:"enabled"`
	Only    bool   `yaml:"only"` // push without writing the output file
	Socket  string `yaml:"socket"`
}

// OTelConfig controls trace export.
type OTelConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Protocol    string  `yaml:"protocol"` // "grpc" or "http"
	SampleRatio float64 `yaml:"sample_ratio"`
	Insecure    bool    `yaml:"insecure"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Country:            "DE",
		Days:               7,
		Details:            true,
		Output:             "zattoo_epg.xml",
		BaseURL:            "https://zattoo.com",
		LogoBaseURL:        "https://logos.zattic.com",
		Timeout:            30 * time.Second,
		UserAgent:          "Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:75.0) Gecko/20100101 Firefox/75.0",
		ScheduleWorkers:    4,
		DetailWorkers:      2,
		DetailBatchSize:    20,
		DetailMaxRetries:   3,
		DetailFailureLimit: 5,
		Rate: RateConfig{
			Limit:    2.0,
			Burst:    2,
			Floor:    0.25,
			Recovery: 30 * time.Second,
		},
		TVHeadend: TVHeadendConfig{
			Socket: "/var/lib/tvheadend/epggrab/xmltv.sock",
		},
		RefreshInterval: 12 * time.Hour,
		OTel: OTelConfig{
			Protocol:    "grpc",
			SampleRatio: 1.0,
		},
		LogLevel: "info",
	}
}

// Load resolves the configuration: defaults, then the YAML file at path (if
// it exists), then environment variables. A missing file is not an error
// unless the path was set explicitly elsewhere; callers decide that.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Country = ParseString(EnvCountry, cfg.Country)
	cfg.Email = ParseString(EnvEmail, cfg.Email)
	cfg.Password = ParseString(EnvPassword, cfg.Password)
	cfg.Days = ParseInt(EnvDays, cfg.Days)
	cfg.Details = ParseBool(EnvDetails, cfg.Details)
	cfg.Output = ParseString(EnvOutput, cfg.Output)
	cfg.BaseURL = ParseString(EnvBaseURL, cfg.BaseURL)
	cfg.Timeout = ParseDuration(EnvTimeout, cfg.Timeout)
	cfg.UserAgent = ParseString(EnvUserAgent, cfg.UserAgent)
	cfg.ScheduleWorkers = ParseInt(EnvScheduleWorkers, cfg.ScheduleWorkers)
	cfg.DetailWorkers = ParseInt(EnvDetailWorkers, cfg.DetailWorkers)
	cfg.Rate.Limit = ParseFloat(EnvRateLimit, cfg.Rate.Limit)
	cfg.Rate.Burst = ParseInt(EnvRateBurst, cfg.Rate.Burst)
	cfg.TVHeadend.Socket = ParseString(EnvTVHSocket, cfg.TVHeadend.Socket)
	cfg.TVHeadend.Enabled = ParseBool(EnvTVHEnabled, cfg.TVHeadend.Enabled)
	cfg.TVHeadend.Only = ParseBool(EnvTVHOnly, cfg.TVHeadend.Only)
	cfg.Listen = ParseString(EnvListen, cfg.Listen)
	cfg.RefreshInterval = ParseDuration(EnvRefreshInterval, cfg.RefreshInterval)
	cfg.LogLevel = ParseString(EnvLogLevel, cfg.LogLevel)
	cfg.OTel.Enabled = ParseBool(EnvOTLPEnabled, cfg.OTel.Enabled)
	cfg.OTel.Endpoint = ParseString(EnvOTLPEndpoint, cfg.OTel.Endpoint)
	cfg.OTel.Protocol = ParseString(EnvOTLPProtocol, cfg.OTel.Protocol)
	cfg.OTel.SampleRatio = ParseFloat(EnvOTLPSampleRatio, cfg.OTel.SampleRatio)
	cfg.OTel.Insecure = ParseBool(EnvOTLPInsecure, cfg.OTel.Insecure)
}

// Language returns the guide language for the configured country. Both
// supported markets ship a German guide.
func (c Config) Language() string {
	return "de"
}

// OneShot reports whether the process should grab once and exit.
func (c Config) OneShot() bool {
	return c.Listen == ""
}
