// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"time"
)

var emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Validate checks everything except credentials, which may still be supplied
// interactively after loading. Call ValidateCredentials before a run.
func (c Config) Validate() error {
	if c.Country != "DE" && c.Country != "CH" {
		return fmt.Errorf("country: %q is not supported (DE, CH)", c.Country)
	}
	if c.Days < 1 || c.Days > 14 {
		return fmt.Errorf("days: %d out of range 1..14", c.Days)
	}
	if c.Output == "" && !c.TVHeadend.Only {
		return fmt.Errorf("output: path required unless tvheadend-only delivery is enabled")
	}
	if err := validateBaseURL(c.BaseURL); err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("http_timeout: must be positive, got %s", c.Timeout)
	}
	if c.ScheduleWorkers < 1 {
		return fmt.Errorf("workers.schedule: must be at least 1, got %d", c.ScheduleWorkers)
	}
	if c.DetailWorkers < 1 {
		return fmt.Errorf("workers.details: must be at least 1, got %d", c.DetailWorkers)
	}
	if c.DetailBatchSize < 1 {
		return fmt.Errorf("detail batch size: must be at least 1, got %d", c.DetailBatchSize)
	}
	if c.Rate.Limit <= 0 {
		return fmt.Errorf("rate.limit: must be positive, got %g", c.Rate.Limit)
	}
	if c.Rate.Burst < 1 {
		return fmt.Errorf("rate.burst: must be at least 1, got %d", c.Rate.Burst)
	}
	if c.Rate.Floor <= 0 || c.Rate.Floor > c.Rate.Limit {
		return fmt.Errorf("rate.floor: must be in (0, limit], got %g", c.Rate.Floor)
	}
	if (c.TVHeadend.Enabled || c.TVHeadend.Only) && c.TVHeadend.Socket == "" {
		return fmt.Errorf("tvheadend.socket: path required when tvheadend delivery is enabled")
	}
	if c.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Listen); err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		if c.RefreshInterval < time.Minute {
			return fmt.Errorf("refresh_interval: must be at least 1m in daemon mode, got %s", c.RefreshInterval)
		}
	}
	if c.OTel.Enabled {
		if c.OTel.Protocol != "grpc" && c.OTel.Protocol != "http" {
			return fmt.Errorf("otel.protocol: %q is not supported (grpc, http)", c.OTel.Protocol)
		}
		if c.OTel.SampleRatio < 0 || c.OTel.SampleRatio > 1 {
			return fmt.Errorf("otel.sample_ratio: must be in [0, 1], got %g", c.OTel.SampleRatio)
		}
	}
	return nil
}

// ValidateCredentials checks that account credentials are present and the
// email address is well-formed.
func (c Config) ValidateCredentials() error {
	if c.Email == "" {
		return fmt.Errorf("email: required")
	}
	if !ValidEmail(c.Email) {
		return fmt.Errorf("email: %q is not a valid address", c.Email)
	}
	if c.Password == "" {
		return fmt.Errorf("password: required")
	}
	return nil
}

// ValidEmail reports whether s looks like an email address.
func ValidEmail(s string) bool {
	return emailRe.MatchString(s)
}

func validateBaseURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme %q is not supported", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}
