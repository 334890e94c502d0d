// SPDX-License-Identifier: MIT

package config

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults pass",
			mutate: func(c *Config) {},
		},
		{
			name:    "bad country",
			mutate:  func(c *Config) { c.Country = "AT" },
			wantErr: "country",
		},
		{
			name:    "days too low",
			mutate:  func(c *Config) { c.Days = 0 },
			wantErr: "days",
		},
		{
			name:    "days too high",
			mutate:  func(c *Config) { c.Days = 15 },
			wantErr: "days",
		},
		{
			name:    "missing output",
			mutate:  func(c *Config) { c.Output = "" },
			wantErr: "output",
		},
		{
			name: "tvheadend-only without output is fine",
			mutate: func(c *Config) {
				c.Output = ""
				c.TVHeadend.Only = true
			},
		},
		{
			name: "tvheadend without socket",
			mutate: func(c *Config) {
				c.TVHeadend.Enabled = true
				c.TVHeadend.Socket = ""
			},
			wantErr: "tvheadend.socket",
		},
		{
			name:    "bad base url scheme",
			mutate:  func(c *Config) { c.BaseURL = "ftp://zattoo.com" },
			wantErr: "base_url",
		},
		{
			name:    "zero timeout",
			mutate:  func(c *Config) { c.Timeout = 0 },
			wantErr: "http_timeout",
		},
		{
			name:    "zero schedule workers",
			mutate:  func(c *Config) { c.ScheduleWorkers = 0 },
			wantErr: "workers.schedule",
		},
		{
			name:    "zero rate limit",
			mutate:  func(c *Config) { c.Rate.Limit = 0 },
			wantErr: "rate.limit",
		},
		{
			name:    "floor above limit",
			mutate:  func(c *Config) { c.Rate.Floor = 10 },
			wantErr: "rate.floor",
		},
		{
			name:    "bad listen address",
			mutate:  func(c *Config) { c.Listen = "no-port" },
			wantErr: "listen",
		},
		{
			name: "daemon refresh too short",
			mutate: func(c *Config) {
				c.Listen = "127.0.0.1:8080"
				c.RefreshInterval = 0
			},
			wantErr: "refresh_interval",
		},
		{
			name: "bad otel protocol",
			mutate: func(c *Config) {
				c.OTel.Enabled = true
				c.OTel.Protocol = "udp"
			},
			wantErr: "otel.protocol",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateCredentials(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		wantErr  bool
	}{
		{"valid", "user@example.com", "secret", false},
		{"missing email", "", "secret", true},
		{"malformed email", "not-an-email", "secret", true},
		{"missing password", "user@example.com", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Email = tt.email
			cfg.Password = tt.password
			err := cfg.ValidateCredentials()
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCredentials() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidEmail(t *testing.T) {
	valid := []string{
		"user@example.com",
		"first.last+tag@sub.domain.org",
		"u_1%x-y@host.travel",
	}
	invalid := []string{
		"",
		"plain",
		"@example.com",
		"user@",
		"user@host",
		"user sp@example.com",
	}

	for _, s := range valid {
		if !ValidEmail(s) {
			t.Errorf("ValidEmail(%q) = false, want true", s)
		}
	}
	for _, s := range invalid {
		if ValidEmail(s) {
			t.Errorf("ValidEmail(%q) = true, want false", s)
		}
	}
}
