// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// duration accepts Go duration strings ("30s", "12h") in YAML.
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = duration(parsed)
	return nil
}

// fileConfig mirrors Config for the YAML file. Pointer fields distinguish
// "absent" from zero so the file only overrides what it sets.
type fileConfig struct {
	Country   *string   `yaml:"country"`
	Email     *string   `yaml:"email"`
	Password  *string   `yaml:"password"`
	Days      *int      `yaml:"days"`
	Details   *bool     `yaml:"details"`
	Output    *string   `yaml:"output"`
	BaseURL   *string   `yaml:"base_url"`
	UserAgent *string   `yaml:"user_agent"`
	Timeout   *duration `yaml:"http_timeout"`

	Workers *struct {
		Schedule *int `yaml:"schedule"`
		Details  *int `yaml:"details"`
	} `yaml:"workers"`

	Rate *struct {
		Limit    *float64  `yaml:"limit"`
		Burst    *int      `yaml:"burst"`
		Floor    *float64  `yaml:"floor"`
		Recovery *duration `yaml:"recovery"`
	} `yaml:"rate"`

	TVHeadend *struct {
		Enabled *bool   `yaml:"enabled"`
		Only    *bool   `yaml:"only"`
		Socket  *string `yaml:"socket"`
	} `yaml:"tvheadend"`

	Listen          *string   `yaml:"listen"`
	RefreshInterval *duration `yaml:"refresh_interval"`
	LogLevel        *string   `yaml:"log_level"`

	OTel *struct {
		Enabled     *bool    `yaml:"enabled"`
		Endpoint    *string  `yaml:"endpoint"`
		Protocol    *string  `yaml:"protocol"`
		SampleRatio *float64 `yaml:"sample_ratio"`
		Insecure    *bool    `yaml:"insecure"`
	} `yaml:"otel"`
}

// applyFile overlays the YAML file at path onto cfg. A missing file is
// silently skipped; any other read or parse error is returned.
func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path) // #nosec G304 -- path comes from the operator
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	var fc fileConfig
	if err := dec.Decode(&fc); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}

	setString(&cfg.Country, fc.Country)
	setString(&cfg.Email, fc.Email)
	setString(&cfg.Password, fc.Password)
	setInt(&cfg.Days, fc.Days)
	setBool(&cfg.Details, fc.Details)
	setString(&cfg.Output, fc.Output)
	setString(&cfg.BaseURL, fc.BaseURL)
	setString(&cfg.UserAgent, fc.UserAgent)
	setDuration(&cfg.Timeout, fc.Timeout)

	if fc.Workers != nil {
		setInt(&cfg.ScheduleWorkers, fc.Workers.Schedule)
		setInt(&cfg.DetailWorkers, fc.Workers.Details)
	}
	if fc.Rate != nil {
		setFloat(&cfg.Rate.Limit, fc.Rate.Limit)
		setInt(&cfg.Rate.Burst, fc.Rate.Burst)
		setFloat(&cfg.Rate.Floor, fc.Rate.Floor)
		setDuration(&cfg.Rate.Recovery, fc.Rate.Recovery)
	}
	if fc.TVHeadend != nil {
		setBool(&cfg.TVHeadend.Enabled, fc.TVHeadend.Enabled)
		setBool(&cfg.TVHeadend.Only, fc.TVHeadend.Only)
		setString(&cfg.TVHeadend.Socket, fc.TVHeadend.Socket)
	}

	setString(&cfg.Listen, fc.Listen)
	setDuration(&cfg.RefreshInterval, fc.RefreshInterval)
	setString(&cfg.LogLevel, fc.LogLevel)

	if fc.OTel != nil {
		setBool(&cfg.OTel.Enabled, fc.OTel.Enabled)
		setString(&cfg.OTel.Endpoint, fc.OTel.Endpoint)
		setString(&cfg.OTel.Protocol, fc.OTel.Protocol)
		setFloat(&cfg.OTel.SampleRatio, fc.OTel.SampleRatio)
		setBool(&cfg.OTel.Insecure, fc.OTel.Insecure)
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *duration) {
	if src != nil {
		*dst = time.Duration(*src)
	}
}
