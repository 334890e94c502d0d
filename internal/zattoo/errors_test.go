// SPDX-License-Identifier: MIT
package zattoo

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestAPIErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want []string
	}{
		{
			name: "sentinel only",
			err:  &APIError{Sentinel: ErrSessionExpired, Operation: "channels"},
			want: []string{"channels", "session expired"},
		},
		{
			name: "with status",
			err:  &APIError{Sentinel: ErrThrottled, Operation: "power_guide", Status: 429},
			want: []string{"power_guide", "HTTP 429"},
		},
		{
			name: "with body and nested error",
			err: &APIError{
				Sentinel:  ErrBadResponse,
				Operation: "login",
				Status:    418,
				Body:      "teapot",
				Err:       errors.New("boom"),
			},
			want: []string{"login", "HTTP 418", "teapot", "boom"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, fragment := range tt.want {
				if !strings.Contains(msg, fragment) {
					t.Errorf("message %q missing %q", msg, fragment)
				}
			}
		})
	}
}

func TestAPIErrorUnwrapsToSentinel(t *testing.T) {
	err := fmt.Errorf("fetch window: %w", &APIError{Sentinel: ErrThrottled, Operation: "power_guide"})
	if !errors.Is(err, ErrThrottled) {
		t.Error("wrapped APIError should match its sentinel")
	}
	if !IsThrottle(err) {
		t.Error("IsThrottle should see through wrapping")
	}
}

func TestRetryAfterHint(t *testing.T) {
	if _, ok := RetryAfterHint(nil); ok {
		t.Error("nil error should carry no hint")
	}
	if _, ok := RetryAfterHint(errors.New("plain")); ok {
		t.Error("plain error should carry no hint")
	}
	if _, ok := RetryAfterHint(&APIError{Sentinel: ErrThrottled}); ok {
		t.Error("zero RetryAfter should report no hint")
	}
	err := fmt.Errorf("batch: %w", &APIError{Sentinel: ErrThrottled, RetryAfter: 9 * time.Second})
	hint, ok := RetryAfterHint(err)
	if !ok || hint != 9*time.Second {
		t.Errorf("hint = %v, %v; want 9s, true", hint, ok)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"empty", "", 0},
		{"seconds", "7", 7 * time.Second},
		{"padded", " 12 ", 12 * time.Second},
		{"negative", "-3", 0},
		{"garbage", "soon", 0},
		{"capped", "999", maxRetryAfter},
		{"past date", time.Now().Add(-time.Minute).UTC().Format(time.RFC1123), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseRetryAfter(tt.value, maxRetryAfter); got != tt.want {
				t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}

	t.Run("future date", func(t *testing.T) {
		v := time.Now().Add(30 * time.Second).UTC().Format(time.RFC1123)
		got := parseRetryAfter(v, maxRetryAfter)
		if got <= 20*time.Second || got > 30*time.Second {
			t.Errorf("parseRetryAfter(%q) = %v, want roughly 30s", v, got)
		}
	})
}
