// SPDX-License-Identifier: MIT
package jobs

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/domevanzy/Zattoo-EPG/internal/epg"
	"github.com/domevanzy/Zattoo-EPG/internal/ratelimit"
	"github.com/domevanzy/Zattoo-EPG/internal/zattoo"
)

// newRunDeps wires a real client and governor against the mock provider.
// The governor rate is high enough that runs finish without pacing delays.
func newRunDeps(t *testing.T, srv *zattoo.MockServer) Deps {
	t.Helper()
	client, err := zattoo.New(zattoo.Options{
		BaseURL:   srv.URL(),
		Country:   "DE",
		UserAgent: "zattoo-epg-test",
		Timeout:   5 * time.Second,
		Credentials: zattoo.Credentials{
			Email:    "user@example.com",
			Password: "secret",
		},
	})
	if err != nil {
		t.Fatalf("zattoo.New: %v", err)
	}
	gov := ratelimit.New(ratelimit.Config{
		InitialRate:    500,
		Burst:          50,
		MinRate:        1,
		DecreaseFactor: 0.5,
		RecoveryFactor: 2,
		RecoveryAfter:  time.Minute,
		Coalesce:       time.Millisecond,
	})
	return Deps{Client: client, Governor: gov, Clock: func() time.Time { return testAnchor }}
}

func runOptions(dir string) Options {
	opts := DefaultOptions()
	opts.Days = 1
	opts.WithDetails = false
	opts.Location = time.UTC
	opts.OutputPath = filepath.Join(dir, "guide.xml")
	return opts
}

// at returns a unix timestamp inside the pinned guide day.
func at(hour, min int) int64 {
	return time.Date(2026, 3, 2, hour, min, 0, 0, time.UTC).Unix()
}

func TestRunAssemblesOrderedGuide(t *testing.T) {
	srv := zattoo.NewMockServer()
	defer srv.Close()
	srv.SetChannels([]zattoo.Channel{
		{ID: "ard", Title: "Das Erste", LogoURL: "https://logos.zattic.com/ard.png"},
		{ID: "zdf", Title: "ZDF"},
	})
	srv.SetPrograms("ard", []zattoo.Program{
		{ID: 3, Title: "P3", Start: at(10, 0), End: at(11, 0)},
		{ID: 1, Title: "P1", Start: at(7, 0), End: at(8, 0)},
		{ID: 2, Title: "P2", Start: at(8, 0), End: at(9, 0)},
	})
	srv.SetPrograms("zdf", []zattoo.Program{
		{ID: 9, Title: "B1", Start: at(7, 0), End: at(7, 30)},
	})

	opts := runOptions(t.TempDir())
	stats, err := Run(context.Background(), newRunDeps(t, srv), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Channels != 2 || stats.Programmes != 4 {
		t.Errorf("stats = %d channels, %d programmes, want 2 and 4", stats.Channels, stats.Programmes)
	}
	if stats.WindowsTotal != 4 || stats.WindowsFailed != 0 || stats.Degraded {
		t.Errorf("unexpected degradation: %+v", stats)
	}

	payload, err := os.ReadFile(opts.OutputPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	text := string(payload)
	if !strings.HasPrefix(text, `<?xml version="1.0" encoding="UTF-8"?>`) {
		t.Error("output misses the XML declaration")
	}
	if !strings.Contains(text, `<!DOCTYPE tv SYSTEM "xmltv.dtd">`) {
		t.Error("output misses the XMLTV doctype")
	}

	var tv epg.TV
	if err := xml.Unmarshal(payload, &tv); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if len(tv.Channels) != 2 || tv.Channels[0].ID != "ard" || tv.Channels[1].ID != "zdf" {
		t.Errorf("channel lineup out of order: %+v", tv.Channels)
	}
	var titles []string
	for _, p := range tv.Programmes {
		titles = append(titles, p.Title.Value)
	}
	if diff := cmp.Diff([]string{"P1", "P2", "P3", "B1"}, titles); diff != "" {
		t.Errorf("programme order mismatch (-want +got):\n%s", diff)
	}
	if tv.Programmes[0].Channel != "ard" || tv.Programmes[0].Start != "20260302070000 +0000" {
		t.Errorf("first programme = channel %q start %q", tv.Programmes[0].Channel, tv.Programmes[0].Start)
	}
}

func TestRunEnrichesDetails(t *testing.T) {
	srv := zattoo.NewMockServer()
	defer srv.Close()
	srv.SetChannels([]zattoo.Channel{{ID: "ard", Title: "Das Erste"}})
	srv.SetPrograms("ard", []zattoo.Program{
		{ID: 1001, Title: "Tagesschau", Start: at(7, 0), End: at(8, 0)},
		{ID: 1002, Title: "Tatort", Start: at(8, 0), End: at(9, 30)},
	})

	opts := runOptions(t.TempDir())
	opts.WithDetails = true

	stats, err := Run(context.Background(), newRunDeps(t, srv), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// The mock ships a detail record for 1002 only.
	if stats.DetailsRequested != 2 || stats.DetailsEnriched != 1 || stats.DetailsDegraded != 0 {
		t.Errorf("detail stats = %+v", stats)
	}
	if stats.Degraded {
		t.Error("run should not be degraded")
	}

	payload, err := os.ReadFile(opts.OutputPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	text := string(payload)
	if !strings.Contains(text, "<desc lang=\"de\">Krimireihe</desc>") {
		t.Error("enriched description missing from output")
	}
	if !strings.Contains(text, "<director>A. Regisseur</director>") {
		t.Error("enriched credits missing from output")
	}
}

func TestRunDegradesWhenDetailsFail(t *testing.T) {
	srv := zattoo.NewMockServer()
	defer srv.Close()
	srv.SetChannels([]zattoo.Channel{{ID: "ard", Title: "Das Erste"}})
	srv.SetPrograms("ard", []zattoo.Program{
		{ID: 1001, Title: "Tagesschau", Start: at(7, 0), End: at(8, 0)},
		{ID: 1002, Title: "Tatort", Start: at(8, 0), End: at(9, 30)},
	})
	srv.FailNext("power_details", 1, 500)

	opts := runOptions(t.TempDir())
	opts.WithDetails = true
	opts.DetailRetries = 0

	stats, err := Run(context.Background(), newRunDeps(t, srv), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.DetailsEnriched != 0 || stats.DetailsDegraded != 2 {
		t.Errorf("detail stats = %+v, want both programmes degraded", stats)
	}
	if !stats.Degraded {
		t.Error("run should be degraded")
	}

	// Both programmes still render, just without enrichment.
	payload, err := os.ReadFile(opts.OutputPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(payload), "Tatort") || strings.Contains(string(payload), "Krimireihe") {
		t.Error("degraded programmes should render minimal")
	}
}

func TestRunAbortsOnBadCredentials(t *testing.T) {
	srv := zattoo.NewMockServer()
	defer srv.Close()
	srv.SetCredentials("someone@else.example", "nope")

	stats, err := Run(context.Background(), newRunDeps(t, srv), runOptions(t.TempDir()))
	if !errors.Is(err, zattoo.ErrInvalidCredentials) {
		t.Fatalf("err = %v, want invalid credentials", err)
	}
	if stats != nil {
		t.Errorf("stats = %+v, want nil on abort", stats)
	}
	for _, op := range srv.Requests() {
		if op == "channels" || op == "power_guide" || op == "power_details" {
			t.Errorf("request %q issued after failed login", op)
		}
	}
}

func TestRunAbortsOnEmptyCatalog(t *testing.T) {
	srv := zattoo.NewMockServer()
	defer srv.Close()
	srv.SetChannels(nil)

	_, err := Run(context.Background(), newRunDeps(t, srv), runOptions(t.TempDir()))
	if err == nil || !strings.Contains(err.Error(), "no channels") {
		t.Fatalf("err = %v, want empty catalog failure", err)
	}
}

func TestRunDropsMalformedSlots(t *testing.T) {
	srv := zattoo.NewMockServer()
	defer srv.Close()
	srv.SetChannels([]zattoo.Channel{{ID: "ard", Title: "Das Erste"}})
	srv.SetPrograms("ard", []zattoo.Program{
		{ID: 1, Title: "Keep", Start: at(7, 0), End: at(8, 0)},
		{ID: 2, Title: "Backwards", Start: at(9, 0), End: at(8, 30)},
	})

	opts := runOptions(t.TempDir())
	stats, err := Run(context.Background(), newRunDeps(t, srv), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Programmes != 1 {
		t.Errorf("programmes = %d, want 1 after dropping the malformed slot", stats.Programmes)
	}
}

func TestRunRetriesThrottledWindow(t *testing.T) {
	srv := zattoo.NewMockServer()
	defer srv.Close()
	srv.SetChannels([]zattoo.Channel{{ID: "ard", Title: "Das Erste"}})
	srv.SetPrograms("ard", []zattoo.Program{
		{ID: 1, Title: "Keep", Start: at(7, 0), End: at(8, 0)},
	})
	srv.FailNext("power_guide", 1, 429)

	deps := newRunDeps(t, srv)
	stats, err := Run(context.Background(), deps, runOptions(t.TempDir()))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.WindowsFailed != 0 || stats.Programmes != 1 {
		t.Errorf("stats = %+v, want the throttled window to recover", stats)
	}
	if gov := deps.Governor.(*ratelimit.Governor); gov.Rate() >= 500 {
		t.Errorf("governor rate = %v, want a decrease after the throttle", gov.Rate())
	}
}

func TestRunDeliversToSocketOnly(t *testing.T) {
	srv := zattoo.NewMockServer()
	defer srv.Close()
	srv.SetChannels([]zattoo.Channel{{ID: "ard", Title: "Das Erste"}})
	srv.SetPrograms("ard", []zattoo.Program{
		{ID: 1, Title: "Keep", Start: at(7, 0), End: at(8, 0)},
	})

	sock := filepath.Join(t.TempDir(), "xmltv.sock")
	ln, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		payload, _ := io.ReadAll(conn)
		received <- payload
	}()

	opts := runOptions(t.TempDir())
	opts.OutputPath = ""
	opts.TVHeadendOnly = true
	opts.TVHeadendSocket = sock

	stats, err := Run(context.Background(), newRunDeps(t, srv), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !stats.Delivered {
		t.Error("stats should mark the guide as delivered")
	}

	select {
	case payload := <-received:
		if !strings.HasPrefix(string(payload), `<?xml version="1.0" encoding="UTF-8"?>`) {
			t.Error("socket payload is not the rendered document")
		}
		if !strings.Contains(string(payload), `channel="ard"`) {
			t.Error("socket payload misses the programme")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no payload arrived on the socket")
	}
}

func TestRunSurvivesFailedDelivery(t *testing.T) {
	srv := zattoo.NewMockServer()
	defer srv.Close()
	srv.SetChannels([]zattoo.Channel{{ID: "ard", Title: "Das Erste"}})
	srv.SetPrograms("ard", []zattoo.Program{
		{ID: 1, Title: "Keep", Start: at(7, 0), End: at(8, 0)},
	})

	opts := runOptions(t.TempDir())
	opts.TVHeadendSocket = filepath.Join(t.TempDir(), "missing.sock")

	stats, err := Run(context.Background(), newRunDeps(t, srv), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Delivered || !stats.Degraded {
		t.Errorf("stats = %+v, want an undelivered but degraded run", stats)
	}
	if _, err := os.Stat(opts.OutputPath); err != nil {
		t.Errorf("guide file missing despite successful write: %v", err)
	}
}
