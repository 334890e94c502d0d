// SPDX-License-Identifier: MIT
package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/domevanzy/Zattoo-EPG/internal/guide"
	"github.com/domevanzy/Zattoo-EPG/internal/zattoo"
)

func TestScheduleWindowsCoverHorizon(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	now := time.Date(2026, 3, 1, 13, 45, 0, 0, time.UTC) // 14:45 local

	ws := scheduleWindows(now, loc, 2)
	if len(ws) != 8 {
		t.Fatalf("windows = %d, want 8", len(ws))
	}

	first := time.Date(2026, 3, 1, 6, 0, 0, 0, loc)
	if !ws[0].start.Equal(first) {
		t.Errorf("first window starts %v, want %v", ws[0].start, first)
	}
	if !ws[0].end.Equal(first.Add(6 * time.Hour)) {
		t.Errorf("first window ends %v, want %v", ws[0].end, first.Add(6*time.Hour))
	}
	for i := 0; i < len(ws)-1; i++ {
		if !ws[i].end.Equal(ws[i+1].start) {
			t.Errorf("gap between window %d and %d: %v != %v", i, i+1, ws[i].end, ws[i+1].start)
		}
	}
	if last := first.AddDate(0, 0, 2); !ws[7].end.Equal(last) {
		t.Errorf("horizon ends %v, want %v", ws[7].end, last)
	}
	if ws[5].day != 1 || ws[5].index != 1 {
		t.Errorf("window 5 = day %d index %d, want day 1 index 1", ws[5].day, ws[5].index)
	}
}

func TestScheduleWindowsAnchorBeforeDayStart(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	now := time.Date(2026, 3, 1, 0, 30, 0, 0, loc) // before the 06:00 guide day

	ws := scheduleWindows(now, loc, 1)
	want := time.Date(2026, 3, 1, 6, 0, 0, 0, loc)
	if !ws[0].start.Equal(want) {
		t.Fatalf("first window starts %v, want same-day %v", ws[0].start, want)
	}
}

func TestWindowSlotsDropsMalformed(t *testing.T) {
	in := []zattoo.ChannelPrograms{{ChannelID: "ard", Programs: []zattoo.Program{
		{ID: 1, Title: "", Start: 100, End: 200},
		{ID: 2, Title: "No start", Start: 0, End: 200},
		{ID: 3, Title: "Empty span", Start: 300, End: 300},
		{ID: 4, Title: "Negative span", Start: 400, End: 300},
		{ID: 5, Title: "Keep", Start: 500, End: 600},
	}}}

	out := windowSlots(in)
	if len(out) != 1 {
		t.Fatalf("kept %d slots, want 1", len(out))
	}
	if out[0].ProgramID != 5 || !out[0].Start.Equal(time.Unix(500, 0).UTC()) {
		t.Errorf("unexpected surviving slot: %+v", out[0])
	}
}

func TestNewSlotCarriesWindowFields(t *testing.T) {
	p := zattoo.Program{
		ID:           9,
		Title:        "Film",
		Start:        1000,
		End:          2000,
		EpisodeTitle: "Teil 2",
		Description:  "desc",
		ImageToken:   "tokX",
		Genres:       []string{"Drama"},
		Credits:      zattoo.Credits{Directors: []string{"D"}, Actors: []string{"A", "B"}},
		Season:       2,
		Episode:      5,
		Year:         2020,
		Country:      "DE",
		Rating:       "12",
	}

	want := guide.ProgramSlot{
		ChannelID:   "ard",
		ProgramID:   9,
		Start:       time.Unix(1000, 0).UTC(),
		Stop:        time.Unix(2000, 0).UTC(),
		Title:       "Film",
		Description: "desc",
		Subtitle:    "Teil 2",
		Year:        2020,
		Country:     "DE",
		Categories:  []string{"Drama"},
		Credits: []guide.Credit{
			{Role: guide.RoleDirector, Name: "D"},
			{Role: guide.RoleActor, Name: "A"},
			{Role: guide.RoleActor, Name: "B"},
		},
		Season:    2,
		Episode:   5,
		Rating:    "12",
		ImageURLs: []string{"https://images.zattic.com/cms/tokX/original.jpg"},
	}
	if diff := cmp.Diff(want, newSlot("ard", p)); diff != "" {
		t.Errorf("slot mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchWindowRetriesAfterThrottle(t *testing.T) {
	attempts := 0
	client := &fakeClient{}
	client.guide = func(start, end time.Time) ([]zattoo.ChannelPrograms, error) {
		attempts++
		if attempts == 1 {
			return nil, throttleErr(0)
		}
		return []zattoo.ChannelPrograms{{ChannelID: "ard", Programs: []zattoo.Program{
			{ID: 1, Title: "Keep", Start: start.Unix(), End: end.Unix()},
		}}}, nil
	}
	gov := &fakeGovernor{}

	w := window{start: testAnchor, end: testAnchor.Add(6 * time.Hour)}
	slots, err := fetchWindow(context.Background(), fakeDeps(client, gov), w, 1)
	if err != nil {
		t.Fatalf("fetchWindow: %v", err)
	}
	if len(slots) != 1 || attempts != 2 {
		t.Fatalf("slots = %d attempts = %d, want 1 slot on attempt 2", len(slots), attempts)
	}
	acquires, successes, throttles := gov.counts()
	if acquires != 2 || successes != 1 || throttles != 1 {
		t.Errorf("governor saw acquires=%d successes=%d throttles=%d", acquires, successes, throttles)
	}
}

func TestFetchWindowExhaustsRetries(t *testing.T) {
	client := &fakeClient{}
	client.guide = func(start, end time.Time) ([]zattoo.ChannelPrograms, error) {
		return nil, &zattoo.APIError{Sentinel: zattoo.ErrUpstreamError, Operation: "power_guide", Status: 500}
	}
	gov := &fakeGovernor{}

	w := window{start: testAnchor, end: testAnchor.Add(6 * time.Hour)}
	_, err := fetchWindow(context.Background(), fakeDeps(client, gov), w, 0)
	if !errors.Is(err, zattoo.ErrUpstreamError) {
		t.Fatalf("err = %v, want upstream error", err)
	}
	if _, successes, _ := gov.counts(); successes != 0 {
		t.Errorf("governor recorded %d successes, want 0", successes)
	}
}

func TestFetchScheduleDegradesFailedWindows(t *testing.T) {
	client := &fakeClient{}
	client.guide = func(start, end time.Time) ([]zattoo.ChannelPrograms, error) {
		if start.Hour() == 12 {
			return nil, &zattoo.APIError{Sentinel: zattoo.ErrUpstreamError, Operation: "power_guide", Status: 500}
		}
		return []zattoo.ChannelPrograms{{ChannelID: "ard", Programs: []zattoo.Program{
			{ID: start.Unix(), Title: "Slot", Start: start.Unix(), End: start.Add(time.Hour).Unix()},
		}}}, nil
	}

	opts := DefaultOptions()
	opts.Days = 1
	opts.Location = time.UTC
	opts.ScheduleRetries = 0
	opts = opts.normalized()

	sched, err := fetchSchedule(context.Background(), fakeDeps(client, &fakeGovernor{}), opts)
	if err != nil {
		t.Fatalf("fetchSchedule: %v", err)
	}
	if sched.windowsTotal != 4 || sched.windowsFailed != 1 {
		t.Errorf("windows = %d/%d failed, want 4/1", sched.windowsTotal, sched.windowsFailed)
	}
	if len(sched.slots) != 3 {
		t.Errorf("slots = %d, want 3 from the surviving windows", len(sched.slots))
	}
}

func TestFetchScheduleStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := DefaultOptions()
	opts.Days = 1
	opts.Location = time.UTC
	opts = opts.normalized()

	_, err := fetchSchedule(ctx, fakeDeps(&fakeClient{}, &fakeGovernor{}), opts)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
