// SPDX-License-Identifier: MIT
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/domevanzy/Zattoo-EPG/internal/zattoo"
)

// testAnchor pins the guide day so window math stays deterministic.
var testAnchor = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

// fakeClient scripts provider responses per operation. Function fields that
// stay nil behave like an empty but successful upstream.
type fakeClient struct {
	mu       sync.Mutex
	session  *zattoo.Session
	loginErr error
	channels []zattoo.Channel
	chansErr error
	guide    func(start, end time.Time) ([]zattoo.ChannelPrograms, error)
	details  func(ids []int64) (map[int64]zattoo.ProgramDetail, error)

	loginCalls  int
	guideCalls  int
	detailCalls [][]int64
}

func (f *fakeClient) Login(_ context.Context) (*zattoo.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginCalls++
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	if f.session != nil {
		return f.session, nil
	}
	return &zattoo.Session{Token: "tok", Country: "DE", PowerGuideHash: "hash"}, nil
}

func (f *fakeClient) Channels(_ context.Context) ([]zattoo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channels, f.chansErr
}

func (f *fakeClient) PowerGuide(_ context.Context, start, end time.Time) ([]zattoo.ChannelPrograms, error) {
	f.mu.Lock()
	f.guideCalls++
	fn := f.guide
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(start, end)
}

func (f *fakeClient) ProgramDetails(_ context.Context, ids []int64) (map[int64]zattoo.ProgramDetail, error) {
	f.mu.Lock()
	f.detailCalls = append(f.detailCalls, append([]int64(nil), ids...))
	fn := f.details
	f.mu.Unlock()
	if fn == nil {
		return map[int64]zattoo.ProgramDetail{}, nil
	}
	return fn(ids)
}

func (f *fakeClient) detailBatches() [][]int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]int64, len(f.detailCalls))
	copy(out, f.detailCalls)
	return out
}

// fakeGovernor admits immediately and records pacing feedback.
type fakeGovernor struct {
	mu        sync.Mutex
	acquires  int
	successes int
	throttles []time.Duration
}

func (f *fakeGovernor) Acquire(ctx context.Context) error {
	f.mu.Lock()
	f.acquires++
	f.mu.Unlock()
	return ctx.Err()
}

func (f *fakeGovernor) ReportThrottled(hint time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.throttles = append(f.throttles, hint)
}

func (f *fakeGovernor) ReportSuccess() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.successes++
}

func (f *fakeGovernor) counts() (acquires, successes, throttles int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquires, f.successes, len(f.throttles)
}

func fakeDeps(c *fakeClient, g *fakeGovernor) Deps {
	return Deps{Client: c, Governor: g, Clock: func() time.Time { return testAnchor }}
}

// throttleErr fabricates the error shape the client produces for 429/503.
func throttleErr(retryAfter time.Duration) error {
	return &zattoo.APIError{
		Sentinel:   zattoo.ErrThrottled,
		Operation:  "power_guide",
		Status:     429,
		RetryAfter: retryAfter,
	}
}
