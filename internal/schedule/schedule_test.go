package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "stockwatch/pkg/logx"
)

func TestParseVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		kind     Kind
		source   string
		duration time.Duration
		spec     string
	}{
		{name: "cron", raw: "0 18 * * *", kind: KindCron, source: "cron", spec: "0 18 * * *"},
		{name: "prefixed cron", raw: "cron:0 0 * * *", kind: KindCron, source: "cron", spec: "0 0 * * *"},
		{name: "descriptor", raw: "@daily", kind: KindCron, source: "cron", spec: "@daily"},
		{name: "duration", raw: "10m", kind: KindInterval, source: "duration", duration: 10 * time.Minute, spec: "@every 10m0s"},
		{name: "prefixed interval", raw: "interval:45s", kind: KindInterval, source: "duration", duration: 45 * time.Second},
		{name: "every prefix", raw: "every:02:00", kind: KindInterval, source: "hhmm", duration: 2 * time.Hour},
		{name: "hhmm", raw: "01:30", kind: KindInterval, source: "hhmm", duration: 90 * time.Minute},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.source, got.Source)
			if tt.kind == KindInterval {
				assert.Equal(t, tt.duration, got.Every)
			}
			if tt.spec != "" {
				assert.Equal(t, tt.spec, got.Spec())
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "00:00", "01:75", "-5m", "interval:", "cron:"} {
		_, err := Parse(raw)
		assert.Error(t, err, raw)
	}
}

func TestAddRejectsBadInput(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop())
	job := func(context.Context) error { return nil }
	require.Error(t, s.Add("", "1h", 0, job))
	require.Error(t, s.Add("report", "1h", 0, nil))
	require.Error(t, s.Add("report", "61 * * * *", 0, job))
	require.NoError(t, s.Add("report", "0 18 * * *", 0, job))
	assert.Len(t, s.Entries(), 1)
}

func TestAddUpsertsByName(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop())
	job := func(context.Context) error { return nil }
	require.NoError(t, s.Add("report", "0 18 * * *", 0, job))
	require.NoError(t, s.Add("report", "30m", time.Second, job))
	entries := s.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "@every 30m0s", entries[0].Spec)
	assert.Equal(t, time.Second, entries[0].Timeout)

	assert.True(t, s.Remove("report"))
	assert.False(t, s.Remove("report"))
	assert.Empty(t, s.Entries())
}

func TestStartRunsIntervalJob(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop())
	var runs atomic.Int32
	require.NoError(t, s.Add("tick", "every:1s", 0, func(context.Context) error {
		runs.Add(1)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	assert.True(t, s.Running())
	e := s.Entries()
	require.Len(t, e, 1)

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	require.NoError(t, s.Stop(stopCtx))
	assert.False(t, s.Running())
	require.NoError(t, s.Stop(stopCtx))
}

func TestRunNowRecordsHistory(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop(), WithHistorySize(2))
	boom := errors.New("boom")
	calls := 0
	require.NoError(t, s.Add("report", "1h", 0, func(context.Context) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	}))

	require.NoError(t, s.RunNow(context.Background(), "report"))
	require.ErrorIs(t, s.RunNow(context.Background(), "report"), boom)
	require.NoError(t, s.RunNow(context.Background(), "report"))
	require.ErrorIs(t, s.RunNow(context.Background(), "missing"), ErrUnknownJob)

	h := s.History()
	require.Len(t, h, 2)
	assert.Equal(t, "boom", h[0].Error)
	assert.Empty(t, h[1].Error)
}

func TestRunNowRecoversPanic(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop())
	require.NoError(t, s.Add("bad", "1h", 0, func(context.Context) error { panic("oops") }))
	err := s.RunNow(context.Background(), "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oops")
}

func TestOverlappingRunIsSkipped(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop())
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, s.Add("slow", "1h", 0, func(context.Context) error {
		close(started)
		<-release
		return nil
	}))

	done := make(chan error, 1)
	go func() { done <- s.RunNow(context.Background(), "slow") }()
	<-started
	require.NoError(t, s.RunNow(context.Background(), "slow"))
	close(release)
	require.NoError(t, <-done)

	h := s.History()
	require.Len(t, h, 2)
	assert.True(t, h[0].Skipped)
	assert.False(t, h[1].Skipped)
}

func TestJobTimeout(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop())
	require.NoError(t, s.Add("hang", "1h", 20*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	require.ErrorIs(t, s.RunNow(context.Background(), "hang"), context.DeadlineExceeded)
}

func TestNextRuns(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop(), WithLocation(time.UTC))
	from := time.Date(2024, 3, 1, 17, 0, 0, 0, time.UTC)
	runs, err := s.NextRuns("0 18 * * *", from, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC), runs[0])
	assert.Equal(t, time.Date(2024, 3, 2, 18, 0, 0, 0, time.UTC), runs[1])
}
