package clock

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fixedSource struct {
	t   time.Time
	err error
}

func (f *fixedSource) Now(ctx context.Context) (time.Time, error) {
	return f.t, f.err
}

func TestFormatRelative(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := New(nil,
		WithSources(&fixedSource{t: base}),
		WithWallClock(func() time.Time { return base }),
	)

	tests := []struct {
		name string
		ago  time.Duration
		want string
	}{
		{name: "just now", ago: 30 * time.Second, want: "just now"},
		{name: "90 seconds", ago: 90 * time.Second, want: "1 minute ago"},
		{name: "five minutes", ago: 5 * time.Minute, want: "5 minutes ago"},
		{name: "two hours", ago: 7200 * time.Second, want: "2 hours ago"},
		{name: "three days", ago: 72 * time.Hour, want: "3 days ago"},
		{name: "past a week", ago: 10 * 24 * time.Hour, want: base.Add(-10 * 24 * time.Hour).In(svc.Zone()).Format("02 Jan 2006")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := svc.Format(base.Add(-tt.ago), true)
			if got != tt.want {
				t.Errorf("Format(-%s) = %q, want %q", tt.ago, got, tt.want)
			}
		})
	}
}

func TestFormatZeroTime(t *testing.T) {
	svc := New(nil, WithSources(&fixedSource{err: errors.New("down")}))

	if got := svc.Format(time.Time{}, false); got != InvalidDate {
		t.Errorf("absolute format of zero time = %q, want %q", got, InvalidDate)
	}
	if got := svc.Format(time.Time{}, true); got != UnknownTime {
		t.Errorf("relative format of zero time = %q, want %q", got, UnknownTime)
	}
}

func TestParseRoundTrip(t *testing.T) {
	svc := New(nil, WithSources(&fixedSource{err: errors.New("down")}))

	parsed := svc.Parse("2024-06-01 18:30:00")
	if parsed.IsZero() {
		t.Fatal("expected valid parse")
	}
	if got := parsed.Format(StorageLayout); got != "2024-06-01 18:30:00" {
		t.Errorf("round trip = %q", got)
	}

	if !svc.Parse("not a date").IsZero() {
		t.Error("expected zero time for garbage input")
	}
}

func TestOffsetLearnedFromSource(t *testing.T) {
	wall := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	// Reference clock runs 10 seconds ahead of the wall clock.
	svc := New(nil,
		WithSources(&fixedSource{t: wall.Add(10 * time.Second)}),
		WithWallClock(func() time.Time { return wall }),
	)

	if !svc.Sync() {
		t.Fatal("expected sync to succeed")
	}
	got := svc.Now()
	want := wall.Add(10 * time.Second)
	if !got.Equal(want) {
		t.Errorf("Now() = %v, want %v", got, want)
	}
}

func TestSyncFailureKeepsPreviousOffset(t *testing.T) {
	wall := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	good := &fixedSource{t: wall.Add(5 * time.Second)}
	svc := New(nil,
		WithSources(good),
		WithWallClock(func() time.Time { return wall }),
	)
	if !svc.Sync() {
		t.Fatal("expected first sync to succeed")
	}

	good.err = errors.New("unreachable")
	if svc.Sync() {
		t.Fatal("expected second sync to fail")
	}
	if got := svc.Now(); !got.Equal(wall.Add(5 * time.Second)) {
		t.Errorf("offset not preserved after failed sync: %v", got)
	}
}

type blockingSource struct {
	t       time.Time
	unblock chan struct{}
}

func (b *blockingSource) Now(ctx context.Context) (time.Time, error) {
	select {
	case <-b.unblock:
		return b.t, nil
	case <-ctx.Done():
		return time.Time{}, ctx.Err()
	}
}

func TestNowDoesNotBlockOnResync(t *testing.T) {
	wall := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	src := &blockingSource{t: wall.Add(10 * time.Second), unblock: make(chan struct{})}
	svc := New(nil,
		WithSources(src),
		WithWallClock(func() time.Time { return wall }),
	)

	// The first call finds no learned offset and starts a resync; it must
	// return on host time immediately, not wait for the source.
	done := make(chan time.Time, 1)
	go func() { done <- svc.Now() }()
	select {
	case got := <-done:
		if !got.Equal(wall) {
			t.Errorf("Now() before sync = %v, want uncorrected %v", got, wall)
		}
	case <-time.After(time.Second):
		t.Fatal("Now() blocked on a slow time source")
	}

	close(src.unblock)

	deadline := time.Now().Add(2 * time.Second)
	want := wall.Add(10 * time.Second)
	for {
		if svc.Now().Equal(want) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("offset never applied after source answered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSourcesTriedInOrder(t *testing.T) {
	wall := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := New(nil,
		WithSources(
			&fixedSource{err: errors.New("primary down")},
			&fixedSource{t: wall.Add(3 * time.Second)},
		),
		WithWallClock(func() time.Time { return wall }),
	)

	if !svc.Sync() {
		t.Fatal("expected fallback source to answer")
	}
	if got := svc.Now(); !got.Equal(wall.Add(3 * time.Second)) {
		t.Errorf("Now() = %v, want fallback-corrected time", got)
	}
}
