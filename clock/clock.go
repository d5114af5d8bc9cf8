// Package clock supplies corrected, timezone-normalized timestamps for every
// recorded event. The offset is learned from an ordered list of external time
// sources and refreshed lazily; all formatting and storage happens in a single
// fixed target zone regardless of the host clock.
package clock

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

const (
	// Target zone is UTC+5:30, independent of the host timezone.
	zoneOffsetSeconds = 5*3600 + 30*60

	// How long a learned offset is trusted before a resync is attempted.
	resyncInterval = time.Hour

	// StorageLayout is the format used for timestamps persisted to the
	// database and accepted by Parse.
	StorageLayout = "2006-01-02 15:04:05"

	sourceTimeout = 2 * time.Second
)

// Sentinels returned instead of errors: formatting and parsing never fail
// upward, they degrade to these strings.
const (
	InvalidDate = "Invalid Date"
	UnknownTime = "Unknown time"
)

var defaultSources = []string{
	"https://time1.google.com",
	"https://time2.google.com",
	"https://time.nist.gov",
	"https://pool.ntp.org",
}

// Source yields the current instant from an external reference.
type Source interface {
	Now(ctx context.Context) (time.Time, error)
}

// HTTPSource reads the Date header of a HEAD response. Coarse, but good
// enough for the sub-second drift this service cares about, and it needs no
// extra protocol support.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

func (s *HTTPSource) Now(ctx context.Context) (time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.URL, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to reach time source %s: %w", s.URL, err)
	}
	defer resp.Body.Close()

	date := resp.Header.Get("Date")
	if date == "" {
		return time.Time{}, fmt.Errorf("time source %s returned no Date header", s.URL)
	}

	t, err := http.ParseTime(date)
	if err != nil {
		return time.Time{}, fmt.Errorf("time source %s returned unparseable date %q: %w", s.URL, date, err)
	}
	return t, nil
}

// Service maintains the learned clock offset and performs all timestamp
// normalization and formatting.
type Service struct {
	sources []Source
	logger  *log.Logger
	zone    *time.Location

	mu       sync.Mutex
	offset   time.Duration
	lastSync time.Time
	syncing  bool

	// wall returns the uncorrected current instant; swapped out in tests.
	wall func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithSources replaces the default time sources.
func WithSources(sources ...Source) Option {
	return func(s *Service) { s.sources = sources }
}

// WithWallClock replaces the host clock, for tests.
func WithWallClock(now func() time.Time) Option {
	return func(s *Service) { s.wall = now }
}

// New creates a time service. The offset starts at zero and is learned on
// first use; a service with unreachable sources keeps working on host time.
func New(logger *log.Logger, opts ...Option) *Service {
	s := &Service{
		logger: logger,
		zone:   time.FixedZone("UTC+5:30", zoneOffsetSeconds),
		wall:   time.Now,
	}
	for _, url := range defaultSources {
		s.sources = append(s.sources, &HTTPSource{
			URL:    url,
			Client: &http.Client{Timeout: sourceTimeout},
		})
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Zone returns the fixed target timezone.
func (s *Service) Zone() *time.Location {
	return s.zone
}

// Now returns the corrected current instant in the target zone. A stale
// offset starts a resync in the background; callers never wait on the
// network and pick up the corrected offset on a later call.
func (s *Service) Now() time.Time {
	s.mu.Lock()
	if !s.syncing && (s.lastSync.IsZero() || s.wall().Sub(s.lastSync) > resyncInterval) {
		s.syncing = true
		go func() {
			s.Sync()
			s.mu.Lock()
			s.syncing = false
			s.mu.Unlock()
		}()
	}
	offset := s.offset
	s.mu.Unlock()

	return s.wall().Add(offset).In(s.zone)
}

// Sync queries the sources in priority order, keeping the first successful
// response. The network round trips happen without the lock held, so
// concurrent Now() calls keep serving the previous offset. It reports
// whether any source answered; failure keeps the previous offset.
func (s *Service) Sync() bool {
	offset, ok := s.query()

	s.mu.Lock()
	defer s.mu.Unlock()
	if ok {
		s.offset = offset
		if s.logger != nil {
			s.logger.Info("time synced", "offset", offset)
		}
	}
	// Stamp the attempt either way so every call does not retry.
	s.lastSync = s.wall()
	return ok
}

func (s *Service) query() (time.Duration, bool) {
	for _, src := range s.sources {
		ctx, cancel := context.WithTimeout(context.Background(), sourceTimeout)
		ref, err := src.Now(ctx)
		cancel()
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("time source failed", "err", err)
			}
			continue
		}
		return ref.Sub(s.wall()), true
	}
	return 0, false
}

// Parse interprets a stored timestamp string in the target zone. It returns
// the zero time on failure; callers formatting the result get the sentinel.
func (s *Service) Parse(value string) time.Time {
	t, err := time.ParseInLocation(StorageLayout, value, s.zone)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Format renders a timestamp for display. With relative set, it buckets the
// distance from now into "just now" / minutes / hours / days, falling back
// to an absolute date past one week.
func (s *Service) Format(t time.Time, relative bool) string {
	if t.IsZero() {
		if relative {
			return UnknownTime
		}
		return InvalidDate
	}

	local := t.In(s.zone)
	if !relative {
		return local.Format("2006-01-02 03:04:05 PM")
	}

	seconds := s.Now().Sub(local).Seconds()
	switch {
	case seconds < 60:
		return "just now"
	case seconds < 3600:
		return plural(int(seconds/60), "minute")
	case seconds < 86400:
		return plural(int(seconds/3600), "hour")
	case seconds < 7*86400:
		return plural(int(seconds/86400), "day")
	default:
		return local.Format("02 Jan 2006")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
