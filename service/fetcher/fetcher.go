// Package fetcher turns a catalog track id into a local audio file. The
// actual downloading/transcoding is done by pluggable strategies (an
// executable, a library binding); this package owns the retry-through-
// alternatives chain and the download bookkeeping.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/raagfm/raag/db"
)

// ErrDownloadFailed means every configured strategy failed; no file was
// created.
var ErrDownloadFailed = errors.New("download failed")

// Result is what a successful strategy produces: the audio file plus the
// metadata it extracted.
type Result struct {
	Path   string
	Title  string
	Artist string
	Album  string
}

// Strategy is one way of producing the file for a track id.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context, id string) (*Result, error)
}

// StrategyFunc adapts a function to the Strategy interface.
type StrategyFunc struct {
	StrategyName string
	Func         func(ctx context.Context, id string) (*Result, error)
}

func (s StrategyFunc) Name() string { return s.StrategyName }

func (s StrategyFunc) Fetch(ctx context.Context, id string) (*Result, error) {
	return s.Func(ctx, id)
}

// Clock is the slice of the time service the fetcher needs.
type Clock interface {
	Now() time.Time
}

// Service resolves track ids to local files, consulting the downloads table
// before invoking any strategy.
type Service struct {
	strategies []Strategy
	db         *db.DB
	clock      Clock
	logger     *log.Logger
}

// New creates a fetcher that tries strategies in order.
func New(database *db.DB, clock Clock, logger *log.Logger, strategies ...Strategy) *Service {
	return &Service{
		strategies: strategies,
		db:         database,
		clock:      clock,
		logger:     logger,
	}
}

// Fetch returns the local file for a track, downloading it if needed. An
// existing record whose file is still on disk short-circuits; otherwise the
// strategies run in order and the first success is recorded for the user.
func (s *Service) Fetch(ctx context.Context, trackID string, userID int64) (*db.Download, error) {
	existing, err := s.db.GetDownload(trackID)
	if err == nil {
		if _, statErr := os.Stat(existing.Path); statErr == nil {
			return existing, nil
		}
		// Stale record: the file went away, re-download below.
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	var lastErr error
	for _, strategy := range s.strategies {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		res, err := strategy.Fetch(ctx, trackID)
		if err != nil {
			lastErr = err
			if s.logger != nil {
				s.logger.Warn("fetch strategy failed",
					"strategy", strategy.Name(), "track", trackID, "err", err)
			}
			continue
		}

		d := &db.Download{
			SongID: trackID,
			Title:  res.Title,
			Artist: res.Artist,
			Album:  res.Album,
			Path:   res.Path,
		}
		if err := s.db.RecordDownload(d, uuid.New().String(), userID, s.clock.Now()); err != nil {
			return nil, err
		}
		return d, nil
	}

	return nil, fmt.Errorf("track %s: %w: %v", trackID, ErrDownloadFailed, lastErr)
}
