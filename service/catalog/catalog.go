// Package catalog wraps the remote music-catalog API. Responses with
// heterogeneous shapes are normalized into canonical track records; search
// and track lookups are cached with a one hour TTL. Transport failures
// surface as ErrUnavailable so callers can fall back.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/raagfm/raag/cache"
	"github.com/raagfm/raag/models"
)

// ErrUnavailable means the catalog could not be reached or answered with a
// server error. It is never shown raw to an end user; the recommendation
// and search paths degrade to fallbacks instead.
var ErrUnavailable = errors.New("catalog unavailable")

// ErrTrackNotFound is returned for lookups of ids the catalog doesn't know.
var ErrTrackNotFound = errors.New("track not found")

const defaultTimeout = 10 * time.Second

type cachedImage struct {
	Data        []byte
	ContentType string
}

// Service is the catalog client. One instance is shared by all handlers.
type Service struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	logger     *log.Logger

	searchCache *cache.Cache[string, []models.Candidate]
	trackCache  *cache.Cache[string, models.Track]
	imageCache  *cache.Cache[string, cachedImage]
}

// New creates a catalog client against baseURL with the given cache TTL.
func New(baseURL string, ttl time.Duration, logger *log.Logger) *Service {
	return &Service{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		// Stay friendly with the catalog's rate limits.
		limiter:     rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
		baseURL:     baseURL,
		logger:      logger,
		searchCache: cache.New[string, []models.Candidate](ttl),
		trackCache:  cache.New[string, models.Track](ttl),
		imageCache:  cache.New[string, cachedImage](ttl),
	}
}

// Search queries the catalog for songs. Results come back normalized but not
// deduplicated; the ranking engine takes care of that.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]models.Candidate, error) {
	cacheKey := fmt.Sprintf("search:%s:%d", query, limit)
	if hit, ok := s.searchCache.Get(cacheKey); ok {
		return hit, nil
	}

	endpoint := fmt.Sprintf("%s/search?q=%s&filter=songs&limit=%d",
		s.baseURL, url.QueryEscape(query), limit)

	var resp searchResponse
	if err := s.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}

	candidates := normalizeAll(resp.Results, resp.Items)
	s.searchCache.Put(cacheKey, candidates)
	return candidates, nil
}

// GetTrack fetches one track's metadata by catalog id.
func (s *Service) GetTrack(ctx context.Context, id string) (*models.Track, error) {
	if hit, ok := s.trackCache.Get(id); ok {
		return &hit, nil
	}

	endpoint := fmt.Sprintf("%s/songs/%s", s.baseURL, url.PathEscape(id))

	var raw apiTrack
	if err := s.getJSON(ctx, endpoint, &raw); err != nil {
		return nil, err
	}

	c, ok := normalize(&raw)
	if !ok {
		return nil, fmt.Errorf("catalog song %s: %w", id, ErrTrackNotFound)
	}

	s.trackCache.Put(id, c.Track)
	return &c.Track, nil
}

// Trending returns the catalog's trending songs.
func (s *Service) Trending(ctx context.Context) ([]models.Candidate, error) {
	return s.listing(ctx, "/trending")
}

// Charts returns the catalog's current charts.
func (s *Service) Charts(ctx context.Context) ([]models.Candidate, error) {
	return s.listing(ctx, "/charts")
}

func (s *Service) listing(ctx context.Context, path string) ([]models.Candidate, error) {
	cacheKey := "listing:" + path
	if hit, ok := s.searchCache.Get(cacheKey); ok {
		return hit, nil
	}

	var resp searchResponse
	if err := s.getJSON(ctx, s.baseURL+path, &resp); err != nil {
		return nil, err
	}

	candidates := normalizeAll(resp.Results, resp.Items)
	s.searchCache.Put(cacheKey, candidates)
	return candidates, nil
}

// FetchImage retrieves a thumbnail, caching the bytes. Failures degrade to
// an ErrUnavailable the handler turns into a plain 404.
func (s *Service) FetchImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	if hit, ok := s.imageCache.Get(imageURL); ok {
		return hit.Data, hit.ContentType, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("image fetch %s: %w", imageURL, ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("image fetch %s returned status %d: %w", imageURL, resp.StatusCode, ErrUnavailable)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("image fetch %s: %w", imageURL, ErrUnavailable)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}

	s.imageCache.Put(imageURL, cachedImage{Data: data, ContentType: contentType})
	return data, contentType, nil
}

func (s *Service) getJSON(ctx context.Context, endpoint string, out any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "raag/0.1 ( https://github.com/raagfm/raag )")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("context error during request execution: %w", ctx.Err())
		}
		if s.logger != nil {
			s.logger.Warn("catalog request failed", "endpoint", endpoint, "err", err)
		}
		return fmt.Errorf("catalog request to %s: %w", endpoint, ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrTrackNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog request to %s returned status %d: %w", endpoint, resp.StatusCode, ErrUnavailable)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", endpoint, err)
	}
	return nil
}

func normalizeAll(lists ...[]apiTrack) []models.Candidate {
	var out []models.Candidate
	for _, list := range lists {
		for i := range list {
			if c, ok := normalize(&list[i]); ok {
				out = append(out, c)
			}
		}
	}
	return out
}
