package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"nrlengine/internal/config"
)

// ErrNotConfigured marks a source with no endpoint URL; RunAll skips it.
var ErrNotConfigured = errors.New("source url not configured")

// APIError carries a non-2xx collaborator response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("source error (%d): %s", e.Status, e.Body)
}

// Fetcher pulls record batches from the collaborator endpoints named in the
// ingest config. Endpoints return JSON arrays of the record shapes above.
type Fetcher struct {
	http   *resty.Client
	cfg    config.IngestConfig
	logger *zap.Logger
}

func NewFetcher(cfg config.IngestConfig, logger *zap.Logger) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "nrlengine/1.0"
	}
	rc := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		SetHeader("User-Agent", ua)
	return &Fetcher{http: rc, cfg: cfg, logger: logger}
}

func (f *Fetcher) FetchMatches(ctx context.Context, season int) ([]MatchRecord, string, error) {
	url := f.cfg.FixturesURL
	if strings.TrimSpace(url) == "" {
		return nil, "", ErrNotConfigured
	}
	var out []MatchRecord
	if err := f.get(ctx, url, season, &out); err != nil {
		return nil, "", err
	}
	return out, url, nil
}

func (f *Fetcher) FetchOdds(ctx context.Context, season int) ([]OddsRecord, string, error) {
	url := f.cfg.OddsURL
	if strings.TrimSpace(url) == "" {
		return nil, "", ErrNotConfigured
	}
	var out []OddsRecord
	if err := f.get(ctx, url, season, &out); err != nil {
		return nil, "", err
	}
	return out, url, nil
}

func (f *Fetcher) FetchRatings(ctx context.Context, season int) ([]RatingRecord, string, error) {
	url := f.cfg.RatingsURL
	if strings.TrimSpace(url) == "" {
		return nil, "", ErrNotConfigured
	}
	var out []RatingRecord
	if err := f.get(ctx, url, season, &out); err != nil {
		return nil, "", err
	}
	return out, url, nil
}

func (f *Fetcher) FetchInjuries(ctx context.Context, season int) ([]InjuryRecord, string, error) {
	url := f.cfg.InjuriesURL
	if strings.TrimSpace(url) == "" {
		return nil, "", ErrNotConfigured
	}
	var out []InjuryRecord
	if err := f.get(ctx, url, season, &out); err != nil {
		return nil, "", err
	}
	return out, url, nil
}

func (f *Fetcher) get(ctx context.Context, url string, season int, result any) error {
	resp, err := f.http.R().
		SetContext(ctx).
		SetQueryParam("season", strconv.Itoa(season)).
		SetResult(result).
		Get(url)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.IsError() {
		return &APIError{Status: resp.StatusCode(), Body: string(resp.Body())}
	}
	f.logger.Debug("source fetched",
		zap.String("url", url),
		zap.Int("season", season),
		zap.Int("bytes", len(resp.Body())))
	return nil
}
