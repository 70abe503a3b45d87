// Package ingest writes pre-normalized source records into the truth layer.
// Every live record leaves a provenance row, and every source run, dry or
// not, leaves a scraper_runs row so operators can see partial failures per
// source. The
// engine never parses upstream HTML; collaborator endpoints and the odds
// feed deliver records already shaped like truth rows.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"nrlengine/internal/models"
	"nrlengine/internal/provenance"
)

// Source names used for scraper_runs and provenance rows.
const (
	SourceFixtures = "fixtures"
	SourceOdds     = "odds"
	SourceRatings  = "ratings"
	SourceInjuries = "injuries"
	SourceFeed     = "feed"
	SourceSeed     = "seed"
)

type Store interface {
	UpsertMatches(ctx context.Context, items []models.MatchFact) (int64, error)
	UpsertOdds(ctx context.Context, items []models.OddsFact) (int64, error)
	UpsertTeamRatings(ctx context.Context, items []models.TeamRating) (int64, error)
	UpsertInjuries(ctx context.Context, items []models.InjurySnapshot) (int64, error)
	UpsertScraperRun(ctx context.Context, item *models.ScraperRun) error
}

// Recorder is the provenance slice the service needs.
type Recorder interface {
	Record(ctx context.Context, in provenance.RecordInput) (provenance.RecordResult, error)
}

// SourceFetcher pulls one season's records from a collaborator endpoint.
// The second return is the source ref recorded on provenance rows.
type SourceFetcher interface {
	FetchMatches(ctx context.Context, season int) ([]MatchRecord, string, error)
	FetchOdds(ctx context.Context, season int) ([]OddsRecord, string, error)
	FetchRatings(ctx context.Context, season int) ([]RatingRecord, string, error)
	FetchInjuries(ctx context.Context, season int) ([]InjuryRecord, string, error)
}

type Service struct {
	Repo    Store
	Lineage Recorder
	Sources SourceFetcher
	Logger  *zap.Logger
}

// MatchRecord is one normalized fixture. Scores are present only once the
// match has resolved; a record with one score and not the other is left for
// the quality gate to flag rather than rejected here.
type MatchRecord struct {
	MatchID   string `json:"match_id"`
	Season    int    `json:"season"`
	RoundNum  int    `json:"round_num"`
	MatchDate string `json:"match_date"`
	Venue     string `json:"venue"`
	HomeTeam  string `json:"home_team"`
	AwayTeam  string `json:"away_team"`
	HomeScore *int   `json:"home_score,omitempty"`
	AwayScore *int   `json:"away_score,omitempty"`
}

func (r MatchRecord) fact() (models.MatchFact, error) {
	if strings.TrimSpace(r.MatchID) == "" {
		return models.MatchFact{}, errors.New("match record missing match_id")
	}
	if r.Season <= 0 || r.RoundNum <= 0 {
		return models.MatchFact{}, fmt.Errorf("match %s: bad season/round %d/%d", r.MatchID, r.Season, r.RoundNum)
	}
	if strings.TrimSpace(r.HomeTeam) == "" || strings.TrimSpace(r.AwayTeam) == "" {
		return models.MatchFact{}, fmt.Errorf("match %s: missing team names", r.MatchID)
	}
	date, err := parseDate(r.MatchDate)
	if err != nil {
		return models.MatchFact{}, fmt.Errorf("match %s: %w", r.MatchID, err)
	}
	return models.MatchFact{
		MatchID:   r.MatchID,
		Season:    r.Season,
		RoundNum:  r.RoundNum,
		MatchDate: date,
		Venue:     r.Venue,
		HomeTeam:  r.HomeTeam,
		AwayTeam:  r.AwayTeam,
		HomeScore: r.HomeScore,
		AwayScore: r.AwayScore,
	}, nil
}

func (r MatchRecord) payload() map[string]any {
	p := map[string]any{
		"match_id":   r.MatchID,
		"season":     r.Season,
		"round_num":  r.RoundNum,
		"match_date": r.MatchDate,
		"venue":      r.Venue,
		"home_team":  r.HomeTeam,
		"away_team":  r.AwayTeam,
	}
	if r.HomeScore != nil {
		p["home_score"] = *r.HomeScore
	}
	if r.AwayScore != nil {
		p["away_score"] = *r.AwayScore
	}
	return p
}

// OddsRecord is one head-to-head price snapshot for a (match, team) pair.
type OddsRecord struct {
	MatchID      string    `json:"match_id"`
	Season       int       `json:"season"`
	Team         string    `json:"team"`
	OpeningPrice float64   `json:"opening_price"`
	ClosePrice   *float64  `json:"close_price,omitempty"`
	LastPrice    *float64  `json:"last_price,omitempty"`
	SteamFactor  *float64  `json:"steam_factor,omitempty"`
	CapturedAt   time.Time `json:"captured_at"`
}

func (r OddsRecord) fact() (models.OddsFact, error) {
	if strings.TrimSpace(r.MatchID) == "" || strings.TrimSpace(r.Team) == "" {
		return models.OddsFact{}, errors.New("odds record missing match_id or team")
	}
	if r.OpeningPrice <= 1 {
		return models.OddsFact{}, fmt.Errorf("odds %s/%s: impossible opening price %v", r.MatchID, r.Team, r.OpeningPrice)
	}
	capturedAt := r.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}
	fact := models.OddsFact{
		MatchID:      r.MatchID,
		Team:         r.Team,
		OpeningPrice: priceDec(r.OpeningPrice),
		CapturedAt:   capturedAt,
	}
	if r.ClosePrice != nil {
		if *r.ClosePrice <= 1 {
			return models.OddsFact{}, fmt.Errorf("odds %s/%s: impossible close price %v", r.MatchID, r.Team, *r.ClosePrice)
		}
		v := priceDec(*r.ClosePrice)
		fact.ClosePrice = &v
	}
	if r.LastPrice != nil {
		if *r.LastPrice <= 1 {
			return models.OddsFact{}, fmt.Errorf("odds %s/%s: impossible last price %v", r.MatchID, r.Team, *r.LastPrice)
		}
		v := priceDec(*r.LastPrice)
		fact.LastPrice = &v
	}
	if r.SteamFactor != nil {
		v := decimal.NewFromFloat(*r.SteamFactor).Round(4)
		fact.SteamFactor = &v
	}
	return fact, nil
}

func (r OddsRecord) payload() map[string]any {
	p := map[string]any{
		"match_id":      r.MatchID,
		"season":        r.Season,
		"team":          r.Team,
		"opening_price": r.OpeningPrice,
	}
	if r.ClosePrice != nil {
		p["close_price"] = *r.ClosePrice
	}
	if r.LastPrice != nil {
		p["last_price"] = *r.LastPrice
	}
	if r.SteamFactor != nil {
		p["steam_factor"] = *r.SteamFactor
	}
	return p
}

// provenanceKey keeps odds lineage distinct per team within a match.
func (r OddsRecord) provenanceKey() string {
	return r.MatchID + ":" + r.Team
}

type RatingRecord struct {
	Season int     `json:"season"`
	Team   string  `json:"team"`
	Rating float64 `json:"rating"`
}

func (r RatingRecord) fact() (models.TeamRating, error) {
	if strings.TrimSpace(r.Team) == "" {
		return models.TeamRating{}, errors.New("rating record missing team")
	}
	if r.Season <= 0 || r.Rating <= 0 {
		return models.TeamRating{}, fmt.Errorf("rating %s: bad season/rating %d/%v", r.Team, r.Season, r.Rating)
	}
	return models.TeamRating{Season: r.Season, Team: r.Team, Rating: r.Rating}, nil
}

func (r RatingRecord) payload() map[string]any {
	return map[string]any{"season": r.Season, "team": r.Team, "rating": r.Rating}
}

type InjuryRecord struct {
	Season      int    `json:"season"`
	Team        string `json:"team"`
	InjuryCount int    `json:"injury_count"`
}

func (r InjuryRecord) fact() (models.InjurySnapshot, error) {
	if strings.TrimSpace(r.Team) == "" {
		return models.InjurySnapshot{}, errors.New("injury record missing team")
	}
	if r.Season <= 0 || r.InjuryCount < 0 {
		return models.InjurySnapshot{}, fmt.Errorf("injury %s: bad season/count %d/%d", r.Team, r.Season, r.InjuryCount)
	}
	return models.InjurySnapshot{Season: r.Season, Team: r.Team, InjuryCount: r.InjuryCount}, nil
}

func (r InjuryRecord) payload() map[string]any {
	return map[string]any{"season": r.Season, "team": r.Team, "injury_count": r.InjuryCount}
}

// SourceResult is one source's slice of an ingest run.
type SourceResult struct {
	RunID   string `json:"run_id"`
	Scraper string `json:"scraper"`
	Season  int    `json:"season"`
	Fetched int    `json:"fetched"`
	Written int64  `json:"written"`
	Changed int    `json:"changed"`
	DryRun  bool   `json:"dry_run"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

// RunSummary aggregates every source of one run-scrapers invocation.
type RunSummary struct {
	RunID   string         `json:"run_id"`
	Season  int            `json:"season"`
	DryRun  bool           `json:"dry_run"`
	Sources []SourceResult `json:"sources"`
	Failed  int            `json:"failed"`
}

func NewRunID() string {
	return uuid.NewString()
}

// IngestMatches validates, records lineage for, and upserts fixture records
// under one scraper_runs row. Dry runs validate and count without writing.
func (s *Service) IngestMatches(ctx context.Context, runID string, season int, scraper, sourceRef string, records []MatchRecord, dryRun bool) (*SourceResult, error) {
	return s.runSource(ctx, runID, season, scraper, dryRun, len(records), func(ctx context.Context) (int64, int, error) {
		facts := make([]models.MatchFact, 0, len(records))
		changed := 0
		for _, rec := range records {
			fact, err := rec.fact()
			if err != nil {
				return 0, changed, err
			}
			res, err := s.Lineage.Record(ctx, provenance.RecordInput{
				Season:     rec.Season,
				MatchID:    rec.MatchID,
				SourceName: scraper,
				SourceRef:  sourceRef,
				Payload:    rec.payload(),
			})
			if err != nil {
				return 0, changed, err
			}
			if res.IsNewContent {
				changed++
			}
			facts = append(facts, fact)
		}
		written, err := s.Repo.UpsertMatches(ctx, facts)
		return written, changed, err
	})
}

func (s *Service) IngestOdds(ctx context.Context, runID string, season int, scraper, sourceRef string, records []OddsRecord, dryRun bool) (*SourceResult, error) {
	return s.runSource(ctx, runID, season, scraper, dryRun, len(records), func(ctx context.Context) (int64, int, error) {
		facts := make([]models.OddsFact, 0, len(records))
		changed := 0
		for _, rec := range records {
			fact, err := rec.fact()
			if err != nil {
				return 0, changed, err
			}
			res, err := s.Lineage.Record(ctx, provenance.RecordInput{
				Season:     rec.Season,
				MatchID:    rec.provenanceKey(),
				SourceName: scraper,
				SourceRef:  sourceRef,
				Payload:    rec.payload(),
			})
			if err != nil {
				return 0, changed, err
			}
			if res.IsNewContent {
				changed++
			}
			facts = append(facts, fact)
		}
		written, err := s.Repo.UpsertOdds(ctx, facts)
		return written, changed, err
	})
}

func (s *Service) IngestRatings(ctx context.Context, runID string, season int, scraper, sourceRef string, records []RatingRecord, dryRun bool) (*SourceResult, error) {
	return s.runSource(ctx, runID, season, scraper, dryRun, len(records), func(ctx context.Context) (int64, int, error) {
		facts := make([]models.TeamRating, 0, len(records))
		changed := 0
		for _, rec := range records {
			fact, err := rec.fact()
			if err != nil {
				return 0, changed, err
			}
			res, err := s.Lineage.Record(ctx, provenance.RecordInput{
				Season:     rec.Season,
				MatchID:    "team:" + rec.Team,
				SourceName: scraper,
				SourceRef:  sourceRef,
				Payload:    rec.payload(),
			})
			if err != nil {
				return 0, changed, err
			}
			if res.IsNewContent {
				changed++
			}
			facts = append(facts, fact)
		}
		written, err := s.Repo.UpsertTeamRatings(ctx, facts)
		return written, changed, err
	})
}

func (s *Service) IngestInjuries(ctx context.Context, runID string, season int, scraper, sourceRef string, records []InjuryRecord, dryRun bool) (*SourceResult, error) {
	return s.runSource(ctx, runID, season, scraper, dryRun, len(records), func(ctx context.Context) (int64, int, error) {
		facts := make([]models.InjurySnapshot, 0, len(records))
		changed := 0
		for _, rec := range records {
			fact, err := rec.fact()
			if err != nil {
				return 0, changed, err
			}
			res, err := s.Lineage.Record(ctx, provenance.RecordInput{
				Season:     rec.Season,
				MatchID:    "team:" + rec.Team,
				SourceName: scraper,
				SourceRef:  sourceRef,
				Payload:    rec.payload(),
			})
			if err != nil {
				return 0, changed, err
			}
			if res.IsNewContent {
				changed++
			}
			facts = append(facts, fact)
		}
		written, err := s.Repo.UpsertInjuries(ctx, facts)
		return written, changed, err
	})
}

// RunAll fetches and ingests every configured source for one season. A
// failing source is recorded and skipped; the rest of the run continues.
func (s *Service) RunAll(ctx context.Context, season int, dryRun bool) (*RunSummary, error) {
	if s.Sources == nil {
		return nil, errors.New("ingest: no source fetchers configured")
	}
	runID := NewRunID()
	summary := &RunSummary{RunID: runID, Season: season, DryRun: dryRun}

	if recs, ref, err := s.Sources.FetchMatches(ctx, season); err != nil {
		s.noteFetchFailure(ctx, summary, runID, SourceFixtures, season, dryRun, err)
	} else {
		res, ingErr := s.IngestMatches(ctx, runID, season, SourceFixtures, ref, recs, dryRun)
		s.noteResult(summary, SourceFixtures, res, ingErr)
	}
	if recs, ref, err := s.Sources.FetchOdds(ctx, season); err != nil {
		s.noteFetchFailure(ctx, summary, runID, SourceOdds, season, dryRun, err)
	} else {
		res, ingErr := s.IngestOdds(ctx, runID, season, SourceOdds, ref, recs, dryRun)
		s.noteResult(summary, SourceOdds, res, ingErr)
	}
	if recs, ref, err := s.Sources.FetchRatings(ctx, season); err != nil {
		s.noteFetchFailure(ctx, summary, runID, SourceRatings, season, dryRun, err)
	} else {
		res, ingErr := s.IngestRatings(ctx, runID, season, SourceRatings, ref, recs, dryRun)
		s.noteResult(summary, SourceRatings, res, ingErr)
	}
	if recs, ref, err := s.Sources.FetchInjuries(ctx, season); err != nil {
		s.noteFetchFailure(ctx, summary, runID, SourceInjuries, season, dryRun, err)
	} else {
		res, ingErr := s.IngestInjuries(ctx, runID, season, SourceInjuries, ref, recs, dryRun)
		s.noteResult(summary, SourceInjuries, res, ingErr)
	}

	s.Logger.Info("ingest run finished",
		zap.String("run_id", runID),
		zap.Int("season", season),
		zap.Bool("dry_run", dryRun),
		zap.Int("sources", len(summary.Sources)),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

func (s *Service) runSource(ctx context.Context, runID string, season int, scraper string, dryRun bool, fetched int, write func(ctx context.Context) (int64, int, error)) (*SourceResult, error) {
	if strings.TrimSpace(runID) == "" {
		runID = NewRunID()
	}
	run := &models.ScraperRun{
		RunID:      runID,
		Scraper:    scraper,
		Season:     season,
		Status:     models.ScraperRunRunning,
		DryRun:     dryRun,
		FetchCount: fetched,
		StartedAt:  time.Now().UTC(),
	}
	if err := s.Repo.UpsertScraperRun(ctx, run); err != nil {
		return nil, fmt.Errorf("ingest %s: start run: %w", scraper, err)
	}

	var written int64
	var changed int
	var err error
	if !dryRun {
		written, changed, err = write(ctx)
	}

	now := time.Now().UTC()
	run.FinishedAt = &now
	if err != nil {
		run.Status = models.ScraperRunError
		msg := trunc(err.Error(), 300)
		run.LastError = &msg
		if upErr := s.Repo.UpsertScraperRun(ctx, run); upErr != nil {
			s.Logger.Error("failed to record failed source run", zap.String("scraper", scraper), zap.Error(upErr))
		}
		s.Logger.Error("source ingest failed",
			zap.String("run_id", runID),
			zap.String("scraper", scraper),
			zap.Int("season", season),
			zap.Error(err))
		return nil, fmt.Errorf("ingest %s: %w", scraper, err)
	}

	run.Status = models.ScraperRunOK
	run.RowsInserted = int(written)
	if body, mErr := json.Marshal(map[string]any{"changed": changed}); mErr == nil {
		run.Details = datatypes.JSON(body)
	}
	if err := s.Repo.UpsertScraperRun(ctx, run); err != nil {
		return nil, fmt.Errorf("ingest %s: finish run: %w", scraper, err)
	}

	s.Logger.Info("source ingested",
		zap.String("run_id", runID),
		zap.String("scraper", scraper),
		zap.Int("season", season),
		zap.Int("fetched", fetched),
		zap.Int64("written", written),
		zap.Int("changed", changed),
		zap.Bool("dry_run", dryRun))
	return &SourceResult{
		RunID:   runID,
		Scraper: scraper,
		Season:  season,
		Fetched: fetched,
		Written: written,
		Changed: changed,
		DryRun:  dryRun,
		Status:  models.ScraperRunOK,
	}, nil
}

func (s *Service) noteResult(summary *RunSummary, scraper string, res *SourceResult, err error) {
	if err != nil {
		summary.Failed++
		summary.Sources = append(summary.Sources, SourceResult{
			RunID:   summary.RunID,
			Scraper: scraper,
			Season:  summary.Season,
			DryRun:  summary.DryRun,
			Status:  models.ScraperRunError,
			Error:   err.Error(),
		})
		return
	}
	summary.Sources = append(summary.Sources, *res)
}

func (s *Service) noteFetchFailure(ctx context.Context, summary *RunSummary, runID, scraper string, season int, dryRun bool, err error) {
	if errors.Is(err, ErrNotConfigured) {
		s.Logger.Debug("source not configured, skipping", zap.String("scraper", scraper))
		return
	}
	now := time.Now().UTC()
	msg := trunc(err.Error(), 300)
	run := &models.ScraperRun{
		RunID:      runID,
		Scraper:    scraper,
		Season:     season,
		Status:     models.ScraperRunError,
		DryRun:     dryRun,
		StartedAt:  now,
		FinishedAt: &now,
		LastError:  &msg,
	}
	if upErr := s.Repo.UpsertScraperRun(ctx, run); upErr != nil {
		s.Logger.Error("failed to record fetch failure", zap.String("scraper", scraper), zap.Error(upErr))
	}
	s.Logger.Error("source fetch failed",
		zap.String("run_id", runID),
		zap.String("scraper", scraper),
		zap.Int("season", season),
		zap.Error(err))
	summary.Failed++
	summary.Sources = append(summary.Sources, SourceResult{
		RunID:   runID,
		Scraper: scraper,
		Season:  season,
		DryRun:  dryRun,
		Status:  models.ScraperRunError,
		Error:   err.Error(),
	})
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("missing match_date")
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable match_date %q", raw)
	}
	return t, nil
}

func priceDec(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(3)
}

func trunc(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
