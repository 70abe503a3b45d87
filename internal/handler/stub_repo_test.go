package handler

import (
	"context"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"nrlengine/internal/models"
	"nrlengine/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository.
// It implements the full interface but only the read paths the handlers hit
// are backed by data.
type stubRepo struct {
	matches      map[string]models.MatchFact
	odds         []models.OddsFact
	features     map[string]*repository.FeatureRow
	slips        map[string]models.Slip
	predictions  []models.ModelPrediction
	entries      []models.ModelRegistryEntry
	calibrations map[int]models.CalibrationParams
	reports      []models.DataQualityReport
	provenance   []models.IngestionProvenance
	manifests    []models.RunManifest
	scraperRuns  []models.ScraperRun

	missingRelations map[string]bool
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		matches:          map[string]models.MatchFact{},
		features:         map[string]*repository.FeatureRow{},
		slips:            map[string]models.Slip{},
		calibrations:     map[int]models.CalibrationParams{},
		missingRelations: map[string]bool{},
	}
}

func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

func (s *stubRepo) UpsertMatches(ctx context.Context, items []models.MatchFact) (int64, error) {
	return 0, nil
}

func (s *stubRepo) GetMatch(ctx context.Context, matchID string) (*models.MatchFact, error) {
	if m, ok := s.matches[matchID]; ok {
		return &m, nil
	}
	return nil, nil
}

func (s *stubRepo) ListMatches(ctx context.Context, params repository.ListMatchesParams) ([]models.MatchFact, error) {
	var out []models.MatchFact
	for _, m := range s.matches {
		if params.Season != nil && m.Season != *params.Season {
			continue
		}
		if params.Round != nil && m.RoundNum != *params.Round {
			continue
		}
		if params.Resolved != nil && m.Resolved() != *params.Resolved {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *stubRepo) ListSeasonRounds(ctx context.Context, season int) ([]int, error) { return nil, nil }

func (s *stubRepo) UpsertOdds(ctx context.Context, items []models.OddsFact) (int64, error) {
	return 0, nil
}

func (s *stubRepo) GetOdds(ctx context.Context, matchID, team string) (*models.OddsFact, error) {
	return nil, nil
}

func (s *stubRepo) ListOddsByMatchIDs(ctx context.Context, matchIDs []string) ([]models.OddsFact, error) {
	var out []models.OddsFact
	for _, o := range s.odds {
		for _, id := range matchIDs {
			if o.MatchID == id {
				out = append(out, o)
			}
		}
	}
	return out, nil
}

func (s *stubRepo) ListOrphanOddsMatchIDs(ctx context.Context, limit int) ([]string, error) {
	return nil, nil
}

func (s *stubRepo) UpsertTeamRatings(ctx context.Context, items []models.TeamRating) (int64, error) {
	return 0, nil
}

func (s *stubRepo) ListTeamRatings(ctx context.Context, season int) ([]models.TeamRating, error) {
	return nil, nil
}

func (s *stubRepo) UpsertInjuries(ctx context.Context, items []models.InjurySnapshot) (int64, error) {
	return 0, nil
}

func (s *stubRepo) FeatureRowForMatch(ctx context.Context, matchID string) (*repository.FeatureRow, error) {
	return s.features[matchID], nil
}

func (s *stubRepo) InsertProvenance(ctx context.Context, item *models.IngestionProvenance) error {
	return nil
}

func (s *stubRepo) LatestProvenanceChecksum(ctx context.Context, season int, matchID, sourceName string) (string, error) {
	return "", nil
}

func (s *stubRepo) ListProvenance(ctx context.Context, params repository.ListProvenanceParams) ([]models.IngestionProvenance, error) {
	var out []models.IngestionProvenance
	for _, p := range s.provenance {
		if params.Season != nil && p.Season != *params.Season {
			continue
		}
		if params.MatchID != nil && p.MatchID != *params.MatchID {
			continue
		}
		if params.SourceName != nil && p.SourceName != *params.SourceName {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *stubRepo) InsertQualityReport(ctx context.Context, item *models.DataQualityReport) error {
	return nil
}

func (s *stubRepo) LatestQualityReportForSeason(ctx context.Context, season int) (*models.DataQualityReport, error) {
	for i := len(s.reports) - 1; i >= 0; i-- {
		if coversSeason(s.reports[i].SeasonsCSV, season) {
			return &s.reports[i], nil
		}
	}
	return nil, nil
}

func (s *stubRepo) ListQualityReports(ctx context.Context, limit int) ([]models.DataQualityReport, error) {
	return s.reports, nil
}

func (s *stubRepo) UpsertCalibrationParams(ctx context.Context, item *models.CalibrationParams) error {
	return nil
}

func (s *stubRepo) GetCalibrationParams(ctx context.Context, season int) (*models.CalibrationParams, error) {
	if p, ok := s.calibrations[season]; ok {
		return &p, nil
	}
	return nil, nil
}

func (s *stubRepo) InsertRegistryEntry(ctx context.Context, item *models.ModelRegistryEntry) error {
	return nil
}

func (s *stubRepo) GetRegistryEntry(ctx context.Context, modelKey, version string) (*models.ModelRegistryEntry, error) {
	return nil, nil
}

func (s *stubRepo) GetChampion(ctx context.Context, modelKey string) (*models.ModelRegistryEntry, error) {
	for _, e := range s.entries {
		if e.ModelKey == modelKey && e.IsChampion {
			out := e
			return &out, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) ListRegistryEntries(ctx context.Context, modelKey string, limit int) ([]models.ModelRegistryEntry, error) {
	var out []models.ModelRegistryEntry
	for _, e := range s.entries {
		if modelKey != "" && e.ModelKey != modelKey {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *stubRepo) DemoteChampionsTx(ctx context.Context, tx *gorm.DB, modelKey string) (int64, error) {
	return 0, nil
}

func (s *stubRepo) SetChampionTx(ctx context.Context, tx *gorm.DB, modelKey, version string) (int64, error) {
	return 0, nil
}

func (s *stubRepo) ListRecentModelScores(ctx context.Context, limit int) ([]float64, error) {
	return nil, nil
}

func (s *stubRepo) UpsertPrediction(ctx context.Context, item *models.ModelPrediction) error {
	return nil
}

func (s *stubRepo) GetPrediction(ctx context.Context, season, round int, matchID string) (*models.ModelPrediction, error) {
	for _, p := range s.predictions {
		if p.Season == season && p.RoundNum == round && p.MatchID == matchID {
			out := p
			return &out, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) ListPredictions(ctx context.Context, params repository.ListPredictionsParams) ([]models.ModelPrediction, error) {
	var out []models.ModelPrediction
	for _, p := range s.predictions {
		if params.Season != nil && p.Season != *params.Season {
			continue
		}
		if params.Round != nil && p.RoundNum != *params.Round {
			continue
		}
		if params.OutcomeKnown != nil && p.OutcomeKnown != *params.OutcomeKnown {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *stubRepo) LabelPredictionOutcomes(ctx context.Context, season int, round *int) (int64, error) {
	return 0, nil
}

func (s *stubRepo) BackfillPredictionCLV(ctx context.Context, season int) (int64, error) {
	return 0, nil
}

func (s *stubRepo) ListResolvedUnpredicted(ctx context.Context, season int, rounds []int) ([]models.MatchFact, error) {
	return nil, nil
}

func (s *stubRepo) UpsertSlip(ctx context.Context, item *models.Slip) error { return nil }

func (s *stubRepo) GetSlip(ctx context.Context, portfolioID string) (*models.Slip, error) {
	if sl, ok := s.slips[portfolioID]; ok {
		return &sl, nil
	}
	return nil, nil
}

func (s *stubRepo) ListSlips(ctx context.Context, params repository.ListSlipsParams) ([]models.Slip, error) {
	var out []models.Slip
	for _, sl := range s.slips {
		if params.Season != nil && sl.Season != *params.Season {
			continue
		}
		if params.Round != nil && sl.RoundNum != *params.Round {
			continue
		}
		if params.Status != nil && sl.Status != *params.Status {
			continue
		}
		if params.MatchID != nil && sl.MatchID != *params.MatchID {
			continue
		}
		out = append(out, sl)
	}
	return out, nil
}

func (s *stubRepo) UpdateSlipStatus(ctx context.Context, portfolioID, from, to string) (int64, error) {
	return 0, nil
}

func (s *stubRepo) DeleteSlip(ctx context.Context, portfolioID string) error { return nil }

func (s *stubRepo) InsertRunManifest(ctx context.Context, item *models.RunManifest) error {
	return nil
}

func (s *stubRepo) ListRunManifests(ctx context.Context, limit int) ([]models.RunManifest, error) {
	return s.manifests, nil
}

func (s *stubRepo) UpsertScraperRun(ctx context.Context, item *models.ScraperRun) error { return nil }

func (s *stubRepo) ListScraperRuns(ctx context.Context, runID string) ([]models.ScraperRun, error) {
	var out []models.ScraperRun
	for _, r := range s.scraperRuns {
		if r.RunID == runID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubRepo) LatestScraperStatus(ctx context.Context) ([]models.ScraperRun, error) {
	return s.scraperRuns, nil
}

func (s *stubRepo) RelationExists(ctx context.Context, schemaName, table string) (bool, error) {
	return !s.missingRelations[schemaName+"."+table], nil
}

func (s *stubRepo) CopySeasonFromLegacy(ctx context.Context, season int) (repository.CopyCounts, error) {
	return repository.CopyCounts{}, nil
}

func (s *stubRepo) GetLegacyMatch(ctx context.Context, matchID string) (*models.MatchFact, error) {
	return nil, nil
}

func coversSeason(csv string, season int) bool {
	for _, part := range strings.Split(csv, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil && n == season {
			return true
		}
	}
	return false
}
