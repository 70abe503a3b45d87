package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"nrlengine/internal/models"
)

// Repository is the unified store surface wired at startup. Services keep a
// field typed to the narrow slice they need; the gorm implementation
// satisfies the whole thing.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Truth: fixtures.
	UpsertMatches(ctx context.Context, items []models.MatchFact) (int64, error)
	GetMatch(ctx context.Context, matchID string) (*models.MatchFact, error)
	ListMatches(ctx context.Context, params ListMatchesParams) ([]models.MatchFact, error)
	ListSeasonRounds(ctx context.Context, season int) ([]int, error)

	// Truth: odds and auxiliary facts.
	UpsertOdds(ctx context.Context, items []models.OddsFact) (int64, error)
	GetOdds(ctx context.Context, matchID, team string) (*models.OddsFact, error)
	ListOddsByMatchIDs(ctx context.Context, matchIDs []string) ([]models.OddsFact, error)
	ListOrphanOddsMatchIDs(ctx context.Context, limit int) ([]string, error)
	UpsertTeamRatings(ctx context.Context, items []models.TeamRating) (int64, error)
	ListTeamRatings(ctx context.Context, season int) ([]models.TeamRating, error)
	UpsertInjuries(ctx context.Context, items []models.InjurySnapshot) (int64, error)

	// Truth: assembled model inputs for one match.
	FeatureRowForMatch(ctx context.Context, matchID string) (*FeatureRow, error)

	// Provenance (append-only).
	InsertProvenance(ctx context.Context, item *models.IngestionProvenance) error
	LatestProvenanceChecksum(ctx context.Context, season int, matchID, sourceName string) (string, error)
	ListProvenance(ctx context.Context, params ListProvenanceParams) ([]models.IngestionProvenance, error)

	// Data quality reports (append-only).
	InsertQualityReport(ctx context.Context, item *models.DataQualityReport) error
	LatestQualityReportForSeason(ctx context.Context, season int) (*models.DataQualityReport, error)
	ListQualityReports(ctx context.Context, limit int) ([]models.DataQualityReport, error)

	// Calibration params (replace-on-refit).
	UpsertCalibrationParams(ctx context.Context, item *models.CalibrationParams) error
	GetCalibrationParams(ctx context.Context, season int) (*models.CalibrationParams, error)

	// Model registry.
	InsertRegistryEntry(ctx context.Context, item *models.ModelRegistryEntry) error
	GetRegistryEntry(ctx context.Context, modelKey, version string) (*models.ModelRegistryEntry, error)
	GetChampion(ctx context.Context, modelKey string) (*models.ModelRegistryEntry, error)
	ListRegistryEntries(ctx context.Context, modelKey string, limit int) ([]models.ModelRegistryEntry, error)
	DemoteChampionsTx(ctx context.Context, tx *gorm.DB, modelKey string) (int64, error)
	SetChampionTx(ctx context.Context, tx *gorm.DB, modelKey, version string) (int64, error)
	ListRecentModelScores(ctx context.Context, limit int) ([]float64, error)

	// Predictions.
	UpsertPrediction(ctx context.Context, item *models.ModelPrediction) error
	GetPrediction(ctx context.Context, season, round int, matchID string) (*models.ModelPrediction, error)
	ListPredictions(ctx context.Context, params ListPredictionsParams) ([]models.ModelPrediction, error)
	LabelPredictionOutcomes(ctx context.Context, season int, round *int) (int64, error)
	BackfillPredictionCLV(ctx context.Context, season int) (int64, error)
	ListResolvedUnpredicted(ctx context.Context, season int, rounds []int) ([]models.MatchFact, error)

	// Slips.
	UpsertSlip(ctx context.Context, item *models.Slip) error
	GetSlip(ctx context.Context, portfolioID string) (*models.Slip, error)
	ListSlips(ctx context.Context, params ListSlipsParams) ([]models.Slip, error)
	UpdateSlipStatus(ctx context.Context, portfolioID, from, to string) (int64, error)
	DeleteSlip(ctx context.Context, portfolioID string) error

	// Run manifests and scraper observability.
	InsertRunManifest(ctx context.Context, item *models.RunManifest) error
	ListRunManifests(ctx context.Context, limit int) ([]models.RunManifest, error)
	UpsertScraperRun(ctx context.Context, item *models.ScraperRun) error
	ListScraperRuns(ctx context.Context, runID string) ([]models.ScraperRun, error)
	LatestScraperStatus(ctx context.Context) ([]models.ScraperRun, error)

	// Schema introspection and clean-layer rebuild.
	RelationExists(ctx context.Context, schemaName, table string) (bool, error)
	CopySeasonFromLegacy(ctx context.Context, season int) (CopyCounts, error)
	GetLegacyMatch(ctx context.Context, matchID string) (*models.MatchFact, error)
}

// FeatureRow is the assembled truth-layer view feeding the heuristic and the
// estimator for one match. Missing joins fall back to neutral defaults.
type FeatureRow struct {
	MatchID   string
	Season    int
	RoundNum  int
	MatchDate time.Time
	Venue     string
	HomeTeam  string
	AwayTeam  string

	HomeRestDays float64
	AwayRestDays float64
	HomeForm     float64
	AwayForm     float64
	HomeInjuries float64
	AwayInjuries float64
	HomeRating   float64
	AwayRating   float64

	OddsTaken  float64
	ClosePrice float64
}

// RatingDiff is home minus away.
func (f FeatureRow) RatingDiff() float64 { return f.HomeRating - f.AwayRating }

// MarketImpliedProb derives the home implied probability from the close.
func (f FeatureRow) MarketImpliedProb() float64 {
	if f.ClosePrice > 0 {
		return 1.0 / f.ClosePrice
	}
	return 0.5
}

// CopyCounts summarizes a clean-layer rebuild for one season.
type CopyCounts struct {
	Matches int64
	Odds    int64
}

type ListMatchesParams struct {
	Seasons  []int
	Season   *int
	Round    *int
	Resolved *bool
	OrderBy  string
	Asc      *bool
	Limit    int
	Offset   int
}

type ListProvenanceParams struct {
	Season     *int
	MatchID    *string
	SourceName *string
	Limit      int
	Offset     int
}

type ListPredictionsParams struct {
	Season       *int
	Round        *int
	OutcomeKnown *bool
	Limit        int
	Offset       int
}

type ListSlipsParams struct {
	Season  *int
	Round   *int
	Status  *string
	MatchID *string
	Limit   int
	Offset  int
}
