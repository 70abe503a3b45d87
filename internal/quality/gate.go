package quality

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"nrlengine/internal/config"
	"nrlengine/internal/models"
	"nrlengine/internal/repository"
)

var ErrQualityGateFailed = errors.New("data quality gate failed")

type Store interface {
	ListMatches(ctx context.Context, params repository.ListMatchesParams) ([]models.MatchFact, error)
	ListOddsByMatchIDs(ctx context.Context, matchIDs []string) ([]models.OddsFact, error)
	ListOrphanOddsMatchIDs(ctx context.Context, limit int) ([]string, error)
	InsertQualityReport(ctx context.Context, item *models.DataQualityReport) error
	LatestQualityReportForSeason(ctx context.Context, season int) (*models.DataQualityReport, error)
}

// Report is persisted verbatim as the report row's JSON body. The row is
// the system of record for the verdict, not a side effect.
type Report struct {
	OK        bool           `json:"ok"`
	CheckedAt time.Time      `json:"checked_at"`
	Seasons   []int          `json:"seasons"`
	Checks    []string       `json:"checks"`
	Errors    []string       `json:"errors"`
	Metrics   map[string]any `json:"metrics"`
}

type Gate struct {
	Repo   Store
	Logger *zap.Logger
	Config config.QualityConfig
}

// Evaluate runs the rule set over the given seasons and persists the report
// row whether it passed or failed. The gate only informs; callers enforce
// fail-closed via LatestVerdictForSeason.
func (g *Gate) Evaluate(ctx context.Context, seasons []int) (*Report, error) {
	report := &Report{
		OK:        true,
		CheckedAt: time.Now().UTC(),
		Seasons:   seasons,
		Metrics:   map[string]any{},
	}
	expected := g.Config.ExpectedRoundSize
	if expected <= 0 {
		expected = 8
	}
	maxScore := g.Config.MaxScore
	if maxScore <= 0 {
		maxScore = 80
	}
	asc := true

	for _, season := range seasons {
		season := season
		report.Checks = append(report.Checks, fmt.Sprintf("season:%d:presence", season))
		matches, err := g.Repo.ListMatches(ctx, repository.ListMatchesParams{
			Season:  &season,
			OrderBy: "match_id",
			Asc:     &asc,
			Limit:   500,
		})
		if err != nil {
			return nil, err
		}
		report.Metrics[fmt.Sprintf("season_%d_matches", season)] = len(matches)
		if len(matches) == 0 {
			report.Errors = append(report.Errors, fmt.Sprintf("season %d: no matches found", season))
			continue
		}

		ids := make([]string, 0, len(matches))
		for _, m := range matches {
			ids = append(ids, m.MatchID)
		}
		odds, err := g.Repo.ListOddsByMatchIDs(ctx, ids)
		if err != nil {
			return nil, err
		}

		seasonChecks := []struct {
			name string
			run  func() []string
		}{
			{"duplicates", func() []string { return checkDuplicates(season, matches) }},
			{"home_away_distinct", func() []string { return checkHomeAwayDistinct(season, matches) }},
			{"round_integrity", func() []string { return checkRoundIntegrity(season, matches, expected) }},
			{"score_bounds", func() []string { return checkScores(season, matches, maxScore) }},
			{"team_canonical", func() []string { return checkCanonicalTeams(season, matches) }},
			{"venue_canonical", func() []string { return checkCanonicalVenues(season, matches) }},
			{"date_monotonicity", func() []string { return checkDateMonotonicity(season, matches) }},
			{"close_on_resolved", func() []string { return checkCloseOnResolved(season, matches, odds) }},
		}
		for _, c := range seasonChecks {
			report.Checks = append(report.Checks, fmt.Sprintf("season:%d:%s", season, c.name))
			report.Errors = append(report.Errors, c.run()...)
		}

		report.Checks = append(report.Checks, fmt.Sprintf("season:%d:checksum", season))
		sum := SeasonChecksum(matches)
		report.Metrics[fmt.Sprintf("season_%d_checksum", season)] = sum
		if pinned := g.Config.PinnedChecksums[strconv.Itoa(season)]; pinned != "" && pinned != sum {
			report.Errors = append(report.Errors, fmt.Sprintf("season %d: checksum mismatch expected=%s actual=%s", season, pinned, sum))
		}
	}

	report.Checks = append(report.Checks, "orphan_odds")
	orphans, err := g.Repo.ListOrphanOddsMatchIDs(ctx, 50)
	if err != nil {
		return nil, err
	}
	if len(orphans) > 0 {
		report.Errors = append(report.Errors, fmt.Sprintf("odds rows reference missing matches: %v", orphans))
	}

	report.OK = len(report.Errors) == 0
	if err := g.persist(ctx, report); err != nil {
		return report, err
	}
	if g.Logger != nil {
		g.Logger.Info("quality gate evaluated",
			zap.Ints("seasons", seasons),
			zap.Bool("ok", report.OK),
			zap.Int("errors", len(report.Errors)))
	}
	return report, nil
}

// LatestVerdictForSeason returns nil iff the most recent report covering the
// season passed. No report counts as failing: unvetted data is never acted on.
func (g *Gate) LatestVerdictForSeason(ctx context.Context, season int) error {
	row, err := g.Repo.LatestQualityReportForSeason(ctx, season)
	if err != nil {
		return err
	}
	if row == nil {
		return fmt.Errorf("%w: no report covers season %d", ErrQualityGateFailed, season)
	}
	if !row.OK {
		return fmt.Errorf("%w: latest report for season %d is failing", ErrQualityGateFailed, season)
	}
	return nil
}

func (g *Gate) persist(ctx context.Context, report *Report) error {
	body, err := json.Marshal(report)
	if err != nil {
		return err
	}
	seasons := make([]string, 0, len(report.Seasons))
	for _, s := range report.Seasons {
		seasons = append(seasons, strconv.Itoa(s))
	}
	return g.Repo.InsertQualityReport(ctx, &models.DataQualityReport{
		CheckedAt:  report.CheckedAt,
		SeasonsCSV: strings.Join(seasons, ","),
		OK:         report.OK,
		Report:     datatypes.JSON(body),
	})
}
