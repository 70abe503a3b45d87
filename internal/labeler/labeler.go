// Package labeler closes the loop on past predictions: it stamps outcomes
// once scores resolve, reconstructs missing historical rows, and refreshes
// closing line values.
package labeler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"nrlengine/internal/models"
	"nrlengine/internal/repository"
)

// Store is the slice of the repository the labeler needs.
type Store interface {
	LabelPredictionOutcomes(ctx context.Context, season int, round *int) (int64, error)
	BackfillPredictionCLV(ctx context.Context, season int) (int64, error)
	ListMatches(ctx context.Context, params repository.ListMatchesParams) ([]models.MatchFact, error)
	ListResolvedUnpredicted(ctx context.Context, season int, rounds []int) ([]models.MatchFact, error)
	FeatureRowForMatch(ctx context.Context, matchID string) (*repository.FeatureRow, error)
	UpsertPrediction(ctx context.Context, pred *models.ModelPrediction) error
}

// PredictionBuilder scores a feature row without persisting it. The deploy
// engine provides the production implementation.
type PredictionBuilder interface {
	BuildPrediction(ctx context.Context, season, round int, row repository.FeatureRow) (*models.ModelPrediction, error)
}

// Gatekeeper blocks reconstruction against unvetted data, same as the
// deploy path.
type Gatekeeper interface {
	LatestVerdictForSeason(ctx context.Context, season int) error
}

type Service struct {
	Repo    Store
	Builder PredictionBuilder
	Gate    Gatekeeper
	Logger  *zap.Logger
}

// LabelResult reports one labeling sweep.
type LabelResult struct {
	Season  int   `json:"season"`
	Round   *int  `json:"round,omitempty"`
	Labeled int64 `json:"labeled"`
}

// LabelOutcomes stamps outcome_known and outcome_home_win on every
// prediction whose match has resolved. The update is set-based and
// idempotent; re-running after no new results labels zero rows.
func (s *Service) LabelOutcomes(ctx context.Context, season int, round *int) (*LabelResult, error) {
	n, err := s.Repo.LabelPredictionOutcomes(ctx, season, round)
	if err != nil {
		return nil, err
	}
	fields := []zap.Field{zap.Int("season", season), zap.Int64("labeled", n)}
	if round != nil {
		fields = append(fields, zap.Int("round", *round))
	}
	s.Logger.Info("outcomes labeled", fields...)
	return &LabelResult{Season: season, Round: round, Labeled: n}, nil
}

// CLVResult reports one closing-line-value refresh.
type CLVResult struct {
	Season  int   `json:"season"`
	Updated int64 `json:"updated"`
}

// BackfillCLV recomputes clv_diff for predictions whose close price arrived
// after the prediction was written.
func (s *Service) BackfillCLV(ctx context.Context, season int) (*CLVResult, error) {
	n, err := s.Repo.BackfillPredictionCLV(ctx, season)
	if err != nil {
		return nil, err
	}
	s.Logger.Info("clv backfilled", zap.Int("season", season), zap.Int64("updated", n))
	return &CLVResult{Season: season, Updated: n}, nil
}

// BackfillResult reports one historical reconstruction run.
type BackfillResult struct {
	Season     int               `json:"season"`
	Backfilled int               `json:"backfilled"`
	Skipped    int               `json:"skipped"`
	Failed     map[string]string `json:"failed,omitempty"`
}

// BackfillPredictions reconstructs prediction rows for resolved matches
// that have none. Matches already predicted are left untouched, so the run
// is idempotent. Outcomes are stamped inline when labelOutcomes is set.
func (s *Service) BackfillPredictions(ctx context.Context, season int, rounds []int, labelOutcomes bool) (*BackfillResult, error) {
	if err := s.Gate.LatestVerdictForSeason(ctx, season); err != nil {
		return nil, fmt.Errorf("backfill: season %d blocked: %w", season, err)
	}

	resolved := true
	all, err := s.Repo.ListMatches(ctx, repository.ListMatchesParams{
		Season:   &season,
		Resolved: &resolved,
		OrderBy:  "round_num",
		Limit:    500,
	})
	if err != nil {
		return nil, err
	}

	pending, err := s.Repo.ListResolvedUnpredicted(ctx, season, rounds)
	if err != nil {
		return nil, err
	}

	result := &BackfillResult{Season: season, Skipped: len(all) - len(pending)}
	if result.Skipped < 0 {
		result.Skipped = 0
	}
	for _, m := range pending {
		row, err := s.Repo.FeatureRowForMatch(ctx, m.MatchID)
		if err != nil {
			result.fail(m.MatchID, err)
			continue
		}
		if row == nil {
			continue
		}
		pred, err := s.Builder.BuildPrediction(ctx, season, m.RoundNum, *row)
		if err != nil {
			result.fail(m.MatchID, err)
			continue
		}
		if labelOutcomes && m.Resolved() {
			homeWin := m.HomeWin()
			pred.OutcomeKnown = true
			pred.OutcomeHomeWin = &homeWin
		}
		if err := s.Repo.UpsertPrediction(ctx, pred); err != nil {
			result.fail(m.MatchID, err)
			continue
		}
		result.Backfilled++
	}

	s.Logger.Info("predictions backfilled",
		zap.Int("season", season),
		zap.Int("backfilled", result.Backfilled),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", len(result.Failed)))
	return result, nil
}

func (r *BackfillResult) fail(matchID string, err error) {
	if r.Failed == nil {
		r.Failed = map[string]string{}
	}
	r.Failed[matchID] = err.Error()
}
