package labeler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"nrlengine/internal/models"
	"nrlengine/internal/quality"
	"nrlengine/internal/repository"
)

type stubStore struct {
	matches   []models.MatchFact
	predicted map[string]bool
	rows      map[string]*repository.FeatureRow
	upserts   []*models.ModelPrediction
	labelErr  error
	labeled   int64
	clvCount  int64
}

func (s *stubStore) LabelPredictionOutcomes(_ context.Context, _ int, _ *int) (int64, error) {
	if s.labelErr != nil {
		return 0, s.labelErr
	}
	return s.labeled, nil
}

func (s *stubStore) BackfillPredictionCLV(_ context.Context, _ int) (int64, error) {
	return s.clvCount, nil
}

func (s *stubStore) ListMatches(_ context.Context, params repository.ListMatchesParams) ([]models.MatchFact, error) {
	var out []models.MatchFact
	for _, m := range s.matches {
		if params.Season != nil && m.Season != *params.Season {
			continue
		}
		if params.Resolved != nil && m.Resolved() != *params.Resolved {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *stubStore) ListResolvedUnpredicted(_ context.Context, season int, rounds []int) ([]models.MatchFact, error) {
	inRounds := func(r int) bool {
		if len(rounds) == 0 {
			return true
		}
		for _, v := range rounds {
			if v == r {
				return true
			}
		}
		return false
	}
	var out []models.MatchFact
	for _, m := range s.matches {
		if m.Season == season && m.Resolved() && !s.predicted[m.MatchID] && inRounds(m.RoundNum) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *stubStore) FeatureRowForMatch(_ context.Context, matchID string) (*repository.FeatureRow, error) {
	row, ok := s.rows[matchID]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (s *stubStore) UpsertPrediction(_ context.Context, pred *models.ModelPrediction) error {
	cp := *pred
	s.upserts = append(s.upserts, &cp)
	s.predicted[pred.MatchID] = true
	return nil
}

type stubBuilder struct {
	err error
}

func (b stubBuilder) BuildPrediction(_ context.Context, season, round int, row repository.FeatureRow) (*models.ModelPrediction, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &models.ModelPrediction{
		Season:   season,
		RoundNum: round,
		MatchID:  row.MatchID,
		PBlend:   0.55,
		MLStatus: models.MLStatusHeuristic,
	}, nil
}

func intPtr(v int) *int { return &v }

func resolvedMatch(id string, round, homeScore, awayScore int) models.MatchFact {
	return models.MatchFact{
		MatchID:   id,
		Season:    2024,
		RoundNum:  round,
		MatchDate: time.Date(2024, 3, 7+round, 0, 0, 0, 0, time.UTC),
		HomeTeam:  "Penrith Panthers",
		AwayTeam:  "Brisbane Broncos",
		HomeScore: &homeScore,
		AwayScore: &awayScore,
	}
}

type stubGate struct{ err error }

func (g stubGate) LatestVerdictForSeason(_ context.Context, _ int) error { return g.err }

func newService(s *stubStore) *Service {
	return &Service{Repo: s, Builder: stubBuilder{}, Gate: stubGate{}, Logger: zap.NewNop()}
}

func TestLabelOutcomes(t *testing.T) {
	store := &stubStore{labeled: 7, predicted: map[string]bool{}}
	svc := newService(store)

	res, err := svc.LabelOutcomes(context.Background(), 2024, intPtr(3))
	if err != nil {
		t.Fatalf("label: %v", err)
	}
	if res.Labeled != 7 || res.Season != 2024 || res.Round == nil || *res.Round != 3 {
		t.Fatalf("result=%+v", res)
	}
}

func TestLabelOutcomesPropagatesError(t *testing.T) {
	store := &stubStore{labelErr: errors.New("db down"), predicted: map[string]bool{}}
	if _, err := newService(store).LabelOutcomes(context.Background(), 2024, nil); err == nil {
		t.Fatalf("want error")
	}
}

func TestBackfillCLV(t *testing.T) {
	store := &stubStore{clvCount: 12, predicted: map[string]bool{}}
	res, err := newService(store).BackfillCLV(context.Background(), 2024)
	if err != nil {
		t.Fatalf("clv: %v", err)
	}
	if res.Updated != 12 {
		t.Fatalf("updated=%d want 12", res.Updated)
	}
}

func TestBackfillPredictions(t *testing.T) {
	store := &stubStore{
		matches: []models.MatchFact{
			resolvedMatch("M1", 1, 20, 12),
			resolvedMatch("M2", 1, 10, 30),
			resolvedMatch("M3", 2, 22, 20),
		},
		predicted: map[string]bool{"M3": true},
		rows: map[string]*repository.FeatureRow{
			"M1": {MatchID: "M1", OddsTaken: 1.90, HomeTeam: "Penrith Panthers", AwayTeam: "Brisbane Broncos"},
			"M2": {MatchID: "M2", OddsTaken: 2.10, HomeTeam: "Penrith Panthers", AwayTeam: "Brisbane Broncos"},
		},
	}
	svc := newService(store)

	res, err := svc.BackfillPredictions(context.Background(), 2024, nil, true)
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if res.Backfilled != 2 {
		t.Fatalf("backfilled=%d want 2", res.Backfilled)
	}
	if res.Skipped != 1 {
		t.Fatalf("skipped=%d want 1 for the already-predicted match", res.Skipped)
	}

	byID := map[string]*models.ModelPrediction{}
	for _, p := range store.upserts {
		byID[p.MatchID] = p
	}
	m1 := byID["M1"]
	if m1 == nil || !m1.OutcomeKnown || m1.OutcomeHomeWin == nil || !*m1.OutcomeHomeWin {
		t.Fatalf("M1 outcome=%+v want labeled home win", m1)
	}
	m2 := byID["M2"]
	if m2 == nil || m2.OutcomeHomeWin == nil || *m2.OutcomeHomeWin {
		t.Fatalf("M2 outcome=%+v want labeled home loss", m2)
	}
}

func TestBackfillPredictionsIdempotent(t *testing.T) {
	store := &stubStore{
		matches:   []models.MatchFact{resolvedMatch("M1", 1, 20, 12)},
		predicted: map[string]bool{},
		rows: map[string]*repository.FeatureRow{
			"M1": {MatchID: "M1", OddsTaken: 1.90},
		},
	}
	svc := newService(store)
	ctx := context.Background()

	first, err := svc.BackfillPredictions(ctx, 2024, nil, true)
	if err != nil || first.Backfilled != 1 {
		t.Fatalf("first=%+v err=%v", first, err)
	}
	second, err := svc.BackfillPredictions(ctx, 2024, nil, true)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second.Backfilled != 0 || second.Skipped != 1 {
		t.Fatalf("second=%+v want all skipped", second)
	}
	if len(store.upserts) != 1 {
		t.Fatalf("upserts=%d want 1", len(store.upserts))
	}
}

func TestBackfillPredictionsRoundFilter(t *testing.T) {
	store := &stubStore{
		matches: []models.MatchFact{
			resolvedMatch("M1", 1, 20, 12),
			resolvedMatch("M2", 2, 10, 30),
		},
		predicted: map[string]bool{},
		rows: map[string]*repository.FeatureRow{
			"M1": {MatchID: "M1", OddsTaken: 1.90},
			"M2": {MatchID: "M2", OddsTaken: 1.90},
		},
	}
	res, err := newService(store).BackfillPredictions(context.Background(), 2024, []int{2}, false)
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if res.Backfilled != 1 || store.upserts[0].MatchID != "M2" {
		t.Fatalf("result=%+v upserts=%v want only round 2", res, store.upserts)
	}
	if store.upserts[0].OutcomeKnown {
		t.Fatalf("labeling disabled must leave outcome unknown")
	}
}

func TestBackfillPredictionsIsolatesFailures(t *testing.T) {
	store := &stubStore{
		matches: []models.MatchFact{
			resolvedMatch("M1", 1, 20, 12),
			resolvedMatch("M2", 1, 10, 30),
		},
		predicted: map[string]bool{},
		rows: map[string]*repository.FeatureRow{
			"M1": {MatchID: "M1", OddsTaken: 1.90},
			"M2": {MatchID: "M2", OddsTaken: 0.5}, // invalid price
		},
	}
	svc := &Service{Repo: store, Builder: failOnBadOdds{}, Gate: stubGate{}, Logger: zap.NewNop()}

	res, err := svc.BackfillPredictions(context.Background(), 2024, nil, true)
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if res.Backfilled != 1 {
		t.Fatalf("backfilled=%d want 1", res.Backfilled)
	}
	if _, ok := res.Failed["M2"]; !ok {
		t.Fatalf("failed=%v want M2", res.Failed)
	}
}

type failOnBadOdds struct{}

func (failOnBadOdds) BuildPrediction(_ context.Context, season, round int, row repository.FeatureRow) (*models.ModelPrediction, error) {
	if row.OddsTaken <= 1 {
		return nil, errors.New("invalid price")
	}
	return &models.ModelPrediction{Season: season, RoundNum: round, MatchID: row.MatchID}, nil
}

func TestBackfillPredictionsBlockedByGate(t *testing.T) {
	store := &stubStore{
		matches:   []models.MatchFact{resolvedMatch("M1", 1, 24, 12)},
		predicted: map[string]bool{},
		rows: map[string]*repository.FeatureRow{
			"M1": {MatchID: "M1", Season: 2024, RoundNum: 1, OddsTaken: 1.90},
		},
	}
	svc := newService(store)
	svc.Gate = stubGate{err: fmt.Errorf("%w: season 2024", quality.ErrQualityGateFailed)}

	_, err := svc.BackfillPredictions(context.Background(), 2024, nil, true)
	if !errors.Is(err, quality.ErrQualityGateFailed) {
		t.Fatalf("err=%v want gate failure", err)
	}
	if len(store.upserts) != 0 {
		t.Fatalf("upserts=%d want=0 on blocked season", len(store.upserts))
	}
}
