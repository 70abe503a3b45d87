package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"nrlengine/internal/backtest"
	"nrlengine/internal/calibration"
	"nrlengine/internal/labeler"
	"nrlengine/internal/models"
	"nrlengine/internal/quality"
	"nrlengine/internal/registry"
	"nrlengine/internal/schema"
	"nrlengine/internal/trainer"
)

type stageLog struct {
	order []string
}

func (l *stageLog) note(stage string) { l.order = append(l.order, stage) }

type stubSmoker struct {
	log *stageLog
	err error
}

func (s *stubSmoker) Enforce(_ context.Context) (*ParityReport, *ParityReport, error) {
	s.log.note("parity")
	if s.err != nil {
		return nil, nil, s.err
	}
	return &ParityReport{OK: true}, &ParityReport{OK: true}, nil
}

type stubGateRunner struct {
	log     *stageLog
	report  *quality.Report
	seasons []int
}

func (s *stubGateRunner) Evaluate(_ context.Context, seasons []int) (*quality.Report, error) {
	s.log.note("gate")
	s.seasons = seasons
	return s.report, nil
}

type stubTrainRunner struct {
	log *stageLog
	err error
}

func (s *stubTrainRunner) TrainAndPromote(_ context.Context, seasons []int) (*trainer.RunResult, error) {
	s.log.note("train")
	if s.err != nil {
		return nil, s.err
	}
	return &trainer.RunResult{
		ModelKey: "nrl_home_win",
		Version:  "xgb_20260101_120000",
		Metrics:  registry.Metrics{CVBrierMean: 0.21},
		Promoted: true,
	}, nil
}

type stubFitter struct {
	log *stageLog
}

func (s *stubFitter) Fit(_ context.Context, _ int) (*calibration.BetaParams, error) {
	s.log.note("calibration")
	return &calibration.BetaParams{A: 1.1, B: 0.9, FittedOn: 120}, nil
}

type stubBackfiller struct {
	log *stageLog
}

func (s *stubBackfiller) BackfillPredictions(_ context.Context, season int, _ []int, _ bool) (*labeler.BackfillResult, error) {
	s.log.note("backfill")
	return &labeler.BackfillResult{Season: season, Backfilled: 180, Skipped: 36}, nil
}

func (s *stubBackfiller) LabelOutcomes(_ context.Context, season int, _ *int) (*labeler.LabelResult, error) {
	s.log.note("label")
	return &labeler.LabelResult{Season: season, Labeled: 180}, nil
}

type stubBacktester struct {
	log *stageLog
}

func (s *stubBacktester) Run(_ context.Context, params backtest.Params) (*backtest.Result, error) {
	s.log.note("backtest")
	return &backtest.Result{Season: params.Season, TotalBets: 42, Wins: 25, Losses: 17}, nil
}

type stubManifestStore struct {
	log  *stageLog
	item *models.RunManifest
	err  error
}

func (s *stubManifestStore) InsertRunManifest(_ context.Context, item *models.RunManifest) error {
	s.log.note("manifest")
	if s.err != nil {
		return s.err
	}
	s.item = item
	return nil
}

func passingReport(seasons []int) *quality.Report {
	return &quality.Report{OK: true, Seasons: seasons}
}

func newBaseline(log *stageLog) (*Baseline, *stubGateRunner, *stubManifestStore) {
	gate := &stubGateRunner{log: log, report: passingReport(nil)}
	manifest := &stubManifestStore{log: log}
	baseline := &Baseline{
		Parity:   &stubSmoker{log: log},
		Gate:     gate,
		Trainer:  &stubTrainRunner{log: log},
		Fitter:   &stubFitter{log: log},
		Labeler:  &stubBackfiller{log: log},
		Backtest: &stubBacktester{log: log},
		Repo:     manifest,
		Logger:   zap.NewNop(),
	}
	return baseline, gate, manifest
}

func TestRebuildRunsStagesInOrder(t *testing.T) {
	log := &stageLog{}
	baseline, gate, manifest := newBaseline(log)

	result, err := baseline.Rebuild(context.Background(), RebuildParams{
		Seasons:           []int{2023, 2022},
		CalibrationSeason: 2024,
		BacktestSeason:    2025,
	})
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	wantOrder := []string{"parity", "gate", "train", "calibration", "backfill", "label", "backtest", "manifest"}
	if !reflect.DeepEqual(log.order, wantOrder) {
		t.Fatalf("stage order=%v want %v", log.order, wantOrder)
	}

	if !reflect.DeepEqual(gate.seasons, []int{2022, 2023, 2024, 2025}) {
		t.Fatalf("gate seasons=%v", gate.seasons)
	}

	if result.RunID == "" {
		t.Fatalf("missing run id")
	}
	if result.Backfilled != 180 || result.Labeled != 180 {
		t.Fatalf("backfilled=%d labeled=%d", result.Backfilled, result.Labeled)
	}
	if result.BacktestSummary["total_bets"] != 42 {
		t.Fatalf("summary=%v", result.BacktestSummary)
	}
	if !result.Train.Promoted {
		t.Fatalf("train result lost")
	}

	if manifest.item == nil {
		t.Fatalf("no manifest written")
	}
	if manifest.item.RunID != result.RunID || manifest.item.RunType != rebuildRunType {
		t.Fatalf("manifest=%+v", manifest.item)
	}
	if manifest.item.SeasonsCSV != "2023,2022" {
		t.Fatalf("seasons csv=%q", manifest.item.SeasonsCSV)
	}
	cfg := schema.Active()
	if manifest.item.TruthSchema != cfg.TruthSchema || manifest.item.OpsSchema != cfg.OpsSchema {
		t.Fatalf("manifest schemas=%q/%q", manifest.item.TruthSchema, manifest.item.OpsSchema)
	}

	var payload map[string]any
	if err := json.Unmarshal(manifest.item.Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	for _, key := range []string{"quality", "train", "calibration", "backfilled", "labeled", "backtest"} {
		if _, ok := payload[key]; !ok {
			t.Fatalf("payload missing %q: %v", key, payload)
		}
	}
}

func TestRebuildStopsOnParityFailure(t *testing.T) {
	log := &stageLog{}
	baseline, _, _ := newBaseline(log)
	baseline.Parity = &stubSmoker{log: log, err: errors.New("missing ops relations")}

	if _, err := baseline.Rebuild(context.Background(), RebuildParams{
		Seasons:           []int{2024},
		CalibrationSeason: 2024,
		BacktestSeason:    2024,
	}); err == nil {
		t.Fatalf("want parity failure")
	}
	if !reflect.DeepEqual(log.order, []string{"parity"}) {
		t.Fatalf("stages after parity failure: %v", log.order)
	}
}

func TestRebuildStopsOnFailedGate(t *testing.T) {
	log := &stageLog{}
	baseline, gate, _ := newBaseline(log)
	gate.report = &quality.Report{OK: false, Errors: []string{"round 3 short"}}

	_, err := baseline.Rebuild(context.Background(), RebuildParams{
		Seasons:           []int{2024},
		CalibrationSeason: 2024,
		BacktestSeason:    2024,
	})
	if !errors.Is(err, quality.ErrQualityGateFailed) {
		t.Fatalf("err=%v want quality gate failure", err)
	}
	if !reflect.DeepEqual(log.order, []string{"parity", "gate"}) {
		t.Fatalf("stages after gate failure: %v", log.order)
	}
}

func TestRebuildStopsOnTrainingFailure(t *testing.T) {
	log := &stageLog{}
	baseline, _, _ := newBaseline(log)
	baseline.Trainer = &stubTrainRunner{log: log, err: errors.New("sidecar unreachable")}

	if _, err := baseline.Rebuild(context.Background(), RebuildParams{
		Seasons:           []int{2024},
		CalibrationSeason: 2024,
		BacktestSeason:    2024,
	}); err == nil {
		t.Fatalf("want training failure")
	}
	if !reflect.DeepEqual(log.order, []string{"parity", "gate", "train"}) {
		t.Fatalf("stages after training failure: %v", log.order)
	}
}

func TestRebuildManifestFailure(t *testing.T) {
	log := &stageLog{}
	baseline, _, _ := newBaseline(log)
	baseline.Repo = &stubManifestStore{log: log, err: errors.New("duplicate run_id")}

	if _, err := baseline.Rebuild(context.Background(), RebuildParams{
		Seasons:           []int{2024},
		CalibrationSeason: 2024,
		BacktestSeason:    2024,
	}); err == nil {
		t.Fatalf("want manifest failure")
	}
}

func TestRebuildValidatesParams(t *testing.T) {
	log := &stageLog{}
	baseline, _, _ := newBaseline(log)

	if _, err := baseline.Rebuild(context.Background(), RebuildParams{CalibrationSeason: 2024, BacktestSeason: 2024}); err == nil {
		t.Fatalf("want error for empty seasons")
	}
	if _, err := baseline.Rebuild(context.Background(), RebuildParams{Seasons: []int{2024}, BacktestSeason: 2024}); err == nil {
		t.Fatalf("want error for missing calibration season")
	}
	if len(log.order) != 0 {
		t.Fatalf("stages ran on invalid params: %v", log.order)
	}
}
