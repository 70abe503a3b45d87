package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"nrlengine/internal/backtest"
	"nrlengine/internal/calibration"
	"nrlengine/internal/labeler"
	"nrlengine/internal/models"
	"nrlengine/internal/quality"
	"nrlengine/internal/schema"
	"nrlengine/internal/trainer"
)

const rebuildRunType = "rebuild_clean_baseline"

// Stage interfaces keep the orchestration testable; production wiring
// passes the real services.
type ParitySmoker interface {
	Enforce(ctx context.Context) (*ParityReport, *ParityReport, error)
}

type GateRunner interface {
	Evaluate(ctx context.Context, seasons []int) (*quality.Report, error)
}

type TrainRunner interface {
	TrainAndPromote(ctx context.Context, seasons []int) (*trainer.RunResult, error)
}

type CalibrationFitter interface {
	Fit(ctx context.Context, season int) (*calibration.BetaParams, error)
}

type Backfiller interface {
	BackfillPredictions(ctx context.Context, season int, rounds []int, labelOutcomes bool) (*labeler.BackfillResult, error)
	LabelOutcomes(ctx context.Context, season int, round *int) (*labeler.LabelResult, error)
}

type Backtester interface {
	Run(ctx context.Context, params backtest.Params) (*backtest.Result, error)
}

type ManifestStore interface {
	InsertRunManifest(ctx context.Context, item *models.RunManifest) error
}

// Baseline chains every stage of a clean rebuild: parity smokes, a fresh
// quality verdict, training, calibration, historical backfill, labeling and
// the season backtest, finishing with an audit manifest row.
type Baseline struct {
	Parity   ParitySmoker
	Gate     GateRunner
	Trainer  TrainRunner
	Fitter   CalibrationFitter
	Labeler  Backfiller
	Backtest Backtester
	Repo     ManifestStore
	Logger   *zap.Logger
}

type RebuildParams struct {
	Seasons           []int
	CalibrationSeason int
	BacktestSeason    int
}

// RebuildResult is the JSON outcome of one rebuild run. The manifest row
// persists the same stages under the run id for later audit.
type RebuildResult struct {
	RunID             string                  `json:"run_id"`
	Seasons           []int                   `json:"seasons"`
	CalibrationSeason int                     `json:"calibration_season"`
	BacktestSeason    int                     `json:"backtest_season"`
	Train             *trainer.RunResult      `json:"train"`
	Calibration       *calibration.BetaParams `json:"calibration"`
	Backfilled        int                     `json:"backfilled"`
	Labeled           int64                   `json:"labeled"`
	BacktestSummary   map[string]any          `json:"backtest_summary"`
}

func (b *Baseline) Rebuild(ctx context.Context, params RebuildParams) (*RebuildResult, error) {
	if len(params.Seasons) == 0 {
		return nil, errors.New("rebuild: no seasons given")
	}
	if params.CalibrationSeason <= 0 || params.BacktestSeason <= 0 {
		return nil, errors.New("rebuild: calibration and backtest seasons required")
	}

	if _, _, err := b.Parity.Enforce(ctx); err != nil {
		return nil, err
	}

	// A fresh verdict over every season the rebuild touches; the trainer
	// re-checks its training seasons against it before fitting.
	gateSeasons := unionSeasons(params.Seasons, params.CalibrationSeason, params.BacktestSeason)
	report, err := b.Gate.Evaluate(ctx, gateSeasons)
	if err != nil {
		return nil, fmt.Errorf("rebuild: quality gate: %w", err)
	}
	if !report.OK {
		return nil, fmt.Errorf("rebuild: %w: %s", quality.ErrQualityGateFailed, strings.Join(report.Errors, "; "))
	}

	train, err := b.Trainer.TrainAndPromote(ctx, params.Seasons)
	if err != nil {
		return nil, fmt.Errorf("rebuild: train: %w", err)
	}
	fit, err := b.Fitter.Fit(ctx, params.CalibrationSeason)
	if err != nil {
		return nil, fmt.Errorf("rebuild: calibration: %w", err)
	}
	backfill, err := b.Labeler.BackfillPredictions(ctx, params.BacktestSeason, nil, false)
	if err != nil {
		return nil, fmt.Errorf("rebuild: backfill: %w", err)
	}
	label, err := b.Labeler.LabelOutcomes(ctx, params.BacktestSeason, nil)
	if err != nil {
		return nil, fmt.Errorf("rebuild: label: %w", err)
	}
	bt, err := b.Backtest.Run(ctx, backtest.Params{Season: params.BacktestSeason})
	if err != nil {
		return nil, fmt.Errorf("rebuild: backtest: %w", err)
	}

	result := &RebuildResult{
		RunID:             uuid.NewString(),
		Seasons:           params.Seasons,
		CalibrationSeason: params.CalibrationSeason,
		BacktestSeason:    params.BacktestSeason,
		Train:             train,
		Calibration:       fit,
		Backfilled:        backfill.Backfilled,
		Labeled:           label.Labeled,
		BacktestSummary:   bt.Summary(),
	}

	if err := b.insertManifest(ctx, result, report); err != nil {
		return nil, fmt.Errorf("rebuild: manifest: %w", err)
	}

	b.Logger.Info("baseline rebuilt",
		zap.String("run_id", result.RunID),
		zap.Ints("seasons", params.Seasons),
		zap.String("model_version", train.Version),
		zap.Bool("promoted", train.Promoted))
	return result, nil
}

func (b *Baseline) insertManifest(ctx context.Context, result *RebuildResult, report *quality.Report) error {
	payload, err := json.Marshal(map[string]any{
		"quality":     map[string]any{"ok": report.OK, "seasons": report.Seasons},
		"train":       result.Train,
		"calibration": result.Calibration,
		"backfilled":  result.Backfilled,
		"labeled":     result.Labeled,
		"backtest":    result.BacktestSummary,
	})
	if err != nil {
		return err
	}
	cfg := schema.Active()
	return b.Repo.InsertRunManifest(ctx, &models.RunManifest{
		RunID:       result.RunID,
		RunType:     rebuildRunType,
		TruthSchema: cfg.TruthSchema,
		OpsSchema:   cfg.OpsSchema,
		SeasonsCSV:  seasonsCSV(result.Seasons),
		Payload:     datatypes.JSON(payload),
	})
}

func seasonsCSV(seasons []int) string {
	parts := make([]string, 0, len(seasons))
	for _, s := range seasons {
		parts = append(parts, strconv.Itoa(s))
	}
	return strings.Join(parts, ",")
}

func unionSeasons(seasons []int, extra ...int) []int {
	seen := make(map[int]bool, len(seasons)+len(extra))
	out := make([]int, 0, len(seasons)+len(extra))
	for _, s := range append(append([]int(nil), seasons...), extra...) {
		if s > 0 && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Ints(out)
	return out
}
