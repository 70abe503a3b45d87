package calibration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"nrlengine/internal/models"
	"nrlengine/internal/repository"
)

var ErrInsufficientData = errors.New("insufficient resolved predictions for calibration")

type Store interface {
	ListPredictions(ctx context.Context, params repository.ListPredictionsParams) ([]models.ModelPrediction, error)
	UpsertCalibrationParams(ctx context.Context, item *models.CalibrationParams) error
	GetCalibrationParams(ctx context.Context, season int) (*models.CalibrationParams, error)
}

// Gatekeeper blocks a refit against unvetted data; params fitted on a
// failing season would poison every later prediction.
type Gatekeeper interface {
	LatestVerdictForSeason(ctx context.Context, season int) error
}

type Service struct {
	Repo       Store
	Gate       Gatekeeper
	Logger     *zap.Logger
	MinSamples int
}

// Result distinguishes fitted output from identity passthrough so auditors
// can tell them apart on every stored prediction.
type Result struct {
	P          float64
	Calibrated bool
}

// Fit refits the season's Beta params from resolved predictions and
// replaces the stored row. Historical predictions keep the calibrated_p
// they were written with; a refit never rewrites past audit rows.
func (s *Service) Fit(ctx context.Context, season int) (*BetaParams, error) {
	if err := s.Gate.LatestVerdictForSeason(ctx, season); err != nil {
		return nil, fmt.Errorf("calibration: season %d blocked: %w", season, err)
	}

	minSamples := s.MinSamples
	if minSamples <= 0 {
		minSamples = 80
	}

	// Page through every resolved prediction; a fit must never silently
	// drop samples to a read limit.
	outcomeKnown := true
	const page = 500
	var preds []models.ModelPrediction
	for offset := 0; ; offset += page {
		batch, err := s.Repo.ListPredictions(ctx, repository.ListPredictionsParams{
			Season:       &season,
			OutcomeKnown: &outcomeKnown,
			Limit:        page,
			Offset:       offset,
		})
		if err != nil {
			return nil, err
		}
		preds = append(preds, batch...)
		if len(batch) < page {
			break
		}
	}

	probs := make([]float64, 0, len(preds))
	outcomes := make([]float64, 0, len(preds))
	for _, p := range preds {
		if p.OutcomeHomeWin == nil {
			continue
		}
		probs = append(probs, p.PBlend)
		if *p.OutcomeHomeWin {
			outcomes = append(outcomes, 1)
		} else {
			outcomes = append(outcomes, 0)
		}
	}
	if len(probs) < minSamples {
		return nil, fmt.Errorf("%w: season %d has %d, need %d", ErrInsufficientData, season, len(probs), minSamples)
	}

	params := FitBeta(probs, outcomes)
	params.FittedOn = season

	body, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.UpsertCalibrationParams(ctx, &models.CalibrationParams{
		Season:   season,
		Params:   datatypes.JSON(body),
		FittedAt: time.Now().UTC(),
	}); err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("beta calibration fitted",
			zap.Int("season", season),
			zap.Int("samples", len(probs)),
			zap.Float64("a", params.A),
			zap.Float64("b", params.B),
			zap.Float64("brier", params.BrierLoss))
	}
	return &params, nil
}

// Apply calibrates a raw probability with the season's current params.
// Absent params fall back to identity with Calibrated=false.
func (s *Service) Apply(ctx context.Context, season int, pRaw float64) (Result, error) {
	row, err := s.Repo.GetCalibrationParams(ctx, season)
	if err != nil {
		return Result{}, err
	}
	if row == nil {
		return Result{P: pRaw, Calibrated: false}, nil
	}
	var params BetaParams
	if err := json.Unmarshal(row.Params, &params); err != nil {
		return Result{}, err
	}
	if params.A == 0 || params.B == 0 {
		return Result{P: pRaw, Calibrated: false}, nil
	}
	return Result{P: BetaTransform(pRaw, params.A, params.B), Calibrated: true}, nil
}
