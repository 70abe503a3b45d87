// Package trainer drives the training sidecar and the registration and
// promotion steps that follow a successful fit. The engine never trains
// in-process; it asks the sidecar for a new artifact and decides what to
// do with the result.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"nrlengine/internal/config"
	"nrlengine/internal/models"
	"nrlengine/internal/registry"
)

// APIError carries a non-2xx sidecar response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("trainer error (%d): %s", e.Status, e.Body)
}

// TrainResult is what the sidecar hands back for a finished fit.
type TrainResult struct {
	Version     string           `json:"version"`
	ArtifactRef string           `json:"artifact_ref"`
	Metrics     registry.Metrics `json:"metrics"`
}

// Trainer fits one model over the given seasons.
type Trainer interface {
	Train(ctx context.Context, modelKey string, seasons []int) (*TrainResult, error)
}

type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewClient builds the sidecar client. Training runs are minutes long, so
// there is no transport retry; a failed run is re-issued by the caller.
func NewClient(cfg config.TrainerConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	rc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout)
	return &Client{http: rc, logger: logger}
}

type trainRequest struct {
	ModelKey string `json:"model_key"`
	Seasons  []int  `json:"seasons"`
}

func (c *Client) Train(ctx context.Context, modelKey string, seasons []int) (*TrainResult, error) {
	var out TrainResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(trainRequest{ModelKey: modelKey, Seasons: seasons}).
		SetResult(&out).
		Post("/train")
	if err != nil {
		return nil, fmt.Errorf("trainer request: %w", err)
	}
	if resp.IsError() {
		return nil, &APIError{Status: resp.StatusCode(), Body: string(resp.Body())}
	}
	if out.Version == "" || out.ArtifactRef == "" {
		return nil, fmt.Errorf("trainer returned incomplete result: version=%q artifact_ref=%q", out.Version, out.ArtifactRef)
	}
	c.logger.Info("sidecar training finished",
		zap.String("model_key", modelKey),
		zap.String("version", out.Version),
		zap.Float64("cv_brier_mean", out.Metrics.CVBrierMean),
		zap.Int("train_rows", out.Metrics.TrainRows))
	return &out, nil
}

type Gatekeeper interface {
	LatestVerdictForSeason(ctx context.Context, season int) error
}

// Registrar is the registry slice the orchestration needs.
type Registrar interface {
	Register(ctx context.Context, modelKey, version, artifactRef string, m registry.Metrics) (*models.ModelRegistryEntry, error)
	MaybePromote(ctx context.Context, modelKey, version string, liveScores []float64) (bool, error)
}

type Store interface {
	ListRecentModelScores(ctx context.Context, limit int) ([]float64, error)
}

type Service struct {
	Repo     Store
	Gate     Gatekeeper
	Trainer  Trainer
	Registry Registrar
	Logger   *zap.Logger
	Pipeline config.PipelineConfig
}

// RunResult is the JSON outcome of one train-and-promote run.
type RunResult struct {
	ModelKey    string           `json:"model_key"`
	Version     string           `json:"version"`
	ArtifactRef string           `json:"artifact_ref"`
	Metrics     registry.Metrics `json:"metrics"`
	Promoted    bool             `json:"promoted_to_champion"`
}

// TrainAndPromote runs the full cycle: every training season must hold a
// passing quality verdict, then the fit is registered as a candidate and
// promoted only if it beats the champion and the live score distribution
// has drifted.
func (s *Service) TrainAndPromote(ctx context.Context, seasons []int) (*RunResult, error) {
	if len(seasons) == 0 {
		return nil, errors.New("trainer: no seasons given")
	}
	for _, season := range seasons {
		if err := s.Gate.LatestVerdictForSeason(ctx, season); err != nil {
			return nil, fmt.Errorf("trainer: season %d blocked: %w", season, err)
		}
	}

	modelKey := s.Pipeline.ModelKey
	if modelKey == "" {
		modelKey = "nrl_home_win"
	}

	fit, err := s.Trainer.Train(ctx, modelKey, seasons)
	if err != nil {
		return nil, err
	}
	if _, err := s.Registry.Register(ctx, modelKey, fit.Version, fit.ArtifactRef, fit.Metrics); err != nil {
		return nil, err
	}

	liveScores, err := s.Repo.ListRecentModelScores(ctx, 200)
	if err != nil {
		return nil, err
	}
	promoted, err := s.Registry.MaybePromote(ctx, modelKey, fit.Version, liveScores)
	if err != nil {
		return nil, err
	}

	s.Logger.Info("training run complete",
		zap.String("model_key", modelKey),
		zap.String("version", fit.Version),
		zap.Ints("seasons", seasons),
		zap.Bool("promoted", promoted))

	return &RunResult{
		ModelKey:    modelKey,
		Version:     fit.Version,
		ArtifactRef: fit.ArtifactRef,
		Metrics:     fit.Metrics,
		Promoted:    promoted,
	}, nil
}
