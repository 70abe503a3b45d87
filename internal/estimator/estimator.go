// Package estimator calls the model-serving sidecar that hosts trained
// artifacts. The engine never loads artifacts in-process; the champion's
// artifact_ref travels with every request so a promotion takes effect
// without restarting the sidecar.
package estimator

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"nrlengine/internal/config"
	"nrlengine/internal/repository"
)

// APIError carries a non-2xx sidecar response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("estimator error (%d): %s", e.Status, e.Body)
}

type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

func NewClient(cfg config.EstimatorConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second)
	return &Client{http: rc, logger: logger}
}

type predictRequest struct {
	ArtifactRef string             `json:"artifact_ref"`
	Features    map[string]float64 `json:"features"`
}

type predictResponse struct {
	P float64 `json:"p"`
}

// PredictProb scores one feature row with the named artifact. The returned
// probability is clipped to [0.01, 0.99] like every other model output.
func (c *Client) PredictProb(ctx context.Context, artifactRef string, row repository.FeatureRow) (float64, error) {
	var out predictResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(predictRequest{ArtifactRef: artifactRef, Features: FeatureMap(row)}).
		SetResult(&out).
		Post("/predict")
	if err != nil {
		return 0, fmt.Errorf("estimator request: %w", err)
	}
	if resp.IsError() {
		return 0, &APIError{Status: resp.StatusCode(), Body: string(resp.Body())}
	}
	p := out.P
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, fmt.Errorf("estimator returned non-finite probability %v for %s", p, row.MatchID)
	}
	if p < 0.01 {
		p = 0.01
	}
	if p > 0.99 {
		p = 0.99
	}
	c.logger.Debug("estimator scored match",
		zap.String("match_id", row.MatchID),
		zap.String("artifact_ref", artifactRef),
		zap.Float64("p", p))
	return p, nil
}

// FeatureMap flattens a feature row into the named columns the artifacts
// were trained on. Columns the engine no longer assembles default to zero
// on the serving side.
func FeatureMap(row repository.FeatureRow) map[string]float64 {
	return map[string]float64{
		"home_rest_days":      row.HomeRestDays,
		"away_rest_days":      row.AwayRestDays,
		"home_form":           row.HomeForm,
		"away_form":           row.AwayForm,
		"home_injuries":       row.HomeInjuries,
		"away_injuries":       row.AwayInjuries,
		"rating_diff":         row.RatingDiff(),
		"market_implied_prob": row.MarketImpliedProb(),
		"odds_taken":          row.OddsTaken,
		"close_price":         row.ClosePrice,
	}
}
