package trainer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"nrlengine/internal/config"
	"nrlengine/internal/models"
	"nrlengine/internal/quality"
	"nrlengine/internal/registry"
)

func newTestClient(url string) *Client {
	return NewClient(config.TrainerConfig{BaseURL: url}, zap.NewNop())
}

func TestClientTrain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/train" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["model_key"] != "nrl_home_win" {
			t.Errorf("model_key=%v", req["model_key"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"version":      "xgb_20260823_101500",
			"artifact_ref": "models/nrl_h2h_xgb_20260823_101500.joblib",
			"metrics": map[string]any{
				"cv_brier_mean":   0.21,
				"cv_logloss_mean": 0.60,
				"train_rows":      480,
				"score_hist":      []float64{0.2, 0.3, 0.3, 0.2},
			},
		})
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).Train(context.Background(), "nrl_home_win", []int{2022, 2023})
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if res.Version != "xgb_20260823_101500" {
		t.Fatalf("version=%q", res.Version)
	}
	if res.Metrics.CVBrierMean != 0.21 || res.Metrics.TrainRows != 480 {
		t.Fatalf("metrics=%+v", res.Metrics)
	}
	if len(res.Metrics.ScoreHist) != 4 {
		t.Fatalf("score_hist=%v", res.Metrics.ScoreHist)
	}
}

func TestClientTrainIncompleteResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"version": "xgb_x"})
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).Train(context.Background(), "k", []int{2024}); err == nil {
		t.Fatalf("want error for missing artifact_ref")
	}
}

func TestClientTrainServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not enough rows", http.StatusConflict)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Train(context.Background(), "k", []int{2024})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusConflict {
		t.Fatalf("err=%v want APIError 409", err)
	}
}

type stubGate struct {
	blocked map[int]error
}

func (g stubGate) LatestVerdictForSeason(_ context.Context, season int) error {
	return g.blocked[season]
}

type stubTrainer struct {
	res *TrainResult
	err error
}

func (t stubTrainer) Train(_ context.Context, _ string, _ []int) (*TrainResult, error) {
	return t.res, t.err
}

type stubRegistrar struct {
	registered  []string
	registerErr error
	promote     bool
	promoteErr  error
	promotedFor string
}

func (r *stubRegistrar) Register(_ context.Context, _, version, _ string, _ registry.Metrics) (*models.ModelRegistryEntry, error) {
	if r.registerErr != nil {
		return nil, r.registerErr
	}
	r.registered = append(r.registered, version)
	return &models.ModelRegistryEntry{Version: version}, nil
}

func (r *stubRegistrar) MaybePromote(_ context.Context, _, version string, _ []float64) (bool, error) {
	if r.promoteErr != nil {
		return false, r.promoteErr
	}
	r.promotedFor = version
	return r.promote, nil
}

type stubScores struct {
	scores []float64
}

func (s stubScores) ListRecentModelScores(_ context.Context, _ int) ([]float64, error) {
	return s.scores, nil
}

func fitResult() *TrainResult {
	return &TrainResult{
		Version:     "xgb_20260823_110000",
		ArtifactRef: "models/a.joblib",
		Metrics:     registry.Metrics{CVBrierMean: 0.20, CVLogLossMean: 0.58, TrainRows: 500},
	}
}

func TestTrainAndPromote(t *testing.T) {
	reg := &stubRegistrar{promote: true}
	svc := &Service{
		Repo:     stubScores{scores: []float64{0.4, 0.6, 0.7}},
		Gate:     stubGate{},
		Trainer:  stubTrainer{res: fitResult()},
		Registry: reg,
		Logger:   zap.NewNop(),
		Pipeline: config.PipelineConfig{ModelKey: "nrl_home_win"},
	}

	out, err := svc.TrainAndPromote(context.Background(), []int{2022, 2023, 2024})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !out.Promoted || out.Version != "xgb_20260823_110000" {
		t.Fatalf("out=%+v", out)
	}
	if len(reg.registered) != 1 || reg.promotedFor != out.Version {
		t.Fatalf("registrar calls=%+v", reg)
	}
}

func TestTrainAndPromoteBlockedSeason(t *testing.T) {
	svc := &Service{
		Repo:     stubScores{},
		Gate:     stubGate{blocked: map[int]error{2023: fmt.Errorf("stale: %w", quality.ErrQualityGateFailed)}},
		Trainer:  stubTrainer{res: fitResult()},
		Registry: &stubRegistrar{},
		Logger:   zap.NewNop(),
	}

	_, err := svc.TrainAndPromote(context.Background(), []int{2022, 2023})
	if !errors.Is(err, quality.ErrQualityGateFailed) {
		t.Fatalf("err=%v want gate failure", err)
	}
}

func TestTrainAndPromoteRegisterFailureStops(t *testing.T) {
	reg := &stubRegistrar{registerErr: registry.ErrDuplicateVersion}
	svc := &Service{
		Repo:     stubScores{},
		Gate:     stubGate{},
		Trainer:  stubTrainer{res: fitResult()},
		Registry: reg,
		Logger:   zap.NewNop(),
	}

	_, err := svc.TrainAndPromote(context.Background(), []int{2024})
	if !errors.Is(err, registry.ErrDuplicateVersion) {
		t.Fatalf("err=%v want duplicate version", err)
	}
	if reg.promotedFor != "" {
		t.Fatalf("promotion must not run after failed registration")
	}
}

func TestTrainAndPromoteNoSeasons(t *testing.T) {
	svc := &Service{Repo: stubScores{}, Gate: stubGate{}, Trainer: stubTrainer{}, Registry: &stubRegistrar{}, Logger: zap.NewNop()}
	if _, err := svc.TrainAndPromote(context.Background(), nil); err == nil {
		t.Fatalf("want error for empty seasons")
	}
}
