package estimator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"nrlengine/internal/config"
	"nrlengine/internal/repository"
)

func sampleRow() repository.FeatureRow {
	return repository.FeatureRow{
		MatchID:      "NRL_2025_R01_M01",
		HomeRestDays: 7,
		AwayRestDays: 5,
		HomeForm:     0.8,
		AwayForm:     0.4,
		HomeRating:   1600,
		AwayRating:   1500,
		OddsTaken:    1.90,
		ClosePrice:   1.85,
	}
}

func TestPredictProb(t *testing.T) {
	var gotReq predictRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]float64{"p": 0.62})
	}))
	defer srv.Close()

	c := NewClient(config.EstimatorConfig{BaseURL: srv.URL, Timeout: 2 * time.Second}, zap.NewNop())
	p, err := c.PredictProb(context.Background(), "s3://models/v1", sampleRow())
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if p != 0.62 {
		t.Fatalf("p=%v want 0.62", p)
	}
	if gotReq.ArtifactRef != "s3://models/v1" {
		t.Fatalf("artifact_ref=%q", gotReq.ArtifactRef)
	}
	if gotReq.Features["rating_diff"] != 100 {
		t.Fatalf("rating_diff=%v want 100", gotReq.Features["rating_diff"])
	}
}

func TestPredictProbClipsExtremes(t *testing.T) {
	next := 0.0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]float64{"p": next})
	}))
	defer srv.Close()

	c := NewClient(config.EstimatorConfig{BaseURL: srv.URL, Timeout: 2 * time.Second}, zap.NewNop())

	next = 0.0001
	p, err := c.PredictProb(context.Background(), "ref", sampleRow())
	if err != nil || p != 0.01 {
		t.Fatalf("p=%v err=%v want clip to 0.01", p, err)
	}
	next = 0.9999
	p, err = c.PredictProb(context.Background(), "ref", sampleRow())
	if err != nil || p != 0.99 {
		t.Fatalf("p=%v err=%v want clip to 0.99", p, err)
	}
}

func TestPredictProbServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "artifact missing", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(config.EstimatorConfig{BaseURL: srv.URL, Timeout: 2 * time.Second}, zap.NewNop())
	_, err := c.PredictProb(context.Background(), "ref", sampleRow())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err=%v want APIError", err)
	}
	if apiErr.Status != http.StatusInternalServerError {
		t.Fatalf("status=%d", apiErr.Status)
	}
}

func TestFeatureMapMarketImplied(t *testing.T) {
	row := sampleRow()
	m := FeatureMap(row)
	want := 1.0 / 1.85
	if got := m["market_implied_prob"]; got < want-1e-9 || got > want+1e-9 {
		t.Fatalf("market_implied_prob=%v want=%v", got, want)
	}

	row.ClosePrice = 0
	if got := FeatureMap(row)["market_implied_prob"]; got != 0.5 {
		t.Fatalf("missing close must imply 0.5, got %v", got)
	}
}
