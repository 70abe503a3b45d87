package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"nrlengine/internal/models"
	"nrlengine/internal/repository"
)

func init() { gin.SetMode(gin.TestMode) }

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    map[string]any  `json:"meta"`
}

func doRequest(t *testing.T, engine *gin.Engine, path string, header map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func newEngine(register ...interface{ Register(*gin.Engine) }) *gin.Engine {
	engine := gin.New()
	for _, h := range register {
		h.Register(engine)
	}
	return engine
}

func TestListSlipsFilters(t *testing.T) {
	repo := newStubRepo()
	repo.slips["a"] = models.Slip{PortfolioID: "a", Season: 2026, RoundNum: 1, MatchID: "M1", Status: models.SlipStatusPending, Odds: decimal.NewFromFloat(1.9)}
	repo.slips["b"] = models.Slip{PortfolioID: "b", Season: 2026, RoundNum: 1, MatchID: "M2", Status: models.SlipStatusSettled, Odds: decimal.NewFromFloat(2.1)}
	repo.slips["c"] = models.Slip{PortfolioID: "c", Season: 2025, RoundNum: 5, MatchID: "M3", Status: models.SlipStatusPending, Odds: decimal.NewFromFloat(1.5)}
	engine := newEngine(&SlipHandler{Repo: repo})

	w, env := doRequest(t, engine, "/api/v1/slips?season=2026&status=pending", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var items []models.Slip
	if err := json.Unmarshal(env.Data, &items); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(items) != 1 || items[0].PortfolioID != "a" {
		t.Fatalf("items = %+v", items)
	}
	if env.Meta["limit"] != float64(50) {
		t.Fatalf("meta = %+v", env.Meta)
	}
}

func TestGetSlip(t *testing.T) {
	repo := newStubRepo()
	repo.slips["abc"] = models.Slip{PortfolioID: "abc", Season: 2026, Status: models.SlipStatusPending}
	engine := newEngine(&SlipHandler{Repo: repo})

	w, env := doRequest(t, engine, "/api/v1/slips/abc", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var slip models.Slip
	if err := json.Unmarshal(env.Data, &slip); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if slip.PortfolioID != "abc" {
		t.Fatalf("slip = %+v", slip)
	}

	w, _ = doRequest(t, engine, "/api/v1/slips/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing slip status = %d", w.Code)
	}
}

func TestListMatchesResolvedFilter(t *testing.T) {
	repo := newStubRepo()
	hs, as := 20, 12
	repo.matches["M1"] = models.MatchFact{MatchID: "M1", Season: 2026, RoundNum: 1, HomeScore: &hs, AwayScore: &as}
	repo.matches["M2"] = models.MatchFact{MatchID: "M2", Season: 2026, RoundNum: 1}
	engine := newEngine(&MatchHandler{Repo: repo})

	w, env := doRequest(t, engine, "/api/v1/matches?season=2026&resolved=false", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var items []models.MatchFact
	if err := json.Unmarshal(env.Data, &items); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(items) != 1 || items[0].MatchID != "M2" {
		t.Fatalf("items = %+v", items)
	}
}

func TestGetMatchWithOdds(t *testing.T) {
	repo := newStubRepo()
	repo.matches["NRL_2026_R01_M01"] = models.MatchFact{MatchID: "NRL_2026_R01_M01", Season: 2026, RoundNum: 1, HomeTeam: "Penrith Panthers", AwayTeam: "Brisbane Broncos"}
	repo.odds = []models.OddsFact{
		{MatchID: "NRL_2026_R01_M01", Team: "Penrith Panthers", OpeningPrice: decimal.NewFromFloat(1.70), CapturedAt: time.Now()},
		{MatchID: "NRL_2026_R01_M01", Team: "Brisbane Broncos", OpeningPrice: decimal.NewFromFloat(2.25), CapturedAt: time.Now()},
	}
	engine := newEngine(&MatchHandler{Repo: repo})

	w, env := doRequest(t, engine, "/api/v1/matches/NRL_2026_R01_M01", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var data struct {
		Match models.MatchFact  `json:"match"`
		Odds  []models.OddsFact `json:"odds"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Match.MatchID != "NRL_2026_R01_M01" || len(data.Odds) != 2 {
		t.Fatalf("data = %+v", data)
	}

	w, _ = doRequest(t, engine, "/api/v1/matches/NRL_2099_R01_M01", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing match status = %d", w.Code)
	}
}

func TestGetMatchFeatures(t *testing.T) {
	repo := newStubRepo()
	repo.features["M1"] = &repository.FeatureRow{MatchID: "M1", Season: 2026, HomeRating: 1650, AwayRating: 1500}
	engine := newEngine(&MatchHandler{Repo: repo})

	w, env := doRequest(t, engine, "/api/v1/matches/M1/features", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var row map[string]any
	if err := json.Unmarshal(env.Data, &row); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if row["MatchID"] != "M1" {
		t.Fatalf("row = %+v", row)
	}

	w, _ = doRequest(t, engine, "/api/v1/matches/M2/features", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing features status = %d", w.Code)
	}
}

func TestListPredictionsOutcomeFilter(t *testing.T) {
	repo := newStubRepo()
	repo.predictions = []models.ModelPrediction{
		{Season: 2026, RoundNum: 1, MatchID: "M1", OutcomeKnown: true},
		{Season: 2026, RoundNum: 1, MatchID: "M2", OutcomeKnown: false},
	}
	engine := newEngine(&PredictionHandler{Repo: repo})

	w, env := doRequest(t, engine, "/api/v1/predictions?season=2026&outcome_known=true", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var items []models.ModelPrediction
	if err := json.Unmarshal(env.Data, &items); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(items) != 1 || items[0].MatchID != "M1" {
		t.Fatalf("items = %+v", items)
	}
}

func TestGetPrediction(t *testing.T) {
	repo := newStubRepo()
	repo.predictions = []models.ModelPrediction{{Season: 2026, RoundNum: 3, MatchID: "M7", PBlend: 0.58}}
	engine := newEngine(&PredictionHandler{Repo: repo})

	w, env := doRequest(t, engine, "/api/v1/predictions/2026/3/M7", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var item models.ModelPrediction
	if err := json.Unmarshal(env.Data, &item); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if item.MatchID != "M7" || item.PBlend != 0.58 {
		t.Fatalf("item = %+v", item)
	}

	w, _ = doRequest(t, engine, "/api/v1/predictions/abc/3/M7", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad season status = %d", w.Code)
	}
	w, _ = doRequest(t, engine, "/api/v1/predictions/2026/4/M7", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing prediction status = %d", w.Code)
	}
}

func TestGetChampionUsesDefaultKey(t *testing.T) {
	repo := newStubRepo()
	repo.entries = []models.ModelRegistryEntry{
		{ModelKey: "nrl_home_win", Version: "xgb_1", IsChampion: false},
		{ModelKey: "nrl_home_win", Version: "xgb_2", IsChampion: true},
	}
	engine := newEngine(&ModelHandler{Repo: repo, DefaultModelKey: "nrl_home_win"})

	w, env := doRequest(t, engine, "/api/v1/models/champion", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var entry models.ModelRegistryEntry
	if err := json.Unmarshal(env.Data, &entry); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if entry.Version != "xgb_2" {
		t.Fatalf("entry = %+v", entry)
	}

	w, _ = doRequest(t, engine, "/api/v1/models/champion?model_key=other", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing champion status = %d", w.Code)
	}
}

func TestGetCalibration(t *testing.T) {
	repo := newStubRepo()
	repo.calibrations[2025] = models.CalibrationParams{Season: 2025, Params: []byte(`{"a":1.1,"b":0.9}`)}
	engine := newEngine(&ModelHandler{Repo: repo})

	w, env := doRequest(t, engine, "/api/v1/models/calibration/2025", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var params models.CalibrationParams
	if err := json.Unmarshal(env.Data, &params); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if params.Season != 2025 {
		t.Fatalf("params = %+v", params)
	}

	w, _ = doRequest(t, engine, "/api/v1/models/calibration/2030", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing params status = %d", w.Code)
	}
	w, _ = doRequest(t, engine, "/api/v1/models/calibration/abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad season status = %d", w.Code)
	}
}

func TestQualityLatest(t *testing.T) {
	repo := newStubRepo()
	repo.reports = []models.DataQualityReport{
		{ID: 1, SeasonsCSV: "2024,2025", OK: true, Report: []byte(`{}`)},
		{ID: 2, SeasonsCSV: "2026", OK: false, Report: []byte(`{}`)},
	}
	engine := newEngine(&QualityHandler{Repo: repo})

	w, _ := doRequest(t, engine, "/api/v1/quality/latest", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing season param status = %d", w.Code)
	}

	w, env := doRequest(t, engine, "/api/v1/quality/latest?season=2025", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var report models.DataQualityReport
	if err := json.Unmarshal(env.Data, &report); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if report.ID != 1 {
		t.Fatalf("report = %+v", report)
	}

	w, _ = doRequest(t, engine, "/api/v1/quality/latest?season=2020", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("uncovered season status = %d", w.Code)
	}
}

func TestProvenanceSourceFilter(t *testing.T) {
	repo := newStubRepo()
	repo.provenance = []models.IngestionProvenance{
		{ID: 1, Season: 2026, MatchID: "M1", SourceName: "fixtures"},
		{ID: 2, Season: 2026, MatchID: "M1:Penrith Panthers", SourceName: "odds"},
	}
	engine := newEngine(&ProvenanceHandler{Repo: repo})

	w, env := doRequest(t, engine, "/api/v1/provenance?source=odds", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var items []models.IngestionProvenance
	if err := json.Unmarshal(env.Data, &items); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(items) != 1 || items[0].SourceName != "odds" {
		t.Fatalf("items = %+v", items)
	}
}

func TestScraperEndpoints(t *testing.T) {
	repo := newStubRepo()
	repo.scraperRuns = []models.ScraperRun{
		{RunID: "run-1", Scraper: "fixtures", Season: 2026, Status: models.ScraperRunOK},
		{RunID: "run-1", Scraper: "odds", Season: 2026, Status: models.ScraperRunError},
	}
	engine := newEngine(&RunHandler{Repo: repo})

	w, env := doRequest(t, engine, "/api/v1/runs/scrapers", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var items []models.ScraperRun
	if err := json.Unmarshal(env.Data, &items); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %+v", items)
	}

	w, env = doRequest(t, engine, "/api/v1/runs/scrapers/run-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if err := json.Unmarshal(env.Data, &items); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(items) != 2 || items[0].RunID != "run-1" {
		t.Fatalf("items = %+v", items)
	}
}

func TestRunManifests(t *testing.T) {
	repo := newStubRepo()
	repo.manifests = []models.RunManifest{{RunID: "r1", RunType: "rebuild_clean_baseline", SeasonsCSV: "2024"}}
	engine := newEngine(&RunHandler{Repo: repo})

	w, env := doRequest(t, engine, "/api/v1/runs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var items []models.RunManifest
	if err := json.Unmarshal(env.Data, &items); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(items) != 1 || items[0].RunType != "rebuild_clean_baseline" {
		t.Fatalf("items = %+v", items)
	}
}

func TestHealthz(t *testing.T) {
	engine := newEngine(&HealthHandler{})

	w, _ := doRequest(t, engine, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", w.Code)
	}
	w, _ = doRequest(t, engine, "/readyz", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz without db status = %d", w.Code)
	}
}

func TestRequireBearerMiddleware(t *testing.T) {
	engine := gin.New()
	engine.Use(RequireBearerMiddleware("s3cret"))
	engine.GET("/api/v1/ping", func(c *gin.Context) { Ok(c, gin.H{}, nil) })
	engine.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	w, _ := doRequest(t, engine, "/api/v1/ping", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no header status = %d", w.Code)
	}
	w, _ = doRequest(t, engine, "/api/v1/ping", map[string]string{"Authorization": "Bearer wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d", w.Code)
	}
	w, _ = doRequest(t, engine, "/api/v1/ping", map[string]string{"Authorization": "Bearer s3cret"})
	if w.Code != http.StatusOK {
		t.Fatalf("valid token status = %d", w.Code)
	}
	w, _ = doRequest(t, engine, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("healthz should stay open, status = %d", w.Code)
	}

	open := gin.New()
	open.Use(RequireBearerMiddleware(""))
	open.GET("/api/v1/ping", func(c *gin.Context) { Ok(c, gin.H{}, nil) })
	w, _ = doRequest(t, open, "/api/v1/ping", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("empty token should disable auth, status = %d", w.Code)
	}
}
