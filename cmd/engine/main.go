package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"nrlengine/internal/backtest"
	"nrlengine/internal/calibration"
	"nrlengine/internal/config"
	cronrunner "nrlengine/internal/cron"
	"nrlengine/internal/db"
	"nrlengine/internal/estimator"
	"nrlengine/internal/feed"
	"nrlengine/internal/handler"
	"nrlengine/internal/ingest"
	"nrlengine/internal/labeler"
	"nrlengine/internal/ledger"
	"nrlengine/internal/logger"
	"nrlengine/internal/pipeline"
	"nrlengine/internal/predict"
	"nrlengine/internal/provenance"
	"nrlengine/internal/quality"
	"nrlengine/internal/registry"
	gormrepository "nrlengine/internal/repository/gorm"
	"nrlengine/internal/schema"
	"nrlengine/internal/trainer"

	_ "nrlengine/docs"
)

// app bundles every wired service; subcommands pick the slice they need.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	db     *db.DB
	store  *gormrepository.Store

	lineage  *provenance.Tracker
	ingest   *ingest.Service
	gate     *quality.Gate
	calib    *calibration.Service
	registry *registry.Registry
	ledger   *ledger.Ledger
	engine   *predict.Engine
	labeler  *labeler.Service
	trainer  *trainer.Service
	backtest *backtest.Runner
	parity   *pipeline.Checker
	seeder   *pipeline.Seeder
	rectify  *pipeline.Rectifier
	baseline *pipeline.Baseline
}

func newApp(cfg config.Config, log *zap.Logger, dbConn *db.DB) *app {
	store := gormrepository.New(dbConn.Gorm)

	a := &app{cfg: cfg, logger: log, db: dbConn, store: store}

	a.lineage = &provenance.Tracker{Repo: store, Logger: log}
	a.ingest = &ingest.Service{
		Repo:    store,
		Lineage: a.lineage,
		Sources: ingest.NewFetcher(cfg.Ingest, log),
		Logger:  log,
	}
	a.gate = &quality.Gate{Repo: store, Logger: log, Config: cfg.Quality}
	a.calib = &calibration.Service{
		Repo:       store,
		Gate:       a.gate,
		Logger:     log,
		MinSamples: cfg.Pipeline.MinCalibrationSamples,
	}
	a.registry = &registry.Registry{
		Repo:   store,
		Logger: log,
		Policy: registry.Policy{
			BrierWeight:   cfg.Promotion.BrierWeight,
			LogLossWeight: cfg.Promotion.LogLossWeight,
			PSIThreshold:  cfg.Promotion.PSIThreshold,
		},
	}
	a.ledger = &ledger.Ledger{Repo: store, Logger: log}

	a.engine = &predict.Engine{
		Repo:     store,
		Gate:     a.gate,
		Calib:    a.calib,
		Registry: a.registry,
		Slips:    a.ledger,
		Logger:   log,
		Pipeline: cfg.Pipeline,
		Risk:     cfg.Risk,
	}
	if cfg.Estimator.Enabled {
		a.engine.Model = estimator.NewClient(cfg.Estimator, log)
	}

	a.labeler = &labeler.Service{Repo: store, Builder: a.engine, Gate: a.gate, Logger: log}
	a.trainer = &trainer.Service{
		Repo:     store,
		Gate:     a.gate,
		Trainer:  trainer.NewClient(cfg.Trainer, log),
		Registry: a.registry,
		Logger:   log,
		Pipeline: cfg.Pipeline,
	}
	a.backtest = &backtest.Runner{Repo: store, Builder: a.engine, Gate: a.gate, Logger: log, Risk: cfg.Risk}
	a.parity = &pipeline.Checker{Repo: store, Logger: log}
	a.seeder = &pipeline.Seeder{Ingest: a.ingest, Logger: log}
	a.rectify = &pipeline.Rectifier{Repo: store, Lineage: a.lineage, Logger: log}
	a.baseline = &pipeline.Baseline{
		Parity:   a.parity,
		Gate:     a.gate,
		Trainer:  a.trainer,
		Fitter:   a.calib,
		Labeler:  a.labeler,
		Backtest: a.backtest,
		Repo:     store,
		Logger:   log,
	}

	return a
}

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("NRL_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	envOnly := false
	if raw := os.Getenv("NRL_ENV_ONLY"); raw != "" {
		envOnly = strings.EqualFold(raw, "true") || raw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := schema.Configure(schema.Config{
		TruthSchema: cfg.Schemas.Truth,
		OpsSchema:   cfg.Schemas.Ops,
	}); err != nil {
		log.Fatal("schema configuration invalid", zap.Error(err))
	}

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		log.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		log.Warn("failed to set timezone", zap.Error(err))
	}

	a := newApp(cfg, log, dbConn)

	args := os.Args[1:]
	command := "serve"
	if len(args) > 0 {
		command = args[0]
		args = args[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if command == "serve" {
		a.serve(ctx)
		return
	}

	result, err := a.dispatch(ctx, command, args)
	emit(command, result, err)
	if err != nil {
		os.Exit(1)
	}
}

// outcome is the machine-checkable envelope every subcommand prints.
type outcome struct {
	Command string `json:"command"`
	OK      bool   `json:"ok"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

func emit(command string, result any, err error) {
	out := outcome{Command: command, OK: err == nil, Result: result}
	if err != nil {
		out.Error = err.Error()
	}
	body, merr := json.MarshalIndent(out, "", "  ")
	if merr != nil {
		fmt.Fprintf(os.Stderr, "encode outcome: %v\n", merr)
		return
	}
	fmt.Println(string(body))
}

func (a *app) dispatch(ctx context.Context, command string, args []string) (any, error) {
	switch command {
	case "apply-schema":
		fs := flag.NewFlagSet(command, flag.ContinueOnError)
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return a.applySchema(ctx)

	case "seed":
		fs := flag.NewFlagSet(command, flag.ContinueOnError)
		season := fs.Int("season", a.cfg.Pipeline.CurrentSeason, "current season (gets fixtures without scores)")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return a.seeder.Seed(ctx, pipeline.SeedParams{CurrentSeason: *season})

	case "run-scrapers":
		fs := flag.NewFlagSet(command, flag.ContinueOnError)
		season := fs.Int("season", a.cfg.Pipeline.CurrentSeason, "season to ingest")
		dryRun := fs.Bool("dry-run", false, "record scraper runs only; truth and provenance rows are not written")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return a.ingest.RunAll(ctx, *season, *dryRun)

	case "predict-and-deploy":
		fs := flag.NewFlagSet(command, flag.ContinueOnError)
		season := fs.Int("season", a.cfg.Pipeline.CurrentSeason, "season")
		round := fs.Int("round", 0, "round number")
		dryRun := fs.Bool("dry-run", false, "write slips with dry_run status")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if *round <= 0 {
			return nil, errors.New("predict-and-deploy: -round is required")
		}
		return a.engine.PredictRound(ctx, *season, *round, *dryRun)

	case "train-and-promote":
		fs := flag.NewFlagSet(command, flag.ContinueOnError)
		seasonsCSV := fs.String("seasons", "", "comma-separated training seasons")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		seasons, err := parseIntCSV(*seasonsCSV)
		if err != nil || len(seasons) == 0 {
			return nil, errors.New("train-and-promote: -seasons is required (e.g. 2022,2023,2024)")
		}
		return a.trainer.TrainAndPromote(ctx, seasons)

	case "fit-calibration":
		fs := flag.NewFlagSet(command, flag.ContinueOnError)
		season := fs.Int("season", 0, "season to fit")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if *season <= 0 {
			return nil, errors.New("fit-calibration: -season is required")
		}
		return a.calib.Fit(ctx, *season)

	case "backfill":
		fs := flag.NewFlagSet(command, flag.ContinueOnError)
		season := fs.Int("season", 0, "season to backfill")
		roundsCSV := fs.String("rounds", "", "comma-separated rounds; empty means every resolved round")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if *season <= 0 {
			return nil, errors.New("backfill: -season is required")
		}
		rounds, err := parseIntCSV(*roundsCSV)
		if err != nil {
			return nil, fmt.Errorf("backfill: bad -rounds: %w", err)
		}
		return a.labeler.BackfillPredictions(ctx, *season, rounds, true)

	case "label-outcomes":
		fs := flag.NewFlagSet(command, flag.ContinueOnError)
		season := fs.Int("season", a.cfg.Pipeline.CurrentSeason, "season to label")
		round := fs.Int("round", 0, "restrict to one round; 0 means the whole season")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		var roundPtr *int
		if *round > 0 {
			roundPtr = round
		}
		return a.labeler.LabelOutcomes(ctx, *season, roundPtr)

	case "quality-gate":
		fs := flag.NewFlagSet(command, flag.ContinueOnError)
		seasonsCSV := fs.String("seasons", "", "comma-separated seasons to check")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		seasons, err := parseIntCSV(*seasonsCSV)
		if err != nil || len(seasons) == 0 {
			return nil, errors.New("quality-gate: -seasons is required")
		}
		report, err := a.gate.Evaluate(ctx, seasons)
		if err != nil {
			return nil, err
		}
		if !report.OK {
			return report, quality.ErrQualityGateFailed
		}
		return report, nil

	case "rectify-clean":
		fs := flag.NewFlagSet(command, flag.ContinueOnError)
		seasonsCSV := fs.String("seasons", "", "comma-separated seasons to rebuild")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		seasons, err := parseIntCSV(*seasonsCSV)
		if err != nil || len(seasons) == 0 {
			return nil, errors.New("rectify-clean: -seasons is required")
		}
		return a.rectify.RectifyClean(ctx, seasons)

	case "rebuild-clean-baseline":
		fs := flag.NewFlagSet(command, flag.ContinueOnError)
		seasonsCSV := fs.String("seasons", "", "comma-separated training seasons")
		calibSeason := fs.Int("calibration-season", 0, "season whose resolved predictions fit the calibration")
		backtestSeason := fs.Int("backtest-season", 0, "season to backtest")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		seasons, err := parseIntCSV(*seasonsCSV)
		if err != nil || len(seasons) == 0 {
			return nil, errors.New("rebuild-clean-baseline: -seasons is required")
		}
		return a.baseline.Rebuild(ctx, pipeline.RebuildParams{
			Seasons:           seasons,
			CalibrationSeason: *calibSeason,
			BacktestSeason:    *backtestSeason,
		})

	case "backtest":
		fs := flag.NewFlagSet(command, flag.ContinueOnError)
		season := fs.Int("season", 0, "season to backtest")
		roundsCSV := fs.String("rounds", "", "comma-separated rounds; empty means all")
		bankroll := fs.Float64("bankroll", 0, "starting bankroll in units; 0 uses the configured default")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if *season <= 0 {
			return nil, errors.New("backtest: -season is required")
		}
		rounds, err := parseIntCSV(*roundsCSV)
		if err != nil {
			return nil, fmt.Errorf("backtest: bad -rounds: %w", err)
		}
		result, err := a.backtest.Run(ctx, backtest.Params{
			Season:   *season,
			Rounds:   rounds,
			Bankroll: decimal.NewFromFloat(*bankroll),
		})
		if err != nil {
			return nil, err
		}
		return result.Summary(), nil

	default:
		return nil, fmt.Errorf("unknown command %q", command)
	}
}

// applySchema creates both schemas, migrates every table and smokes parity
// so a fresh install fails loudly here instead of mid-pipeline.
func (a *app) applySchema(ctx context.Context) (any, error) {
	active := schema.Active()
	if err := db.EnsureSchemas(a.db, active.TruthSchema, active.OpsSchema); err != nil {
		return nil, fmt.Errorf("ensure schemas: %w", err)
	}
	if err := db.AutoMigrate(a.db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	truth, ops, err := a.parity.Enforce(ctx)
	if err != nil {
		return map[string]any{"truth": truth, "ops": ops}, err
	}
	return map[string]any{
		"truth_schema": active.TruthSchema,
		"ops_schema":   active.OpsSchema,
		"truth":        truth,
		"ops":          ops,
	}, nil
}

func (a *app) serve(ctx context.Context) {
	cfg := a.cfg
	log := a.logger

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(handler.AccessLogMiddleware(log))
	router.Use(handler.RequireBearerMiddleware(cfg.Server.AuthToken))

	healthHandler := &handler.HealthHandler{DB: a.db.Gorm, Repo: a.store}
	healthHandler.Register(router)
	matchHandler := &handler.MatchHandler{Repo: a.store}
	matchHandler.Register(router)
	predictionHandler := &handler.PredictionHandler{Repo: a.store}
	predictionHandler.Register(router)
	slipHandler := &handler.SlipHandler{Repo: a.store}
	slipHandler.Register(router)
	modelHandler := &handler.ModelHandler{Repo: a.store, DefaultModelKey: cfg.Pipeline.ModelKey}
	modelHandler.Register(router)
	qualityHandler := &handler.QualityHandler{Repo: a.store}
	qualityHandler.Register(router)
	provenanceHandler := &handler.ProvenanceHandler{Repo: a.store}
	provenanceHandler.Register(router)
	runHandler := &handler.RunHandler{Repo: a.store}
	runHandler.Register(router)

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	if strings.EqualFold(cfg.App.Env, "dev") {
		pprof.Register(router)
	}

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: router,
	}

	cronRunner := cronrunner.New(log, ctx)
	currentSeason := cfg.Pipeline.CurrentSeason

	if cfg.Cron.Enabled {
		_, err := cronRunner.Add("quality-gate", cfg.Cron.QualityGate, func(ctx context.Context) {
			report, err := a.gate.Evaluate(ctx, []int{currentSeason})
			if err != nil {
				log.Warn("cron quality gate failed", zap.Error(err))
				return
			}
			log.Info("cron quality gate ok",
				zap.Bool("ok", report.OK),
				zap.Int("violations", len(report.Errors)),
			)
		})
		if err != nil {
			log.Warn("cron register quality gate failed", zap.Error(err))
		}

		if cfg.Labeler.Enabled {
			_, err = cronRunner.Add("label-outcomes", cfg.Cron.LabelOutcomes, func(ctx context.Context) {
				result, err := a.labeler.LabelOutcomes(ctx, currentSeason, nil)
				if err != nil {
					log.Warn("cron label outcomes failed", zap.Error(err))
					return
				}
				if result.Labeled > 0 {
					log.Info("cron labeled outcomes", zap.Int64("labeled", result.Labeled))
				}
			})
			if err != nil {
				log.Warn("cron register label outcomes failed", zap.Error(err))
			}

			_, err = cronRunner.Add("clv-backfill", cfg.Cron.CLVBackfill, func(ctx context.Context) {
				result, err := a.labeler.BackfillCLV(ctx, currentSeason)
				if err != nil {
					log.Warn("cron clv backfill failed", zap.Error(err))
					return
				}
				if result.Updated > 0 {
					log.Info("cron backfilled clv", zap.Int64("updated", result.Updated))
				}
			})
			if err != nil {
				log.Warn("cron register clv backfill failed", zap.Error(err))
			}
		}

		cronRunner.Start()
		defer cronRunner.Stop()
	}

	if cfg.Feed.Enabled {
		listener := &feed.Listener{
			Sink:   a.ingest,
			Logger: log,
			Config: cfg.Feed,
			Season: currentSeason,
		}
		go func() {
			if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("odds feed stopped", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 2)

	go func() {
		log.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func parseIntCSV(value string) ([]int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	out := make([]int, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("bad integer %q", part)
		}
		out = append(out, n)
	}
	return out, nil
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
