// Package pipeline holds the operational glue around the decision core:
// schema parity smokes, clean-layer rectification, synthetic seeding and the
// end-to-end baseline rebuild.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"nrlengine/internal/models"
	"nrlengine/internal/repository"
	"nrlengine/internal/schema"
)

// ParityReport is the outcome of one schema smoke. ProbeOK covers the
// schema's behavioral probe: the feature view plan for truth, the slip
// write/read/delete roundtrip for ops.
type ParityReport struct {
	OK               bool     `json:"ok"`
	Schema           string   `json:"schema"`
	CheckedRelations []string `json:"checked_relations"`
	MissingRelations []string `json:"missing_relations,omitempty"`
	ProbeOK          bool     `json:"probe_ok"`
	Errors           []string `json:"errors,omitempty"`
}

type ParityStore interface {
	RelationExists(ctx context.Context, schemaName, table string) (bool, error)
	FeatureRowForMatch(ctx context.Context, matchID string) (*repository.FeatureRow, error)
	UpsertSlip(ctx context.Context, item *models.Slip) error
	GetSlip(ctx context.Context, portfolioID string) (*models.Slip, error)
	DeleteSlip(ctx context.Context, portfolioID string) error
}

// Checker runs startup smokes against both schemas before anything writes.
type Checker struct {
	Repo   ParityStore
	Logger *zap.Logger
}

const probePortfolioID = "ops_parity_probe"

// TruthParity verifies every truth relation resolves to a real table and
// that the assembled feature view still plans against them. The probe uses
// a match id that cannot exist; an empty result is a pass, a driver error
// means the view or a join target is broken.
func (c *Checker) TruthParity(ctx context.Context) (*ParityReport, error) {
	cfg := schema.Active()
	report := &ParityReport{OK: true, Schema: cfg.TruthSchema}

	for _, rel := range schema.TruthTables() {
		report.CheckedRelations = append(report.CheckedRelations, rel)
		ok, err := c.Repo.RelationExists(ctx, cfg.TruthSchema, rel)
		if err != nil {
			return nil, fmt.Errorf("parity: truth relation %s: %w", rel, err)
		}
		if !ok {
			report.MissingRelations = append(report.MissingRelations, rel)
		}
	}
	if len(report.MissingRelations) > 0 {
		report.OK = false
		report.Errors = append(report.Errors, fmt.Sprintf(
			"missing truth relations in %s: %s", cfg.TruthSchema, strings.Join(report.MissingRelations, ", ")))
		return report, nil
	}

	if _, err := c.Repo.FeatureRowForMatch(ctx, "__parity_probe__"); err != nil {
		report.OK = false
		report.Errors = append(report.Errors, fmt.Sprintf("feature view probe failed: %v", err))
	} else {
		report.ProbeOK = true
	}
	return report, nil
}

// OpsParity verifies every ops relation exists and that the slips table
// accepts a full write/read/delete roundtrip.
func (c *Checker) OpsParity(ctx context.Context) (*ParityReport, error) {
	cfg := schema.Active()
	report := &ParityReport{OK: true, Schema: cfg.OpsSchema}

	for _, rel := range schema.OpsTables() {
		report.CheckedRelations = append(report.CheckedRelations, rel)
		ok, err := c.Repo.RelationExists(ctx, cfg.OpsSchema, rel)
		if err != nil {
			return nil, fmt.Errorf("parity: ops relation %s: %w", rel, err)
		}
		if !ok {
			report.MissingRelations = append(report.MissingRelations, rel)
		}
	}
	if len(report.MissingRelations) > 0 {
		report.OK = false
		report.Errors = append(report.Errors, fmt.Sprintf(
			"missing ops relations in %s: %s", cfg.OpsSchema, strings.Join(report.MissingRelations, ", ")))
		return report, nil
	}

	report.ProbeOK = c.slipRoundtrip(ctx, report)
	if !report.ProbeOK {
		report.OK = false
	}
	return report, nil
}

// slipRoundtrip writes, reads back and deletes a sentinel slip. Season 2099
// keeps the probe clear of any real round even if cleanup is interrupted,
// and the void status keeps every downstream sweep from picking it up.
func (c *Checker) slipRoundtrip(ctx context.Context, report *ParityReport) bool {
	probe := &models.Slip{
		PortfolioID:      probePortfolioID,
		Season:           2099,
		RoundNum:         1,
		MatchID:          "PARITY_PROBE",
		Market:           "h2h",
		Selection:        "probe",
		Odds:             decimal.NewFromInt(2),
		StakeUnits:       decimal.Zero,
		Status:           models.SlipStatusVoid,
		Decision:         models.SlipDecisionDeclined,
		StakeLadderLevel: "pass",
		ModelVersion:     "parity_probe",
		Reason:           "ops schema write probe",
	}
	if err := c.Repo.UpsertSlip(ctx, probe); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("slip probe write failed: %v", err))
		return false
	}
	got, err := c.Repo.GetSlip(ctx, probePortfolioID)
	if err != nil || got == nil || got.ModelVersion != probe.ModelVersion {
		report.Errors = append(report.Errors, fmt.Sprintf("slip probe readback failed: found=%v err=%v", got != nil, err))
		_ = c.Repo.DeleteSlip(ctx, probePortfolioID)
		return false
	}
	if err := c.Repo.DeleteSlip(ctx, probePortfolioID); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("slip probe delete failed: %v", err))
		return false
	}
	return true
}

// Enforce runs both smokes and fails unless both schemas are ready.
func (c *Checker) Enforce(ctx context.Context) (*ParityReport, *ParityReport, error) {
	truth, err := c.TruthParity(ctx)
	if err != nil {
		return nil, nil, err
	}
	ops, err := c.OpsParity(ctx)
	if err != nil {
		return truth, nil, err
	}

	var msgs []string
	if !truth.OK {
		msgs = append(msgs, strings.Join(truth.Errors, "; "))
	}
	if !ops.OK {
		msgs = append(msgs, strings.Join(ops.Errors, "; "))
	}
	if len(msgs) > 0 {
		return truth, ops, fmt.Errorf("pipeline: schema parity smoke failed: %s", strings.Join(msgs, "; "))
	}
	c.Logger.Info("schema parity smoke passed",
		zap.String("truth_schema", truth.Schema),
		zap.String("ops_schema", ops.Schema))
	return truth, ops, nil
}
