package schema

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Role selects which physical schema a logical table resolves into.
type Role string

const (
	RoleTruth Role = "truth"
	RoleOps   Role = "ops"
)

// Defaults mirror the legacy deployment layout: curated facts live in
// nrl_clean, pipeline artifacts in nrl. Either may be overridden, including
// pointing both at the same schema for single-schema installs.
const (
	DefaultTruthSchema = "nrl_clean"
	DefaultOpsSchema   = "nrl"
)

var ErrUnknownTable = errors.New("unknown logical table")

// Config names the physical schemas. Empty string means unqualified table
// names (legacy/sqlite-style deployments).
type Config struct {
	TruthSchema string
	OpsSchema   string
}

var truthTables = map[string]Role{
	"matches_raw":          RoleTruth,
	"odds":                 RoleTruth,
	"team_ratings":         RoleTruth,
	"injuries_current":     RoleTruth,
	"ingestion_provenance": RoleTruth,
}

var opsTables = map[string]Role{
	"data_quality_reports": RoleOps,
	"calibration_params":   RoleOps,
	"model_registry":       RoleOps,
	"model_prediction":     RoleOps,
	"slips":                RoleOps,
	"run_manifest":         RoleOps,
	"scraper_runs":         RoleOps,
}

var (
	mu      sync.RWMutex
	current = Config{TruthSchema: DefaultTruthSchema, OpsSchema: DefaultOpsSchema}
)

// Configure sets the schema mapping for the process. Call once at startup,
// before any table name is resolved; later calls are for tests only.
func Configure(cfg Config) error {
	if err := validateSchemaName(cfg.TruthSchema); err != nil {
		return fmt.Errorf("truth schema: %w", err)
	}
	if err := validateSchemaName(cfg.OpsSchema); err != nil {
		return fmt.Errorf("ops schema: %w", err)
	}
	mu.Lock()
	current = cfg
	mu.Unlock()
	return nil
}

// Active returns the configured schema names.
func Active() Config {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Resolve qualifies a logical table name for the given role. Unknown tables
// are a configuration error: callers must never write to an unresolved name.
func Resolve(table string, role Role) (string, error) {
	switch role {
	case RoleTruth:
		if _, ok := truthTables[table]; !ok {
			return "", fmt.Errorf("%w: %q in truth schema", ErrUnknownTable, table)
		}
		return qualify(Active().TruthSchema, table), nil
	case RoleOps:
		if _, ok := opsTables[table]; !ok {
			return "", fmt.Errorf("%w: %q in ops schema", ErrUnknownTable, table)
		}
		return qualify(Active().OpsSchema, table), nil
	default:
		return "", fmt.Errorf("%w: role %q", ErrUnknownTable, role)
	}
}

// Truth resolves a truth-layer table. Panics on unknown tables, which only
// happens on a programming error; model TableName methods rely on this.
func Truth(table string) string {
	name, err := Resolve(table, RoleTruth)
	if err != nil {
		panic(err)
	}
	return name
}

// Ops resolves an ops-layer table.
func Ops(table string) string {
	name, err := Resolve(table, RoleOps)
	if err != nil {
		panic(err)
	}
	return name
}

// TruthTables lists the logical truth tables in stable order.
func TruthTables() []string {
	return []string{"matches_raw", "odds", "team_ratings", "injuries_current", "ingestion_provenance"}
}

// OpsTables lists the logical ops tables in stable order.
func OpsTables() []string {
	return []string{"data_quality_reports", "calibration_params", "model_registry", "model_prediction", "slips", "run_manifest", "scraper_runs"}
}

func qualify(schemaName, table string) string {
	if schemaName == "" {
		return table
	}
	return schemaName + "." + table
}

func validateSchemaName(name string) error {
	if name == "" {
		return nil
	}
	for _, r := range name {
		ok := r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !ok {
			return fmt.Errorf("invalid schema name %q", name)
		}
	}
	if strings.ContainsAny(name, ".\"") {
		return fmt.Errorf("invalid schema name %q", name)
	}
	return nil
}
