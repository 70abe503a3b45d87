package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"nrlengine/internal/config"
	"nrlengine/internal/models"
)

var (
	// ErrDuplicateVersion rejects a second register call for the same
	// model_key and version. Registry rows are append-only.
	ErrDuplicateVersion = errors.New("model version already registered")
	// ErrPromotionConflict means the requested candidate does not exist or
	// disappeared mid-promotion.
	ErrPromotionConflict = errors.New("candidate not eligible for promotion")
	// ErrNoChampion means no entry carries the champion flag for the key.
	ErrNoChampion = errors.New("no champion registered")
)

// Store is the slice of the repository the registry needs.
type Store interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	InsertRegistryEntry(ctx context.Context, entry *models.ModelRegistryEntry) error
	GetRegistryEntry(ctx context.Context, modelKey, version string) (*models.ModelRegistryEntry, error)
	GetChampion(ctx context.Context, modelKey string) (*models.ModelRegistryEntry, error)
	ListRegistryEntries(ctx context.Context, modelKey string, limit int) ([]models.ModelRegistryEntry, error)
	DemoteChampionsTx(ctx context.Context, tx *gorm.DB, modelKey string) (int64, error)
	SetChampionTx(ctx context.Context, tx *gorm.DB, modelKey, version string) (int64, error)
}

// Registry manages trained model versions and the single champion flag.
type Registry struct {
	Repo   Store
	Logger *zap.Logger
	Policy Policy
}

// PolicyFromConfig maps the promotion block onto a Policy.
func PolicyFromConfig(cfg config.PromotionConfig) Policy {
	return Policy{
		BrierWeight:   cfg.BrierWeight,
		LogLossWeight: cfg.LogLossWeight,
		PSIThreshold:  cfg.PSIThreshold,
	}
}

// Register appends a new version. The composite loss is computed here so
// every stored row ranks under the same weights it was admitted with.
func (r *Registry) Register(ctx context.Context, modelKey, version, artifactRef string, m Metrics) (*models.ModelRegistryEntry, error) {
	if modelKey == "" || version == "" {
		return nil, fmt.Errorf("registry: model key and version are required")
	}
	existing, err := r.Repo.GetRegistryEntry(ctx, modelKey, version)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s %s", ErrDuplicateVersion, modelKey, version)
	}

	m.Composite = r.Policy.Composite(m)
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("registry: marshal metrics: %w", err)
	}
	entry := &models.ModelRegistryEntry{
		ModelKey:    modelKey,
		Version:     version,
		ArtifactRef: artifactRef,
		Metrics:     datatypes.JSON(body),
	}
	if err := r.Repo.InsertRegistryEntry(ctx, entry); err != nil {
		// Concurrent registers race past the existence check; the unique
		// index is the real arbiter.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: %s %s", ErrDuplicateVersion, modelKey, version)
		}
		return nil, err
	}
	r.Logger.Info("model version registered",
		zap.String("model_key", modelKey),
		zap.String("version", version),
		zap.Float64("composite", m.Composite))
	return entry, nil
}

// PromotionResult reports both sides of a champion swap.
type PromotionResult struct {
	ModelKey    string `json:"model_key"`
	NewChampion string `json:"new_champion"`
	OldChampion string `json:"old_champion,omitempty"`
}

// Promote makes version the champion for modelKey. Demotion of the old
// champion and promotion of the new one happen in one transaction, so a
// reader never observes zero or two champions.
func (r *Registry) Promote(ctx context.Context, modelKey, version string) (*PromotionResult, error) {
	candidate, err := r.Repo.GetRegistryEntry(ctx, modelKey, version)
	if err != nil {
		return nil, err
	}
	if candidate == nil {
		return nil, fmt.Errorf("%w: %s %s is not registered", ErrPromotionConflict, modelKey, version)
	}
	prior, err := r.Repo.GetChampion(ctx, modelKey)
	if err != nil {
		return nil, err
	}
	if prior != nil && prior.Version == version {
		return &PromotionResult{ModelKey: modelKey, NewChampion: version, OldChampion: version}, nil
	}

	err = r.Repo.InTx(ctx, func(tx *gorm.DB) error {
		if _, err := r.Repo.DemoteChampionsTx(ctx, tx, modelKey); err != nil {
			return err
		}
		n, err := r.Repo.SetChampionTx(ctx, tx, modelKey, version)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s %s vanished during promotion", ErrPromotionConflict, modelKey, version)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &PromotionResult{ModelKey: modelKey, NewChampion: version}
	if prior != nil {
		result.OldChampion = prior.Version
	}
	r.Logger.Info("champion promoted",
		zap.String("model_key", modelKey),
		zap.String("new_champion", result.NewChampion),
		zap.String("old_champion", result.OldChampion))
	return result, nil
}

// Champion returns the current champion entry, or ErrNoChampion.
func (r *Registry) Champion(ctx context.Context, modelKey string) (*models.ModelRegistryEntry, error) {
	entry, err := r.Repo.GetChampion(ctx, modelKey)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoChampion, modelKey)
	}
	return entry, nil
}

// ChampionMetrics returns the champion entry with its metrics decoded.
func (r *Registry) ChampionMetrics(ctx context.Context, modelKey string) (*models.ModelRegistryEntry, Metrics, error) {
	entry, err := r.Champion(ctx, modelKey)
	if err != nil {
		return nil, Metrics{}, err
	}
	var m Metrics
	if err := json.Unmarshal(entry.Metrics, &m); err != nil {
		return nil, Metrics{}, fmt.Errorf("registry: decode champion metrics: %w", err)
	}
	return entry, m, nil
}

// MaybePromote applies the drift-gated promotion policy. An empty registry
// promotes unconditionally; otherwise the candidate must strictly improve
// the composite loss AND the live score distribution must have drifted past
// the PSI threshold away from the champion's training distribution. Either
// condition failing keeps the incumbent.
func (r *Registry) MaybePromote(ctx context.Context, modelKey, version string, liveScores []float64) (bool, error) {
	champ, err := r.Repo.GetChampion(ctx, modelKey)
	if err != nil {
		return false, err
	}
	if champ == nil {
		if _, err := r.Promote(ctx, modelKey, version); err != nil {
			return false, err
		}
		return true, nil
	}
	if champ.Version == version {
		return false, nil
	}

	candidate, err := r.Repo.GetRegistryEntry(ctx, modelKey, version)
	if err != nil {
		return false, err
	}
	if candidate == nil {
		return false, fmt.Errorf("%w: %s %s is not registered", ErrPromotionConflict, modelKey, version)
	}

	var candM, champM Metrics
	if err := json.Unmarshal(candidate.Metrics, &candM); err != nil {
		return false, fmt.Errorf("registry: decode candidate metrics: %w", err)
	}
	if err := json.Unmarshal(champ.Metrics, &champM); err != nil {
		return false, fmt.Errorf("registry: decode champion metrics: %w", err)
	}

	if !r.Policy.ImprovesComposite(candM, champM) {
		r.Logger.Info("promotion skipped: composite not improved",
			zap.String("model_key", modelKey),
			zap.String("candidate", version),
			zap.Float64("candidate_composite", r.Policy.Composite(candM)),
			zap.Float64("champion_composite", r.Policy.Composite(champM)))
		return false, nil
	}

	liveHist := HistogramBins(liveScores, len(champM.ScoreHist))
	if len(liveScores) == 0 || !r.Policy.DriftExceeds(champM.ScoreHist, liveHist) {
		r.Logger.Info("promotion skipped: no drift",
			zap.String("model_key", modelKey),
			zap.String("candidate", version),
			zap.Float64("psi", PSI(champM.ScoreHist, liveHist)))
		return false, nil
	}

	if _, err := r.Promote(ctx, modelKey, version); err != nil {
		return false, err
	}
	return true, nil
}

// Entries lists registered versions for a key, newest first.
func (r *Registry) Entries(ctx context.Context, modelKey string, limit int) ([]models.ModelRegistryEntry, error) {
	return r.Repo.ListRegistryEntries(ctx, modelKey, limit)
}
