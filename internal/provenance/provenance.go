package provenance

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"nrlengine/internal/models"
)

// Store is the repository slice the tracker needs.
type Store interface {
	InsertProvenance(ctx context.Context, item *models.IngestionProvenance) error
	LatestProvenanceChecksum(ctx context.Context, season int, matchID, sourceName string) (string, error)
}

type Tracker struct {
	Repo   Store
	Logger *zap.Logger
}

type RecordInput struct {
	Season     int
	MatchID    string
	SourceName string
	SourceRef  string
	FetchedAt  time.Time
	Payload    map[string]any
}

type RecordResult struct {
	Checksum     string
	IsNewContent bool
}

// Record inserts an append-only lineage row and reports whether the payload
// changed since the last fetch from the same source. Unchanged re-fetches
// still insert a row, so the complete fetch history survives; duplicate
// detection is read-derived, never write-suppressed.
func (t *Tracker) Record(ctx context.Context, in RecordInput) (RecordResult, error) {
	sum, body, err := Checksum(in.Payload)
	if err != nil {
		return RecordResult{}, err
	}
	prior, err := t.Repo.LatestProvenanceChecksum(ctx, in.Season, in.MatchID, in.SourceName)
	if err != nil {
		return RecordResult{}, err
	}
	fetchedAt := in.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}
	row := &models.IngestionProvenance{
		Season:     in.Season,
		MatchID:    in.MatchID,
		SourceName: in.SourceName,
		SourceRef:  in.SourceRef,
		FetchedAt:  fetchedAt,
		Checksum:   sum,
		Payload:    datatypes.JSON(body),
	}
	if err := t.Repo.InsertProvenance(ctx, row); err != nil {
		return RecordResult{}, err
	}
	out := RecordResult{Checksum: sum, IsNewContent: prior != sum}
	if t.Logger != nil {
		t.Logger.Debug("provenance recorded",
			zap.Int("season", in.Season),
			zap.String("match_id", in.MatchID),
			zap.String("source", in.SourceName),
			zap.Bool("new_content", out.IsNewContent))
	}
	return out, nil
}

// Checksum is the sha256 of the canonical JSON encoding of the payload.
// encoding/json writes map keys in sorted order, so two payloads with equal
// content always hash the same.
func Checksum(payload map[string]any) (string, []byte, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", nil, fmt.Errorf("encode payload: %w", err)
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:]), body, nil
}
