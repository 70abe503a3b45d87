package gormrepository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"nrlengine/internal/models"
	"nrlengine/internal/repository"
	"nrlengine/internal/schema"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- Truth: fixtures --------------------------------------------------------

func (s *Store) UpsertMatches(ctx context.Context, items []models.MatchFact) (int64, error) {
	if s == nil || s.db == nil || len(items) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "match_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"season",
			"round_num",
			"match_date",
			"venue",
			"home_team",
			"away_team",
			"home_score",
			"away_score",
		}),
	}).CreateInBatches(items, 200)
	return res.RowsAffected, res.Error
}

func (s *Store) GetMatch(ctx context.Context, matchID string) (*models.MatchFact, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	matchID = strings.TrimSpace(matchID)
	if matchID == "" {
		return nil, nil
	}
	var item models.MatchFact
	err := s.db.WithContext(ctx).Model(&models.MatchFact{}).Where("match_id = ?", matchID).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListMatches(ctx context.Context, params repository.ListMatchesParams) ([]models.MatchFact, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.MatchFact{})
	if len(params.Seasons) > 0 {
		query = query.Where("season IN ?", params.Seasons)
	}
	if params.Season != nil {
		query = query.Where("season = ?", *params.Season)
	}
	if params.Round != nil {
		query = query.Where("round_num = ?", *params.Round)
	}
	if params.Resolved != nil {
		if *params.Resolved {
			query = query.Where("home_score IS NOT NULL").Where("away_score IS NOT NULL")
		} else {
			query = query.Where("home_score IS NULL OR away_score IS NULL")
		}
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "match_date")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.MatchFact
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListSeasonRounds(ctx context.Context, season int) ([]int, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var rounds []int
	err := s.db.WithContext(ctx).
		Model(&models.MatchFact{}).
		Where("season = ?", season).
		Distinct().
		Order("round_num asc").
		Pluck("round_num", &rounds).Error
	if err != nil {
		return nil, err
	}
	return rounds, nil
}

// --- Truth: odds and auxiliary facts ----------------------------------------

func (s *Store) UpsertOdds(ctx context.Context, items []models.OddsFact) (int64, error) {
	if s == nil || s.db == nil || len(items) == 0 {
		return 0, nil
	}
	// Opening price is written once and kept on conflict.
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "match_id"}, {Name: "team"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"close_price",
			"last_price",
			"steam_factor",
			"captured_at",
		}),
	}).CreateInBatches(items, 200)
	return res.RowsAffected, res.Error
}

func (s *Store) GetOdds(ctx context.Context, matchID, team string) (*models.OddsFact, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	matchID = strings.TrimSpace(matchID)
	team = strings.TrimSpace(team)
	if matchID == "" || team == "" {
		return nil, nil
	}
	var item models.OddsFact
	err := s.db.WithContext(ctx).
		Model(&models.OddsFact{}).
		Where("match_id = ?", matchID).
		Where("team = ?", team).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListOddsByMatchIDs(ctx context.Context, matchIDs []string) ([]models.OddsFact, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	ids := cleanStrings(matchIDs)
	if len(ids) == 0 {
		return nil, nil
	}
	var items []models.OddsFact
	err := s.db.WithContext(ctx).
		Model(&models.OddsFact{}).
		Where("match_id IN ?", ids).
		Order("match_id asc, team asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListOrphanOddsMatchIDs(ctx context.Context, limit int) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	sql := fmt.Sprintf(`
		SELECT DISTINCT o.match_id
		  FROM %s o
		  LEFT JOIN %s m ON m.match_id = o.match_id
		 WHERE m.match_id IS NULL
		 ORDER BY o.match_id
		 LIMIT ?`,
		models.OddsFact{}.TableName(), models.MatchFact{}.TableName())
	var ids []string
	if err := s.db.WithContext(ctx).Raw(sql, normalizeLimit(limit, 200)).Scan(&ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) UpsertTeamRatings(ctx context.Context, items []models.TeamRating) (int64, error) {
	if s == nil || s.db == nil || len(items) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "season"}, {Name: "team"}},
		DoUpdates: clause.AssignmentColumns([]string{"rating"}),
	}).CreateInBatches(items, 200)
	return res.RowsAffected, res.Error
}

func (s *Store) ListTeamRatings(ctx context.Context, season int) ([]models.TeamRating, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.TeamRating
	err := s.db.WithContext(ctx).
		Model(&models.TeamRating{}).
		Where("season = ?", season).
		Order("team asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpsertInjuries(ctx context.Context, items []models.InjurySnapshot) (int64, error) {
	if s == nil || s.db == nil || len(items) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "season"}, {Name: "team"}},
		DoUpdates: clause.AssignmentColumns([]string{"injury_count"}),
	}).CreateInBatches(items, 200)
	return res.RowsAffected, res.Error
}

// --- Truth: assembled model inputs ------------------------------------------

// Rest days and last-5 form come from each team's prior appearances in the
// fixtures table; absent joins fall back to neutral values so a thin season
// still yields a usable row.
const featureRowSQL = `
WITH appearances AS (
	SELECT home_team AS team, match_date,
	       CASE WHEN home_score > away_score THEN 1.0 ELSE 0.0 END AS win
	  FROM %[1]s
	 WHERE home_score IS NOT NULL AND away_score IS NOT NULL
	UNION ALL
	SELECT away_team AS team, match_date,
	       CASE WHEN away_score > home_score THEN 1.0 ELSE 0.0 END AS win
	  FROM %[1]s
	 WHERE home_score IS NOT NULL AND away_score IS NOT NULL
)
SELECT m.match_id,
       m.season,
       m.round_num,
       m.match_date,
       m.venue,
       m.home_team,
       m.away_team,
       COALESCE(m.match_date - (SELECT MAX(a.match_date) FROM appearances a
            WHERE a.team = m.home_team AND a.match_date < m.match_date), 7)::float8 AS home_rest_days,
       COALESCE(m.match_date - (SELECT MAX(a.match_date) FROM appearances a
            WHERE a.team = m.away_team AND a.match_date < m.match_date), 7)::float8 AS away_rest_days,
       COALESCE((SELECT AVG(w.win) FROM (
            SELECT a.win FROM appearances a
             WHERE a.team = m.home_team AND a.match_date < m.match_date
             ORDER BY a.match_date DESC LIMIT 5) w), 0.5)::float8 AS home_form,
       COALESCE((SELECT AVG(w.win) FROM (
            SELECT a.win FROM appearances a
             WHERE a.team = m.away_team AND a.match_date < m.match_date
             ORDER BY a.match_date DESC LIMIT 5) w), 0.5)::float8 AS away_form,
       COALESCE(ih.injury_count, 0)::float8 AS home_injuries,
       COALESCE(ia.injury_count, 0)::float8 AS away_injuries,
       COALESCE(rh.rating, 1500)::float8 AS home_rating,
       COALESCE(ra.rating, 1500)::float8 AS away_rating,
       COALESCE(o.last_price, o.close_price, o.opening_price, 1.90)::float8 AS odds_taken,
       COALESCE(o.close_price, 0)::float8 AS close_price
  FROM %[1]s m
  LEFT JOIN %[2]s rh ON rh.season = m.season AND rh.team = m.home_team
  LEFT JOIN %[2]s ra ON ra.season = m.season AND ra.team = m.away_team
  LEFT JOIN %[3]s ih ON ih.season = m.season AND ih.team = m.home_team
  LEFT JOIN %[3]s ia ON ia.season = m.season AND ia.team = m.away_team
  LEFT JOIN %[4]s o ON o.match_id = m.match_id AND o.team = m.home_team
 WHERE m.match_id = ?`

func (s *Store) FeatureRowForMatch(ctx context.Context, matchID string) (*repository.FeatureRow, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	matchID = strings.TrimSpace(matchID)
	if matchID == "" {
		return nil, nil
	}
	sql := fmt.Sprintf(featureRowSQL,
		models.MatchFact{}.TableName(),
		models.TeamRating{}.TableName(),
		models.InjurySnapshot{}.TableName(),
		models.OddsFact{}.TableName(),
	)
	var rows []repository.FeatureRow
	if err := s.db.WithContext(ctx).Raw(sql, matchID).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// --- Provenance -------------------------------------------------------------

func (s *Store) InsertProvenance(ctx context.Context, item *models.IngestionProvenance) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if item.FetchedAt.IsZero() {
		item.FetchedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) LatestProvenanceChecksum(ctx context.Context, season int, matchID, sourceName string) (string, error) {
	if s == nil || s.db == nil {
		return "", nil
	}
	var checksums []string
	err := s.db.WithContext(ctx).
		Model(&models.IngestionProvenance{}).
		Where("season = ?", season).
		Where("match_id = ?", strings.TrimSpace(matchID)).
		Where("source_name = ?", strings.TrimSpace(sourceName)).
		Order("fetched_at desc").
		Limit(1).
		Pluck("checksum", &checksums).Error
	if err != nil {
		return "", err
	}
	if len(checksums) == 0 {
		return "", nil
	}
	return checksums[0], nil
}

func (s *Store) ListProvenance(ctx context.Context, params repository.ListProvenanceParams) ([]models.IngestionProvenance, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.IngestionProvenance{})
	if params.Season != nil {
		query = query.Where("season = ?", *params.Season)
	}
	if params.MatchID != nil && strings.TrimSpace(*params.MatchID) != "" {
		query = query.Where("match_id = ?", strings.TrimSpace(*params.MatchID))
	}
	if params.SourceName != nil && strings.TrimSpace(*params.SourceName) != "" {
		query = query.Where("source_name = ?", strings.TrimSpace(*params.SourceName))
	}
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.IngestionProvenance
	if err := query.Order("fetched_at desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Data quality -----------------------------------------------------------

func (s *Store) InsertQualityReport(ctx context.Context, item *models.DataQualityReport) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if item.CheckedAt.IsZero() {
		item.CheckedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) LatestQualityReportForSeason(ctx context.Context, season int) (*models.DataQualityReport, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	items, err := s.ListQualityReports(ctx, 100)
	if err != nil {
		return nil, err
	}
	want := strconv.Itoa(season)
	for i := range items {
		for _, tok := range strings.Split(items[i].SeasonsCSV, ",") {
			if strings.TrimSpace(tok) == want {
				return &items[i], nil
			}
		}
	}
	return nil, nil
}

func (s *Store) ListQualityReports(ctx context.Context, limit int) ([]models.DataQualityReport, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	limit = normalizeLimit(limit, 100)
	var items []models.DataQualityReport
	err := s.db.WithContext(ctx).
		Model(&models.DataQualityReport{}).
		Order("checked_at desc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- Calibration ------------------------------------------------------------

func (s *Store) UpsertCalibrationParams(ctx context.Context, item *models.CalibrationParams) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if item.FittedAt.IsZero() {
		item.FittedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "season"}},
		DoUpdates: clause.AssignmentColumns([]string{"params", "fitted_at"}),
	}).Create(item).Error
}

func (s *Store) GetCalibrationParams(ctx context.Context, season int) (*models.CalibrationParams, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.CalibrationParams
	err := s.db.WithContext(ctx).Model(&models.CalibrationParams{}).Where("season = ?", season).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// --- Model registry ---------------------------------------------------------

func (s *Store) InsertRegistryEntry(ctx context.Context, item *models.ModelRegistryEntry) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetRegistryEntry(ctx context.Context, modelKey, version string) (*models.ModelRegistryEntry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.ModelRegistryEntry
	err := s.db.WithContext(ctx).
		Model(&models.ModelRegistryEntry{}).
		Where("model_key = ?", strings.TrimSpace(modelKey)).
		Where("version = ?", strings.TrimSpace(version)).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetChampion(ctx context.Context, modelKey string) (*models.ModelRegistryEntry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.ModelRegistryEntry
	err := s.db.WithContext(ctx).
		Model(&models.ModelRegistryEntry{}).
		Where("model_key = ?", strings.TrimSpace(modelKey)).
		Where("is_champion = ?", true).
		Order("created_at desc").
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListRegistryEntries(ctx context.Context, modelKey string, limit int) ([]models.ModelRegistryEntry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.ModelRegistryEntry{})
	if strings.TrimSpace(modelKey) != "" {
		query = query.Where("model_key = ?", strings.TrimSpace(modelKey))
	}
	limit = normalizeLimit(limit, 50)
	var items []models.ModelRegistryEntry
	if err := query.Order("created_at desc").Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) DemoteChampionsTx(ctx context.Context, tx *gorm.DB, modelKey string) (int64, error) {
	if tx == nil {
		if s == nil || s.db == nil {
			return 0, nil
		}
		tx = s.db
	}
	res := tx.WithContext(ctx).
		Model(&models.ModelRegistryEntry{}).
		Where("model_key = ?", strings.TrimSpace(modelKey)).
		Where("is_champion = ?", true).
		Update("is_champion", false)
	return res.RowsAffected, res.Error
}

func (s *Store) SetChampionTx(ctx context.Context, tx *gorm.DB, modelKey, version string) (int64, error) {
	if tx == nil {
		if s == nil || s.db == nil {
			return 0, nil
		}
		tx = s.db
	}
	res := tx.WithContext(ctx).
		Model(&models.ModelRegistryEntry{}).
		Where("model_key = ?", strings.TrimSpace(modelKey)).
		Where("version = ?", strings.TrimSpace(version)).
		Update("is_champion", true)
	return res.RowsAffected, res.Error
}

// ListRecentModelScores feeds the drift check: the blended probabilities of
// the most recently written predictions, newest first.
func (s *Store) ListRecentModelScores(ctx context.Context, limit int) ([]float64, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var scores []float64
	err := s.db.WithContext(ctx).
		Model(&models.ModelPrediction{}).
		Order("updated_at desc").
		Limit(normalizeLimit(limit, 500)).
		Pluck("p_blend", &scores).Error
	if err != nil {
		return nil, err
	}
	return scores, nil
}

// --- Predictions ------------------------------------------------------------

func (s *Store) UpsertPrediction(ctx context.Context, item *models.ModelPrediction) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	// Outcome columns belong to the labeler and survive re-prediction.
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "season"}, {Name: "round_num"}, {Name: "match_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"model_version",
			"p_model",
			"p_heuristic",
			"p_blend",
			"calibrated_p",
			"calibrated",
			"ml_status",
			"odds_taken",
			"close_price",
			"clv_diff",
			"ev",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetPrediction(ctx context.Context, season, round int, matchID string) (*models.ModelPrediction, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.ModelPrediction
	err := s.db.WithContext(ctx).
		Model(&models.ModelPrediction{}).
		Where("season = ?", season).
		Where("round_num = ?", round).
		Where("match_id = ?", strings.TrimSpace(matchID)).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListPredictions(ctx context.Context, params repository.ListPredictionsParams) ([]models.ModelPrediction, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.ModelPrediction{})
	if params.Season != nil {
		query = query.Where("season = ?", *params.Season)
	}
	if params.Round != nil {
		query = query.Where("round_num = ?", *params.Round)
	}
	if params.OutcomeKnown != nil {
		query = query.Where("outcome_known = ?", *params.OutcomeKnown)
	}
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.ModelPrediction
	err := query.
		Order("season asc, round_num asc, match_id asc").
		Limit(limit).
		Offset(offset).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) LabelPredictionOutcomes(ctx context.Context, season int, round *int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	// Only rows whose label would actually change are touched, so a re-run
	// over already labeled data reports zero.
	sql := fmt.Sprintf(`
		UPDATE %s p
		   SET outcome_known = TRUE,
		       outcome_home_win = (m.home_score > m.away_score),
		       updated_at = NOW()
		  FROM %s m
		 WHERE m.match_id = p.match_id
		   AND p.season = ?
		   AND m.home_score IS NOT NULL
		   AND m.away_score IS NOT NULL
		   AND (p.outcome_known = FALSE
		        OR p.outcome_home_win IS DISTINCT FROM (m.home_score > m.away_score))`,
		models.ModelPrediction{}.TableName(), models.MatchFact{}.TableName())
	args := []any{season}
	if round != nil {
		sql += " AND p.round_num = ?"
		args = append(args, *round)
	}
	res := s.db.WithContext(ctx).Exec(sql, args...)
	return res.RowsAffected, res.Error
}

func (s *Store) BackfillPredictionCLV(ctx context.Context, season int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	sql := fmt.Sprintf(`
		UPDATE %s p
		   SET close_price = o.close_price,
		       clv_diff = o.close_price - p.odds_taken,
		       updated_at = NOW()
		  FROM %s o
		  JOIN %s m ON m.match_id = o.match_id
		 WHERE o.match_id = p.match_id
		   AND o.team = m.home_team
		   AND p.season = ?
		   AND o.close_price IS NOT NULL
		   AND p.close_price IS DISTINCT FROM o.close_price`,
		models.ModelPrediction{}.TableName(), models.OddsFact{}.TableName(), models.MatchFact{}.TableName())
	res := s.db.WithContext(ctx).Exec(sql, season)
	return res.RowsAffected, res.Error
}

func (s *Store) ListResolvedUnpredicted(ctx context.Context, season int, rounds []int) ([]models.MatchFact, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).
		Table(models.MatchFact{}.TableName()+" AS m").
		Joins(fmt.Sprintf("LEFT JOIN %s p ON p.match_id = m.match_id", models.ModelPrediction{}.TableName())).
		Where("m.season = ?", season).
		Where("m.home_score IS NOT NULL").
		Where("m.away_score IS NOT NULL").
		Where("p.match_id IS NULL")
	if len(rounds) > 0 {
		query = query.Where("m.round_num IN ?", rounds)
	}
	var items []models.MatchFact
	err := query.
		Select("m.*").
		Order("m.round_num asc, m.match_id asc").
		Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- Slips ------------------------------------------------------------------

func (s *Store) UpsertSlip(ctx context.Context, item *models.Slip) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.PortfolioID) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "portfolio_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"odds",
			"stake_units",
			"ev",
			"kelly_fraction",
			"status",
			"decision",
			"decline_reason",
			"stake_ladder_level",
			"model_version",
			"reason",
			"body",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetSlip(ctx context.Context, portfolioID string) (*models.Slip, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	portfolioID = strings.TrimSpace(portfolioID)
	if portfolioID == "" {
		return nil, nil
	}
	var item models.Slip
	err := s.db.WithContext(ctx).Model(&models.Slip{}).Where("portfolio_id = ?", portfolioID).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListSlips(ctx context.Context, params repository.ListSlipsParams) ([]models.Slip, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Slip{})
	if params.Season != nil {
		query = query.Where("season = ?", *params.Season)
	}
	if params.Round != nil {
		query = query.Where("round_num = ?", *params.Round)
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.MatchID != nil && strings.TrimSpace(*params.MatchID) != "" {
		query = query.Where("match_id = ?", strings.TrimSpace(*params.MatchID))
	}
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Slip
	err := query.
		Order("season asc, round_num asc, match_id asc").
		Limit(limit).
		Offset(offset).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpdateSlipStatus(ctx context.Context, portfolioID, from, to string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.Slip{}).
		Where("portfolio_id = ?", strings.TrimSpace(portfolioID)).
		Where("status = ?", from).
		Update("status", to)
	return res.RowsAffected, res.Error
}

func (s *Store) DeleteSlip(ctx context.Context, portfolioID string) error {
	if s == nil || s.db == nil {
		return nil
	}
	portfolioID = strings.TrimSpace(portfolioID)
	if portfolioID == "" {
		return nil
	}
	return s.db.WithContext(ctx).Where("portfolio_id = ?", portfolioID).Delete(&models.Slip{}).Error
}

// --- Run manifests and scraper observability ---------------------------------

func (s *Store) InsertRunManifest(ctx context.Context, item *models.RunManifest) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListRunManifests(ctx context.Context, limit int) ([]models.RunManifest, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	limit = normalizeLimit(limit, 50)
	var items []models.RunManifest
	err := s.db.WithContext(ctx).
		Model(&models.RunManifest{}).
		Order("created_at desc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpsertScraperRun(ctx context.Context, item *models.ScraperRun) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.RunID) == "" || strings.TrimSpace(item.Scraper) == "" {
		return nil
	}
	if item.StartedAt.IsZero() {
		item.StartedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "run_id"}, {Name: "scraper"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status",
			"dry_run",
			"rows_inserted",
			"rows_updated",
			"fetch_count",
			"last_error",
			"details",
			"finished_at",
		}),
	}).Create(item).Error
}

func (s *Store) ListScraperRuns(ctx context.Context, runID string) ([]models.ScraperRun, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, nil
	}
	var items []models.ScraperRun
	err := s.db.WithContext(ctx).
		Model(&models.ScraperRun{}).
		Where("run_id = ?", runID).
		Order("scraper asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) LatestScraperStatus(ctx context.Context) ([]models.ScraperRun, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	sql := fmt.Sprintf(`
		SELECT DISTINCT ON (scraper) *
		  FROM %s
		 ORDER BY scraper, started_at DESC`,
		models.ScraperRun{}.TableName())
	var items []models.ScraperRun
	if err := s.db.WithContext(ctx).Raw(sql).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Schema introspection and clean-layer rebuild -----------------------------

func (s *Store) RelationExists(ctx context.Context, schemaName, table string) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	if strings.TrimSpace(schemaName) == "" {
		schemaName = "public"
	}
	var exists bool
	err := s.db.WithContext(ctx).Raw(`
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			 WHERE table_schema = ? AND table_name = ?
		)`, schemaName, table).Scan(&exists).Error
	return exists, err
}

// CopySeasonFromLegacy rebuilds one season of the truth fixtures and odds
// from the same-shaped tables in the legacy schema, delete then reinsert,
// inside a single transaction. Schema names were validated at Configure so
// they are safe to splice into SQL.
func (s *Store) CopySeasonFromLegacy(ctx context.Context, season int) (repository.CopyCounts, error) {
	var counts repository.CopyCounts
	if s == nil || s.db == nil {
		return counts, nil
	}
	cfg := schema.Active()
	if cfg.OpsSchema == "" || cfg.OpsSchema == cfg.TruthSchema {
		return counts, errors.New("legacy rebuild needs a source schema distinct from the truth schema")
	}
	matchesDst := models.MatchFact{}.TableName()
	oddsDst := models.OddsFact{}.TableName()
	matchesSrc := cfg.OpsSchema + ".matches_raw"
	oddsSrc := cfg.OpsSchema + ".odds"
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE match_id IN (SELECT match_id FROM %s WHERE season = ?)", oddsDst, matchesDst), season).Error; err != nil {
			return err
		}
		if err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE season = ?", matchesDst), season).Error; err != nil {
			return err
		}
		res := tx.Exec(fmt.Sprintf(`
			INSERT INTO %s (match_id, season, round_num, match_date, venue, home_team, away_team, home_score, away_score)
			SELECT match_id, season, round_num, match_date, venue, home_team, away_team, home_score, away_score
			  FROM %s
			 WHERE season = ?`, matchesDst, matchesSrc), season)
		if res.Error != nil {
			return res.Error
		}
		counts.Matches = res.RowsAffected
		res = tx.Exec(fmt.Sprintf(`
			INSERT INTO %s (match_id, team, opening_price, close_price, last_price, steam_factor, captured_at)
			SELECT o.match_id, o.team, o.opening_price, o.close_price, o.last_price, o.steam_factor, o.captured_at
			  FROM %s o
			  JOIN %s m ON m.match_id = o.match_id
			 WHERE m.season = ?`, oddsDst, oddsSrc, matchesSrc), season)
		if res.Error != nil {
			return res.Error
		}
		counts.Odds = res.RowsAffected
		return nil
	})
	return counts, err
}

func (s *Store) GetLegacyMatch(ctx context.Context, matchID string) (*models.MatchFact, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	cfg := schema.Active()
	if cfg.OpsSchema == "" || cfg.OpsSchema == cfg.TruthSchema {
		return nil, nil
	}
	matchID = strings.TrimSpace(matchID)
	if matchID == "" {
		return nil, nil
	}
	var item models.MatchFact
	err := s.db.WithContext(ctx).
		Table(cfg.OpsSchema+".matches_raw").
		Where("match_id = ?", matchID).
		Take(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// --- helpers ----------------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	seen := map[string]struct{}{}
	for _, raw := range items {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		if _, ok := seen[val]; ok {
			continue
		}
		seen[val] = struct{}{}
		out = append(out, val)
	}
	return out
}

var _ repository.Repository = (*Store)(nil)
