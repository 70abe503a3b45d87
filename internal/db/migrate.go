package db

import (
	"nrlengine/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		// Truth layer.
		&models.MatchFact{},
		&models.OddsFact{},
		&models.TeamRating{},
		&models.InjurySnapshot{},
		&models.IngestionProvenance{},
		// Ops layer.
		&models.DataQualityReport{},
		&models.CalibrationParams{},
		&models.ModelRegistryEntry{},
		&models.ModelPrediction{},
		&models.Slip{},
		&models.RunManifest{},
		&models.ScraperRun{},
	)
}
