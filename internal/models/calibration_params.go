package models

import (
	"time"

	"gorm.io/datatypes"

	"nrlengine/internal/schema"
)

// CalibrationParams is the fitted recalibration for one season. Refits
// replace the row; fitted_at is the version marker. Historical predictions
// keep the calibrated_p they were written with, so replacing params never
// rewrites past audit rows.
type CalibrationParams struct {
	Season   int            `gorm:"primaryKey"`
	Params   datatypes.JSON `gorm:"type:jsonb;not null"`
	FittedAt time.Time      `gorm:"type:timestamptz;not null"`
}

func (CalibrationParams) TableName() string {
	return schema.Ops("calibration_params")
}
