package indexer

import (
	"time"

	"github.com/google/uuid"
)

// Record is a persisted engine event.
type Record struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Type        string    `gorm:"size:64;index"`
	Fingerprint string    `gorm:"size:64;index"`
	Account     string    `gorm:"size:42;index"`
	// Attributes holds the rendered event attributes as a JSON object.
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"index"`
}

func (Record) TableName() string { return "dsc_events" }
