package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// GenerationSession is the durable checkpoint row for one session. Artifact
// columns are JSONB snapshots; CheckpointVersion guards conditional writes.
type GenerationSession struct {
	Id                uuid.UUID `gorm:"primaryKey"`
	Status            string
	CurrentStage      string
	Topic             string
	SourceFiles       datatypes.JSON
	KnowledgeBase     datatypes.JSON
	OrderForm         datatypes.JSON
	Skeleton          datatypes.JSON
	EnrichedContent   datatypes.JSON
	RenderedOutput    datatypes.JSON
	QaReport          datatypes.JSON
	FailureReason     string
	CheckpointVersion int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
