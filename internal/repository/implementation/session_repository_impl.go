package implementation

import (
	"context"
	"errors"
	"time"

	"ai-slidegen-be/internal/entity"
	"ai-slidegen-be/internal/mapper"
	"ai-slidegen-be/internal/repository/contract"
	"ai-slidegen-be/pkg/pipeline"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type sessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) contract.SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(ctx context.Context, session *pipeline.Session) error {
	ent, err := mapper.SessionToEntity(session)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(ent).Error
}

func (r *sessionRepository) Load(ctx context.Context, id uuid.UUID) (*pipeline.Session, int64, error) {
	var ent entity.GenerationSession
	err := r.db.WithContext(ctx).First(&ent, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, 0, pipeline.ErrSessionNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	s, err := mapper.SessionToDomain(&ent)
	if err != nil {
		return nil, 0, err
	}
	return s, s.CheckpointVersion, nil
}

// CompareAndSwap persists the snapshot with a version-guarded UPDATE. The
// WHERE clause on checkpoint_version serializes all writers without taking
// in-process locks, so transitions stay safe across process restarts.
func (r *sessionRepository) CompareAndSwap(ctx context.Context, id uuid.UUID, expectedVersion int64, session *pipeline.Session) error {
	next := session.Clone()
	next.CheckpointVersion = expectedVersion + 1
	ent, err := mapper.SessionToEntity(next)
	if err != nil {
		return err
	}

	result := r.db.WithContext(ctx).
		Model(&entity.GenerationSession{}).
		Where("id = ? AND checkpoint_version = ?", id, expectedVersion).
		Select("*").
		Omit("id", "created_at").
		Updates(ent)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&entity.GenerationSession{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return pipeline.ErrSessionNotFound
		}
		return pipeline.ErrStaleCheckpoint
	}

	session.CheckpointVersion = expectedVersion + 1
	return nil
}

func (r *sessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&entity.GenerationSession{}, "id = ?", id).Error
}

func (r *sessionRepository) DeleteTerminatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	terminal := []string{
		string(pipeline.StatusCompleted),
		string(pipeline.StatusFailed),
		string(pipeline.StatusCancelled),
	}
	result := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", terminal, cutoff).
		Delete(&entity.GenerationSession{})
	return result.RowsAffected, result.Error
}
