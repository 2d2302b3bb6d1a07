package memory

import (
	"context"
	"testing"
	"time"

	"ai-slidegen-be/pkg/pipeline"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCreateAndLoadAreIsolated(t *testing.T) {
	repo := NewSessionRepository()
	ctx := context.Background()

	s := pipeline.NewSession("Consensus", nil)
	assert.NoError(t, repo.Create(ctx, s))

	loaded, version, err := repo.Load(ctx, s.ID)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), version)
	assert.Equal(t, s.ID, loaded.ID)

	// Mutating a loaded copy must not leak into the store.
	loaded.Topic = "changed"
	again, _, _ := repo.Load(ctx, s.ID)
	assert.Equal(t, "Consensus", again.Topic)
}

func TestCreateRejectsDuplicate(t *testing.T) {
	repo := NewSessionRepository()
	ctx := context.Background()

	s := pipeline.NewSession("Consensus", nil)
	assert.NoError(t, repo.Create(ctx, s))
	assert.Error(t, repo.Create(ctx, s))
}

func TestLoadUnknownSession(t *testing.T) {
	repo := NewSessionRepository()

	_, _, err := repo.Load(context.Background(), uuid.New())
	assert.ErrorIs(t, err, pipeline.ErrSessionNotFound)
}

func TestCompareAndSwapAdvancesVersion(t *testing.T) {
	repo := NewSessionRepository()
	ctx := context.Background()

	s := pipeline.NewSession("Consensus", nil)
	assert.NoError(t, repo.Create(ctx, s))

	s.Status = pipeline.StatusSynthesizing
	assert.NoError(t, repo.CompareAndSwap(ctx, s.ID, 0, s))
	assert.Equal(t, int64(1), s.CheckpointVersion, "caller sees the advanced version")

	loaded, version, err := repo.Load(ctx, s.ID)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), version)
	assert.Equal(t, pipeline.StatusSynthesizing, loaded.Status)
}

func TestCompareAndSwapRejectsStaleVersion(t *testing.T) {
	repo := NewSessionRepository()
	ctx := context.Background()

	s := pipeline.NewSession("Consensus", nil)
	assert.NoError(t, repo.Create(ctx, s))
	assert.NoError(t, repo.CompareAndSwap(ctx, s.ID, 0, s))

	stale := s.Clone()
	err := repo.CompareAndSwap(ctx, s.ID, 0, stale)
	assert.ErrorIs(t, err, pipeline.ErrStaleCheckpoint)

	// The losing write must not have been applied.
	_, version, _ := repo.Load(ctx, s.ID)
	assert.Equal(t, int64(1), version)
}

func TestCompareAndSwapUnknownSession(t *testing.T) {
	repo := NewSessionRepository()

	s := pipeline.NewSession("Consensus", nil)
	err := repo.CompareAndSwap(context.Background(), s.ID, 0, s)
	assert.ErrorIs(t, err, pipeline.ErrSessionNotFound)
}

func TestDeleteTerminatedBefore(t *testing.T) {
	repo := NewSessionRepository()
	ctx := context.Background()
	cutoff := time.Now().UTC()

	oldCompleted := pipeline.NewSession("done", nil)
	oldCompleted.Status = pipeline.StatusCompleted
	oldCompleted.UpdatedAt = cutoff.Add(-time.Hour)

	oldActive := pipeline.NewSession("active", nil)
	oldActive.Status = pipeline.StatusEnriching
	oldActive.UpdatedAt = cutoff.Add(-time.Hour)

	freshFailed := pipeline.NewSession("fresh", nil)
	freshFailed.Status = pipeline.StatusFailed
	freshFailed.UpdatedAt = cutoff.Add(time.Hour)

	for _, s := range []*pipeline.Session{oldCompleted, oldActive, freshFailed} {
		assert.NoError(t, repo.Create(ctx, s))
	}

	deleted, err := repo.DeleteTerminatedBefore(ctx, cutoff)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, _, err = repo.Load(ctx, oldCompleted.ID)
	assert.ErrorIs(t, err, pipeline.ErrSessionNotFound)

	_, _, err = repo.Load(ctx, oldActive.ID)
	assert.NoError(t, err, "non-terminal sessions are never swept")

	_, _, err = repo.Load(ctx, freshFailed.ID)
	assert.NoError(t, err, "terminal sessions inside the retention window are kept")
}
