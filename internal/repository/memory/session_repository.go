package memory

import (
	"context"
	"sync"
	"time"

	"ai-slidegen-be/internal/repository/contract"
	"ai-slidegen-be/pkg/pipeline"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// SessionRepository is the in-memory store used in development and tests.
// The mutex makes CompareAndSwap atomic; sessions are deep-copied on every
// read and write so callers never share state with the store.
type SessionRepository struct {
	mu    sync.Mutex
	cache *cache.Cache
}

func NewSessionRepository() *SessionRepository {
	// No default expiration; retention is handled by the cleanup sweep.
	c := cache.New(cache.NoExpiration, 10*time.Minute)
	return &SessionRepository{cache: c}
}

var _ contract.SessionRepository = (*SessionRepository)(nil)

func (r *SessionRepository) Create(_ context.Context, session *pipeline.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Add(session.ID.String(), session.Clone(), cache.NoExpiration)
}

func (r *SessionRepository) Load(_ context.Context, id uuid.UUID) (*pipeline.Session, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	x, found := r.cache.Get(id.String())
	if !found {
		return nil, 0, pipeline.ErrSessionNotFound
	}
	s := x.(*pipeline.Session).Clone()
	return s, s.CheckpointVersion, nil
}

func (r *SessionRepository) CompareAndSwap(_ context.Context, id uuid.UUID, expectedVersion int64, session *pipeline.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	x, found := r.cache.Get(id.String())
	if !found {
		return pipeline.ErrSessionNotFound
	}
	if x.(*pipeline.Session).CheckpointVersion != expectedVersion {
		return pipeline.ErrStaleCheckpoint
	}

	next := session.Clone()
	next.CheckpointVersion = expectedVersion + 1
	r.cache.Set(id.String(), next, cache.NoExpiration)
	session.CheckpointVersion = expectedVersion + 1
	return nil
}

func (r *SessionRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Delete(id.String())
	return nil
}

func (r *SessionRepository) DeleteTerminatedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for key, item := range r.cache.Items() {
		s := item.Object.(*pipeline.Session)
		if s.Status.Terminal() && s.UpdatedAt.Before(cutoff) {
			r.cache.Delete(key)
			deleted++
		}
	}
	return deleted, nil
}
