package project

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/layertune/api/internal/model"
)

// Repository persists project snapshots. Load's second return is false when no
// snapshot exists for the id.
type Repository interface {
	Load(ctx context.Context, projectID string) (model.Project, bool, error)
	Save(ctx context.Context, p model.Project) error
	Delete(ctx context.Context, projectID string) error
}

// RedisRepository stores one JSON record per project.
type RedisRepository struct {
	redis *redis.Client
}

func NewRedisRepository(redisClient *redis.Client) *RedisRepository {
	return &RedisRepository{redis: redisClient}
}

func projectKey(id string) string {
	return fmt.Sprintf("project:%s", id)
}

func (r *RedisRepository) Load(ctx context.Context, projectID string) (model.Project, bool, error) {
	data, err := r.redis.Get(ctx, projectKey(projectID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return model.Project{}, false, nil
		}
		return model.Project{}, false, err
	}

	var p model.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return model.Project{}, false, fmt.Errorf("failed to unmarshal project: %w", err)
	}
	return p, true, nil
}

func (r *RedisRepository) Save(ctx context.Context, p model.Project) error {
	data, err := json.Marshal(stripTransient(p))
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}
	return r.redis.Set(ctx, projectKey(p.ID), data, 0).Err()
}

func (r *RedisRepository) Delete(ctx context.Context, projectID string) error {
	return r.redis.Del(ctx, projectKey(projectID)).Err()
}

// stripTransient clears in-flight generation statuses before persisting. The
// polling loop behind a status dies with the process, so a persisted status
// could never resolve.
func stripTransient(p model.Project) model.Project {
	out := p.Clone()
	for i := range out.Layers {
		out.Layers[i].GenerationStatus = model.GenerationNone
	}
	return out
}

// MemoryRepository keeps snapshots in process memory. Used in tests and as a
// fallback when Redis is not configured.
type MemoryRepository struct {
	mu       sync.RWMutex
	projects map[string]model.Project
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{projects: make(map[string]model.Project)}
}

func (r *MemoryRepository) Load(ctx context.Context, projectID string) (model.Project, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[projectID]
	if !ok {
		return model.Project{}, false, nil
	}
	return p.Clone(), true, nil
}

func (r *MemoryRepository) Save(ctx context.Context, p model.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projects[p.ID] = stripTransient(p)
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, projectID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.projects, projectID)
	return nil
}
