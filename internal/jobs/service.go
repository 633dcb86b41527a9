package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"marketplace/internal/cache"
	"marketplace/internal/database"
)

const (
	allJobsKey = "jobs:all"
	listTTL    = 2 * time.Minute
	jobTTL     = 5 * time.Minute
)

func jobKey(id string) string {
	return "job:" + id
}

// Service handles job operations, caching the public reads when a cache
// is configured.
type Service struct {
	repo  *Repository
	cache cache.Store
}

// NewService creates a service. store may be nil, which disables caching.
func NewService(repo *Repository, store cache.Store) *Service {
	return &Service{repo: repo, cache: store}
}

// ListAll returns every job.
func (s *Service) ListAll(ctx context.Context) ([]Job, error) {
	var cached []Job
	if s.cacheGet(ctx, allJobsKey, &cached) {
		return cached, nil
	}

	jobs, err := s.repo.Find(ctx, database.Filter{})
	if err != nil {
		return nil, err
	}

	s.cacheSet(ctx, allJobsKey, jobs, listTTL)
	return jobs, nil
}

// Get returns one job.
func (s *Service) Get(ctx context.Context, id string) (Job, error) {
	var cached Job
	if s.cacheGet(ctx, jobKey(id), &cached) {
		return cached, nil
	}

	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheSet(ctx, jobKey(id), job, jobTTL)
	return job, nil
}

// Stored returns the job as stored, bypassing the cache. Ownership checks read through it.
func (s *Service) Stored(ctx context.Context, id string) (Job, error) {
	return s.repo.GetByID(ctx, id)
}

// FindByOwner returns the jobs matching an owner filter built by the policy.
func (s *Service) FindByOwner(ctx context.Context, filter database.Filter) ([]Job, error) {
	return s.repo.Find(ctx, filter)
}

// Create stores a new job.
func (s *Service) Create(ctx context.Context, job Job) (database.InsertResult, error) {
	res, err := s.repo.Insert(ctx, job)
	if err != nil {
		return res, err
	}
	s.invalidate(ctx)
	return res, nil
}

// Update sets fields on a job, creating it when absent. guard narrows the
// match, nil for none.
func (s *Service) Update(ctx context.Context, id string, guard database.Filter, set database.Document) (database.UpdateResult, error) {
	res, err := s.repo.Upsert(ctx, id, guard, set)
	if err != nil {
		return res, err
	}
	s.invalidate(ctx, id)
	return res, nil
}

// Delete removes a job. guard narrows the match, nil for none.
func (s *Service) Delete(ctx context.Context, id string, guard database.Filter) (database.DeleteResult, error) {
	res, err := s.repo.Delete(ctx, id, guard)
	if err != nil {
		return res, err
	}
	s.invalidate(ctx, id)
	return res, nil
}

func (s *Service) cacheGet(ctx context.Context, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		slog.Warn("Discarding undecodable cache entry", "key", key, "error", err)
		return false
	}
	slog.Debug("Cache hit", "key", key)
	return true
}

func (s *Service) cacheSet(ctx context.Context, key string, value any, ttl time.Duration) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, string(data), ttl); err != nil {
		slog.Warn("Failed to write cache entry", "key", key, "error", err)
	}
}

func (s *Service) invalidate(ctx context.Context, ids ...string) {
	if s.cache == nil {
		return
	}
	keys := []string{allJobsKey}
	for _, id := range ids {
		keys = append(keys, jobKey(id))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		slog.Warn("Failed to invalidate cache", "keys", keys, "error", err)
	}
}
