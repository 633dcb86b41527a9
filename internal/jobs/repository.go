package jobs

import (
	"context"
	"errors"
	"fmt"

	"marketplace/internal/database"
)

// Repository reads and writes the jobs collection.
type Repository struct {
	coll database.Collection
}

// NewRepository creates a repository over the jobs collection of db.
func NewRepository(db database.Service) *Repository {
	return &Repository{coll: db.Collection(CollectionName)}
}

// Find returns every job matching filter.
func (r *Repository) Find(ctx context.Context, filter database.Filter) ([]Job, error) {
	docs, err := r.coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find jobs: %w", err)
	}
	return docs, nil
}

// GetByID returns the job with id.
func (r *Repository) GetByID(ctx context.Context, id string) (Job, error) {
	doc, err := r.coll.FindOne(ctx, database.Filter{database.IDField: id})
	if errors.Is(err, database.ErrNoDocuments) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return doc, nil
}

// Insert stores a new job under a generated id.
func (r *Repository) Insert(ctx context.Context, job Job) (database.InsertResult, error) {
	delete(job, database.IDField)
	res, err := r.coll.InsertOne(ctx, job)
	if err != nil {
		return database.InsertResult{}, fmt.Errorf("failed to insert job: %w", err)
	}
	return res, nil
}

// Upsert sets fields on the job with id, creating it when absent. A guard
// that does not match an existing job fails with database.ErrDuplicateID.
func (r *Repository) Upsert(ctx context.Context, id string, guard database.Filter, set database.Document) (database.UpdateResult, error) {
	res, err := r.coll.UpdateOne(ctx,
		database.ByID(id, guard),
		database.Update{Set: set},
		database.UpdateOptions{Upsert: true},
	)
	if err != nil {
		return database.UpdateResult{}, fmt.Errorf("failed to update job: %w", err)
	}
	return res, nil
}

// Delete removes the job with id when it also matches guard.
func (r *Repository) Delete(ctx context.Context, id string, guard database.Filter) (database.DeleteResult, error) {
	res, err := r.coll.DeleteOne(ctx, database.ByID(id, guard))
	if err != nil {
		return database.DeleteResult{}, fmt.Errorf("failed to delete job: %w", err)
	}
	return res, nil
}
