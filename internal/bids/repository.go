package bids

import (
	"context"
	"errors"
	"fmt"

	"marketplace/internal/database"
)

// Repository reads and writes the bids collection.
type Repository struct {
	coll database.Collection
}

// NewRepository creates a repository over the bids collection of db.
func NewRepository(db database.Service) *Repository {
	return &Repository{coll: db.Collection(CollectionName)}
}

// Find returns every bid matching filter.
func (r *Repository) Find(ctx context.Context, filter database.Filter) ([]Bid, error) {
	docs, err := r.coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find bids: %w", err)
	}
	return docs, nil
}

// GetByID returns the bid with id.
func (r *Repository) GetByID(ctx context.Context, id string) (Bid, error) {
	doc, err := r.coll.FindOne(ctx, database.Filter{database.IDField: id})
	if errors.Is(err, database.ErrNoDocuments) {
		return nil, ErrBidNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bid: %w", err)
	}
	return doc, nil
}

// Insert stores a new bid under a generated id.
func (r *Repository) Insert(ctx context.Context, bid Bid) (database.InsertResult, error) {
	delete(bid, database.IDField)
	res, err := r.coll.InsertOne(ctx, bid)
	if err != nil {
		return database.InsertResult{}, fmt.Errorf("failed to insert bid: %w", err)
	}
	return res, nil
}

// Set assigns fields on the bid with id when it also matches guard. A
// missing bid matches nothing.
func (r *Repository) Set(ctx context.Context, id string, guard database.Filter, set database.Document) (database.UpdateResult, error) {
	res, err := r.coll.UpdateOne(ctx,
		database.ByID(id, guard),
		database.Update{Set: set},
		database.UpdateOptions{},
	)
	if err != nil {
		return database.UpdateResult{}, fmt.Errorf("failed to update bid: %w", err)
	}
	return res, nil
}
