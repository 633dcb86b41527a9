package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCollectionContract exercises the behaviour every Collection must share.
func runCollectionContract(t *testing.T, newCollection func(t *testing.T) Collection) {
	ctx := context.Background()

	t.Run("insert assigns id and find filters by dotted path", func(t *testing.T) {
		coll := newCollection(t)

		first, err := coll.InsertOne(ctx, Document{"title": "Logo", "buyer": map[string]any{"email": "a@x.com"}})
		require.NoError(t, err)
		assert.True(t, first.Acknowledged)
		assert.NotEmpty(t, first.InsertedID)

		_, err = coll.InsertOne(ctx, Document{"title": "Site", "buyer": map[string]any{"email": "b@x.com"}})
		require.NoError(t, err)

		all, err := coll.Find(ctx, Filter{})
		require.NoError(t, err)
		assert.Len(t, all, 2)

		mine, err := coll.Find(ctx, Filter{"buyer.email": "a@x.com"})
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, "Logo", mine[0]["title"])
		assert.Equal(t, first.InsertedID, mine[0].ID())

		none, err := coll.Find(ctx, Filter{"buyer.email": "nobody@x.com"})
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
	})

	t.Run("findOne by id and missing document", func(t *testing.T) {
		coll := newCollection(t)

		res, err := coll.InsertOne(ctx, Document{"title": "Logo", "price": 120})
		require.NoError(t, err)

		doc, err := coll.FindOne(ctx, Filter{IDField: res.InsertedID})
		require.NoError(t, err)
		assert.Equal(t, "Logo", doc["title"])
		assert.Equal(t, float64(120), doc["price"])

		_, err = coll.FindOne(ctx, Filter{IDField: "00000000-0000-0000-0000-000000000000"})
		assert.ErrorIs(t, err, ErrNoDocuments)
	})

	t.Run("insert rejects duplicate ids", func(t *testing.T) {
		coll := newCollection(t)

		_, err := coll.InsertOne(ctx, Document{IDField: "11111111-1111-1111-1111-111111111111"})
		require.NoError(t, err)
		_, err = coll.InsertOne(ctx, Document{IDField: "11111111-1111-1111-1111-111111111111"})
		assert.ErrorIs(t, err, ErrDuplicateID)
	})

	t.Run("updateOne sets fields and reports counts", func(t *testing.T) {
		coll := newCollection(t)

		res, err := coll.InsertOne(ctx, Document{"status": "Pending", "buyer": map[string]any{"email": "a@x.com"}})
		require.NoError(t, err)
		byID := Filter{IDField: res.InsertedID}

		updated, err := coll.UpdateOne(ctx, byID, Update{Set: Document{"status": "In Progress"}}, UpdateOptions{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), updated.MatchedCount)
		assert.Equal(t, int64(1), updated.ModifiedCount)
		assert.Nil(t, updated.UpsertedID)

		same, err := coll.UpdateOne(ctx, byID, Update{Set: Document{"status": "In Progress"}}, UpdateOptions{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), same.MatchedCount)
		assert.Equal(t, int64(0), same.ModifiedCount)

		nested, err := coll.UpdateOne(ctx, byID, Update{Set: Document{"buyer.name": "Ada", IDField: "ignored"}}, UpdateOptions{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), nested.ModifiedCount)

		doc, err := coll.FindOne(ctx, byID)
		require.NoError(t, err)
		assert.Equal(t, "In Progress", doc["status"])
		assert.Equal(t, map[string]any{"email": "a@x.com", "name": "Ada"}, doc["buyer"])
		assert.Equal(t, res.InsertedID, doc.ID())
	})

	t.Run("updateOne without upsert leaves collection untouched", func(t *testing.T) {
		coll := newCollection(t)

		res, err := coll.UpdateOne(ctx, Filter{IDField: "22222222-2222-2222-2222-222222222222"},
			Update{Set: Document{"status": "x"}}, UpdateOptions{})
		require.NoError(t, err)
		assert.Equal(t, int64(0), res.MatchedCount)
		assert.Equal(t, int64(0), res.UpsertedCount)

		all, err := coll.Find(ctx, Filter{})
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("updateOne upserts from filter and set", func(t *testing.T) {
		coll := newCollection(t)
		id := "33333333-3333-3333-3333-333333333333"

		res, err := coll.UpdateOne(ctx, Filter{IDField: id}, Update{Set: Document{"title": "New"}}, UpdateOptions{Upsert: true})
		require.NoError(t, err)
		assert.Equal(t, int64(0), res.MatchedCount)
		assert.Equal(t, int64(1), res.UpsertedCount)
		require.NotNil(t, res.UpsertedID)
		assert.Equal(t, id, *res.UpsertedID)

		doc, err := coll.FindOne(ctx, Filter{IDField: id})
		require.NoError(t, err)
		assert.Equal(t, "New", doc["title"])
	})

	t.Run("guarded upsert does not take over an existing id", func(t *testing.T) {
		coll := newCollection(t)

		res, err := coll.InsertOne(ctx, Document{"title": "Logo", "buyer": map[string]any{"email": "b@x.com"}})
		require.NoError(t, err)

		guard := Filter{IDField: res.InsertedID, "buyer.email": "a@x.com"}
		_, err = coll.UpdateOne(ctx, guard, Update{Set: Document{"title": "Taken"}}, UpdateOptions{Upsert: true})
		require.ErrorIs(t, err, ErrDuplicateID)

		all, err := coll.Find(ctx, Filter{})
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "Logo", all[0]["title"])
	})

	t.Run("deleteOne removes a single match", func(t *testing.T) {
		coll := newCollection(t)

		res, err := coll.InsertOne(ctx, Document{"title": "Logo"})
		require.NoError(t, err)

		deleted, err := coll.DeleteOne(ctx, Filter{IDField: res.InsertedID})
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted.DeletedCount)

		again, err := coll.DeleteOne(ctx, Filter{IDField: res.InsertedID})
		require.NoError(t, err)
		assert.Equal(t, int64(0), again.DeletedCount)
	})
}
