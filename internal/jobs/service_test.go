package jobs

import (
	"context"
	"testing"

	"marketplace/internal/cache"
	"marketplace/internal/database"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCollection struct {
	database.Collection
	finds int
}

func (c *countingCollection) Find(ctx context.Context, filter database.Filter) ([]database.Document, error) {
	c.finds++
	return c.Collection.Find(ctx, filter)
}

func (c *countingCollection) FindOne(ctx context.Context, filter database.Filter) (database.Document, error) {
	c.finds++
	return c.Collection.FindOne(ctx, filter)
}

func newCachedService(t *testing.T) (*Service, *countingCollection, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := cache.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = store.Close() })

	coll := &countingCollection{Collection: database.NewMemoryStore().Collection(CollectionName)}
	return NewService(&Repository{coll: coll}, store), coll, mr
}

func TestService_ListAllIsCached(t *testing.T) {
	ctx := context.Background()
	svc, coll, mr := newCachedService(t)

	_, err := svc.Create(ctx, Job{"job_title": "Logo"})
	require.NoError(t, err)

	first, err := svc.ListAll(ctx)
	require.NoError(t, err)
	second, err := svc.ListAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, coll.finds)
	assert.True(t, mr.Exists(allJobsKey))

	_, err = svc.Create(ctx, Job{"job_title": "Site"})
	require.NoError(t, err)
	assert.False(t, mr.Exists(allJobsKey))

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, 2, coll.finds)
}

func TestService_GetIsCachedAndInvalidated(t *testing.T) {
	ctx := context.Background()
	svc, coll, mr := newCachedService(t)

	res, err := svc.Create(ctx, Job{"job_title": "Logo"})
	require.NoError(t, err)
	id := res.InsertedID

	_, err = svc.Get(ctx, id)
	require.NoError(t, err)
	_, err = svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, coll.finds)

	_, err = svc.Update(ctx, id, nil, database.Document{"job_title": "Rebrand"})
	require.NoError(t, err)
	assert.False(t, mr.Exists(jobKey(id)))

	job, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Rebrand", job["job_title"])

	_, err = svc.Delete(ctx, id, nil)
	require.NoError(t, err)
	_, err = svc.Get(ctx, id)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestService_WithoutCache(t *testing.T) {
	ctx := context.Background()
	coll := &countingCollection{Collection: database.NewMemoryStore().Collection(CollectionName)}
	svc := NewService(&Repository{coll: coll}, nil)

	_, err := svc.ListAll(ctx)
	require.NoError(t, err)
	_, err = svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, coll.finds)
}

func TestService_StoredBypassesCache(t *testing.T) {
	ctx := context.Background()
	svc, coll, _ := newCachedService(t)

	res, err := svc.Create(ctx, Job{"buyer": map[string]any{"email": "a@x.com"}})
	require.NoError(t, err)

	_, err = svc.Get(ctx, res.InsertedID)
	require.NoError(t, err)
	_, err = svc.Stored(ctx, res.InsertedID)
	require.NoError(t, err)
	assert.Equal(t, 2, coll.finds)
}

func TestService_GuardedWritesFollowTheCurrentOwner(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewRepository(database.NewMemoryStore()), nil)

	res, err := svc.Create(ctx, Job{"job_title": "Logo", "buyer": map[string]any{"email": "b@x.com"}})
	require.NoError(t, err)
	id := res.InsertedID

	// a@x.com passed an owner check, then ownership moved to b@x.com
	guard := database.Filter{"buyer.email": "a@x.com"}

	_, err = svc.Update(ctx, id, guard, database.Document{"job_title": "Hijacked"})
	assert.ErrorIs(t, err, database.ErrDuplicateID)

	deleted, err := svc.Delete(ctx, id, guard)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted.DeletedCount)

	job, err := svc.Stored(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Logo", job["job_title"])
}
