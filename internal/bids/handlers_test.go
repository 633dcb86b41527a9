package bids

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"marketplace/internal/access"
	"marketplace/internal/credential"
	"marketplace/internal/database"
	"marketplace/internal/gateway"
	"marketplace/internal/jobs"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	router *gin.Engine
	repo   *Repository
	jobs   *jobs.Repository
}

func newTestEnv(t *testing.T, table *access.Table) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := database.NewMemoryStore()
	repo := NewRepository(store)
	jobRepo := jobs.NewRepository(store)
	policy := access.NewPolicy(table, nil)
	h := NewHandler(repo, jobs.NewService(jobRepo, nil), policy)

	stubGate := func(c *gin.Context) {
		email := c.GetHeader("X-Test-Email")
		if email == "" {
			gateway.AbortUnauthorized(c)
			return
		}
		gateway.SetClaim(c, credential.Claim{Email: email})
	}

	handlers := map[access.Operation]gin.HandlerFunc{
		access.OpCreateBid:       h.Create,
		access.OpListMyBids:      h.ListMine,
		access.OpListBidRequests: h.ListRequests,
		access.OpPatchBidStatus:  h.PatchStatus,
	}

	r := gin.New()
	for _, rule := range table.Rules() {
		handler, ok := handlers[rule.Operation]
		if !ok {
			continue
		}
		chain := []gin.HandlerFunc{}
		if rule.Auth {
			chain = append(chain, stubGate)
		}
		if rule.Check == access.CheckPathEmail {
			chain = append(chain, policy.RequirePathOwner(rule))
		}
		r.Handle(rule.Method, rule.Path, append(chain, handler)...)
	}
	return &testEnv{router: r, repo: repo, jobs: jobRepo}
}

func newTestRouter(t *testing.T, table *access.Table) (*gin.Engine, *Repository) {
	env := newTestEnv(t, table)
	return env.router, env.repo
}

func seedJob(t *testing.T, repo *jobs.Repository, buyer string) string {
	t.Helper()
	res, err := repo.Insert(context.Background(), jobs.Job{
		"job_title": "Logo design",
		"buyer":     map[string]any{"email": buyer},
	})
	require.NoError(t, err)
	return res.InsertedID
}

func do(r *gin.Engine, method, path, email, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if email != "" {
		req.Header.Set("X-Test-Email", email)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func seedBids(t *testing.T, repo *Repository) map[string]string {
	t.Helper()
	ids := map[string]string{}
	for name, bid := range map[string]Bid{
		"s1->a": {"email": "s1@x.com", "status": "Pending", "buyer": map[string]any{"email": "a@x.com"}},
		"s1->b": {"email": "s1@x.com", "status": "Pending", "buyer": map[string]any{"email": "b@x.com"}},
		"s2->a": {"email": "s2@x.com", "status": "Pending", "buyer": map[string]any{"email": "a@x.com"}},
	} {
		res, err := repo.Insert(context.Background(), bid)
		require.NoError(t, err)
		ids[name] = res.InsertedID
	}
	return ids
}

func decodeList(t *testing.T, w *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHandler_Create(t *testing.T) {
	r, repo := newTestRouter(t, access.CompatTable())

	w := do(r, http.MethodPost, "/bid", "", `{"email":"s1@x.com","price":50,"buyer":{"email":"a@x.com"}}`)
	require.Equal(t, http.StatusOK, w.Code)

	var res database.InsertResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	bid, err := repo.GetByID(context.Background(), res.InsertedID)
	require.NoError(t, err)
	assert.Equal(t, float64(50), bid["price"])
}

func TestHandler_CompatListings(t *testing.T) {
	r, repo := newTestRouter(t, access.CompatTable())
	seedBids(t, repo)

	// the listings require a credential but filter by the path email
	assert.Len(t, decodeList(t, do(r, http.MethodGet, "/my-bids/s1@x.com", "s1@x.com", "")), 2)
	assert.Len(t, decodeList(t, do(r, http.MethodGet, "/my-bids/s1@x.com", "s2@x.com", "")), 2)
	assert.Len(t, decodeList(t, do(r, http.MethodGet, "/bid-requests/a@x.com", "b@x.com", "")), 2)

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/my-bids/s1@x.com", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/bid-requests/a@x.com", "", "").Code)
}

func TestHandler_CompatPatchIsPublic(t *testing.T) {
	r, repo := newTestRouter(t, access.CompatTable())
	ids := seedBids(t, repo)

	w := do(r, http.MethodPatch, "/bid/"+ids["s1->a"], "", `{"status":"In Progress"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"acknowledged":true,"matchedCount":1,"modifiedCount":1,"upsertedCount":0,"upsertedId":null}`, w.Body.String())

	w = do(r, http.MethodPatch, "/bid/6f1c7c3e-1f7d-4b7a-9d55-0c3f3b8f9a10", "", `{"status":"Rejected"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"acknowledged":true,"matchedCount":0,"modifiedCount":0,"upsertedCount":0,"upsertedId":null}`, w.Body.String())

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPatch, "/bid/42", "", `{"status":"x"}`).Code)
}

func TestHandler_Hardened(t *testing.T) {
	r, repo := newTestRouter(t, access.HardenedTable())
	ids := seedBids(t, repo)

	t.Run("listings compare the path email", func(t *testing.T) {
		assert.Len(t, decodeList(t, do(r, http.MethodGet, "/my-bids/s1@x.com", "s1@x.com", "")), 2)
		assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/my-bids/s1@x.com", "s2@x.com", "").Code)
		assert.Len(t, decodeList(t, do(r, http.MethodGet, "/bid-requests/a@x.com", "a@x.com", "")), 2)
		assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/bid-requests/a@x.com", "b@x.com", "").Code)
	})

	t.Run("create requires the seller to be the caller", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, "/bid", "", `{"email":"s1@x.com"}`).Code)
		assert.Equal(t, http.StatusForbidden, do(r, http.MethodPost, "/bid", "s2@x.com", `{"email":"s1@x.com"}`).Code)
	})

	t.Run("patch requires the job owner", func(t *testing.T) {
		id := ids["s1->a"]
		assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodPatch, "/bid/"+id, "", `{"status":"x"}`).Code)
		assert.Equal(t, http.StatusForbidden, do(r, http.MethodPatch, "/bid/"+id, "s1@x.com", `{"status":"x"}`).Code)
		assert.Equal(t, http.StatusNotFound, do(r, http.MethodPatch, "/bid/6f1c7c3e-1f7d-4b7a-9d55-0c3f3b8f9a10", "a@x.com", `{"status":"x"}`).Code)
		assert.Equal(t, http.StatusOK, do(r, http.MethodPatch, "/bid/"+id, "a@x.com", `{"status":"In Progress"}`).Code)

		bid, err := repo.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, "In Progress", bid["status"])
	})
}

func TestHandler_HardenedCreateTakesBuyerFromJob(t *testing.T) {
	env := newTestEnv(t, access.HardenedTable())
	r := env.router
	jobID := seedJob(t, env.jobs, "b@x.com")

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing job id", `{"email":"m@x.com"}`, http.StatusBadRequest},
		{"unknown job", `{"email":"m@x.com","jobId":"6f1c7c3e-1f7d-4b7a-9d55-0c3f3b8f9a10"}`, http.StatusNotFound},
		{"self-named buyer", `{"email":"m@x.com","jobId":"` + jobID + `","buyer":{"email":"m@x.com"}}`, http.StatusForbidden},
		{"buyer other than the job owner", `{"email":"m@x.com","jobId":"` + jobID + `","buyer":{"email":"v@x.com"}}`, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/bid", "m@x.com", tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	t.Run("bid on own job", func(t *testing.T) {
		w := do(r, http.MethodPost, "/bid", "b@x.com", `{"email":"b@x.com","jobId":"`+jobID+`"}`)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	all, err := env.repo.Find(context.Background(), database.Filter{})
	require.NoError(t, err)
	assert.Empty(t, all)

	t.Run("buyer is pinned and the seller cannot approve", func(t *testing.T) {
		w := do(r, http.MethodPost, "/bid", "m@x.com", `{"email":"m@x.com","jobId":"`+jobID+`","status":"Pending"}`)
		require.Equal(t, http.StatusOK, w.Code)

		var res database.InsertResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		bid, err := env.repo.GetByID(context.Background(), res.InsertedID)
		require.NoError(t, err)
		buyer, _ := database.LookupString(bid, access.BidRequestOwnerField)
		assert.Equal(t, "b@x.com", buyer)

		w = do(r, http.MethodPatch, "/bid/"+res.InsertedID, "m@x.com", `{"status":"In Progress"}`)
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = do(r, http.MethodPatch, "/bid/"+res.InsertedID, "b@x.com", `{"status":"In Progress"}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decodeList(t, do(r, http.MethodGet, "/bid-requests/b@x.com", "b@x.com", "")), 1)
	})
}
