package group

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore-backend/internal/repository/memory"
	"chatcore-backend/internal/service/membership"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
}

type groupJSON struct {
	ID      uuid.UUID   `json:"group_id"`
	Members []uuid.UUID `json:"members"`
	Admins  []uuid.UUID `json:"admins"`
	Link    string      `json:"link"`
}

func newRouter() *gin.Engine {
	h := NewHandler(membership.NewService(memory.NewGroupRepository(), nil, nil, nil))

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if id, err := uuid.Parse(c.GetHeader("X-Test-User")); err == nil {
			c.Set("user_id", id)
		}
		c.Next()
	})
	groups := r.Group("/v1/groups")
	groups.POST("", h.CreateGroup)
	groups.GET("", h.ListMyGroups)
	groups.GET("/public", h.ListPublicGroups)
	groups.GET("/:id", h.GetGroup)
	groups.POST("/:id/join", h.JoinGroup)
	groups.POST("/:id/members", h.AddMember)
	groups.DELETE("/:id/members/:user_id", h.RemoveMember)
	groups.POST("/:id/admins", h.PromoteAdmin)
	groups.DELETE("/:id/admins/:user_id", h.DemoteAdmin)
	return r
}

func do(t *testing.T, r *gin.Engine, method, path string, caller uuid.UUID, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if caller != uuid.Nil {
		req.Header.Set("X-Test-User", caller.String())
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func create(t *testing.T, r *gin.Engine, owner uuid.UUID, visibility string) groupJSON {
	t.Helper()

	w, env := do(t, r, http.MethodPost, "/v1/groups", owner, gin.H{"name": "team", "visibility": visibility})
	require.Equal(t, http.StatusCreated, w.Code)
	var g groupJSON
	require.NoError(t, json.Unmarshal(env.Data, &g))
	return g
}

func TestCreateGroup(t *testing.T) {
	r := newRouter()
	owner := uuid.New()

	// Execute
	g := create(t, r, owner, "private")

	// Assert
	assert.Equal(t, []uuid.UUID{owner}, g.Members)
	assert.Equal(t, []uuid.UUID{owner}, g.Admins)
	assert.Equal(t, "/group/"+g.ID.String(), g.Link)
}

func TestCreateGroupRequiresName(t *testing.T) {
	r := newRouter()

	w, env := do(t, r, http.MethodPost, "/v1/groups", uuid.New(), gin.H{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, env.Success)
}

func TestCreateGroupUnauthenticated(t *testing.T) {
	r := newRouter()

	w, _ := do(t, r, http.MethodPost, "/v1/groups", uuid.Nil, gin.H{"name": "team"})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMemberLifecycle(t *testing.T) {
	r := newRouter()
	owner, bob := uuid.New(), uuid.New()
	g := create(t, r, owner, "private")
	base := "/v1/groups/" + g.ID.String()

	// Non-members cannot read a private group
	w, env := do(t, r, http.MethodGet, base, bob, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	w, _ = do(t, r, http.MethodPost, base+"/members", owner, gin.H{"user_id": bob})
	require.Equal(t, http.StatusOK, w.Code)

	// A plain member cannot promote
	w, _ = do(t, r, http.MethodPost, base+"/admins", bob, gin.H{"user_id": bob})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = do(t, r, http.MethodPost, base+"/admins", owner, gin.H{"user_id": bob})
	require.Equal(t, http.StatusOK, w.Code)
	var promoted groupJSON
	require.NoError(t, json.Unmarshal(env.Data, &promoted))
	assert.Contains(t, promoted.Admins, bob)

	w, _ = do(t, r, http.MethodDelete, base+"/admins/"+bob.String(), owner, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env = do(t, r, http.MethodDelete, base+"/members/"+bob.String(), owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var removed groupJSON
	require.NoError(t, json.Unmarshal(env.Data, &removed))
	assert.NotContains(t, removed.Members, bob)
}

func TestJoinPublicGroup(t *testing.T) {
	r := newRouter()
	owner, bob := uuid.New(), uuid.New()
	public := create(t, r, owner, "public")
	private := create(t, r, owner, "private")

	w, _ := do(t, r, http.MethodPost, "/v1/groups/"+public.ID.String()+"/join", bob, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, r, http.MethodPost, "/v1/groups/"+private.ID.String()+"/join", bob, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env := do(t, r, http.MethodGet, "/v1/groups", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var mine []groupJSON
	require.NoError(t, json.Unmarshal(env.Data, &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, public.ID, mine[0].ID)

	w, env = do(t, r, http.MethodGet, "/v1/groups/public", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed []groupJSON
	require.NoError(t, json.Unmarshal(env.Data, &listed))
	assert.Len(t, listed, 1)
}

func TestInvalidIDs(t *testing.T) {
	r := newRouter()
	owner := uuid.New()
	g := create(t, r, owner, "private")

	w, _ := do(t, r, http.MethodGet, "/v1/groups/not-a-uuid", owner, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodDelete, "/v1/groups/"+g.ID.String()+"/members/nope", owner, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodGet, "/v1/groups/"+uuid.NewString(), owner, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
