package users

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"directory-sync/core/reconcile"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestApp(t *testing.T) *fiber.App {
	ctx := context.Background()
	repo := setupSQLite(t)
	require.NoError(t, repo.Create(ctx, reconcile.Record{"id": "u1", "email": "a@x", "department": "IT"}))
	require.NoError(t, repo.Create(ctx, reconcile.Record{"id": "u2", "email": "b@x", "department": "Sales"}))
	require.NoError(t, repo.Update(ctx, "u2", reconcile.Record{reconcile.ActiveField: false}))

	app := fiber.New()
	feature := NewFeature(repo, zap.NewNop())
	require.True(t, feature.IsEnabled())
	require.NoError(t, feature.Load(app))
	return app
}

func decodeUsers(t *testing.T, body io.Reader) []User {
	var users []User
	require.NoError(t, json.NewDecoder(body).Decode(&users))
	return users
}

func TestHandleListUsers(t *testing.T) {
	app := setupTestApp(t)

	tests := []struct {
		name   string
		target string
		status int
		ids    []string
	}{
		{"All", "/users", fiber.StatusOK, []string{"u1", "u2"}},
		{"Active only", "/users?active=true", fiber.StatusOK, []string{"u1"}},
		{"Inactive only", "/users?active=false", fiber.StatusOK, []string{"u2"}},
		{"Department", "/users?department=Sales", fiber.StatusOK, []string{"u2"}},
		{"Bad filter", "/users?active=maybe", fiber.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", tt.target, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.status != fiber.StatusOK {
				return
			}
			var ids []string
			for _, u := range decodeUsers(t, resp.Body) {
				ids = append(ids, u.ID)
			}
			assert.Equal(t, tt.ids, ids)
		})
	}
}

func TestHandleGetUser(t *testing.T) {
	app := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/users/a@x", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var u User
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&u))
	assert.Equal(t, "u1", u.ID)

	resp, err = app.Test(httptest.NewRequest("GET", "/users/nobody", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
