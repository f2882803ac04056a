package handler_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/straye-as/shortage-api/internal/domain"
	"github.com/straye-as/shortage-api/internal/http/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAuthHandler_Me(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get(t, "/auth/me")
	require.Equal(t, http.StatusOK, rec.Code)

	me := decode[domain.AuthUserDTO](t, rec)
	assert.Equal(t, "kari@straye.no", me.Email)
	assert.Equal(t, []string{"planner"}, me.Roles)
	assert.Contains(t, me.Permissions, "orders:write")
	assert.NotContains(t, me.Permissions, "archives:delete")
	assert.False(t, me.IsAdmin)
}

func TestAuthHandler_Me_Unauthenticated(t *testing.T) {
	h := handler.NewAuthHandler(zap.NewNop())
	rec := httptest.NewRecorder()
	h.Me(rec, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
