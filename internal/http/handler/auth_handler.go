package handler

import (
	"net/http"

	"github.com/straye-as/shortage-api/internal/auth"
	"github.com/straye-as/shortage-api/internal/domain"
	"go.uber.org/zap"
)

type AuthHandler struct {
	logger *zap.Logger
}

func NewAuthHandler(logger *zap.Logger) *AuthHandler {
	return &AuthHandler{logger: logger}
}

// Me godoc
// @Summary Get current caller
// @Description Returns the authenticated caller with roles and effective permissions
// @Tags Auth
// @Produce json
// @Success 200 {object} domain.AuthUserDTO
// @Failure 401 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /auth/me [get]
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userCtx, ok := auth.FromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	perms := userCtx.Permissions()
	permissions := make([]string, len(perms))
	for i, p := range perms {
		permissions[i] = string(p)
	}

	respondJSON(w, http.StatusOK, domain.AuthUserDTO{
		ID:          userCtx.UserID.String(),
		Name:        userCtx.DisplayName,
		Email:       userCtx.Email,
		Roles:       userCtx.RolesAsStrings(),
		Permissions: permissions,
		IsAdmin:     userCtx.IsAdmin(),
	})
}
