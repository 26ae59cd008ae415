package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upb/securestarter/models"
	"github.com/upb/securestarter/utils"
	"go.uber.org/zap"
)

// PrincipalLookup loads a principal by id
type PrincipalLookup interface {
	Me(ctx context.Context, id uuid.UUID) (*models.Principal, error)
}

// AdminHandler serves /api/admin. Role enforcement happens in the gatekeeper.
type AdminHandler struct {
	principals PrincipalLookup
	logger     *zap.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(principals PrincipalLookup, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		principals: principals,
		logger:     logger,
	}
}

// HandleGetPrincipal handles GET /api/admin/principals/{id}
func (h *AdminHandler) HandleGetPrincipal(w http.ResponseWriter, r *http.Request) {
	id, err := utils.ValidateUUID(chi.URLParam(r, "id"))
	if err != nil {
		_ = utils.WriteBadRequest(w, r, "Invalid principal id", nil)
		return
	}

	p, err := h.principals.Me(r.Context(), id)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, newUserResponse(p))
}
