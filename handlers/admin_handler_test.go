package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/securestarter/services"
	"go.uber.org/zap"
)

func adminRouter(h *AdminHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/admin/principals/{id}", h.HandleGetPrincipal)
	return r
}

func TestHandleGetPrincipal(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		accounts := new(MockAccountService)
		p := testPrincipal()
		accounts.On("Me", mock.Anything, p.ID).Return(p, nil)

		rec := httptest.NewRecorder()
		adminRouter(NewAdminHandler(accounts, zap.NewNop())).ServeHTTP(rec,
			httptest.NewRequest(http.MethodGet, "/api/admin/principals/"+p.ID.String(), nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp UserResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, p.ID, resp.ID)
	})

	t.Run("invalid id", func(t *testing.T) {
		accounts := new(MockAccountService)

		rec := httptest.NewRecorder()
		adminRouter(NewAdminHandler(accounts, zap.NewNop())).ServeHTTP(rec,
			httptest.NewRequest(http.MethodGet, "/api/admin/principals/not-a-uuid", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		accounts.AssertNotCalled(t, "Me", mock.Anything, mock.Anything)
	})

	t.Run("not found", func(t *testing.T) {
		accounts := new(MockAccountService)
		id := uuid.New()
		accounts.On("Me", mock.Anything, id).Return(nil, services.ErrPrincipalNotFound)

		rec := httptest.NewRecorder()
		adminRouter(NewAdminHandler(accounts, zap.NewNop())).ServeHTTP(rec,
			httptest.NewRequest(http.MethodGet, "/api/admin/principals/"+id.String(), nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "User not found", decodeErrorBody(t, rec).Message)
	})
}
