package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"clouddrive/internal/domain"
	"clouddrive/internal/service"
)

type PermissionHandler struct {
	perms *service.PermissionService
}

func NewPermissionHandler(perms *service.PermissionService) *PermissionHandler {
	return &PermissionHandler{perms: perms}
}

type grantPermissionRequest struct {
	UserID     string                 `json:"userId"`
	Permission domain.PermissionLevel `json:"permission"`
}

func (h *PermissionHandler) Grant(w http.ResponseWriter, r *http.Request) {
	var req grantPermissionRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	if err := validateRequired("userId", req.UserID); err != nil {
		WriteError(w, r, err)
		return
	}
	req.Permission = domain.PermissionLevel(strings.ToUpper(string(req.Permission)))

	p, err := h.perms.Grant(r.Context(), principal(r).UserID, chi.URLParam(r, "id"), req.UserID, req.Permission)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, "Permission granted successfully.", p)
}

func (h *PermissionHandler) List(w http.ResponseWriter, r *http.Request) {
	perms, err := h.perms.ListUsersWithAccess(r.Context(), principal(r).UserID, chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Users with access retrieved successfully", perms)
}

func (h *PermissionHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	err := h.perms.Revoke(r.Context(), principal(r).UserID, chi.URLParam(r, "id"), chi.URLParam(r, "userId"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Permission revoked successfully.", nil)
}
