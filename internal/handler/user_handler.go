package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/schema"

	"clouddrive/internal/domain"
	"clouddrive/internal/service"
)

type UserHandler struct {
	users   *service.UserService
	decoder *schema.Decoder
}

func NewUserHandler(users *service.UserService) *UserHandler {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	return &UserHandler{users: users, decoder: decoder}
}

type listUsersQuery struct {
	Page  int `schema:"page"`
	Limit int `schema:"limit"`
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	var q listUsersQuery
	if err := h.decoder.Decode(&q, r.URL.Query()); err != nil {
		WriteError(w, r, domain.Validation("page and limit must be integers"))
		return
	}
	if q.Page < 0 || q.Limit < 0 {
		WriteError(w, r, domain.Validation("page and limit must not be negative"))
		return
	}

	page, err := h.users.List(r.Context(), principal(r).Role, q.Page, q.Limit)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Users retrieved successfully.", page)
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Me(r.Context(), principal(r).UserID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "User profile retrieved successfully.", user)
}

func (h *UserHandler) ByUsername(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.ByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "User profile retrieved successfully.", user)
}
