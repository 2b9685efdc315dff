package handler

import (
	"net/http"
	"strings"

	"clouddrive/internal/service"
)

type FolderHandler struct {
	folders *service.FolderService
}

func NewFolderHandler(folders *service.FolderService) *FolderHandler {
	return &FolderHandler{folders: folders}
}

type createFolderRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parentId,omitempty"`
}

func (h *FolderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createFolderRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	if err := validateRequired("name", req.Name); err != nil {
		WriteError(w, r, err)
		return
	}
	if req.ParentID != nil && strings.TrimSpace(*req.ParentID) == "" {
		req.ParentID = nil
	}

	folder, err := h.folders.Create(r.Context(), principal(r).UserID, req.Name, req.ParentID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, "Folder created successfully", folder)
}
