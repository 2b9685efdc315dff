package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"clouddrive/internal/logs"
	"clouddrive/internal/service"
)

type DriveItemHandler struct {
	items *service.DriveItemService
}

func NewDriveItemHandler(items *service.DriveItemService) *DriveItemHandler {
	return &DriveItemHandler{items: items}
}

// optionalString различает отсутствующее поле, null и строку.
type optionalString struct {
	Set   bool
	Value *string
}

func (o *optionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

type updateDriveItemRequest struct {
	Name     *string        `json:"name"`
	ParentID optionalString `json:"parentId"`
}

func (h *DriveItemHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.items.ListRoot(r.Context(), principal(r).UserID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Drive items retrieved successfully", items)
}

func (h *DriveItemHandler) ListTrash(w http.ResponseWriter, r *http.Request) {
	items, err := h.items.ListTrash(r.Context(), principal(r).UserID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Trashed items retrieved successfully.", items)
}

func (h *DriveItemHandler) ListShared(w http.ResponseWriter, r *http.Request) {
	items, err := h.items.ListShared(r.Context(), principal(r).UserID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Shared items retrieved successfully.", items)
}

func (h *DriveItemHandler) Detail(w http.ResponseWriter, r *http.Request) {
	item, err := h.items.Detail(r.Context(), chi.URLParam(r, "id"), principal(r).UserID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "File detail retrieved successfully.", item)
}

func (h *DriveItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateDriveItemRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}

	item, err := h.items.Update(r.Context(), chi.URLParam(r, "id"), principal(r).UserID, service.UpdateInput{
		Name:       req.Name,
		MoveParent: req.ParentID.Set,
		ParentID:   req.ParentID.Value,
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "File updated successfully", item)
}

func (h *DriveItemHandler) Trash(w http.ResponseWriter, r *http.Request) {
	item, err := h.items.Trash(r.Context(), chi.URLParam(r, "id"), principal(r).UserID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "File successfully moved to trash.", item)
}

func (h *DriveItemHandler) Restore(w http.ResponseWriter, r *http.Request) {
	item, err := h.items.Restore(r.Context(), chi.URLParam(r, "id"), principal(r).UserID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "File successfully restored from trash.", item)
}

func (h *DriveItemHandler) PermanentDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.items.PermanentDelete(r.Context(), chi.URLParam(r, "id"), principal(r).UserID); err != nil {
		WriteError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "File or folder permanently deleted.", nil)
}

func (h *DriveItemHandler) Download(w http.ResponseWriter, r *http.Request) {
	d, err := h.items.Download(r.Context(), chi.URLParam(r, "id"), principal(r).UserID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	serveDownload(w, r, d, "attachment")
}

// serveDownload отдает содержимое. Если поток поддерживает Seek, работают
// Range-запросы и условные заголовки.
func serveDownload(w http.ResponseWriter, r *http.Request, d *service.Download, disposition string) {
	defer d.Close()

	w.Header().Set("Content-Type", d.ContentType)
	w.Header().Set("Content-Disposition", contentDisposition(disposition, d.Filename))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if disposition == "inline" {
		w.Header().Set("Content-Security-Policy", "sandbox")
	}

	if rs, ok := d.Content().(io.ReadSeeker); ok {
		http.ServeContent(w, r, d.Filename, d.ModTime, rs)
		return
	}

	if d.Size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(d.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if err := d.Stream(r.Context(), w); err != nil {
		logs.Logger.WithError(err).WithField("file", d.Filename).Warn("download interrupted")
	}
}

// contentDisposition строит заголовок вида attachment; filename="name".
// Имена вне ASCII кодируются по RFC 2231.
func contentDisposition(disposition, filename string) string {
	for _, r := range filename {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			return mime.FormatMediaType(disposition, map[string]string{"filename": filename})
		}
	}
	return fmt.Sprintf(`%s; filename="%s"`, disposition, filename)
}
