package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"clouddrive/internal/domain"
	"clouddrive/internal/service"
)

const maxFormField = 1 << 10

type FileHandler struct {
	files *service.FileService
}

func NewFileHandler(files *service.FileService) *FileHandler {
	return &FileHandler{files: files}
}

// Upload принимает multipart-форму с полем file и необязательным parentId.
// Файл пишется в хранилище по мере чтения тела, поэтому parentId должен
// идти в форме раньше файла (или передаваться в query). Поля после файла
// не учитываются.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		WriteError(w, r, domain.BadRequest("Request must be multipart/form-data."))
		return
	}

	var parentID *string
	if v := strings.TrimSpace(r.URL.Query().Get("parentId")); v != "" {
		parentID = &v
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			WriteError(w, r, domain.Validation("file should not be empty"))
			return
		}
		if err != nil {
			WriteError(w, r, domain.BadRequest("Invalid multipart body."))
			return
		}

		switch part.FormName() {
		case "parentId":
			value, err := io.ReadAll(io.LimitReader(part, maxFormField))
			part.Close()
			if err != nil {
				WriteError(w, r, domain.BadRequest("Invalid multipart body."))
				return
			}
			if v := strings.TrimSpace(string(value)); v != "" {
				parentID = &v
			}

		case "file":
			if part.FileName() == "" {
				part.Close()
				WriteError(w, r, domain.Validation("file should not be empty"))
				return
			}

			item, err := h.files.Upload(r.Context(), service.UploadInput{
				OwnerID:     principal(r).UserID,
				ParentID:    parentID,
				Filename:    part.FileName(),
				ContentType: part.Header.Get("Content-Type"),
				Body:        part,
			})
			part.Close()
			if err != nil {
				WriteError(w, r, err)
				return
			}
			respond(w, http.StatusCreated, "File uploaded successfully.", item)
			return

		default:
			part.Close()
		}
	}
}

func (h *FileHandler) Detail(w http.ResponseWriter, r *http.Request) {
	item, err := h.files.FileDetail(r.Context(), chi.URLParam(r, "id"), principal(r).UserID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "File detail retrieved successfully.", item)
}

func (h *FileHandler) Preview(w http.ResponseWriter, r *http.Request) {
	width := 0
	if v := r.URL.Query().Get("width"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			WriteError(w, r, domain.Validation("width must be a positive integer"))
			return
		}
		width = n
	}

	d, err := h.files.Preview(r.Context(), chi.URLParam(r, "id"), principal(r).UserID, width)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	serveDownload(w, r, d, "inline")
}
