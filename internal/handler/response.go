package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"clouddrive/internal/auth"
	"clouddrive/internal/domain"
	"clouddrive/internal/logs"
)

const maxJSONBody = 1 << 20

type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type errorBody struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Error      string `json:"error"`
	StatusCode int    `json:"statusCode"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logs.Logger.WithError(err).Warn("failed to encode response")
	}
}

func respond(w http.ResponseWriter, status int, message string, data interface{}) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

// WriteError пишет ошибку в формате API. Причина внутренних ошибок
// остается в журнале.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := kind.HTTPStatus()

	if kind == domain.KindInternal {
		logs.Logger.WithError(err).WithFields(logrus.Fields{
			"reqid":  chimw.GetReqID(r.Context()),
			"method": r.Method,
			"uri":    r.RequestURI,
		}).Error("internal error")
	}

	writeJSON(w, status, errorBody{
		Success:    false,
		Message:    domain.PublicMessage(err),
		Error:      kind.String(),
		StatusCode: status,
	})
}

// decodeJSON читает тело запроса в v.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.BadRequest("Request body is required.")
		}
		return domain.BadRequest("Invalid request body.")
	}
	return nil
}

// principal возвращает пользователя запроса. Маршрут обязан быть под
// auth-middleware.
func principal(r *http.Request) auth.Principal {
	p, _ := auth.FromContext(r.Context())
	return p
}
