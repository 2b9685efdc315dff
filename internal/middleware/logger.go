// Package middleware содержит HTTP-прослойки сервера: журнал запросов,
// перехват паник и ограничение частоты запросов.
package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"clouddrive/internal/domain"
	"clouddrive/internal/logs"
)

// ErrorWriter пишет ошибку клиенту в формате API.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Logger пишет строку журнала на каждый запрос.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			entry := logs.Logger.WithFields(logrus.Fields{
				"reqid":    chimw.GetReqID(r.Context()),
				"method":   r.Method,
				"uri":      r.RequestURI,
				"remote":   r.RemoteAddr,
				"status":   status,
				"bytes":    ww.BytesWritten(),
				"duration": time.Since(start).String(),
			})

			switch {
			case status >= http.StatusInternalServerError:
				entry.Error("request failed")
			case status >= http.StatusBadRequest:
				entry.Warn("request rejected")
			default:
				entry.Info("request completed")
			}
		}()

		next.ServeHTTP(ww, r)
	})
}

// Recoverer превращает панику обработчика в ответ 500.
func Recoverer(writeErr ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logs.Logger.WithFields(logrus.Fields{
					"reqid": chimw.GetReqID(r.Context()),
					"panic": rec,
					"stack": string(debug.Stack()),
				}).Error("panic while serving request")

				writeErr(w, r, domain.Internal("panic", fmt.Errorf("%v", rec)))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
