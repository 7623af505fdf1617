package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/lumenchat/governor/internal/httperr"
)

// Recovery converts handler panics into a 500 envelope. The stack trace goes
// to the log, never to the client.
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rec),
						zap.String("path", r.URL.Path),
						zap.String("request_id", GetRequestID(r.Context())),
						zap.String("stack", string(debug.Stack())),
					)
					httperr.Respond(w, http.StatusInternalServerError,
						httperr.Internal(fmt.Sprintf("internal error: %v", rec)),
						GetRequestID(r.Context()))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
