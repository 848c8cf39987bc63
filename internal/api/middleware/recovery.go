package middleware

import (
	"net/http"
	"runtime/debug"

	"tradedash/pkg/utils"
)

// Recovery - middleware для восстановления после паники в handlers
//
// Логирует значение паники со stack trace и отвечает 500 в формате
// ErrorResponse. Детали паники клиенту не отдаются.
func Recovery(logger *utils.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = utils.L()
	}
	logger = logger.WithComponent("http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic in handler",
						utils.String("method", r.Method),
						utils.String("path", r.URL.Path),
						utils.Any("panic", err),
						utils.String("stack", string(debug.Stack())))

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"internal server error","code":"INTERNAL"}` + "\n"))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
