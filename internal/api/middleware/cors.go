package middleware

import (
	"net/http"
	"strings"
)

// originSet - разрешенные домены для CORS
type originSet struct {
	any     bool
	origins map[string]bool
}

// parseOrigins разбирает CORS_ALLOWED_ORIGINS: список через запятую,
// "*" или пустая строка разрешают любой origin
func parseOrigins(raw string) originSet {
	set := originSet{origins: make(map[string]bool)}
	for _, origin := range strings.Split(raw, ",") {
		origin = strings.TrimSpace(origin)
		switch origin {
		case "":
		case "*":
			set.any = true
		default:
			set.origins[origin] = true
		}
	}
	if len(set.origins) == 0 {
		set.any = true
	}
	return set
}

// CORS - middleware для настройки Cross-Origin Resource Sharing
//
// API только читает состояние, поэтому разрешены GET и OPTIONS.
// Для явно перечисленных origins возвращается конкретный домен
// с Allow-Credentials; для "*" - wildcard без credentials.
// Неразрешенный origin не получает заголовков: браузер заблокирует ответ.
// Preflight (OPTIONS) завершается здесь же с 204.
func CORS(allowed string) func(http.Handler) http.Handler {
	set := parseOrigins(allowed)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			switch {
			case set.any:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && set.origins[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Requested-With")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 часа кеширования preflight

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
