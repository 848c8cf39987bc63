package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"tradedash/internal/metrics"
	"tradedash/pkg/utils"
)

// responseWriter запоминает статус и размер ответа
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Hijack нужен для апгрейда /ws/stream
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Logging - middleware для логирования HTTP запросов
//
// Пишет структурированную запись на каждый запрос (метод, шаблон маршрута,
// статус, latency, IP клиента, размер ответа) и учитывает запрос в
// tradedash_http_* метриках. 5xx логируются как Error, 4xx как Warn,
// остальное на уровне Debug: /metrics и /health опрашиваются часто.
func Logging(logger *utils.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = utils.L()
	}
	logger = logger.WithComponent("http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			latency := float64(time.Since(start).Microseconds()) / 1000
			route := routeTemplate(r)
			metrics.RecordHTTPRequest(r.Method, route, wrapped.statusCode, latency)

			fields := []zap.Field{
				utils.String("method", r.Method),
				utils.String("path", r.URL.Path),
				utils.String("route", route),
				utils.Int("status", wrapped.statusCode),
				utils.Latency(latency),
				utils.String("remote_addr", r.RemoteAddr),
				utils.Int64("bytes", wrapped.written),
			}
			switch {
			case wrapped.statusCode >= 500:
				logger.Error("http request", fields...)
			case wrapped.statusCode >= 400:
				logger.Warn("http request", fields...)
			default:
				logger.Debug("http request", fields...)
			}
		})
	}
}

// routeTemplate возвращает шаблон маршрута mux, чтобы метки метрик
// не зависели от query и path параметров
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
