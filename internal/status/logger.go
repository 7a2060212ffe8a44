package status

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/vova616/xxhash"
	"go.uber.org/zap"
)

// Logger logs every request with its status and duration. Query strings are logged as a
// hash.
func Logger(l *zap.SugaredLogger) func(next http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			lw := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			t1 := time.Now()
			h.ServeHTTP(lw, r)
			if lw.Status() == 0 {
				lw.WriteHeader(http.StatusOK)
			}

			fields := []interface{}{
				"method", r.Method,
				"path", cleanPath(r.URL.Path),
				"status", lw.Status(),
				"duration", time.Since(t1),
			}
			if r.URL.RawQuery != "" {
				fields = append(fields, "query", xxhash.Checksum32([]byte(r.URL.RawQuery)))
			}

			if lw.Status() < 500 {
				l.Infow("request", fields...)
			} else {
				l.Warnw("request", fields...)
			}
		}

		return http.HandlerFunc(fn)
	}
}

func cleanPath(path string) string {
	parts := strings.FieldsFunc(path, func(r rune) bool {
		return r == '/'
	})

	return "/" + strings.Join(parts, "/")
}
