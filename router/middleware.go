package router

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/felixge/httpsnoop"
	"github.com/google/uuid"
	"github.com/gorilla/handlers"
)

type Middleware func(next http.Handler) http.Handler

const RequestIDHeader = "X-Request-ID"

type ctxKey int

const requestIDKey ctxKey = iota

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// RequestID tags every request with an id, reusing the inbound header when
// the caller supplied one.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" || len(id) > 128 {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
		})
	}
}

// Recover turns a panic anywhere below it into a generic 500 so a single bad
// request never takes the process down. Once a response has started the
// panic is only logged.
func Recover(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := false
			tracked := httpsnoop.Wrap(w, httpsnoop.Hooks{
				WriteHeader: func(next httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc {
					return func(code int) {
						started = true
						next(code)
					}
				},
				Write: func(next httpsnoop.WriteFunc) httpsnoop.WriteFunc {
					return func(b []byte) (int, error) {
						started = true
						return next(b)
					}
				},
				ReadFrom: func(next httpsnoop.ReadFromFunc) httpsnoop.ReadFromFunc {
					return func(src io.Reader) (int64, error) {
						started = true
						return next(src)
					}
				},
			})

			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.ErrorContext(r.Context(), "recovered from panic",
						"method", r.Method,
						"path", r.URL.Path,
						"request_id", RequestIDFromContext(r.Context()),
						"panic", rec,
						"response_started", started,
					)
					if !started {
						writeErrorPayload(w, internalError())
					}
				}
			}()

			next.ServeHTTP(tracked, r)
		})
	}
}

func Logging(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, r)

			level := slog.LevelInfo
			if m.Code >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(r.Context(), level, "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", m.Code,
				"bytes", m.Written,
				"duration", m.Duration,
				"request_id", w.Header().Get(RequestIDHeader),
			)
		})
	}
}

var defaultCORSHeaders = []string{"Content-Type", "Authorization", "X-Requested-With", RequestIDHeader}

type CORSOptions struct {
	AllowedOrigins   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

func (o CORSOptions) allows(origin string) bool {
	for _, allowed := range o.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// CORS answers preflight requests before routing and decorates requests from
// allowed origins, echoing the caller's origin back. A preflight from any
// other origin is refused with 400.
func CORS(opts CORSOptions) Middleware {
	allowedHeaders := opts.AllowedHeaders
	if len(allowedHeaders) == 0 {
		allowedHeaders = defaultCORSHeaders
	}

	corsOpts := []handlers.CORSOption{
		handlers.AllowedOriginValidator(opts.allows),
		handlers.AllowedMethods(methods),
		handlers.AllowedHeaders(allowedHeaders),
		handlers.ExposedHeaders([]string{RequestIDHeader}),
		handlers.OptionStatusCode(http.StatusNoContent),
	}
	if opts.AllowCredentials {
		corsOpts = append(corsOpts, handlers.AllowCredentials())
	}
	if opts.MaxAge > 0 {
		corsOpts = append(corsOpts, handlers.MaxAge(opts.MaxAge))
	}
	cors := handlers.CORS(corsOpts...)

	return func(next http.Handler) http.Handler {
		decorated := cors(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Add("Vary", "Origin")

			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			switch {
			case preflight && !opts.allows(origin):
				writeErrorPayload(w, BadRequest("disallowed CORS origin"))
			case r.Method == http.MethodOptions && !preflight:
				next.ServeHTTP(w, r)
			default:
				decorated.ServeHTTP(w, r)
			}
		})
	}
}

func writeErrorPayload(w http.ResponseWriter, apiErr *Error) {
	body, err := json.Marshal(apiErr)
	if err != nil {
		http.Error(w, apiErr.Msg, apiErr.Status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status)
	_, _ = w.Write(append(body, '\n'))
}
