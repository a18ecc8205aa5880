package router

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

var (
	ErrMethodNotAllowed = errors.New("method is not allowed for this router")
	ErrBadPath          = errors.New("every path must start with / and carry no parameters")
	ErrNilHandler       = errors.New("nil handler provided")
	ErrDuplicateRoute   = errors.New("route already registered")
)

const defaultMaxBodyBytes = 1 << 20

var methods = []string{
	http.MethodGet,
	http.MethodHead,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodOptions,
}

func normalizeMethod(method string) (string, bool) {
	for _, m := range methods {
		if strings.EqualFold(m, method) {
			return m, true
		}
	}
	return "", false
}

func validPath(path string) bool {
	if !strings.HasPrefix(path, "/") {
		return false
	}
	return !strings.ContainsAny(path, "{}")
}

// Option configures a Router at construction.
type Option func(*Router)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMaxBodyBytes bounds the size of a JSON body the router will parse.
func WithMaxBodyBytes(n int64) Option {
	return func(r *Router) {
		if n > 0 {
			r.maxBodyBytes = n
		}
	}
}

func New(opts ...Option) *Router {
	m := mux.NewRouter()
	m.SkipClean(true)

	r := &Router{
		mux:          m,
		index:        make(map[routeKey]int),
		logger:       slog.Default(),
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(r)
	}

	notFound := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.writeError(w, req, NotFound("no route for "+req.Method+" "+req.URL.Path))
	})
	m.NotFoundHandler = notFound
	m.MethodNotAllowedHandler = notFound

	r.core = r.parseBodies(m)
	r.handler = r.core
	return r
}
