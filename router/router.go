package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
)

// Router maps (method, path) pairs to handlers. Routes are registered at
// startup; matching is exact and the first registered route wins.
type Router struct {
	mu           sync.RWMutex
	mux          *mux.Router
	core         http.Handler
	routes       []Route
	index        map[routeKey]int
	middleware   []Middleware
	handler      http.Handler
	logger       *slog.Logger
	maxBodyBytes int64
}

func (r *Router) Handle(method, path string, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if handler == nil {
		return ErrNilHandler
	}

	m, ok := normalizeMethod(method)
	if !ok {
		return fmt.Errorf("%w: %q", ErrMethodNotAllowed, method)
	}
	if !validPath(path) {
		return fmt.Errorf("%w: %q", ErrBadPath, path)
	}

	key := routeKey{method: m, path: path}
	if _, exists := r.index[key]; exists {
		return fmt.Errorf("%w: %s:%s", ErrDuplicateRoute, m, path)
	}

	route := Route{Method: m, Path: path, handler: handler}
	r.index[key] = len(r.routes)
	r.routes = append(r.routes, route)
	r.mux.Handle(path, r.dispatch(route)).Methods(m)

	return nil
}

func (r *Router) HandleFunc(method, path string, handler func(req *Request) (*Response, error)) error {
	if handler == nil {
		return ErrNilHandler
	}
	return r.Handle(method, path, HandlerFunc(handler))
}

// Routes returns the registered routes in registration order.
func (r *Router) Routes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make([]Route, len(r.routes))
	copy(routes, r.routes)
	return routes
}

// Use appends middleware around the whole pipeline, body parsing and
// unmatched requests included. The first middleware registered runs
// outermost. Call it before the router starts serving.
func (r *Router) Use(middleware ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.middleware = append(r.middleware, middleware...)

	h := r.core
	for i := len(r.middleware) - 1; i >= 0; i-- {
		h = r.middleware[i](h)
	}
	r.handler = h
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.RLock()
	h := r.handler
	r.mu.RUnlock()

	h.ServeHTTP(w, req)
}

func (r *Router) dispatch(route Route) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, raw *http.Request) {
		res, err := r.invoke(route, newRequest(raw))
		if err != nil {
			r.writeError(w, raw, err)
			return
		}

		r.writeResponse(w, raw, res)
	})
}

func (r *Router) invoke(route Route, req *Request) (res *Response, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			res = nil
			err = fmt.Errorf("handler %s panicked: %v", route, rec)
		}
	}()

	return route.handler.Serve(req)
}

func (r *Router) writeResponse(w http.ResponseWriter, req *http.Request, res *Response) {
	if res == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	for k, values := range res.Header {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}

	status := res.Status
	if status == 0 {
		status = http.StatusOK
	}

	body, err := json.Marshal(res.Payload)
	if err != nil {
		r.writeError(w, req, fmt.Errorf("encoding response payload: %w", err))
		return
	}
	r.writeJSON(w, req, status, body)
}

// writeError converts err into a JSON error payload. Only 4xx router errors
// reach the client verbatim; everything else is logged and reported as a
// generic internal error.
func (r *Router) writeError(w http.ResponseWriter, req *http.Request, err error) {
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Status < 400 || apiErr.Status >= 500 {
		r.logger.ErrorContext(req.Context(), "request failed",
			"method", req.Method,
			"path", req.URL.Path,
			"request_id", RequestIDFromContext(req.Context()),
			"error", err,
		)
		apiErr = internalError()
	}

	body, marshalErr := json.Marshal(apiErr)
	if marshalErr != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	r.writeJSON(w, req, apiErr.Status, body)
}

func (r *Router) writeJSON(w http.ResponseWriter, req *http.Request, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if req.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(append(body, '\n')); err != nil {
		r.logger.WarnContext(req.Context(), "writing response", "path", req.URL.Path, "error", err)
	}
}
