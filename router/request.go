package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// Handler maps a parsed Request to a Response. Returning a nil Response
// with a nil error produces 204 No Content.
type Handler interface {
	Serve(req *Request) (*Response, error)
}

type HandlerFunc func(req *Request) (*Response, error)

func (f HandlerFunc) Serve(req *Request) (*Response, error) {
	return f(req)
}

// Request is the per-call view of an inbound HTTP request. Body holds the
// raw JSON value when the client sent a JSON body, nil otherwise.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Query  url.Values
	Body   json.RawMessage

	ctx context.Context
}

func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// HasBody reports whether a JSON body was parsed for this request.
func (r *Request) HasBody() bool {
	return len(r.Body) > 0
}

// Decode unmarshals the parsed JSON body into v. A type mismatch is
// reported as a client error.
func (r *Request) Decode(v any) error {
	if !r.HasBody() {
		return BadRequest("request body is required")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return BadRequest("request body does not match the expected shape: " + err.Error())
	}
	return nil
}

type Response struct {
	Status  int
	Header  http.Header
	Payload any
}

// JSON builds a Response carrying payload with the given status.
func JSON(status int, payload any) *Response {
	return &Response{Status: status, Payload: payload}
}

func OK(payload any) *Response {
	return JSON(http.StatusOK, payload)
}

func isJSONContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

type bodyKey struct{}

// parseBodies is the body parsing stage. It runs on every request ahead of
// route matching, so a malformed JSON body is a 400 whatever the method and
// path. The parsed value travels to dispatch through the request context.
func (r *Router) parseBodies(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, err := parseBody(w, req, r.maxBodyBytes)
		if err != nil {
			r.writeError(w, req, err)
			return
		}
		if body != nil {
			req = req.WithContext(context.WithValue(req.Context(), bodyKey{}, body))
		}
		next.ServeHTTP(w, req)
	})
}

// parseBody reads a JSON body when the request declares one. Only an object
// or array is accepted at the top level. It never panics on client input;
// every failure comes back as a client *Error.
func parseBody(w http.ResponseWriter, r *http.Request, maxBodyBytes int64) (json.RawMessage, error) {
	if r.Body == nil || r.Body == http.NoBody || !isJSONContentType(r.Header.Get("Content-Type")) {
		return nil, nil
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, PayloadTooLarge("request body exceeds the allowed size")
		}
		return nil, BadRequest("request body could not be read")
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return nil, BadRequest("malformed JSON body: top-level value must be an object or array")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	var body json.RawMessage
	if err := dec.Decode(&body); err != nil {
		return nil, BadRequest("malformed JSON body: " + err.Error())
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, BadRequest("malformed JSON body: unexpected data after top-level value")
	}
	return body, nil
}

func newRequest(r *http.Request) *Request {
	body, _ := r.Context().Value(bodyKey{}).(json.RawMessage)
	return &Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Header: r.Header,
		Query:  r.URL.Query(),
		Body:   body,
		ctx:    r.Context(),
	}
}
