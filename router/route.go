package router

import "fmt"

type routeKey struct {
	method string
	path   string
}

type Route struct {
	Method  string
	Path    string
	handler Handler
}

func (r Route) String() string {
	return fmt.Sprintf("%s:%s", r.Method, r.Path)
}
