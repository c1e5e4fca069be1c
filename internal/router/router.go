package router

import (
	"net/http"
	"slices"
)

// Router wraps http.ServeMux with middleware chaining.
//
// Global middleware passed to New wraps the mux itself, so it also sees
// requests the mux answers on its own (404, 405). Group and per-route
// middleware wrap only the routes they are registered with.
type Router struct {
	mux     *http.ServeMux
	handler http.Handler
	chain   []Middleware
}

// Middleware is a function that wraps an http.Handler
type Middleware func(http.Handler) http.Handler

// New creates a new Router with optional global middleware
func New(middleware ...Middleware) *Router {
	mux := http.NewServeMux()
	return &Router{
		mux:     mux,
		handler: chain(mux, middleware),
	}
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

// Get registers a GET route
func (r *Router) Get(pattern string, handler http.HandlerFunc, middleware ...Middleware) {
	r.Handle(http.MethodGet, pattern, handler, middleware...)
}

// Post registers a POST route
func (r *Router) Post(pattern string, handler http.HandlerFunc, middleware ...Middleware) {
	r.Handle(http.MethodPost, pattern, handler, middleware...)
}

// Handle registers a route with explicit method
func (r *Router) Handle(method, pattern string, handler http.Handler, middleware ...Middleware) {
	r.mux.Handle(method+" "+pattern, chain(handler, append(slices.Clone(r.chain), middleware...)))
}

// Group creates a sub-router sharing the mux, whose routes get the extra
// middleware after the global chain.
func (r *Router) Group(middleware ...Middleware) *Router {
	return &Router{
		mux:     r.mux,
		handler: r.handler,
		chain:   append(slices.Clone(r.chain), middleware...),
	}
}

// chain applies middleware so it executes in the order given.
func chain(handler http.Handler, middleware []Middleware) http.Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		handler = middleware[i](handler)
	}
	return handler
}
