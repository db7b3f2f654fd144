package server

import "net/http"

// BasicRouter serves the login callback server's routes.
//
// Every route is bound to one method through [http.ServeMux] method patterns, so a request with
// any other method gets a 405 without reaching the handler. Middleware wraps the whole mux and
// therefore also sees unmatched requests.
type BasicRouter struct {
	mux         *http.ServeMux
	middlewares []Middleware
}

// NewBasicRouter creates an empty [BasicRouter].
func NewBasicRouter() *BasicRouter {
	return &BasicRouter{mux: http.NewServeMux()}
}

// Use appends middleware. The first one added is the outermost.
func (r *BasicRouter) Use(middleware ...Middleware) {
	r.middlewares = append(r.middlewares, middleware...)
}

// Handle registers handler for method requests to path. GET routes also answer HEAD.
func (r *BasicRouter) Handle(method, path string, handler http.Handler) {
	r.mux.Handle(method+" "+path, handler)
}

// Handler registers h for GET requests on each of its routes.
//
// Browsers follow the consent redirect with a GET, so nothing else may reach a one-shot callback.
func (r *BasicRouter) Handler(h Handler) {
	for _, route := range h.Routes() {
		r.Handle(http.MethodGet, route, h)
	}
}

// ServeHTTP dispatches req through the middleware stack to the matching route.
func (r *BasicRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var handler http.Handler = r.mux
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		handler = r.middlewares[i](handler)
	}
	handler.ServeHTTP(w, req)
}
