package http

import "strings"

// route is one registered (method, pattern, operationId) triple (spec
// §4.6.2). Patterns are matched segment-by-segment; a segment of the form
// "{name}" binds to pathParameters[name]. The route table is built once at
// startup and is read-only thereafter (spec §5), so no lock is needed on
// the match path.
type route struct {
	method      string
	pattern     string
	segments    []string
	operationID string
	contentType string
}

// Router holds the registered routes in registration order. The first
// matching route wins — more specific patterns must be registered before
// more general ones (spec §4.6.2).
type Router struct {
	routes []route
}

func NewRouter() *Router {
	return &Router{}
}

// Register adds a route. contentType, if non-empty, is the OpenAPI
// declared response content type for this operation (priority (b) of
// spec §4.6 step 7).
func (r *Router) Register(method, pattern, operationID, contentType string) {
	r.routes = append(r.routes, route{
		method:      strings.ToUpper(method),
		pattern:     pattern,
		segments:    splitPath(pattern),
		operationID: operationID,
		contentType: contentType,
	})
}

// Match finds the first registered route whose method and segment-matched
// pattern fit path, returning bound path parameters for any {name}
// segments. Query strings must already be stripped from path.
func (r *Router) Match(method, path string) (route, map[string]string, bool) {
	segments := splitPath(path)
	for _, rt := range r.routes {
		if rt.method != strings.ToUpper(method) {
			continue
		}
		if params, ok := matchSegments(rt.segments, segments); ok {
			return rt, params, true
		}
	}
	return route{}, nil, false
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return []string{}
	}
	return strings.Split(path, "/")
}

func matchSegments(pattern, actual []string) (map[string]string, bool) {
	if len(pattern) != len(actual) {
		return nil, false
	}
	params := make(map[string]string)
	for i, seg := range pattern {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			params[seg[1:len(seg)-1]] = actual[i]
			continue
		}
		if seg != actual[i] {
			return nil, false
		}
	}
	return params, true
}
