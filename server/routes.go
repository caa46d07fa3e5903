package server

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// Handler produces the Response for a routed Request.
type Handler interface {
	ServeRequest(req *Request) *Response
}

// RouteHandler adapts a plain function to Handler.
type RouteHandler func(req *Request) *Response

// ServeRequest calls f(req).
func (f RouteHandler) ServeRequest(req *Request) *Response {
	return f(req)
}

type routeKey struct {
	method  Method
	pattern string
}

type route struct {
	method    Method
	pattern   string
	segments  []string
	templated bool
	handler   Handler
}

// RouteTable maps (Method, pattern) to handlers.
//
// Literal routes are found with a single map lookup. Templated routes are
// scanned linearly, per method, in the order they were first added; the
// first one that matches wins. The table is built before serving and frozen
// once a Server starts, after which it is only read and needs no locking.
type RouteTable struct {
	// mu serializes Add against Freeze.
	mu        sync.Mutex
	routes    map[routeKey]*route
	templated map[Method][]*route
	frozen    atomic.Bool
}

func NewRouteTable() *RouteTable {
	return &RouteTable{
		routes:    make(map[routeKey]*route),
		templated: make(map[Method][]*route),
	}
}

// Add registers handler for method and pattern. Re-adding an existing key
// replaces its handler and keeps its position in the scan order.
func (t *RouteTable) Add(pattern string, method Method, handler Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frozen.Load() {
		return ErrRoutesFrozen
	}
	if handler == nil {
		return fmt.Errorf("server: nil handler for %s %s", method, pattern)
	}
	if method.String() == "UNKNOWN" {
		return fmt.Errorf("server: unknown method %d for %s", method, pattern)
	}
	segments, templated, err := compilePattern(pattern)
	if err != nil {
		return err
	}

	key := routeKey{method: method, pattern: pattern}
	if existing, ok := t.routes[key]; ok {
		existing.handler = handler
		return nil
	}

	r := &route{
		method:    method,
		pattern:   pattern,
		segments:  segments,
		templated: templated,
		handler:   handler,
	}
	t.routes[key] = r
	if templated {
		t.templated[method] = append(t.templated[method], r)
	}
	return nil
}

// AddFunc is Add for a plain function.
func (t *RouteTable) AddFunc(pattern string, method Method, fn func(*Request) *Response) error {
	return t.Add(pattern, method, RouteHandler(fn))
}

// Freeze makes the table read-only.
func (t *RouteTable) Freeze() {
	t.mu.Lock()
	t.frozen.Store(true)
	t.mu.Unlock()
}

// Frozen reports whether Freeze has been called.
func (t *RouteTable) Frozen() bool {
	return t.frozen.Load()
}

// Len returns the number of registered routes.
func (t *RouteTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.routes)
}

// Match finds the route for method and path: first an exact literal route,
// then the first templated route with the same segment count whose literal
// segments agree. The returned map holds the placeholder bindings and is
// non-nil whenever a route matched.
func (t *RouteTable) Match(method Method, path string) (Handler, map[string]string) {
	if r, ok := t.routes[routeKey{method: method, pattern: path}]; ok && !r.templated {
		return r.handler, map[string]string{}
	}

	pathSegments := strings.Split(path, "/")
	for _, r := range t.templated[method] {
		if params, ok := matchSegments(r.segments, pathSegments); ok {
			return r.handler, params
		}
	}
	return nil, nil
}

func compilePattern(pattern string) ([]string, bool, error) {
	if !strings.HasPrefix(pattern, "/") {
		return nil, false, fmt.Errorf("%w: %q must start with /", ErrInvalidPattern, pattern)
	}
	segments := strings.Split(pattern, "/")
	templated := false
	seen := make(map[string]bool)
	for _, seg := range segments {
		name, isParam := placeholderName(seg)
		if !isParam {
			if strings.ContainsAny(seg, "{}") {
				return nil, false, fmt.Errorf("%w: %q has malformed segment %q", ErrInvalidPattern, pattern, seg)
			}
			continue
		}
		if name == "" {
			return nil, false, fmt.Errorf("%w: %q has an empty placeholder", ErrInvalidPattern, pattern)
		}
		if seen[name] {
			return nil, false, fmt.Errorf("%w: %q repeats placeholder %q", ErrInvalidPattern, pattern, name)
		}
		seen[name] = true
		templated = true
	}
	return segments, templated, nil
}

func placeholderName(segment string) (string, bool) {
	if len(segment) >= 2 && segment[0] == '{' && segment[len(segment)-1] == '}' {
		return segment[1 : len(segment)-1], true
	}
	return "", false
}

// matchSegments binds placeholders when both sides have the same number of
// segments and every literal segment is byte-equal.
func matchSegments(pattern, path []string) (map[string]string, bool) {
	if len(pattern) != len(path) {
		return nil, false
	}
	params := make(map[string]string)
	for i, seg := range pattern {
		if name, ok := placeholderName(seg); ok {
			params[name] = path[i]
		} else if seg != path[i] {
			return nil, false
		}
	}
	return params, true
}
