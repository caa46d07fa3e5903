package server

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestRouter(t *testing.T) {
	routes := NewRouteTable()
	mustAdd(t, routes, "/test", MethodGet, textHandler("test response"))

	resp, err := Route(&Request{Method: MethodGet, Path: "/test"}, routes, nil)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if resp.Status != StatusOK {
		t.Errorf("Expected status 200, got %s", resp.Status)
	}
	if string(resp.Content) != "test response" {
		t.Errorf("Expected handler body unmodified, got %q", resp.Content)
	}
}

func TestRouterNotFound(t *testing.T) {
	routes := NewRouteTable()

	resp, err := Route(&Request{Method: MethodGet, Path: "/nonexistent"}, routes, nil)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if resp.Status != StatusNotFound || string(resp.Content) != notFoundBody {
		t.Errorf("Expected default 404, got %s %q", resp.Status, resp.Content)
	}

	resp, err = Route(&Request{Method: MethodPost, Path: "/nonexistent"}, routes, nil)
	if err != nil || resp != nil {
		t.Errorf("Expected no response for unmatched POST, got %v %v", resp, err)
	}
}

func TestMultipleExactRoutes(t *testing.T) {
	routes := NewRouteTable()
	mustAdd(t, routes, "/api/users", MethodGet, textHandler("users list"))
	mustAdd(t, routes, "/api/products", MethodGet, textHandler("products list"))
	mustAdd(t, routes, "/api/orders", MethodGet, textHandler("orders list"))

	tests := []struct {
		path     string
		expected string
	}{
		{"/api/users", "users list"},
		{"/api/products", "products list"},
		{"/api/orders", "orders list"},
	}

	for _, test := range tests {
		resp, _ := Route(&Request{Method: MethodGet, Path: test.path}, routes, nil)
		if resp.Status != StatusOK {
			t.Errorf("Expected status 200 for %s, got %s", test.path, resp.Status)
		}
		if string(resp.Content) != test.expected {
			t.Errorf("Expected '%s' in response for %s", test.expected, test.path)
		}
	}
}

func TestRouterBindsPathParams(t *testing.T) {
	routes := NewRouteTable()
	var seen map[string]string
	mustAdd(t, routes, "/api/{version}/users/{id}", MethodPost, RouteHandler(func(req *Request) *Response {
		seen = req.Params
		if req.Method != MethodPost {
			t.Errorf("Expected method=POST, got %s", req.Method)
		}
		if req.Path != "/api/v1/users/42" {
			t.Errorf("Expected path=/api/v1/users/42, got %s", req.Path)
		}
		return TextResponse(StatusOK, "verified")
	}))

	req := &Request{Method: MethodPost, Path: "/api/v1/users/42"}
	resp, err := Route(req, routes, nil)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if string(resp.Content) != "verified" {
		t.Error("Handler verification failed")
	}
	expected := map[string]string{"version": "v1", "id": "42"}
	if !reflect.DeepEqual(seen, expected) {
		t.Errorf("Expected params %v, got %v", expected, seen)
	}
}

func TestRouterKeepsQueryPrecedence(t *testing.T) {
	routes := NewRouteTable()
	mustAdd(t, routes, "/users/{id}", MethodGet, RouteHandler(func(req *Request) *Response {
		return TextResponse(StatusOK, req.Param("id"))
	}))

	req := &Request{Method: MethodGet, Path: "/users/7", Params: map[string]string{"id": "query"}}
	resp, _ := Route(req, routes, nil)
	if string(resp.Content) != "query" {
		t.Errorf("Expected query value to survive routing, got %s", resp.Content)
	}
}

func TestRouterPanicBecomes500(t *testing.T) {
	routes := NewRouteTable()
	mustAdd(t, routes, "/boom", MethodGet, RouteHandler(func(*Request) *Response {
		panic("kaboom")
	}))

	resp, err := Route(&Request{Method: MethodGet, Path: "/boom"}, routes, nil)
	if resp == nil || resp.Status != StatusInternalServerError {
		t.Fatalf("Expected 500, got %v", resp)
	}

	var panicErr *HandlerPanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("Expected HandlerPanicError, got %v", err)
	}
	if panicErr.Value != "kaboom" || panicErr.Path != "/boom" || len(panicErr.Stack) == 0 {
		t.Errorf("Unexpected panic details: %+v", panicErr)
	}
	if !strings.Contains(panicErr.Error(), "kaboom") {
		t.Errorf("Expected panic value in message, got %s", panicErr.Error())
	}
}

func TestRouterNilHandlerResult(t *testing.T) {
	routes := NewRouteTable()
	mustAdd(t, routes, "/nil", MethodDelete, RouteHandler(func(*Request) *Response { return nil }))

	resp, err := Route(&Request{Method: MethodDelete, Path: "/nil"}, routes, nil)
	if err != nil || resp == nil || resp.Status != StatusNotFound {
		t.Errorf("Expected default 404 for nil handler result, got %v %v", resp, err)
	}
}

func TestRouterStaticFallback(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("static hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	var bases FileBases
	bases.Add(dir)

	routes := NewRouteTable()
	mustAdd(t, routes, "/hello.txt", MethodPost, textHandler("posted"))

	resp, _ := Route(&Request{Method: MethodGet, Path: "/hello.txt"}, routes, bases)
	if resp.Status != StatusOK || string(resp.Content) != "static hello" {
		t.Errorf("Expected static file, got %s %q", resp.Status, resp.Content)
	}
	if !strings.HasPrefix(resp.ContentType, "text/plain") {
		t.Errorf("Expected text/plain, got %s", resp.ContentType)
	}

	// Routes win over files.
	mustAdd(t, routes, "/hello.txt", MethodGet, textHandler("routed"))
	resp, _ = Route(&Request{Method: MethodGet, Path: "/hello.txt"}, routes, bases)
	if string(resp.Content) != "routed" {
		t.Errorf("Expected route to take priority over file, got %q", resp.Content)
	}

	// Only GET falls back to files.
	resp, _ = Route(&Request{Method: MethodPut, Path: "/hello.txt"}, routes, bases)
	if resp != nil {
		t.Errorf("Expected nil for PUT, got %v", resp)
	}
}
