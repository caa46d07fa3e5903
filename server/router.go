package server

import (
	"runtime/debug"
)

// Route resolves req against routes, falling back to static files for GET.
//
// The order is: exact literal route, first matching templated route, then
// ServeFile for GET requests. When nothing applies Route returns nil and the
// caller sends NotFound. Path bindings from a templated match are merged
// into req.Params without replacing keys that are already there, so query
// parameters keep precedence over path parameters.
//
// A panicking handler yields a 500 Response and a *HandlerPanicError.
func Route(req *Request, routes *RouteTable, bases FileBases) (*Response, error) {
	if routes != nil {
		if handler, bound := routes.Match(req.Method, req.Path); handler != nil {
			if req.Params == nil {
				req.Params = make(map[string]string, len(bound))
			}
			for name, value := range bound {
				if _, exists := req.Params[name]; !exists {
					req.Params[name] = value
				}
			}
			return invoke(handler, req)
		}
	}

	if req.Method == MethodGet {
		return ServeFile(req.Path, bases), nil
	}
	return nil, nil
}

// invoke runs the handler, converting a panic into a 500
func invoke(handler Handler, req *Request) (resp *Response, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &HandlerPanicError{
				Method: req.Method,
				Path:   req.Path,
				Value:  v,
				Stack:  debug.Stack(),
			}
			resp = errorResponse(StatusInternalServerError)
		}
	}()

	resp = handler.ServeRequest(req)
	if resp == nil {
		resp = NotFound()
	}
	return resp, nil
}
