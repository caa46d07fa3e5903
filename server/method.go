package server

// Method is an HTTP request method from the closed vocabulary below.
type Method uint8

const (
	MethodGet Method = iota + 1
	MethodPost
	MethodPut
	MethodDelete
	MethodHead
	MethodOptions
	MethodConnect
	MethodPatch
)

var methodNames = [...]string{
	MethodGet:     "GET",
	MethodPost:    "POST",
	MethodPut:     "PUT",
	MethodDelete:  "DELETE",
	MethodHead:    "HEAD",
	MethodOptions: "OPTIONS",
	MethodConnect: "CONNECT",
	MethodPatch:   "PATCH",
}

// Methods lists the whole vocabulary in declaration order.
var Methods = []Method{
	MethodGet, MethodPost, MethodPut, MethodDelete,
	MethodHead, MethodOptions, MethodConnect, MethodPatch,
}

// ParseMethod converts a request-line token to a Method. Matching is
// case-sensitive, as method tokens are.
func ParseMethod(token string) (Method, bool) {
	switch token {
	case "GET":
		return MethodGet, true
	case "POST":
		return MethodPost, true
	case "PUT":
		return MethodPut, true
	case "DELETE":
		return MethodDelete, true
	case "HEAD":
		return MethodHead, true
	case "OPTIONS":
		return MethodOptions, true
	case "CONNECT":
		return MethodConnect, true
	case "PATCH":
		return MethodPatch, true
	}
	return 0, false
}

func (m Method) String() string {
	if int(m) < len(methodNames) && methodNames[m] != "" {
		return methodNames[m]
	}
	return "UNKNOWN"
}
