package server

import "strconv"

// Status is one of the response statuses the engine can put on the wire.
type Status int

const (
	StatusOK                      Status = 200
	StatusBadRequest              Status = 400
	StatusUnauthorized            Status = 401
	StatusForbidden               Status = 403
	StatusNotFound                Status = 404
	StatusMethodNotAllowed        Status = 405
	StatusURITooLong              Status = 414
	StatusInternalServerError     Status = 500
	StatusHTTPVersionNotSupported Status = 505
)

var statusText = map[Status]string{
	StatusOK:                      "OK",
	StatusBadRequest:              "Bad Request",
	StatusUnauthorized:            "Unauthorized",
	StatusForbidden:               "Forbidden",
	StatusNotFound:                "Not Found",
	StatusMethodNotAllowed:        "Method Not Allowed",
	StatusURITooLong:              "URI Too Long",
	StatusInternalServerError:     "Internal Server Error",
	StatusHTTPVersionNotSupported: "HTTP Version Not Supported",
}

// Code returns the numeric status code.
func (s Status) Code() int {
	return int(s)
}

// Reason returns the reason phrase, or "" for a status outside the vocabulary.
func (s Status) Reason() string {
	return statusText[s]
}

// String returns the status as it appears after "HTTP/1.1 " on the status line,
// e.g. "404 Not Found".
func (s Status) String() string {
	text, ok := statusText[s]
	if !ok {
		return "500 " + statusText[StatusInternalServerError]
	}
	return strconv.Itoa(int(s)) + " " + text
}

// Valid reports whether s belongs to the status vocabulary.
func (s Status) Valid() bool {
	_, ok := statusText[s]
	return ok
}

