package server

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	json "github.com/goccy/go-json"
)

const notFoundBody = "Not found."

// Response is a status, content type and body ready to be written.
// An empty ContentType is sent as an empty header value.
type Response struct {
	Status      Status
	ContentType string
	Content     []byte
}

// NewResponse builds a Response. Statuses outside the vocabulary become 500.
func NewResponse(status Status, contentType string, content []byte) *Response {
	if !status.Valid() {
		status = StatusInternalServerError
	}
	return &Response{Status: status, ContentType: contentType, Content: content}
}

// TextResponse builds a text/plain Response.
func TextResponse(status Status, body string) *Response {
	return NewResponse(status, "text/plain", []byte(body))
}

// JSONResponse marshals v into an application/json Response.
func JSONResponse(status Status, v any) (*Response, error) {
	content, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("server: encode json response: %w", err)
	}
	return NewResponse(status, "application/json", content), nil
}

// NotFound returns the fallback Response used whenever nothing else applies.
func NotFound() *Response {
	return &Response{Status: StatusNotFound, Content: []byte(notFoundBody)}
}

func errorResponse(status Status) *Response {
	return TextResponse(status, status.Reason())
}

// WriteResponse serializes resp onto w in a single write. With closeConn the
// head carries "Connection: close"; shutting the connection down is left to
// the caller.
func WriteResponse(w io.Writer, resp *Response, closeConn bool) error {
	if resp == nil {
		resp = NotFound()
	}

	buf := responseBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	defer func() {
		if buf.Cap() <= maxPoolBufferSize {
			responseBufferPool.Put(buf)
		}
	}()

	buf.WriteString("HTTP/1.1 ")
	buf.WriteString(resp.Status.String())
	buf.WriteString("\r\nContent-Type: ")
	buf.WriteString(resp.ContentType)
	buf.WriteString("\r\nContent-Length: ")
	buf.WriteString(strconv.Itoa(len(resp.Content)))
	if closeConn {
		buf.WriteString("\r\nConnection: close")
	}
	buf.WriteString("\r\n\r\n")
	buf.Write(resp.Content)

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("server: write response: %w", err)
	}
	if f, ok := w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("server: flush response: %w", err)
		}
	}
	return nil
}

// ResponseBytes returns the wire form of resp.
func ResponseBytes(resp *Response, closeConn bool) []byte {
	var buf bytes.Buffer
	_ = WriteResponse(&buf, resp, closeConn)
	return buf.Bytes()
}
