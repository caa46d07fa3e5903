package server

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

const httpVersion = "HTTP/1.1"

var (
	errHeadIncomplete = errors.New("server: request head ended before blank line")
	errHeadTooLarge   = errors.New("server: request head too large")
)

// Header is a single "Name: Value" request header line.
type Header struct {
	Name  string
	Value string
}

// Request represents one parsed HTTP request
type Request struct {
	Method  Method
	Path    string
	Version string

	// Headers keeps arrival order; duplicates are not merged.
	Headers []Header
	Body    []byte

	// Params holds path parameters overlaid with query parameters.
	Params map[string]string

	RemoteAddr string
}

// Header returns the value of the first header named name, compared
// case-insensitively.
func (r *Request) Header(name string) (string, bool) {
	return lookupHeader(r.Headers, name)
}

// HeaderValues returns every value sent for name, in arrival order.
func (r *Request) HeaderValues(name string) []string {
	var values []string
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			values = append(values, h.Value)
		}
	}
	return values
}

// Param returns the named path or query parameter, or "".
func (r *Request) Param(name string) string {
	return r.Params[name]
}

// ContentLength returns the declared Content-Length, or -1 when absent or invalid.
func (r *Request) ContentLength() int64 {
	v, ok := r.Header("Content-Length")
	if !ok {
		return -1
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// BindJSON decodes the body into v.
func (r *Request) BindJSON(v any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("server: empty request body")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("server: decode json body: %w", err)
	}
	return nil
}

// Form parses the body as a flat string map. JSON bodies are flattened one
// level deep, anything else is treated as url-encoded pairs.
func (r *Request) Form() map[string]string {
	if len(r.Body) == 0 {
		return map[string]string{}
	}
	contentType, _ := r.Header("Content-Type")
	if strings.Contains(contentType, "application/json") {
		return parseJSONBody(r.Body)
	}
	return parseKeyValuePairs(r.Body)
}

// Browser determines the browser family from the User-Agent header
func (r *Request) Browser() string {
	userAgent, _ := r.Header("User-Agent")
	switch {
	case strings.Contains(userAgent, "Edg/"):
		return "Edge"
	case strings.Contains(userAgent, "Chrome"):
		return "Chrome"
	case strings.Contains(userAgent, "Firefox"):
		return "Firefox"
	case strings.Contains(userAgent, "Safari"):
		return "Safari"
	default:
		return "Unknown Browser"
	}
}

// ParseRequest reads one request from src and validates it.
//
// On failure it returns an empty Request together with the error Response
// that must be sent back without invoking any handler. routes may be nil, in
// which case no path parameters are extracted. A nil cfg uses DefaultConfig.
func ParseRequest(src io.Reader, routes *RouteTable, cfg *Config) (*Request, *Response) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	br, ok := src.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(src)
	}

	head, err := readHead(br, cfg.MaxHeaderSize)
	if errors.Is(err, errHeadTooLarge) {
		return &Request{}, errorResponse(oversizedHeadStatus(head, br, cfg))
	}
	if err != nil || len(head) == 0 {
		return &Request{}, errorResponse(StatusBadRequest)
	}

	lines := strings.Split(string(head), "\n")
	method, target, status := parseRequestLine(strings.TrimSuffix(lines[0], "\r"), cfg)
	if status != StatusOK {
		return &Request{}, errorResponse(status)
	}

	headers := parseHeaders(lines[1:])

	body, ok := readBody(br, method, headers, cfg)
	if !ok {
		return &Request{}, errorResponse(StatusBadRequest)
	}

	path, query, _ := strings.Cut(target, "?")
	params := make(map[string]string)
	if routes != nil {
		if _, bound := routes.Match(method, path); bound != nil {
			for name, value := range bound {
				params[name] = value
			}
		}
	}
	if query != "" {
		parseQuery(query, params)
	}

	return &Request{
		Method:  method,
		Path:    path,
		Version: httpVersion,
		Headers: headers,
		Body:    body,
		Params:  params,
	}, nil
}

// readHead accumulates lines up to the blank line that ends the head. The
// returned slice excludes the blank line. Blank lines before the request line
// are skipped but still count against limit.
func readHead(br *bufio.Reader, limit int) ([]byte, error) {
	bufPtr := headBufferPool.Get().(*[]byte)
	head := (*bufPtr)[:0]

	defer func() {
		if cap(head) <= maxPoolBufferSize {
			*bufPtr = head[:0]
			headBufferPool.Put(bufPtr)
		}
	}()

	consumed := 0
	lineStart := 0
	for {
		chunk, err := br.ReadSlice('\n')
		head = append(head, chunk...)
		consumed += len(chunk)
		if consumed > limit {
			return bytes.Clone(head), errHeadTooLarge
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil {
			return bytes.Clone(head), errHeadIncomplete
		}

		line := head[lineStart:]
		if isBlankLine(line) {
			if lineStart == 0 {
				head = head[:0]
				continue
			}
			return bytes.Clone(head[:lineStart]), nil
		}
		lineStart = len(head)
	}
}

func isBlankLine(line []byte) bool {
	return len(line) == 1 && line[0] == '\n' || len(line) == 2 && line[0] == '\r' && line[1] == '\n'
}

func firstLine(head []byte) string {
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		head = head[:i]
	}
	return string(bytes.TrimSuffix(head, []byte("\r")))
}

// parseRequestLine validates METHOD SP TARGET SP VERSION. The returned status
// is StatusOK on success, otherwise the first failing check in order: token
// count, method gate, version, target length, then an origin-form target
// (leading "/").
func parseRequestLine(line string, cfg *Config) (Method, string, Status) {
	parts := strings.Fields(line)
	if len(parts) < 3 {
		return 0, "", StatusBadRequest
	}
	method, ok := ParseMethod(parts[0])
	if !ok || !cfg.methodAllowed(method) {
		return 0, "", StatusMethodNotAllowed
	}
	if parts[2] != httpVersion {
		return 0, "", StatusHTTPVersionNotSupported
	}
	if len(parts[1]) > cfg.MaxURILength {
		return 0, "", StatusURITooLong
	}
	if !strings.HasPrefix(parts[1], "/") {
		return 0, "", StatusBadRequest
	}
	return method, parts[1], StatusOK
}

// maxRequestLineScan bounds how much of an oversized request line is read
// and discarded while looking for its version token.
const maxRequestLineScan = 1 << 20

// oversizedHeadStatus picks the error for a head that went past
// MaxHeaderSize, applying the same check order as parseRequestLine.
func oversizedHeadStatus(head []byte, br *bufio.Reader, cfg *Config) Status {
	if bytes.IndexByte(head, '\n') >= 0 {
		if _, _, status := parseRequestLine(firstLine(head), cfg); status != StatusOK {
			return status
		}
		// The request line was fine; the headers are what overflowed.
		return StatusBadRequest
	}

	line := scanRequestLine(head, br, maxRequestLineScan)
	if !line.complete && !line.truncated {
		return StatusBadRequest
	}
	if line.complete && line.tokens < 3 {
		return StatusBadRequest
	}
	if method, ok := ParseMethod(line.method); !ok || !cfg.methodAllowed(method) {
		return StatusMethodNotAllowed
	}
	if line.complete && line.version != httpVersion {
		return StatusHTTPVersionNotSupported
	}
	if line.targetLen > cfg.MaxURILength {
		return StatusURITooLong
	}
	return StatusBadRequest
}

// requestLineShape is what scanRequestLine keeps of a request line too long
// to buffer: the first and third tokens and the length of the second.
type requestLineShape struct {
	tokens    int
	method    string
	targetLen int
	version   string

	// complete is set when the terminating '\n' was reached, truncated when
	// the scan limit was hit first.
	complete  bool
	truncated bool
}

// scanRequestLine walks prefix and then the rest of the line from br
// without retaining it.
func scanRequestLine(prefix []byte, br *bufio.Reader, limit int) requestLineShape {
	const maxKept = 16

	var shape requestLineShape
	var token []byte
	tokenLen := 0
	inToken := false

	endToken := func() {
		switch shape.tokens {
		case 1:
			shape.method = string(token)
		case 2:
			shape.targetLen = tokenLen
		case 3:
			shape.version = string(token)
		}
		token = token[:0]
		tokenLen = 0
		inToken = false
	}
	feed := func(c byte) {
		if c == ' ' || c == '\t' || c == '\r' || c == '\v' || c == '\f' {
			if inToken {
				endToken()
			}
			return
		}
		if !inToken {
			inToken = true
			shape.tokens++
		}
		tokenLen++
		if len(token) < maxKept+1 {
			token = append(token, c)
		}
	}

	for _, c := range prefix {
		feed(c)
	}
	for scanned := len(prefix); ; scanned++ {
		if scanned >= limit {
			shape.truncated = true
			break
		}
		c, err := br.ReadByte()
		if err != nil {
			break
		}
		if c == '\n' {
			shape.complete = true
			break
		}
		feed(c)
	}
	if inToken {
		endToken()
	}
	return shape
}

// parseHeaders parses "Name: Value" lines, dropping malformed ones
func parseHeaders(lines []string) []Header {
	headers := make([]Header, 0, len(lines))
	for _, line := range lines {
		name, value, ok := strings.Cut(strings.TrimSuffix(line, "\r"), ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		headers = append(headers, Header{Name: name, Value: strings.TrimSpace(value)})
	}
	return headers
}

func lookupHeader(headers []Header, name string) (string, bool) {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// readBody frames the body by Content-Length, or reads to end of stream for
// non-GET requests without one. It reports false when the body is
// truncated or exceeds the configured limit.
func readBody(br *bufio.Reader, method Method, headers []Header, cfg *Config) ([]byte, bool) {
	if v, ok := lookupHeader(headers, "Content-Length"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || n <= 0 {
			return nil, true
		}
		if n > cfg.MaxBodySize {
			return nil, false
		}
		body := make([]byte, n)
		if _, err := io.ReadFull(br, body); err != nil {
			return nil, false
		}
		return body, true
	}

	if method == MethodGet {
		return nil, true
	}

	// A read deadline or reset ends the body; whatever arrived is kept.
	body, _ := io.ReadAll(io.LimitReader(br, cfg.MaxBodySize+1))
	if int64(len(body)) > cfg.MaxBodySize {
		return nil, false
	}
	if len(body) == 0 {
		return nil, true
	}
	return body, true
}

// parseQuery overlays key=value pairs onto params
func parseQuery(raw string, params map[string]string) {
	for _, pair := range strings.Split(raw, "&") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			continue
		}
		params[safeURLDecode(key)] = safeURLDecode(value)
	}
}

// parseKeyValuePairs parses URL-encoded key-value pairs
func parseKeyValuePairs(data []byte) map[string]string {
	result := make(map[string]string, 8)
	parseQuery(string(data), result)
	return result
}

// parseJSONBody parses a JSON object body into a string map
func parseJSONBody(data []byte) map[string]string {
	var fields map[string]any
	result := make(map[string]string, 8)

	if err := json.Unmarshal(data, &fields); err != nil {
		return result
	}

	for key, value := range fields {
		result[key] = fmt.Sprintf("%v", value)
	}

	return result
}

// safeURLDecode decodes a URL-encoded string, returning original on error
func safeURLDecode(encoded string) string {
	decoded, err := url.QueryUnescape(encoded)
	if err != nil {
		return encoded
	}
	return decoded
}
