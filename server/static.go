package server

import (
	"os"
	"path/filepath"
	"strings"
)

// FileBases is the ordered list of directories static files may be served
// from. Earlier entries take priority.
type FileBases []string

// Add appends base in canonical form. A base that cannot be canonicalized yet
// (for instance one created later) is kept as given.
func (b *FileBases) Add(base string) {
	if canonical, err := canonicalize(base); err == nil {
		base = canonical
	}
	*b = append(*b, base)
}

// ResolvePath maps a request path onto base and returns the canonical file
// path, or false when the result would leave base or does not exist.
// Directories resolve to their index.html.
func ResolvePath(base, requestPath string) (string, bool) {
	requestPath, _, _ = strings.Cut(requestPath, "?")
	requestPath = strings.TrimPrefix(requestPath, "/")

	candidate := filepath.Join(base, filepath.FromSlash(requestPath))
	if info, err := os.Stat(candidate); err == nil && info.IsDir() {
		candidate = filepath.Join(candidate, "index.html")
	}

	resolved, err := canonicalize(candidate)
	if err != nil {
		return "", false
	}
	root, err := canonicalize(base)
	if err != nil {
		return "", false
	}
	if !withinDir(root, resolved) {
		return "", false
	}
	return resolved, true
}

// ServeFile answers a GET from the first base holding a readable file for
// requestPath. Missing, unreadable and rejected paths all produce NotFound.
func ServeFile(requestPath string, bases FileBases) *Response {
	for _, base := range bases {
		filePath, ok := ResolvePath(base, requestPath)
		if !ok {
			continue
		}
		content, ok := readFileContent(filePath)
		if !ok {
			continue
		}
		return NewResponse(StatusOK, ContentType(filePath), content)
	}
	return NotFound()
}

// canonicalize returns the absolute, symlink-free form of path.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// withinDir compares on directory boundaries so "/basefoo" is not inside "/base".
func withinDir(root, path string) bool {
	if path == root {
		return true
	}
	if !strings.HasSuffix(root, string(filepath.Separator)) {
		root += string(filepath.Separator)
	}
	return strings.HasPrefix(path, root)
}

// readFileContent reads entire file content
func readFileContent(filePath string) ([]byte, bool) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, false
	}
	return content, true
}
