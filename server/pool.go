package server

import (
	"bytes"
	"sync"
)

// headBufferPool holds buffers for accumulating request heads
var headBufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, 0, 4096)
		return &buf
	},
}

// responseBufferPool holds bytes.Buffer for building responses
var responseBufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// Buffers that grew past this are left for the GC.
const (
	maxPoolBufferSize = 16384 // 16KB
)
