package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v3"
)

// Server accepts connections and answers exactly one request on each.
type Server struct {
	listener net.Listener
	routes   *RouteTable
	files    FileBases
	config   Config
	metrics  *metrics

	autoClose atomic.Bool
	conns     *xsync.MapOf[net.Conn, time.Time]

	mu         sync.Mutex
	dispatcher Dispatcher
	running    bool
	closing    bool
	done       chan struct{}
	closeOnce  sync.Once
}

// New binds addr and prepares a server with default settings. poolSize > 0
// serves on a worker pool of that size, 0 runs one goroutine per connection.
// routes may be nil or a prebuilt table.
func New(addr string, poolSize int, routes *RouteTable) (*Server, error) {
	cfg := DefaultConfig()
	cfg.PoolSize = poolSize
	return NewWithConfig(addr, routes, cfg)
}

// NewWithConfig binds addr using cfg. A bind failure is returned and nothing
// is left listening.
func NewWithConfig(addr string, routes *RouteTable, cfg *Config) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if routes == nil {
		routes = NewRouteTable()
	}

	lc := listenConfig(cfg.ReusePort)
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("server: bind %s: %w", addr, err)
	}

	s := &Server{
		listener: ln,
		routes:   routes,
		config:   *cfg,
		conns:    xsync.NewMapOf[net.Conn, time.Time](),
		done:     make(chan struct{}),
	}
	s.autoClose.Store(cfg.AutoClose)
	s.metrics = newMetrics(
		func() float64 { return float64(s.conns.Size()) },
		func() float64 {
			if d := s.currentDispatcher(); d != nil {
				return float64(d.Pending())
			}
			return 0
		},
	)
	return s, nil
}

// AddRoute registers handler for method and pattern. It fails once the
// server is running.
func (s *Server) AddRoute(pattern string, method Method, handler Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrRoutesFrozen
	}
	return s.routes.Add(pattern, method, handler)
}

// HandleFunc is AddRoute for a plain function.
func (s *Server) HandleFunc(pattern string, method Method, fn func(*Request) *Response) error {
	return s.AddRoute(pattern, method, RouteHandler(fn))
}

// AddFilesSource appends a static file directory, lowest priority last.
func (s *Server) AddFilesSource(base string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrRoutesFrozen
	}
	s.files.Add(base)
	return nil
}

// SetAutoClose controls whether responses carry "Connection: close" and are
// followed by a full shutdown of the socket.
func (s *Server) SetAutoClose(enabled bool) {
	s.autoClose.Store(enabled)
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Routes returns the route table.
func (s *Server) Routes() *RouteTable {
	return s.routes
}

// ActiveConnections returns the number of connections being served.
func (s *Server) ActiveConnections() int {
	return s.conns.Size()
}

// Registry exposes the server's metrics.
func (s *Server) Registry() *prometheus.Registry {
	return s.metrics.registry
}

// Run accepts connections until Stop or Close and then waits for every
// dispatched connection to finish. It returns ErrServerClosed after a clean
// stop.
func (s *Server) Run() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return ErrServerClosed
	}
	if s.running {
		s.mu.Unlock()
		return errors.New("server: already running")
	}
	s.running = true
	s.routes.Freeze()
	s.dispatcher = s.newDispatcher()
	dispatcher := s.dispatcher
	s.mu.Unlock()

	defer close(s.done)

	logServerInfo(s.config.Logger, s.listener.Addr().String(), s.strategy(), s.autoClose.Load())

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.isClosing() {
				dispatcher.Stop()
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				dispatcher.Stop()
				return fmt.Errorf("server: accept: %w", err)
			}
			s.config.reportError(fmt.Errorf("server: accept: %w", err))
			time.Sleep(5 * time.Millisecond)
			continue
		}

		accepted := time.Now()
		s.conns.Store(conn, accepted)
		if err := dispatcher.Submit(func() { s.serveConn(conn, accepted) }); err != nil {
			s.conns.Delete(conn)
			_ = conn.Close()
		}
	}
}

// Stop stops accepting connections and waits for in-flight ones to finish.
// It is idempotent and returns immediately when nothing is running. It must
// not be called from a handler.
func (s *Server) Stop() {
	s.shutdown()
	s.wait()
}

// Close is Stop that also closes every active connection instead of letting
// it finish.
func (s *Server) Close() error {
	s.shutdown()
	s.conns.Range(func(conn net.Conn, _ time.Time) bool {
		_ = conn.Close()
		return true
	})
	s.wait()
	return nil
}

func (s *Server) shutdown() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()
		_ = s.listener.Close()
	})
}

func (s *Server) wait() {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if running {
		<-s.done
	}
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Server) currentDispatcher() Dispatcher {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatcher
}

func (s *Server) newDispatcher() Dispatcher {
	onPanic := func(v any) {
		s.config.reportError(fmt.Errorf("server: connection job panicked: %v", v))
	}
	if s.config.PoolSize > 0 {
		pool := NewWorkerPool(s.config.PoolSize)
		pool.OnPanic = onPanic
		return pool
	}
	tasks := NewTaskGroup()
	tasks.OnPanic = onPanic
	return tasks
}

func (s *Server) strategy() string {
	if s.config.PoolSize > 0 {
		return fmt.Sprintf("pool/%d", s.config.PoolSize)
	}
	return "tasks"
}

// serveConn drives one connection through parsing, routing and responding.
func (s *Server) serveConn(conn net.Conn, accepted time.Time) {
	defer func() {
		s.conns.Delete(conn)
		_ = conn.Close()
		s.metrics.duration.Observe(time.Since(accepted).Seconds())
	}()

	if s.config.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(accepted.Add(s.config.ReadTimeout))
	}
	req, resp := ParseRequest(bufio.NewReader(conn), s.routes, &s.config)

	if resp == nil {
		req.RemoteAddr = conn.RemoteAddr().String()
		var err error
		resp, err = Route(req, s.routes, s.files)
		if err != nil {
			s.metrics.panics.Inc()
			s.reportPanic(err)
		}
		if resp == nil {
			resp = NotFound()
		}
	}

	closeConn := s.autoClose.Load()
	if s.config.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}
	if err := WriteResponse(conn, resp, closeConn); err != nil {
		s.metrics.ioErrors.Inc()
		s.config.reportError(fmt.Errorf("%s: %w", conn.RemoteAddr(), err))
		return
	}
	s.metrics.observeStatus(resp.Status)

	if s.config.EnableLogging {
		logRequest(s.config.Logger, requestLabel(req), pathLabel(req), resp.Status)
	}

	if closeConn {
		shutdownConn(conn)
	}
}

func (s *Server) reportPanic(err error) {
	var panicErr *HandlerPanicError
	if errors.As(err, &panicErr) {
		s.config.Logger.Error().
			Str("method", panicErr.Method.String()).
			Str("path", panicErr.Path).
			Bytes("stack", panicErr.Stack).
			Msgf("handler panic: %v", panicErr.Value)
	}
	if s.config.ErrorHook != nil {
		s.config.ErrorHook(err)
	}
}

// shutdownConn closes both directions of a TCP connection after the
// response has been flushed.
func shutdownConn(conn net.Conn) {
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	_ = tcp.CloseWrite()
	_ = tcp.CloseRead()
}

func requestLabel(req *Request) string {
	if req.Method == 0 {
		return "-"
	}
	return req.Method.String()
}

func pathLabel(req *Request) string {
	if req.Path == "" {
		return "-"
	}
	return req.Path
}
