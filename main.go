package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codetesla51/pageboy/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "listen address")
	pool := flag.Int("pool", 0, "worker pool size, 0 for one goroutine per connection")
	static := flag.String("static", "", "directory to serve static files from")
	metricsAddr := flag.String("metrics", "", "address for the /metrics endpoint, empty to disable")
	autoClose := flag.Bool("auto-close", true, "send Connection: close and shut down each socket")
	logging := flag.Bool("log", true, "log every request")
	reusePort := flag.Bool("reuseport", false, "set SO_REUSEPORT on the listener")
	flag.Parse()

	cfg := server.DefaultConfig()
	cfg.PoolSize = *pool
	cfg.AutoClose = *autoClose
	cfg.EnableLogging = *logging
	cfg.ReusePort = *reusePort
	logger := cfg.Logger

	s, err := server.NewWithConfig(*addr, nil, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not start server")
	}
	if err := registerRoutes(s); err != nil {
		logger.Fatal().Err(err).Msg("could not register routes")
	}
	if *static != "" {
		if err := s.AddFilesSource(*static); err != nil {
			logger.Fatal().Err(err).Msg("could not add static files")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.Run(); !errors.Is(err, server.ErrServerClosed) {
			return err
		}
		return nil
	})

	var metricsServer *http.Server
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(s.Registry(), promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info().Str("addr", *metricsAddr).Msg("metrics listening")
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down")
		s.Stop()
		if metricsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}

func registerRoutes(s *server.Server) error {
	routes := []struct {
		pattern string
		method  server.Method
		fn      func(*server.Request) *server.Response
	}{
		{"/", server.MethodGet, home},
		{"/hello", server.MethodGet, hello},
		{"/time", server.MethodGet, now},
		{"/test", server.MethodGet, testRoute("GET")},
		{"/test", server.MethodPost, testRoute("POST")},
		{"/test", server.MethodPut, testRoute("PUT")},
		{"/test", server.MethodDelete, testRoute("DELETE")},
		{"/test/{param1}", server.MethodGet, echoParams},
		{"/test/{param1}/{param2}", server.MethodPost, echoParams},
		{"/echo", server.MethodPost, echoJSON},
		{"/panic", server.MethodGet, func(*server.Request) *server.Response { panic("demo panic") }},
	}
	for _, r := range routes {
		if err := s.HandleFunc(r.pattern, r.method, r.fn); err != nil {
			return err
		}
	}
	return nil
}

func home(*server.Request) *server.Response {
	return server.NewResponse(server.StatusOK, "text/html", []byte("<h1>pageboy</h1>"))
}

func hello(req *server.Request) *server.Response {
	return server.TextResponse(server.StatusOK, "Hello "+req.Browser()+" user!")
}

func now(*server.Request) *server.Response {
	return server.TextResponse(server.StatusOK, time.Now().Format(time.TimeOnly))
}

func testRoute(method string) func(*server.Request) *server.Response {
	return func(*server.Request) *server.Response {
		return server.TextResponse(server.StatusOK, "Hello from test "+method)
	}
}

func echoParams(req *server.Request) *server.Response {
	return jsonOrFail(req.Params)
}

func echoJSON(req *server.Request) *server.Response {
	var payload map[string]any
	if err := req.BindJSON(&payload); err != nil {
		return server.TextResponse(server.StatusBadRequest, err.Error())
	}
	return jsonOrFail(payload)
}

func jsonOrFail(v any) *server.Response {
	resp, err := server.JSONResponse(server.StatusOK, v)
	if err != nil {
		return server.TextResponse(server.StatusInternalServerError, "encoding failed")
	}
	return resp
}
