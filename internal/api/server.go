// Package api exposes the running tracker over HTTP: item and auto-track
// management plus a websocket stream of registry snapshots.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/davarch/ci-tracker/internal/application"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Server struct {
	log      *zap.Logger
	reg      *application.Registry
	sched    *application.Scheduler
	router   chi.Router
	upgrader websocket.Upgrader
}

func NewServer(l *zap.Logger, reg *application.Registry, sched *application.Scheduler) *Server {
	s := &Server{
		log:   l,
		reg:   reg,
		sched: sched,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(requestLogger(s.log))
	r.Use(chimiddleware.Recoverer)

	r.Get("/ws", s.stream)

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(30 * time.Second))

		r.Route("/items", func(r chi.Router) {
			r.Get("/", s.listItems)
			r.Post("/", s.trackItem)
			r.Post("/{key}/refresh", s.refreshItem)
			r.Delete("/{key}", s.removeItem)
		})

		r.Route("/autotrack", func(r chi.Router) {
			r.Get("/", s.getAutoTrack)
			r.Put("/", s.putAutoTrack)
			r.Post("/repos", s.addRepo)
			r.Delete("/repos/{index}", s.removeRepo)
			r.Put("/repos/{index}", s.updateRepo)
		})
	})

	s.router = r
}

func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("api listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func requestLogger(l *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				l.Debug("request completed",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", chimiddleware.GetReqID(r.Context())),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
