package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trading-sentinel/internal/position"
	"trading-sentinel/internal/state"
	"trading-sentinel/internal/strategy"
	"trading-sentinel/pkg/db"
)

// Server exposes the read-only dashboard API plus the run-state controls
// that the config synchronizer picks up.
type Server struct {
	Router    *gin.Engine
	DB        *db.Database
	Book      *position.Book
	State     *state.Manager
	Evaluator *strategy.Evaluator
	Meta      SystemMeta
}

// SystemMeta describes runtime status exposed to the UI.
type SystemMeta struct {
	Live        bool
	UseMockFeed bool
	Candidates  []string
	Version     string
}

// NewServer wires routes and middleware.
func NewServer(database *db.Database, book *position.Book, st *state.Manager, eval *strategy.Evaluator, registry *prometheus.Registry, meta SystemMeta) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware())
	r.Use(CORSMiddleware())

	s := &Server{
		Router:    r,
		DB:        database,
		Book:      book,
		State:     st,
		Evaluator: eval,
		Meta:      meta,
	}
	s.routes(registry)
	return s
}

func (s *Server) routes(registry *prometheus.Registry) {
	s.Router.GET("/health", s.health)
	s.Router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	api := s.Router.Group("/api")
	{
		api.GET("/stats", s.getStats)
		api.GET("/history", s.getHistory)
		api.GET("/signals", s.getSignals)
		api.GET("/positions", s.getPositions)
		api.GET("/calibrations", s.getCalibrations)
		api.GET("/run-state", s.getRunState)
		api.POST("/run-state", s.setRunState)
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("🌐 API listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
