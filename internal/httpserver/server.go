// Package httpserver exposes the analysis service over HTTP: job
// submission and lifecycle, the stored result payloads the dashboard
// renders, record drill-down, and a WebSocket push of job status
// changes.
package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/OmarEhab007/RemedyIQ-sub002/internal/analysis"
	"github.com/OmarEhab007/RemedyIQ-sub002/internal/model"
)

// Store is the narrow read contract the API serves from.
type Store interface {
	GetJob(ctx context.Context, id string) (model.Job, error)
	ListJobs(ctx context.Context) ([]model.Job, error)
	JobCounts(ctx context.Context) (map[model.JobStatus]int64, error)
	GetResults(ctx context.Context, jobID string) (model.ResultSet, error)
	Records(ctx context.Context, jobID string, f model.RecordFilter) ([]model.TransactionRecord, error)
	RecordCount(ctx context.Context, jobID string) (int64, error)
}

// JobService is the lifecycle surface job mutations go through.
type JobService interface {
	Submit(ctx context.Context, name string, source model.Source, recs []model.TransactionRecord, quarantined int) (model.Job, error)
	Reanalyze(ctx context.Context, id string) (model.Job, error)
	Cancel(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	Subscribe() (<-chan model.Job, func())
	Thresholds() analysis.Thresholds
}

// Server provides the HTTP API over a store and a job service.
type Server struct {
	addr      string
	store     Store
	jobs      JobService
	server    *http.Server
	listener  net.Listener
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP API server.
func NewServer(addr string, store Store, jobs JobService) *Server {
	if addr == "" {
		addr = "0.0.0.0:8080"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:   addr,
		store:  store,
		jobs:   jobs,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)
	r := s.router()

	s.server = &http.Server{
		Handler:           r,
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Addr returns the bound listen address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/thresholds", s.handleThresholds)

	api.POST("/jobs", s.handleSubmitJob)
	api.GET("/jobs", s.handleListJobs)
	api.GET("/jobs/:id", s.handleGetJob)
	api.DELETE("/jobs/:id", s.handleDeleteJob)
	api.POST("/jobs/:id/cancel", s.handleCancelJob)
	api.POST("/jobs/:id/reanalyze", s.handleReanalyzeJob)

	api.GET("/jobs/:id/aggregates", s.handleAggregates)
	api.GET("/jobs/:id/exceptions", s.handleExceptions)
	api.GET("/jobs/:id/gaps", s.handleGaps)
	api.GET("/jobs/:id/threads", s.handleThreads)
	api.GET("/jobs/:id/filters", s.handleFilters)
	api.GET("/jobs/:id/anomalies", s.handleAnomalies)
	api.GET("/jobs/:id/healthscore", s.handleHealthScore)
	api.GET("/jobs/:id/summary", s.handleSummary)
	api.GET("/jobs/:id/records", s.handleRecords)

	api.GET("/ws/jobs", s.handleJobsWS)
	return r
}
