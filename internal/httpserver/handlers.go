package httpserver

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/OmarEhab007/RemedyIQ-sub002/internal/analysis"
	"github.com/OmarEhab007/RemedyIQ-sub002/internal/duckdb"
	"github.com/OmarEhab007/RemedyIQ-sub002/internal/ingest"
	"github.com/OmarEhab007/RemedyIQ-sub002/internal/jobs"
	"github.com/OmarEhab007/RemedyIQ-sub002/internal/model"
)

const (
	// maxUploadBytes caps a submitted log body.
	maxUploadBytes = 512 << 20

	// detectPeekBytes is how much of the body head DetectSource sees.
	detectPeekBytes = 4096

	defaultRecordPageSize = 100
	maxRecordPageSize     = 1000
)

func (s *Server) handleHealth(c *gin.Context) {
	counts, err := s.store.JobCounts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read job counts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
		"jobs":   counts,
	})
}

func (s *Server) handleThresholds(c *gin.Context) {
	c.JSON(http.StatusOK, s.jobs.Thresholds())
}

// handleSubmitJob accepts a raw body of either JSONL records or native
// log text, picks the acquisition path, and queues the job. The path
// can be forced with ?source=jar_parsed|computed; otherwise the body
// head decides.
func (s *Server) handleSubmitJob(c *gin.Context) {
	name := strings.TrimSpace(c.Query("name"))
	if name == "" {
		name = "upload"
	}

	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	br := bufio.NewReaderSize(body, 64<<10)
	head, err := br.Peek(detectPeekBytes)
	if err != nil && !errors.Is(err, io.EOF) {
		s.writeReadError(c, err)
		return
	}

	source := model.Source(c.Query("source"))
	switch source {
	case "":
		source = ingest.DetectSource(head)
	case model.SourceJarParsed, model.SourceComputed:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown source %q", source)})
		return
	}

	var (
		recs        []model.TransactionRecord
		quarantined int
	)
	if source == model.SourceJarParsed {
		recs, quarantined, err = ingest.ReadJSONL(br)
	} else {
		recs, quarantined, err = ingest.ScanRawLog(br)
	}
	if err != nil {
		s.writeReadError(c, err)
		return
	}

	job, err := s.jobs.Submit(c.Request.Context(), name, source, recs, quarantined)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (s *Server) handleListJobs(c *gin.Context) {
	list, err := s.store.ListJobs(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	if list == nil {
		list = []model.Job{}
	}
	c.JSON(http.StatusOK, gin.H{"jobs": list})
}

func (s *Server) handleGetJob(c *gin.Context) {
	job, err := s.store.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) handleDeleteJob(c *gin.Context) {
	if err := s.jobs.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleCancelJob requests cancellation and reports the job as it
// stands; a running job flips to cancelled once its run notices.
func (s *Server) handleCancelJob(c *gin.Context) {
	id := c.Param("id")
	if err := s.jobs.Cancel(c.Request.Context(), id); err != nil {
		s.writeError(c, err)
		return
	}
	job, err := s.store.GetJob(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (s *Server) handleReanalyzeJob(c *gin.Context) {
	job, err := s.jobs.Reanalyze(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (s *Server) handleAggregates(c *gin.Context) {
	rs, ok := s.fetchResults(c)
	if !ok {
		return
	}
	if rs.Aggregates == nil {
		s.writeComponentMissing(c, rs, model.ComponentAggregates)
		return
	}
	dim := c.Query("dimension")
	if dim == "" {
		c.JSON(http.StatusOK, rs.Aggregates)
		return
	}
	for i := range rs.Aggregates.Dimensions {
		if rs.Aggregates.Dimensions[i].Dimension == dim {
			c.JSON(http.StatusOK, rs.Aggregates.Dimensions[i])
			return
		}
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"error":      fmt.Sprintf("unknown dimension %q", dim),
		"dimensions": analysis.DimensionNames(),
	})
}

func (s *Server) handleExceptions(c *gin.Context) {
	rs, ok := s.fetchResults(c)
	if !ok {
		return
	}
	if rs.Exceptions == nil {
		s.writeComponentMissing(c, rs, model.ComponentExceptions)
		return
	}
	c.JSON(http.StatusOK, rs.Exceptions)
}

func (s *Server) handleGaps(c *gin.Context) {
	rs, ok := s.fetchResults(c)
	if !ok {
		return
	}
	if rs.Gaps == nil {
		s.writeComponentMissing(c, rs, model.ComponentGaps)
		return
	}
	c.JSON(http.StatusOK, rs.Gaps)
}

func (s *Server) handleThreads(c *gin.Context) {
	rs, ok := s.fetchResults(c)
	if !ok {
		return
	}
	if rs.ThreadStats == nil {
		s.writeComponentMissing(c, rs, model.ComponentThreadStats)
		return
	}
	switch scope := c.Query("scope"); scope {
	case "":
		c.JSON(http.StatusOK, rs.ThreadStats)
	case "api":
		c.JSON(http.StatusOK, gin.H{"scope": scope, "threads": rs.ThreadStats.API})
	case "sql":
		c.JSON(http.StatusOK, gin.H{"scope": scope, "threads": rs.ThreadStats.SQL})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown scope %q, want api or sql", scope)})
	}
}

func (s *Server) handleFilters(c *gin.Context) {
	rs, ok := s.fetchResults(c)
	if !ok {
		return
	}
	if rs.FilterComplexity == nil {
		s.writeComponentMissing(c, rs, model.ComponentFilters)
		return
	}
	c.JSON(http.StatusOK, rs.FilterComplexity)
}

func (s *Server) handleAnomalies(c *gin.Context) {
	rs, ok := s.fetchResults(c)
	if !ok {
		return
	}
	if rs.Anomalies == nil {
		s.writeComponentMissing(c, rs, model.ComponentAnomalies)
		return
	}
	c.JSON(http.StatusOK, rs.Anomalies)
}

func (s *Server) handleHealthScore(c *gin.Context) {
	rs, ok := s.fetchResults(c)
	if !ok {
		return
	}
	if rs.Health == nil {
		s.writeComponentMissing(c, rs, model.ComponentHealth)
		return
	}
	c.JSON(http.StatusOK, rs.Health)
}

// handleSummary assembles the dashboard landing view: job metadata plus
// a digest of whichever result payloads the run produced.
func (s *Server) handleSummary(c *gin.Context) {
	job, err := s.store.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	rs, ok := s.fetchResults(c)
	if !ok {
		return
	}

	summary := gin.H{
		"job":          job,
		"source":       rs.Source,
		"generated_at": rs.GeneratedAt,
		"quarantined":  rs.Quarantined,
		"components":   presentComponents(rs),
	}
	if rs.Health != nil {
		summary["health"] = rs.Health
	}
	if rs.Aggregates != nil && len(rs.Aggregates.Dimensions) > 0 {
		summary["totals"] = rs.Aggregates.Dimensions[0].Total
	}
	if rs.Anomalies != nil {
		summary["anomaly_count"] = len(rs.Anomalies.Entries)
	}
	if rs.Gaps != nil {
		summary["gap_count"] = len(rs.Gaps.LineGaps) + len(rs.Gaps.ThreadGaps)
	}
	if len(rs.ComponentErrors) > 0 {
		summary["component_errors"] = rs.ComponentErrors
	}
	c.JSON(http.StatusOK, summary)
}

// handleRecords serves a filtered page of a job's stored records in
// timeline order.
func (s *Server) handleRecords(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := s.store.GetJob(ctx, id); err != nil {
		s.writeError(c, err)
		return
	}

	f := model.RecordFilter{
		ThreadID: c.Query("thread"),
		User:     c.Query("user"),
		Queue:    c.Query("queue"),
	}
	for _, raw := range strings.Split(c.Query("type"), ",") {
		if t := strings.ToUpper(strings.TrimSpace(raw)); t != "" {
			f.LogTypes = append(f.LogTypes, model.LogType(t))
		}
	}
	if raw := c.Query("errors"); raw != "" {
		onlyErrors, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "errors must be a boolean"})
			return
		}
		f.OnlyError = onlyErrors
	}

	var err error
	f.Limit, err = parseBoundedInt(c.Query("limit"), defaultRecordPageSize, maxRecordPageSize)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	f.Offset, err = parseBoundedInt(c.Query("offset"), 0, 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
		return
	}

	recs, err := s.store.Records(ctx, id, f)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if recs == nil {
		recs = []model.TransactionRecord{}
	}
	total, err := s.store.RecordCount(ctx, id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"job_id":  id,
		"total":   total,
		"count":   len(recs),
		"offset":  f.Offset,
		"limit":   f.Limit,
		"records": recs,
	})
}

// fetchResults loads the stored result set, translating a miss into a
// 404 that tells the caller whether the job itself exists.
func (s *Server) fetchResults(c *gin.Context) (model.ResultSet, bool) {
	ctx := c.Request.Context()
	id := c.Param("id")

	rs, err := s.store.GetResults(ctx, id)
	if err == nil {
		return rs, true
	}
	if errors.Is(err, duckdb.ErrResultsNotFound) {
		job, jerr := s.store.GetJob(ctx, id)
		if jerr != nil {
			s.writeError(c, jerr)
			return model.ResultSet{}, false
		}
		c.JSON(http.StatusNotFound, gin.H{
			"error":  "results not available",
			"status": job.Status,
		})
		return model.ResultSet{}, false
	}
	s.writeError(c, err)
	return model.ResultSet{}, false
}

// writeComponentMissing reports a component the run did not produce,
// carrying the recorded failure message when there is one.
func (s *Server) writeComponentMissing(c *gin.Context, rs model.ResultSet, component string) {
	resp := gin.H{"error": fmt.Sprintf("%s not available for this job", component)}
	if msg, ok := rs.ComponentErrors[component]; ok {
		resp["detail"] = msg
	}
	c.JSON(http.StatusNotFound, resp)
}

func (s *Server) writeReadError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit)})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, duckdb.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	case errors.Is(err, duckdb.ErrResultsNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "results not available"})
	case errors.Is(err, jobs.ErrJobActive):
		c.JSON(http.StatusConflict, gin.H{"error": "job is still queued or running"})
	case errors.Is(err, jobs.ErrBusy):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "analysis queue is full"})
	case errors.Is(err, jobs.ErrStopped):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service is shutting down"})
	default:
		log.Printf("httpserver: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func presentComponents(rs model.ResultSet) []string {
	present := make([]string, 0, len(model.Components))
	for _, name := range model.Components {
		var have bool
		switch name {
		case model.ComponentAggregates:
			have = rs.Aggregates != nil
		case model.ComponentExceptions:
			have = rs.Exceptions != nil
		case model.ComponentGaps:
			have = rs.Gaps != nil
		case model.ComponentThreadStats:
			have = rs.ThreadStats != nil
		case model.ComponentFilters:
			have = rs.FilterComplexity != nil
		case model.ComponentAnomalies:
			have = rs.Anomalies != nil
		case model.ComponentHealth:
			have = rs.Health != nil
		}
		if have {
			present = append(present, name)
		}
	}
	return present
}

func parseBoundedInt(raw string, def, max int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("httpserver: invalid integer %q", raw)
	}
	if max > 0 && n > max {
		n = max
	}
	return n, nil
}
