package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/OmarEhab007/RemedyIQ-sub002/internal/model"
)

// ErrResultsNotFound indicates no analysis results are stored for the job.
var ErrResultsNotFound = errors.New("duckdb: results not found")

// metaComponent carries the run-level ResultSet fields (source, quarantine
// count, component errors) alongside the per-component payload rows.
const metaComponent = "meta"

type resultMeta struct {
	Source          model.Source      `json:"source"`
	Quarantined     int               `json:"quarantined"`
	ComponentErrors map[string]string `json:"component_errors,omitempty"`
}

// PutResults replaces a job's stored results with the given set in a single
// transaction: one JSON payload row per present component plus a meta row.
// Readers never observe a mix of old and new payloads.
func (s *Store) PutResults(ctx context.Context, rs model.ResultSet) error {
	payloads := map[string]interface{}{
		metaComponent: resultMeta{
			Source:          rs.Source,
			Quarantined:     rs.Quarantined,
			ComponentErrors: rs.ComponentErrors,
		},
	}
	if rs.Aggregates != nil {
		payloads[model.ComponentAggregates] = rs.Aggregates
	}
	if rs.Exceptions != nil {
		payloads[model.ComponentExceptions] = rs.Exceptions
	}
	if rs.Gaps != nil {
		payloads[model.ComponentGaps] = rs.Gaps
	}
	if rs.ThreadStats != nil {
		payloads[model.ComponentThreadStats] = rs.ThreadStats
	}
	if rs.FilterComplexity != nil {
		payloads[model.ComponentFilters] = rs.FilterComplexity
	}
	if rs.Anomalies != nil {
		payloads[model.ComponentAnomalies] = rs.Anomalies
	}
	if rs.Health != nil {
		payloads[model.ComponentHealth] = rs.Health
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(qctx, nil)
	if err != nil {
		return fmt.Errorf("duckdb: put results for job %s: %w", rs.JobID, err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(qctx, `DELETE FROM results WHERE job_id = ?`, rs.JobID); err != nil {
		return fmt.Errorf("duckdb: clearing results for job %s: %w", rs.JobID, err)
	}

	stmt, err := tx.PrepareContext(qctx,
		`INSERT INTO results (job_id, component, payload, generated_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("duckdb: put results for job %s: %w", rs.JobID, err)
	}
	defer stmt.Close()

	for _, component := range append([]string{metaComponent}, model.Components...) {
		v, ok := payloads[component]
		if !ok {
			continue
		}
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("duckdb: marshal %s payload for job %s: %w", component, rs.JobID, err)
		}
		if _, err := stmt.ExecContext(qctx, rs.JobID, component, string(data), rs.GeneratedAt.UTC()); err != nil {
			return fmt.Errorf("duckdb: insert %s payload for job %s: %w", component, rs.JobID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("duckdb: put results for job %s: %w", rs.JobID, err)
	}
	committed = true
	return nil
}

// GetResults reassembles a job's stored ResultSet from its payload rows, or
// returns ErrResultsNotFound when nothing is stored.
func (s *Store) GetResults(ctx context.Context, jobID string) (model.ResultSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	release := s.acquireRead()
	defer release()

	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(qctx,
		`SELECT component, CAST(payload AS VARCHAR), generated_at FROM results WHERE job_id = ?`, jobID)
	if err != nil {
		return model.ResultSet{}, fmt.Errorf("duckdb: get results for job %s: %w", jobID, err)
	}
	defer rows.Close()

	rs := model.ResultSet{JobID: jobID}
	found := false
	for rows.Next() {
		var component, payload string
		var generatedAt sql.NullTime
		if err := rows.Scan(&component, &payload, &generatedAt); err != nil {
			log.Printf("duckdb scan error (GetResults): %v", err)
			continue
		}
		found = true
		if generatedAt.Valid {
			rs.GeneratedAt = generatedAt.Time.UTC()
		}
		if err := unmarshalComponent(&rs, component, []byte(payload)); err != nil {
			return model.ResultSet{}, fmt.Errorf("duckdb: decode %s payload for job %s: %w", component, jobID, err)
		}
	}
	if err := rows.Err(); err != nil {
		return model.ResultSet{}, fmt.Errorf("duckdb: get results for job %s: %w", jobID, err)
	}
	if !found {
		return model.ResultSet{}, ErrResultsNotFound
	}
	return rs, nil
}

// DeleteResults drops all stored payloads for a job. Deleting results that do
// not exist is not an error.
func (s *Store) DeleteResults(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(qctx, `DELETE FROM results WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("duckdb: delete results for job %s: %w", jobID, err)
	}
	return nil
}

func unmarshalComponent(rs *model.ResultSet, component string, payload []byte) error {
	switch component {
	case metaComponent:
		var meta resultMeta
		if err := json.Unmarshal(payload, &meta); err != nil {
			return err
		}
		rs.Source = meta.Source
		rs.Quarantined = meta.Quarantined
		rs.ComponentErrors = meta.ComponentErrors
	case model.ComponentAggregates:
		rs.Aggregates = new(model.AggregatesResponse)
		return json.Unmarshal(payload, rs.Aggregates)
	case model.ComponentExceptions:
		rs.Exceptions = new(model.ExceptionsResponse)
		return json.Unmarshal(payload, rs.Exceptions)
	case model.ComponentGaps:
		rs.Gaps = new(model.GapsResponse)
		return json.Unmarshal(payload, rs.Gaps)
	case model.ComponentThreadStats:
		rs.ThreadStats = new(model.ThreadStatsResponse)
		return json.Unmarshal(payload, rs.ThreadStats)
	case model.ComponentFilters:
		rs.FilterComplexity = new(model.FilterComplexityResponse)
		return json.Unmarshal(payload, rs.FilterComplexity)
	case model.ComponentAnomalies:
		rs.Anomalies = new(model.AnomalyList)
		return json.Unmarshal(payload, rs.Anomalies)
	case model.ComponentHealth:
		rs.Health = new(model.HealthScore)
		return json.Unmarshal(payload, rs.Health)
	default:
		log.Printf("duckdb: ignoring unknown result component %q", component)
	}
	return nil
}
