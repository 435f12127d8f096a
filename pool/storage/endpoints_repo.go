package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"proxynexus/pool/model"
)

const endpointColumns = `id, host, port, protocol, declared_country, source, score, acceptable,
	latency_ms, anonymity, success_count, failure_count, first_seen, last_checked, last_error`

// UpsertCandidates inserts newly extracted endpoints. An endpoint already
// known by host:port keeps its row and its validation history; the first
// sighting wins. Returns the number of new rows.
func (s *Store) UpsertCandidates(ctx context.Context, endpoints []*model.Endpoint) (int, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	inserted := 0
	for _, e := range endpoints {
		res, err := s.DB.ExecContext(ctx, `
			INSERT INTO endpoints (id, host, port, protocol, declared_country, source, anonymity, first_seen)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, e.ID(), e.Host, e.Port, e.Protocol, nullableString(e.DeclaredCountry), e.Source, model.AnonymityUnknown, now)
		if err != nil {
			return inserted, fmt.Errorf("upsert candidate %s: %w", e.ID(), err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return inserted, err
		}
		inserted += int(rows)
	}
	return inserted, nil
}

// ApplyOutcome folds one validation outcome into the endpoint's persisted
// aggregate: score, latency, anonymity, and the success/failure streaks
// that drive the revalidation and eviction policies.
func (s *Store) ApplyOutcome(ctx context.Context, o *model.ValidationOutcome) error {
	var (
		latencyMs int64
		anonymity = model.AnonymityUnknown
	)
	success := o.Error == "" && o.Connectivity != nil && o.Connectivity.Success
	if success {
		latencyMs = o.Connectivity.RTT.Milliseconds()
	}
	if o.Anonymity != nil && o.Anonymity.Level != "" {
		anonymity = o.Anonymity.Level
	}

	var query string
	if success {
		// A success resets the failure streak, and vice versa.
		query = `
			UPDATE endpoints
			SET score = ?, acceptable = ?, latency_ms = ?, anonymity = ?,
			    success_count = success_count + 1, failure_count = 0,
			    last_checked = ?, last_error = ?
			WHERE id = ?`
	} else {
		query = `
			UPDATE endpoints
			SET score = ?, acceptable = ?, latency_ms = ?, anonymity = ?,
			    success_count = 0, failure_count = failure_count + 1,
			    last_checked = ?, last_error = ?
			WHERE id = ?`
	}

	acceptable := 0
	if o.Acceptable {
		acceptable = 1
	}
	errMsg := o.Error
	if errMsg == "" && !success && o.Connectivity != nil {
		errMsg = o.Connectivity.Error
	}

	res, err := s.DB.ExecContext(ctx, query,
		o.Score, acceptable, latencyMs, anonymity,
		o.MeasuredAt.UTC().Format(time.RFC3339Nano), nullableString(errMsg),
		o.Endpoint.ID())
	if err != nil {
		return fmt.Errorf("apply outcome for %s: %w", o.Endpoint.ID(), err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrEndpointNotFound
	}
	return nil
}

// GetEndpoint loads one endpoint record by host:port id.
func (s *Store) GetEndpoint(ctx context.Context, id string) (*model.EndpointRecord, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+endpointColumns+` FROM endpoints WHERE id = ?`, id)
	r, err := scanEndpoint(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEndpointNotFound
		}
		return nil, err
	}
	return r, nil
}

// ListEndpoints returns up to limit endpoint records, most recently
// checked first. limit <= 0 means 100.
func (s *Store) ListEndpoints(ctx context.Context, limit int) ([]*model.EndpointRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+endpointColumns+` FROM endpoints
		ORDER BY last_checked DESC, first_seen DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	defer rows.Close()
	return collectEndpoints(rows)
}

// BestEndpoints returns the top acceptable endpoints: highest score
// first, ties broken by lowest latency.
func (s *Store) BestEndpoints(ctx context.Context, n int) ([]*model.EndpointRecord, error) {
	if n <= 0 {
		n = 10
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+endpointColumns+` FROM endpoints
		WHERE acceptable = 1 AND success_count > 0
		ORDER BY score DESC, latency_ms ASC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("best endpoints: %w", err)
	}
	defer rows.Close()
	return collectEndpoints(rows)
}

// StaleEndpoints returns endpoints whose last check is older than the
// cutoff (or that were never checked), oldest first, up to limit.
func (s *Store) StaleEndpoints(ctx context.Context, olderThan time.Time, limit int) ([]*model.EndpointRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+endpointColumns+` FROM endpoints
		WHERE last_checked IS NULL OR last_checked < ?
		ORDER BY last_checked ASC
		LIMIT ?`, olderThan.UTC().Format(time.RFC3339Nano), limit)
	if err != nil {
		return nil, fmt.Errorf("stale endpoints: %w", err)
	}
	defer rows.Close()
	return collectEndpoints(rows)
}

// EvictFailing deletes endpoints whose consecutive failure streak has
// reached the threshold. Returns the number of rows removed.
func (s *Store) EvictFailing(ctx context.Context, threshold int) (int, error) {
	if threshold <= 0 {
		threshold = 7
	}
	res, err := s.DB.ExecContext(ctx, `DELETE FROM endpoints WHERE failure_count >= ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("evict failing endpoints: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

// CountEndpoints returns the total number of stored endpoints.
func (s *Store) CountEndpoints(ctx context.Context) (int, error) {
	var count int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM endpoints`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count endpoints: %w", err)
	}
	return count, nil
}

func collectEndpoints(rows *sql.Rows) ([]*model.EndpointRecord, error) {
	var records []*model.EndpointRecord
	for rows.Next() {
		r, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func scanEndpoint(scanner interface {
	Scan(dest ...any) error
}) (*model.EndpointRecord, error) {
	var (
		id, host, protocol, source string
		port                       int
		declaredCountry            sql.NullString
		score                      float64
		acceptable                 int
		latencyMs                  int64
		anonymity                  string
		successCount, failureCount int
		firstSeen                  string
		lastChecked, lastError     sql.NullString
	)
	if err := scanner.Scan(&id, &host, &port, &protocol, &declaredCountry, &source, &score, &acceptable,
		&latencyMs, &anonymity, &successCount, &failureCount, &firstSeen, &lastChecked, &lastError); err != nil {
		return nil, fmt.Errorf("scan endpoint: %w", err)
	}

	r := &model.EndpointRecord{
		ID:           id,
		Host:         host,
		Port:         port,
		Protocol:     protocol,
		Source:       source,
		Score:        score,
		Acceptable:   acceptable != 0,
		Latency:      time.Duration(latencyMs) * time.Millisecond,
		Anonymity:    anonymity,
		SuccessCount: successCount,
		FailureCount: failureCount,
		FirstSeen:    mustParseTime(firstSeen),
	}
	if declaredCountry.Valid {
		r.DeclaredCountry = declaredCountry.String
	}
	if lastChecked.Valid {
		r.LastChecked = mustParseTime(lastChecked.String)
	}
	if lastError.Valid {
		r.LastError = lastError.String
	}
	return r, nil
}
