package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"proxynexus/pool/model"
)

const taskColumns = `id, name, kind, status, priority, timeout_ms, max_retries, retry_delay_ms,
	params, created_at, updated_at, started_at, completed_at, result, error, assigned_worker, retry_count`

// InsertTask persists a new task row.
func (s *Store) InsertTask(ctx context.Context, t *model.Task) error {
	params, err := marshalParams(t.Config.Params)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Name, t.Kind, t.Status, t.Config.Priority,
		t.Config.Timeout.Milliseconds(), t.Config.MaxRetries, t.Config.RetryDelay.Milliseconds(),
		params, t.CreatedAt.UTC().Format(time.RFC3339Nano), t.UpdatedAt.UTC().Format(time.RFC3339Nano),
		nullableTime(t.StartedAt), nullableTime(t.CompletedAt),
		nullableRawJSON(t.Result), nullableString(t.Error), nullableString(t.AssignedWorker), t.RetryCount)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// UpdateTask rewrites a task's mutable fields by id. One worker owns a
// running task at a time, so per-id writes are already serialized.
func (s *Store) UpdateTask(ctx context.Context, t *model.Task) error {
	t.UpdatedAt = time.Now().UTC()
	res, err := s.DB.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, updated_at = ?, started_at = ?, completed_at = ?,
		    result = ?, error = ?, assigned_worker = ?, retry_count = ?
		WHERE id = ?
	`, t.Status, t.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(t.StartedAt), nullableTime(t.CompletedAt),
		nullableRawJSON(t.Result), nullableString(t.Error), nullableString(t.AssignedWorker), t.RetryCount,
		t.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// DeleteTask removes a task row, used to roll back a create whose
// enqueue was rejected.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// GetTask loads one task by id.
func (s *Store) GetTask(ctx context.Context, id string) (*model.Task, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return t, nil
}

// ListTasks returns tasks ordered newest-first, optionally filtered by
// status. limit <= 0 means 50.
func (s *Store) ListTasks(ctx context.Context, status model.TaskStatus, limit int) ([]*model.Task, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// TasksByStatus returns every task in the given status, oldest first.
// Recovery uses this to find orphaned running tasks at startup.
func (s *Store) TasksByStatus(ctx context.Context, status model.TaskStatus) ([]*model.Task, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE status = ? ORDER BY created_at ASC`, status)
	if err != nil {
		return nil, fmt.Errorf("tasks by status: %w", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func scanTask(scanner interface {
	Scan(dest ...any) error
}) (*model.Task, error) {
	var (
		id, name, kind, status   string
		priority                 int
		timeoutMs, retryDelayMs  int64
		maxRetries, retryCount   int
		params                   sql.NullString
		createdAt, updatedAt     string
		startedAt, completedAt   sql.NullString
		result, errMsg, assigned sql.NullString
	)
	if err := scanner.Scan(&id, &name, &kind, &status, &priority, &timeoutMs, &maxRetries, &retryDelayMs,
		&params, &createdAt, &updatedAt, &startedAt, &completedAt, &result, &errMsg, &assigned, &retryCount); err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}

	t := &model.Task{
		ID:     id,
		Name:   name,
		Kind:   model.TaskKind(kind),
		Status: model.TaskStatus(status),
		Config: model.TaskConfig{
			Priority:   priority,
			Timeout:    time.Duration(timeoutMs) * time.Millisecond,
			MaxRetries: maxRetries,
			RetryDelay: time.Duration(retryDelayMs) * time.Millisecond,
		},
		CreatedAt:  mustParseTime(createdAt),
		UpdatedAt:  mustParseTime(updatedAt),
		RetryCount: retryCount,
	}
	if params.Valid && params.String != "" {
		if err := json.Unmarshal([]byte(params.String), &t.Config.Params); err != nil {
			return nil, fmt.Errorf("unmarshal task params: %w", err)
		}
	}
	if startedAt.Valid {
		ts := mustParseTime(startedAt.String)
		t.StartedAt = &ts
	}
	if completedAt.Valid {
		ts := mustParseTime(completedAt.String)
		t.CompletedAt = &ts
	}
	if result.Valid {
		t.Result = json.RawMessage(result.String)
	}
	if errMsg.Valid {
		t.Error = errMsg.String
	}
	if assigned.Valid {
		t.AssignedWorker = assigned.String
	}
	return t, nil
}

func marshalParams(params map[string]string) (any, error) {
	if len(params) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal task params: %w", err)
	}
	return string(data), nil
}

func nullableRawJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
