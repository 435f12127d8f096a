package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"proxynexus/internal/shared/logger"
	"proxynexus/internal/shared/types"
	"proxynexus/pool/model"
)

// ErrUnknownKind is returned when a task names a kind with no registered
// executor. The task fails immediately; there is nothing to retry.
var ErrUnknownKind = errors.New("no executor registered for task kind")

// ErrNotCancellable is returned when cancellation arrives after a worker
// has already claimed the task.
var ErrNotCancellable = errors.New("task is no longer pending")

// idleSleep is how long a worker naps when the queue is empty.
const idleSleep = 200 * time.Millisecond

// ExecutorFunc performs one kind of task. The returned value is
// marshalled to JSON and stored as the task result.
type ExecutorFunc func(ctx context.Context, task *model.Task) (any, error)

// TaskStore is the durable task state, implemented by the SQLite store.
type TaskStore interface {
	InsertTask(ctx context.Context, t *model.Task) error
	UpdateTask(ctx context.Context, t *model.Task) error
	DeleteTask(ctx context.Context, id string) error
	GetTask(ctx context.Context, id string) (*model.Task, error)
	ListTasks(ctx context.Context, status model.TaskStatus, limit int) ([]*model.Task, error)
	TasksByStatus(ctx context.Context, status model.TaskStatus) ([]*model.Task, error)
}

// Orchestrator accepts named background tasks, queues them by priority,
// dispatches them to a fixed worker pool, and reconciles orphaned work
// after an unclean shutdown.
type Orchestrator struct {
	cfg       types.OrchestratorConf
	store     TaskStore
	queue     *taskQueue
	executors map[model.TaskKind]ExecutorFunc

	mu      sync.Mutex
	running bool
	quit    chan struct{}
	wg      sync.WaitGroup
}

// New builds an orchestrator. The executor map is supplied at
// construction so tests can run several instances side by side.
func New(cfg types.OrchestratorConf, store TaskStore, executors map[model.TaskKind]ExecutorFunc) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.ShutdownGraceSeconds <= 0 {
		cfg.ShutdownGraceSeconds = 30
	}
	return &Orchestrator{
		cfg:       cfg,
		store:     store,
		queue:     newTaskQueue(cfg.QueueCapacity),
		executors: executors,
	}
}

// CreateTask persists a new pending task and enqueues it. A full queue
// surfaces as ErrQueueFull with no row left behind.
func (o *Orchestrator) CreateTask(ctx context.Context, name string, kind model.TaskKind, cfg model.TaskConfig) (string, error) {
	now := time.Now().UTC()
	task := &model.Task{
		ID:        uuid.NewString(),
		Name:      name,
		Kind:      kind,
		Status:    model.TaskStatusPending,
		Config:    cfg,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := o.store.InsertTask(ctx, task); err != nil {
		return "", fmt.Errorf("failed to persist task: %w", err)
	}
	if err := o.queue.Enqueue(task); err != nil {
		if delErr := o.store.DeleteTask(ctx, task.ID); delErr != nil {
			lg := logger.WithComponent("Orchestrator")
			lg.Error().Err(delErr).Str("task_id", task.ID).Msg("Failed to roll back task row after enqueue failure.")
		}
		return "", err
	}

	lg := logger.WithComponent("Orchestrator")
	lg.Info().
		Str("task_id", task.ID).Str("name", name).Str("kind", string(kind)).
		Int("priority", cfg.Priority).Msg("Task created.")
	return task.ID, nil
}

// GetTask returns the persisted task state.
func (o *Orchestrator) GetTask(ctx context.Context, id string) (*model.Task, error) {
	return o.store.GetTask(ctx, id)
}

// ListTasks returns tasks newest-first, optionally filtered by status.
func (o *Orchestrator) ListTasks(ctx context.Context, status model.TaskStatus, limit int) ([]*model.Task, error) {
	return o.store.ListTasks(ctx, status, limit)
}

// CancelTask cancels a pending task. Once a worker has claimed it the
// task runs to completion (or is abandoned at shutdown and reconciled by
// the next recovery pass). A task that is pending in the store but not
// in the queue (its re-enqueue was rejected during recovery) is still
// cancellable: the store row is the source of truth.
func (o *Orchestrator) CancelTask(ctx context.Context, id string) error {
	removed := o.queue.Remove(id)

	task, err := o.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if !removed && task.Status != model.TaskStatusPending {
		return ErrNotCancellable
	}

	now := time.Now().UTC()
	task.Status = model.TaskStatusCancelled
	task.CompletedAt = &now
	if err := o.store.UpdateTask(ctx, task); err != nil {
		return err
	}

	lg := logger.WithComponent("Orchestrator")
	lg.Info().Str("task_id", id).Msg("Task cancelled.")
	return nil
}

// Start recovers orphaned tasks and launches the worker pool.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return nil
	}

	if err := o.recover(ctx); err != nil {
		return err
	}

	// Workers hold their own reference to the quit channel. A restart
	// after an expired grace period makes a new channel; stragglers from
	// the previous pool keep watching the old, already-closed one and
	// exit as soon as their task finishes.
	o.quit = make(chan struct{})
	o.running = true
	for i := 0; i < o.cfg.Workers; i++ {
		o.wg.Add(1)
		go o.workerLoop(fmt.Sprintf("worker-%d", i), o.quit)
	}

	lg := logger.WithComponent("Orchestrator")
	lg.Info().Int("workers", o.cfg.Workers).Msg("Orchestrator started.")
	return nil
}

// Stop signals workers to finish their current task and waits up to the
// configured grace period. Tasks still in flight after the grace period
// are abandoned; their rows stay running until the next recovery pass.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	close(o.quit)
	o.mu.Unlock()

	l := logger.WithComponent("Orchestrator")
	grace := time.Duration(o.cfg.ShutdownGraceSeconds) * time.Second
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		l.Info().Msg("Orchestrator stopped.")
	case <-time.After(grace):
		l.Warn().Dur("grace", grace).Msg("Shutdown grace period exceeded; abandoning in-flight tasks.")
	}
}

// recover resets tasks orphaned in running state (no worker holds them
// after an unclean shutdown) back to pending and re-enqueues them, then
// re-enqueues persisted pending tasks that are not in the in-memory
// queue. This is the only legitimate backward status transition.
func (o *Orchestrator) recover(ctx context.Context) error {
	l := logger.WithComponent("Orchestrator")

	orphaned, err := o.store.TasksByStatus(ctx, model.TaskStatusRunning)
	if err != nil {
		return fmt.Errorf("recovery scan failed: %w", err)
	}
	for _, task := range orphaned {
		task.Status = model.TaskStatusPending
		task.AssignedWorker = ""
		task.StartedAt = nil
		if err := o.store.UpdateTask(ctx, task); err != nil {
			return fmt.Errorf("failed to reset orphaned task %s: %w", task.ID, err)
		}
		l.Warn().Str("task_id", task.ID).Str("name", task.Name).Msg("Recovered orphaned running task.")
	}

	pending, err := o.store.TasksByStatus(ctx, model.TaskStatusPending)
	if err != nil {
		return fmt.Errorf("pending scan failed: %w", err)
	}
	for _, task := range pending {
		if err := o.queue.Enqueue(task); err != nil {
			// The row stays pending; it will be picked up by the next
			// restart once the queue has room.
			l.Error().Err(err).Str("task_id", task.ID).Msg("Could not re-enqueue pending task.")
		}
	}
	if len(orphaned) > 0 || len(pending) > 0 {
		l.Info().Int("recovered", len(orphaned)).Int("requeued", len(pending)).Msg("Recovery pass finished.")
	}
	return nil
}

// workerLoop pops tasks until the quit signal. The loop finishes its
// current task before exiting.
func (o *Orchestrator) workerLoop(workerID string, quit <-chan struct{}) {
	defer o.wg.Done()
	l := logger.WithComponent("Orchestrator").With().Str("worker", workerID).Logger()

	for {
		select {
		case <-quit:
			return
		default:
		}

		task, ok := o.queue.Dequeue()
		if !ok {
			select {
			case <-quit:
				return
			case <-time.After(idleSleep):
			}
			continue
		}

		o.execute(l, workerID, task)
	}
}

// execute runs one task through its registered executor and persists the
// terminal state. Executor failure fails the task; there is no automatic
// retry at the task level, so genuinely fatal errors stay visible.
func (o *Orchestrator) execute(log zerolog.Logger, workerID string, task *model.Task) {
	ctx := context.Background()
	now := time.Now().UTC()

	// Re-read the row before claiming: a cancel may have landed between
	// dequeue and here, and a cancelled task must stay cancelled.
	current, err := o.store.GetTask(ctx, task.ID)
	if err != nil {
		log.Error().Err(err).Str("task_id", task.ID).Msg("Failed to load task before claiming.")
		return
	}
	if current.Status != model.TaskStatusPending {
		log.Info().Str("task_id", task.ID).Str("status", string(current.Status)).Msg("Skipping task no longer pending.")
		return
	}

	task.Status = model.TaskStatusRunning
	task.StartedAt = &now
	task.AssignedWorker = workerID
	if err := o.store.UpdateTask(ctx, task); err != nil {
		log.Error().Err(err).Str("task_id", task.ID).Msg("Failed to mark task running.")
		return
	}

	exec, ok := o.executors[task.Kind]
	if !ok {
		o.finish(ctx, log, task, nil, fmt.Errorf("%w: %s", ErrUnknownKind, task.Kind))
		return
	}

	runCtx := ctx
	if task.Config.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, task.Config.Timeout)
		defer cancel()
	}

	result, err := exec(runCtx, task)
	o.finish(ctx, log, task, result, err)
}

// finish records the terminal state of a task.
func (o *Orchestrator) finish(ctx context.Context, log zerolog.Logger, task *model.Task, result any, execErr error) {
	now := time.Now().UTC()
	task.CompletedAt = &now

	if execErr != nil {
		task.Status = model.TaskStatusFailed
		task.Error = execErr.Error()
	} else {
		task.Status = model.TaskStatusCompleted
		if result != nil {
			data, err := json.Marshal(result)
			if err != nil {
				task.Status = model.TaskStatusFailed
				task.Error = fmt.Sprintf("failed to encode task result: %v", err)
			} else {
				task.Result = data
			}
		}
	}

	if err := o.store.UpdateTask(ctx, task); err != nil {
		log.Error().Err(err).Str("task_id", task.ID).Msg("Failed to persist terminal task state.")
		return
	}
	if task.Status == model.TaskStatusFailed {
		log.Warn().Str("task_id", task.ID).Str("name", task.Name).Str("error", task.Error).Msg("Task failed.")
	} else {
		log.Info().Str("task_id", task.ID).Str("name", task.Name).Msg("Task completed.")
	}
}
