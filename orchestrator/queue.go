package orchestrator

import (
	"container/heap"
	"errors"
	"sync"

	"proxynexus/pool/model"
)

// ErrQueueFull is the backpressure signal returned when the bounded
// queue is at capacity. Callers retry later or raise the capacity; it is
// never swallowed.
var ErrQueueFull = errors.New("task queue is full")

const defaultQueueCapacity = 1000

// queueItem wraps a task with its FIFO tiebreaker.
type queueItem struct {
	task *model.Task
	seq  uint64 // insertion order, breaks priority ties
}

// taskHeap orders by priority (higher number dispatches first), then by
// insertion order.
type taskHeap []*queueItem

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].task.Config.Priority != h[j].task.Config.Priority {
		return h[i].task.Config.Priority > h[j].task.Config.Priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*queueItem)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// taskQueue is the bounded in-memory priority queue feeding the worker
// pool. Durability lives in the task store; the queue only orders
// dispatch.
type taskQueue struct {
	mu       sync.Mutex
	items    taskHeap
	capacity int
	seq      uint64
}

func newTaskQueue(capacity int) *taskQueue {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	return &taskQueue{capacity: capacity}
}

// Enqueue adds a task, failing with ErrQueueFull at capacity.
func (q *taskQueue) Enqueue(t *model.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.capacity {
		return ErrQueueFull
	}
	q.seq++
	heap.Push(&q.items, &queueItem{task: t, seq: q.seq})
	return nil
}

// Dequeue pops the most urgent task, or returns false when empty.
func (q *taskQueue) Dequeue() (*model.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	item := heap.Pop(&q.items).(*queueItem)
	return item.task, true
}

// Remove takes a task out of the queue by id before any worker claims
// it. Returns false if the task is no longer queued.
func (q *taskQueue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, item := range q.items {
		if item.task.ID == id {
			heap.Remove(&q.items, i)
			return true
		}
	}
	return false
}

// Len returns the number of queued tasks.
func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
