// Package task owns the FIFO task queue and the single-concurrency worker
// loop. At most one task runs at any instant; the worker drains the queue one
// task per tick. Cancellation is cooperative: a running task's cancel flag is
// honored when its unit of work finishes, never preemptively.
package task

import (
	"maps"
	"sync"
	"time"
)

// Status is a task's state-machine position.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Payload is the work description attached at creation.
type Payload struct {
	Description string
	Meta        map[string]any
}

// Result is the terminal outcome of a task.
type Result struct {
	Success     bool
	Data        map[string]any
	Error       string
	CompletedAt time.Time
}

// Task is a unit of schedulable work. Values returned from the engine are
// copies; mutate nothing through them.
type Task struct {
	ID        string
	Status    Status
	CreatedAt time.Time
	Payload   Payload
	Logs      []string
	Result    *Result
}

func (t *Task) clone() Task {
	cp := *t
	cp.Logs = append([]string(nil), t.Logs...)
	if t.Payload.Meta != nil {
		cp.Payload.Meta = maps.Clone(t.Payload.Meta)
	}
	if t.Result != nil {
		r := *t.Result
		if r.Data != nil {
			r.Data = maps.Clone(r.Data)
		}
		cp.Result = &r
	}
	return cp
}

func (t *Task) appendLog(message string) {
	t.Logs = append(t.Logs, time.Now().Format(time.RFC3339)+": "+message)
}

// Metrics is the queue-level view used by commands and reflection.
type Metrics struct {
	QueuedCount   int
	Running       *Task
	LastCompleted *Task
}

// queue is the FIFO of pending task ids.
type queue struct {
	mu  sync.Mutex
	ids []string
}

func (q *queue) push(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, id)
}

func (q *queue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ids) == 0 {
		return "", false
	}
	id := q.ids[0]
	q.ids = q.ids[1:]
	return id, true
}

func (q *queue) remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, queued := range q.ids {
		if queued == id {
			q.ids = append(q.ids[:i], q.ids[i+1:]...)
			return true
		}
	}
	return false
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}
