package task

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/halcyon-foundry/autarch/internal/bus"
	"github.com/halcyon-foundry/autarch/internal/guardrails"
	"github.com/halcyon-foundry/autarch/internal/intent"
	"github.com/halcyon-foundry/autarch/internal/kernel"
	"github.com/halcyon-foundry/autarch/internal/memory"
)

const (
	defaultTickInterval = 400 * time.Millisecond
	defaultWorkDelay    = 500 * time.Millisecond
)

// Runner performs one task's unit of work. The default runner waits a fixed
// delay standing in for real work. A non-nil error finalizes the task as
// failed.
type Runner func(ctx context.Context, t Task) (map[string]any, error)

// Config holds the engine's dependencies and tuning.
type Config struct {
	Kernel  *kernel.Kernel
	Guards  *guardrails.Engine
	Intents *intent.Classifier
	Memory  *memory.ShortTerm
	Events  *bus.Bus

	// TickInterval is the worker cadence; defaults to 400ms.
	TickInterval time.Duration
	// WorkDelay is the simulated per-task unit of work; defaults to 500ms.
	WorkDelay time.Duration
	// Runner overrides the simulated unit of work (tests, cron probes).
	Runner Runner
}

// Engine owns the task map, the FIFO queue, and the worker loop.
type Engine struct {
	mu      sync.Mutex
	tasks   map[string]*Task
	queue   queue
	current string // id of the running task, or ""

	kernel  *kernel.Kernel
	guards  *guardrails.Engine
	intents *intent.Classifier
	stm     *memory.ShortTerm
	events  *bus.Bus

	tick   time.Duration
	runner Runner

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates an Engine. Start must be called before queued tasks are
// drained.
func NewEngine(cfg Config) *Engine {
	tick := cfg.TickInterval
	if tick <= 0 {
		tick = defaultTickInterval
	}
	delay := cfg.WorkDelay
	if delay <= 0 {
		delay = defaultWorkDelay
	}
	runner := cfg.Runner
	if runner == nil {
		runner = func(ctx context.Context, t Task) (map[string]any, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			return map[string]any{
				"echo": map[string]any{
					"description": t.Payload.Description,
					"meta":        t.Payload.Meta,
				},
			}, nil
		}
	}
	return &Engine{
		tasks:   make(map[string]*Task),
		kernel:  cfg.Kernel,
		guards:  cfg.Guards,
		intents: cfg.Intents,
		stm:     cfg.Memory,
		events:  cfg.Events,
		tick:    tick,
		runner:  runner,
	}
}

// Start launches the worker loop; it honors ctx for shutdown.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.wg.Add(1)
	go e.loop(ctx)
	if e.kernel != nil {
		e.kernel.Debug("tasks.worker", "task worker started", map[string]any{"tick_ms": e.tick.Milliseconds()})
	}
}

// Stop cancels the worker loop and waits for it to exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	if e.kernel != nil {
		e.kernel.Debug("tasks.worker", "task worker stopped", nil)
	}
}

func (e *Engine) loop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.runNext(ctx)
		}
	}
}

// Create validates nothing beyond generating an id: it enqueues the task,
// analyzes its intent, and runs the guardrail check, all in the same
// synchronous step. The returned Task is a copy.
func (e *Engine) Create(description string, meta map[string]any) Task {
	t := &Task{
		ID:        uuid.NewString(),
		Status:    StatusQueued,
		CreatedAt: time.Now(),
		Payload:   Payload{Description: description, Meta: meta},
	}
	t.appendLog("Task created")

	e.mu.Lock()
	e.tasks[t.ID] = t
	e.mu.Unlock()
	e.queue.push(t.ID)

	if e.intents != nil {
		e.intents.AnalyzeTask(t.ID, description)
	}
	if e.guards != nil {
		e.guards.Handle(e.guards.CheckTask(description))
	}
	if e.kernel != nil {
		e.kernel.Info("tasks.engine", "task queued", map[string]any{
			"task_id":     t.ID,
			"description": description,
		})
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return t.clone()
}

// runNext dequeues and runs one task to completion. The single-concurrency
// invariant lives here: nothing is dequeued while a current task is set.
func (e *Engine) runNext(ctx context.Context) {
	e.mu.Lock()
	if e.current != "" {
		e.mu.Unlock()
		return
	}
	var t *Task
	for {
		id, ok := e.queue.pop()
		if !ok {
			e.mu.Unlock()
			return
		}
		if candidate, found := e.tasks[id]; found && candidate.Status == StatusQueued {
			t = candidate
			break
		}
	}
	e.current = t.ID
	e.transitionLocked(t, StatusRunning, "Task started")
	snapshot := t.clone()
	e.mu.Unlock()

	if e.kernel != nil {
		e.kernel.Info("tasks.engine", "running task", map[string]any{"task_id": snapshot.ID})
	}

	data, err := e.runner(ctx, snapshot)
	e.finalize(t.ID, data, err)
}

// finalize moves the current task into its terminal state. A cancel flag set
// while the unit of work ran wins over completion; a runner error wins over
// both.
func (e *Engine) finalize(id string, data map[string]any, runErr error) {
	now := time.Now()

	e.mu.Lock()
	t, ok := e.tasks[id]
	if !ok {
		e.current = ""
		e.mu.Unlock()
		return
	}

	var completed Task
	switch {
	case runErr != nil:
		t.Result = &Result{Success: false, Error: runErr.Error(), CompletedAt: now}
		e.transitionLocked(t, StatusFailed, "Task failed")
	case t.Status == StatusCancelled:
		t.appendLog("Task cancelled during execution")
	default:
		t.Result = &Result{Success: true, Data: data, CompletedAt: now}
		e.transitionLocked(t, StatusCompleted, "Task completed")
		completed = t.clone()
	}
	status := t.Status
	e.current = ""
	e.mu.Unlock()

	switch status {
	case StatusFailed:
		if e.kernel != nil {
			e.kernel.Error("tasks.engine", runErr.Error(), map[string]any{"task_id": id})
		}
		if e.events != nil {
			e.events.Publish(bus.TopicTaskFailed, id)
		}
	case StatusCompleted:
		if e.stm != nil {
			e.stm.RecordTaskCompletion(memory.TaskRecord{
				ID:          completed.ID,
				Description: completed.Payload.Description,
				Status:      string(completed.Status),
				CompletedAt: now,
				Result:      completed.Result.Data,
			})
		}
		if e.events != nil {
			e.events.Publish(bus.TopicTaskCompleted, id)
		}
	}
}

// Cancel cancels a task. Queued tasks are removed from the FIFO and
// finalized immediately; running tasks are marked and honored by the
// worker's finalization step. Terminal or unknown tasks return false.
func (e *Engine) Cancel(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.tasks[id]
	if !ok {
		return false
	}

	switch t.Status {
	case StatusQueued:
		e.queue.remove(id)
		e.transitionLocked(t, StatusCancelled, "Task cancelled before execution")
		return true
	case StatusRunning:
		e.transitionLocked(t, StatusCancelled, "Task marked as cancelled")
		return true
	}
	return false
}

// transitionLocked updates status and task log and publishes the state
// change. Callers hold e.mu.
func (e *Engine) transitionLocked(t *Task, next Status, message string) {
	prev := t.Status
	t.Status = next
	t.appendLog(message)
	if e.events != nil {
		e.events.Publish(bus.TopicTaskStateChanged, bus.TaskStateChangedEvent{
			TaskID:    t.ID,
			OldStatus: string(prev),
			NewStatus: string(next),
		})
	}
}

// List returns copies of all tasks, newest-created first.
func (e *Engine) List() []Task {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Task, 0, len(e.tasks))
	for _, t := range e.tasks {
		out = append(out, t.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Inspect returns a copy of one task by id.
func (e *Engine) Inspect(id string) (Task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.tasks[id]
	if !ok {
		return Task{}, false
	}
	return t.clone(), true
}

// Metrics reports the queue depth, the running task, and the most recently
// completed task.
func (e *Engine) Metrics() Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()

	m := Metrics{QueuedCount: e.queue.len()}
	if e.current != "" {
		if t, ok := e.tasks[e.current]; ok {
			cp := t.clone()
			m.Running = &cp
		}
	}

	var lastCompleted *Task
	for _, t := range e.tasks {
		if t.Status != StatusCompleted || t.Result == nil {
			continue
		}
		if lastCompleted == nil || t.Result.CompletedAt.After(lastCompleted.Result.CompletedAt) {
			lastCompleted = t
		}
	}
	if lastCompleted != nil {
		cp := lastCompleted.clone()
		m.LastCompleted = &cp
	}
	return m
}

// RunningCount reports how many tasks are currently running (0 or 1).
func (e *Engine) RunningCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	count := 0
	for _, t := range e.tasks {
		if t.Status == StatusRunning {
			count++
		}
	}
	return count
}
