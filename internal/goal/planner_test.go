package goal_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/halcyon-foundry/autarch/internal/bus"
	"github.com/halcyon-foundry/autarch/internal/goal"
	"github.com/halcyon-foundry/autarch/internal/guardrails"
	"github.com/halcyon-foundry/autarch/internal/intent"
	"github.com/halcyon-foundry/autarch/internal/kernel"
	"github.com/halcyon-foundry/autarch/internal/memory"
	"github.com/halcyon-foundry/autarch/internal/task"
)

type plannerFixture struct {
	kernel  *kernel.Kernel
	guards  *guardrails.Engine
	tasks   *task.Engine
	planner *goal.Planner
}

func newFixture(t *testing.T) plannerFixture {
	t.Helper()
	k := kernel.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	events := bus.New()
	guards := guardrails.NewEngine(guardrails.Default(), k, events)
	tasks := task.NewEngine(task.Config{
		Kernel:  k,
		Guards:  guards,
		Intents: intent.NewClassifier(k, guards),
		Memory:  memory.NewShortTerm(),
		Events:  events,
	})
	return plannerFixture{
		kernel:  k,
		guards:  guards,
		tasks:   tasks,
		planner: goal.NewPlanner(k, guards, tasks),
	}
}

func TestCreateMatchesAnalyzeTemplate(t *testing.T) {
	f := newFixture(t)

	g := f.planner.Create("Analyze recent activity", "", goal.CreateOptions{})
	if g.Status != goal.StatusActive {
		t.Fatalf("status = %v, want active", g.Status)
	}
	if len(g.TaskIDs) != 1 {
		t.Fatalf("task ids = %v, want exactly one", g.TaskIDs)
	}

	tk, ok := f.tasks.Inspect(g.TaskIDs[0])
	if !ok {
		t.Fatal("auto task not found in task engine")
	}
	if tk.Payload.Description != "Analyze recent autonomy logs for anomalies" {
		t.Fatalf("derived description = %q", tk.Payload.Description)
	}
	if tk.Payload.Meta["goal_id"] != g.ID {
		t.Fatalf("task meta = %+v", tk.Payload.Meta)
	}
}

func TestCreateTemplateTable(t *testing.T) {
	cases := []struct {
		title string
		want  string
	}{
		{"snapshot the current state", "Capture current kernel and task state snapshot"},
		{"capture system status", "Capture current kernel and task state snapshot"},
		{"stabilize the system", "Ensure system reaches a stable idle state"},
		{"reach a steady idle", "Ensure system reaches a stable idle state"},
		{"review the activity feed", "Analyze recent autonomy logs for anomalies"},
	}
	for _, tc := range cases {
		f := newFixture(t)
		g := f.planner.Create(tc.title, "", goal.CreateOptions{})
		if len(g.TaskIDs) != 1 {
			t.Fatalf("%q: no auto task", tc.title)
		}
		tk, _ := f.tasks.Inspect(g.TaskIDs[0])
		if tk.Payload.Description != tc.want {
			t.Fatalf("%q derived %q, want %q", tc.title, tk.Payload.Description, tc.want)
		}
	}
}

func TestCreateWithoutTemplateStaysPending(t *testing.T) {
	f := newFixture(t)

	g := f.planner.Create("Ship the quarterly report", "a plain goal", goal.CreateOptions{})
	if g.Status != goal.StatusPending || len(g.TaskIDs) != 0 {
		t.Fatalf("goal = %+v, want pending with no tasks", g)
	}
}

func TestCreateRunsGuardrailCheck(t *testing.T) {
	f := newFixture(t)

	f.planner.Create("destroy the environment", "", goal.CreateOptions{})

	violations := f.guards.Violations(0)
	if len(violations) == 0 || violations[0].Rule != guardrails.RuleDestructiveGoal {
		t.Fatalf("violations = %+v", violations)
	}
}

func TestAttachTaskIdempotentAndPromotes(t *testing.T) {
	f := newFixture(t)

	g := f.planner.Create("Plain goal", "desc", goal.CreateOptions{})
	tk := f.tasks.Create("manual unit", nil)

	if !f.planner.AttachTask(g.ID, tk.ID) {
		t.Fatal("attach returned false")
	}
	if !f.planner.AttachTask(g.ID, tk.ID) {
		t.Fatal("repeat attach returned false")
	}

	got, _ := f.planner.Get(g.ID)
	if len(got.TaskIDs) != 1 {
		t.Fatalf("task ids = %v, want one entry", got.TaskIDs)
	}
	if got.Status != goal.StatusActive {
		t.Fatalf("status = %v, want active after attach", got.Status)
	}

	if f.planner.AttachTask("missing", tk.ID) {
		t.Fatal("attach to unknown goal returned true")
	}
}

func TestCompleteAndFail(t *testing.T) {
	f := newFixture(t)

	g := f.planner.Create("Plain goal", "desc", goal.CreateOptions{})
	done, ok := f.planner.Complete(g.ID, "all done")
	if !ok || done.Status != goal.StatusCompleted || done.ResultSummary != "all done" {
		t.Fatalf("complete = %+v ok=%v", done, ok)
	}

	other := f.planner.Create("Another goal", "desc", goal.CreateOptions{})
	failed, ok := f.planner.Fail(other.ID, "no capacity")
	if !ok || failed.Status != goal.StatusFailed || failed.ResultSummary != "no capacity" {
		t.Fatalf("fail = %+v ok=%v", failed, ok)
	}

	if _, ok := f.planner.Complete("missing", ""); ok {
		t.Fatal("complete of unknown goal returned ok")
	}
}

func TestListFilterAndOrder(t *testing.T) {
	f := newFixture(t)

	a := f.planner.Create("First goal", "d", goal.CreateOptions{})
	time.Sleep(2 * time.Millisecond)
	b := f.planner.Create("Second goal", "d", goal.CreateOptions{})
	f.planner.Complete(a.ID, "")

	all := f.planner.List("")
	if len(all) != 2 || all[0].ID != b.ID {
		t.Fatalf("list = %+v, want newest first", all)
	}

	completed := f.planner.List(goal.StatusCompleted)
	if len(completed) != 1 || completed[0].ID != a.ID {
		t.Fatalf("filtered = %+v", completed)
	}
}

func TestSyncTasksDemotesIdleActiveGoal(t *testing.T) {
	f := newFixture(t)

	g := f.planner.Create("Plain goal", "desc", goal.CreateOptions{})
	tk := f.tasks.Create("unit", nil)
	f.planner.AttachTask(g.ID, tk.ID)

	// Task still queued: goal stays active.
	f.planner.SyncTasks(g.ID)
	got, _ := f.planner.Get(g.ID)
	if got.Status != goal.StatusActive {
		t.Fatalf("status = %v, want active while task queued", got.Status)
	}

	// Cancel the task; with no live tasks the goal demotes to pending.
	f.tasks.Cancel(tk.ID)
	f.planner.SyncTasks(g.ID)
	got, _ = f.planner.Get(g.ID)
	if got.Status != goal.StatusPending {
		t.Fatalf("status = %v, want pending after demotion", got.Status)
	}

	// Never auto-completed.
	if got.ResultSummary != "" {
		t.Fatalf("unexpected result summary %q", got.ResultSummary)
	}
}

func TestGoalsReferenceTasksWeakly(t *testing.T) {
	f := newFixture(t)

	g := f.planner.Create("Plain goal", "desc", goal.CreateOptions{})
	f.planner.AttachTask(g.ID, "dangling-task-id")

	// Unknown task ids are tolerated; sync treats them as not live.
	f.planner.SyncTasks(g.ID)
	got, _ := f.planner.Get(g.ID)
	if got.Status != goal.StatusPending {
		t.Fatalf("status = %v, want pending", got.Status)
	}
}
