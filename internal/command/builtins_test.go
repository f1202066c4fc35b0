package command_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/halcyon-foundry/autarch/internal/bus"
	"github.com/halcyon-foundry/autarch/internal/command"
	"github.com/halcyon-foundry/autarch/internal/goal"
	"github.com/halcyon-foundry/autarch/internal/guardrails"
	"github.com/halcyon-foundry/autarch/internal/intent"
	"github.com/halcyon-foundry/autarch/internal/kernel"
	"github.com/halcyon-foundry/autarch/internal/memory"
	"github.com/halcyon-foundry/autarch/internal/reflection"
	"github.com/halcyon-foundry/autarch/internal/task"
)

type builtinFixture struct {
	executor *command.Executor
	kernel   *kernel.Kernel
	tasks    *task.Engine
	goals    *goal.Planner
	stm      *memory.ShortTerm
	guards   *guardrails.Engine
}

func newBuiltinFixture(t *testing.T) *builtinFixture {
	t.Helper()
	k := kernel.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	guards := guardrails.NewEngine(guardrails.Default(), k, nil)
	stm := memory.NewShortTerm()
	intents := intent.NewClassifier(k, guards)
	events := bus.New()
	tasks := task.NewEngine(task.Config{
		Kernel:  k,
		Guards:  guards,
		Intents: intents,
		Memory:  stm,
		Events:  events,
	})
	goals := goal.NewPlanner(k, guards, tasks)
	reflections := reflection.NewEngine(reflection.Config{
		Kernel:  k,
		Intents: intents,
		Memory:  stm,
		Tasks:   tasks,
		Guards:  guards,
		Events:  events,
	})

	reg := command.NewRegistry()
	err := command.RegisterBuiltins(reg, command.BuiltinConfig{
		Kernel:      k,
		Tasks:       tasks,
		Goals:       goals,
		Memory:      stm,
		Intents:     intents,
		Guards:      guards,
		Reflections: reflections,
	})
	if err != nil {
		t.Fatalf("register builtins: %v", err)
	}

	return &builtinFixture{
		executor: command.NewExecutor(command.ExecutorConfig{
			Registry: reg,
			Kernel:   k,
			Memory:   stm,
		}),
		kernel: k,
		tasks:  tasks,
		goals:  goals,
		stm:    stm,
		guards: guards,
	}
}

func (f *builtinFixture) run(t *testing.T, line string) command.Result {
	t.Helper()
	return f.executor.Execute(context.Background(), line)
}

func TestHelpListsEveryBuiltin(t *testing.T) {
	f := newBuiltinFixture(t)

	res := f.run(t, "help")
	if res.Status != command.StatusOK {
		t.Fatalf("result = %+v", res)
	}
	listing, ok := res.Payload.([]map[string]string)
	if !ok {
		t.Fatalf("payload type %T", res.Payload)
	}
	ids := map[string]bool{}
	for _, entry := range listing {
		ids[entry["id"]] = true
	}
	for _, want := range []string{
		"help", "ping", "state.snapshot", "log.tail",
		"task.new", "task.list", "task.inspect", "task.cancel",
		"goal.new", "goal.list", "goal.complete",
		"memory.stm", "intent.recent", "guard.violations",
		"reflect.now", "bridge.status",
	} {
		if !ids[want] {
			t.Fatalf("help missing %q; got %v", want, listing)
		}
	}
}

func TestPingReportsSession(t *testing.T) {
	f := newBuiltinFixture(t)

	res := f.run(t, "ping")
	if res.Message != "pong" {
		t.Fatalf("message = %q", res.Message)
	}
	payload := res.Payload.(map[string]any)
	if payload["session_id"] != f.kernel.SessionID() {
		t.Fatalf("payload = %+v", payload)
	}
	if len(res.Followups) == 0 {
		t.Fatal("ping has no followups")
	}
}

func TestTaskLifecycleThroughCommands(t *testing.T) {
	f := newBuiltinFixture(t)

	res := f.run(t, "task.new index the archive shelf")
	if res.Status != command.StatusOK {
		t.Fatalf("task.new result = %+v", res)
	}
	created := res.Payload.(task.Task)
	if created.Payload.Description != "index the archive shelf" {
		t.Fatalf("description = %q", created.Payload.Description)
	}

	res = f.run(t, "task.list")
	if tasks := res.Payload.([]task.Task); len(tasks) != 1 || tasks[0].ID != created.ID {
		t.Fatalf("task.list payload = %+v", res.Payload)
	}

	res = f.run(t, "task.inspect "+created.ID)
	if res.Status != command.StatusOK || res.Message != string(task.StatusQueued) {
		t.Fatalf("task.inspect result = %+v", res)
	}

	res = f.run(t, "task.cancel "+created.ID)
	if res.Status != command.StatusOK {
		t.Fatalf("task.cancel result = %+v", res)
	}
	if got, _ := f.tasks.Inspect(created.ID); got.Status != task.StatusCancelled {
		t.Fatalf("status after cancel = %q", got.Status)
	}

	if res := f.run(t, "task.inspect"); res.Status != command.StatusError {
		t.Fatalf("missing-arg inspect = %+v", res)
	}
	if res := f.run(t, "task.new"); res.Status != command.StatusError {
		t.Fatalf("empty task.new = %+v", res)
	}
}

func TestGoalCommandsPlanAndComplete(t *testing.T) {
	f := newBuiltinFixture(t)

	res := f.run(t, "goal.new analyze the activity logs")
	if res.Status != command.StatusOK {
		t.Fatalf("goal.new result = %+v", res)
	}
	g := res.Payload.(goal.Goal)
	if g.Status != goal.StatusActive || len(g.TaskIDs) != 1 {
		t.Fatalf("planned goal = %+v", g)
	}
	if !strings.Contains(res.Message, "task planned") {
		t.Fatalf("message = %q", res.Message)
	}

	res = f.run(t, "goal.list active")
	if goals := res.Payload.([]goal.Goal); len(goals) != 1 {
		t.Fatalf("goal.list payload = %+v", res.Payload)
	}

	res = f.run(t, "goal.complete "+g.ID+" all logs reviewed")
	if res.Status != command.StatusOK {
		t.Fatalf("goal.complete result = %+v", res)
	}
	done, _ := f.goals.Get(g.ID)
	if done.Status != goal.StatusCompleted || done.ResultSummary != "all logs reviewed" {
		t.Fatalf("completed goal = %+v", done)
	}
}

func TestIntrospectionCommands(t *testing.T) {
	f := newBuiltinFixture(t)
	f.run(t, "task.new wipe the staging volume")

	res := f.run(t, "guard.violations")
	payload := res.Payload.(map[string]any)
	if violations := payload["violations"].([]guardrails.Violation); len(violations) != 1 {
		t.Fatalf("violations = %+v", violations)
	}

	res = f.run(t, "intent.recent 5")
	if signals := res.Payload.([]intent.Signal); len(signals) != 1 {
		t.Fatalf("signals = %+v", signals)
	}

	res = f.run(t, "memory.stm")
	snap := res.Payload.(memory.Snapshot)
	if len(snap.Commands) < 2 {
		t.Fatalf("stm commands = %+v", snap.Commands)
	}

	res = f.run(t, "log.tail 5")
	if entries := res.Payload.([]kernel.LogEntry); len(entries) == 0 || len(entries) > 5 {
		t.Fatalf("log.tail payload = %+v", res.Payload)
	}
}

func TestReflectNowAndBridgeStatus(t *testing.T) {
	f := newBuiltinFixture(t)

	res := f.run(t, "reflect.now")
	r := res.Payload.(reflection.Reflection)
	if r.ID == "" || r.CreatedAt.After(time.Now()) {
		t.Fatalf("reflection = %+v", r)
	}

	res = f.run(t, "bridge.status")
	if res.Message != "Bridge offline" {
		t.Fatalf("bridge.status without bridge = %+v", res)
	}
}

func TestStateSnapshotCommand(t *testing.T) {
	f := newBuiltinFixture(t)
	f.run(t, "ping")

	res := f.run(t, "state.snapshot")
	state := res.Payload.(kernel.State)
	if state.CommandCount != 1 {
		t.Fatalf("command count = %d, want 1 (snapshot taken before own accounting)", state.CommandCount)
	}
	if state.LastCommand == nil || state.LastCommand.ID != "ping" {
		t.Fatalf("last command = %+v", state.LastCommand)
	}
}
