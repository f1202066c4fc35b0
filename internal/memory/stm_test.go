package memory_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/halcyon-foundry/autarch/internal/memory"
)

func TestRecordCommandBounded(t *testing.T) {
	stm := memory.NewShortTerm()
	for i := 0; i < memory.MaxCommands+5; i++ {
		stm.RecordCommand(fmt.Sprintf("cmd-%d", i), "ok")
	}

	snap := stm.Snapshot()
	if len(snap.Commands) != memory.MaxCommands {
		t.Fatalf("commands length = %d, want %d", len(snap.Commands), memory.MaxCommands)
	}
	if snap.Commands[0].Command != "cmd-24" {
		t.Fatalf("newest command = %q, want cmd-24", snap.Commands[0].Command)
	}
}

func TestRecordTaskCompletionFiltersStatus(t *testing.T) {
	stm := memory.NewShortTerm()

	stm.RecordTaskCompletion(memory.TaskRecord{ID: "a", Status: "failed"})
	stm.RecordTaskCompletion(memory.TaskRecord{ID: "b", Status: "cancelled"})
	if got := stm.Snapshot().CompletedTasks; len(got) != 0 {
		t.Fatalf("non-completed tasks remembered: %+v", got)
	}

	for i := 0; i < memory.MaxCompletedTasks+3; i++ {
		stm.RecordTaskCompletion(memory.TaskRecord{
			ID:          fmt.Sprintf("t-%d", i),
			Description: "work",
			Status:      "completed",
			CompletedAt: time.Now(),
		})
	}
	got := stm.Snapshot().CompletedTasks
	if len(got) != memory.MaxCompletedTasks {
		t.Fatalf("completed length = %d, want %d", len(got), memory.MaxCompletedTasks)
	}
	if got[0].ID != "t-12" {
		t.Fatalf("newest completed = %q, want t-12", got[0].ID)
	}
}

func TestKernelErrorReplaced(t *testing.T) {
	stm := memory.NewShortTerm()
	if stm.Snapshot().LastKernelError != nil {
		t.Fatal("fresh store has a kernel error")
	}

	stm.RecordKernelError("first", nil)
	stm.RecordKernelError("second", map[string]any{"source": "worker"})

	e := stm.Snapshot().LastKernelError
	if e == nil || e.Message != "second" {
		t.Fatalf("last error = %+v, want second", e)
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	stm := memory.NewShortTerm()
	stm.RecordCommand("ping", "ok")

	snap := stm.Snapshot()
	snap.Commands[0].Command = "tampered"

	if got := stm.Snapshot().Commands[0].Command; got != "ping" {
		t.Fatalf("snapshot mutation leaked: %q", got)
	}
}

func TestRestoreTrimsToCaps(t *testing.T) {
	var snap memory.Snapshot
	for i := 0; i < memory.MaxCommands*2; i++ {
		snap.Commands = append(snap.Commands, memory.CommandRecord{Command: fmt.Sprintf("c%d", i)})
	}
	snap.LastKernelError = &memory.KernelError{Message: "boom"}

	stm := memory.NewShortTerm()
	stm.Restore(snap)

	got := stm.Snapshot()
	if len(got.Commands) != memory.MaxCommands {
		t.Fatalf("restored commands = %d, want %d", len(got.Commands), memory.MaxCommands)
	}
	if got.LastKernelError == nil || got.LastKernelError.Message != "boom" {
		t.Fatalf("restored error = %+v", got.LastKernelError)
	}

	stm.Restore(memory.Snapshot{})
	if got := stm.Snapshot(); len(got.Commands) != 0 || got.LastKernelError != nil {
		t.Fatal("restore of empty snapshot did not clear store")
	}
}
