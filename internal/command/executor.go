package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/halcyon-foundry/autarch/internal/kernel"
	"github.com/halcyon-foundry/autarch/internal/memory"
)

// Executor parses raw input lines, dispatches them through the Registry,
// and records every execution in the kernel and short-term memory.
type Executor struct {
	registry *Registry
	kernel   *kernel.Kernel
	stm      *memory.ShortTerm
}

// ExecutorConfig holds the executor's collaborators.
type ExecutorConfig struct {
	Registry *Registry
	Kernel   *kernel.Kernel
	Memory   *memory.ShortTerm
}

func NewExecutor(cfg ExecutorConfig) *Executor {
	return &Executor{
		registry: cfg.Registry,
		kernel:   cfg.Kernel,
		stm:      cfg.Memory,
	}
}

// Execute runs one raw input line. The first whitespace-separated field is
// the command id, the rest becomes Args. Empty input returns an error
// result without touching the kernel counter; unknown ids and handler
// faults do count as executions and leave an audit trail.
func (x *Executor) Execute(ctx context.Context, raw string) Result {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return Result{Status: StatusError, Message: "No command provided"}
	}
	id := fields[0]
	args := Args{
		Raw:  strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), id)),
		List: fields[1:],
	}

	started := time.Now()
	var res Result

	def, ok := x.registry.Get(id)
	if !ok {
		res = Result{
			Status:    StatusError,
			Message:   "Unknown command: " + id,
			Followups: []string{"help"},
		}
	} else {
		res = x.invoke(ctx, def, args)
	}

	duration := time.Since(started)
	if x.kernel != nil {
		x.kernel.RecordCommandExecution(id, string(res.Status), duration)
	}
	if x.stm != nil {
		x.stm.RecordCommand(id, string(res.Status))
	}
	return res
}

// invoke runs the handler with fault isolation: returned errors and panics
// both become error results tagged with the command's source.
func (x *Executor) invoke(ctx context.Context, def Definition, args Args) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = x.fault(def.ID, fmt.Errorf("panic: %v", r))
		}
	}()

	res, err := def.Handler(ctx, args)
	if err != nil {
		return x.fault(def.ID, err)
	}
	if res.Status == "" {
		res.Status = StatusOK
	}
	return res
}

func (x *Executor) fault(id string, err error) Result {
	if x.kernel != nil {
		x.kernel.Error("command."+id, "handler failed", map[string]any{"error": err.Error()})
	}
	if x.stm != nil {
		x.stm.RecordKernelError(err.Error(), map[string]any{"command": id})
	}
	return Result{
		Status:  StatusError,
		Message: fmt.Sprintf("%s failed: %s", id, err.Error()),
	}
}
