package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds all autarch metric instruments.
type Metrics struct {
	CommandDuration     metric.Float64Histogram
	TaskDuration        metric.Float64Histogram
	TasksCompleted      metric.Int64Counter
	TasksFailed         metric.Int64Counter
	GuardrailViolations metric.Int64Counter
	Reflections         metric.Int64Counter
	InputsBlocked       metric.Int64Counter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.CommandDuration, err = meter.Float64Histogram("autarch.command.duration",
		metric.WithDescription("Command execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.TaskDuration, err = meter.Float64Histogram("autarch.task.duration",
		metric.WithDescription("Task processing duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksCompleted, err = meter.Int64Counter("autarch.task.completed",
		metric.WithDescription("Tasks completed by the worker"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksFailed, err = meter.Int64Counter("autarch.task.failed",
		metric.WithDescription("Tasks that ended in failure"),
	)
	if err != nil {
		return nil, err
	}

	m.GuardrailViolations, err = meter.Int64Counter("autarch.guardrail.violations",
		metric.WithDescription("Guardrail violations recorded"),
	)
	if err != nil {
		return nil, err
	}

	m.Reflections, err = meter.Int64Counter("autarch.reflection.count",
		metric.WithDescription("Reflections produced"),
	)
	if err != nil {
		return nil, err
	}

	m.InputsBlocked, err = meter.Int64Counter("autarch.guardian.blocked",
		metric.WithDescription("Inputs blocked before execution"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
