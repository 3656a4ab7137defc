package tasks

import (
	"context"
	"encoding/json"
	"errors"
)

// Task is a unit of background work: a routing type plus an opaque payload.
type Task struct {
	Type    string
	Payload []byte
}

// Handler processes one task. Errors are logged by the backend; callers never wait for them.
type Handler func(ctx context.Context, t Task) error

// Dispatcher hands tasks to a background backend and returns without running them.
type Dispatcher interface {
	Enqueue(ctx context.Context, t Task) error
}

// Registry binds task types to handlers.
type Registry interface {
	Register(taskType string, h Handler)
}

var (
	ErrNoHandler   = errors.New("tasks: no handler registered")
	ErrInvalidTask = errors.New("tasks: task type is required")
)

// NewJSONTask builds a task with a JSON-encoded payload.
func NewJSONTask(taskType string, v any) (Task, error) {
	if taskType == "" {
		return Task{}, ErrInvalidTask
	}
	b, err := json.Marshal(v)
	if err != nil {
		return Task{}, err
	}
	return Task{Type: taskType, Payload: b}, nil
}

// Decode unmarshals the task payload into v.
func (t Task) Decode(v any) error {
	return json.Unmarshal(t.Payload, v)
}
