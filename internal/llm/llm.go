// Package llm talks to the text-generation service.
package llm

import (
	"context"
	"fmt"
)

// Task selects the model options and the prompt family of a request.
type Task string

const (
	TaskSummarize      Task = "summarize"
	TaskDocumentation  Task = "documentation"
	TaskProjectSummary Task = "project_summary"
	TaskArchitecture   Task = "architecture"
)

// Tasks lists every task in pipeline order.
var Tasks = []Task{TaskSummarize, TaskDocumentation, TaskProjectSummary, TaskArchitecture}

// Request is one generation call.
type Request struct {
	Task   Task
	System string
	Prompt string
}

// Generator produces text for a request. Implementations must be safe for
// concurrent use.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Unloader is implemented by generators that keep models resident between
// calls. UnloadTasks frees the models used by tasks, except any model that
// one of keep still needs.
type Unloader interface {
	UnloadTasks(ctx context.Context, tasks, keep []Task) error
}

// ServiceError reports a failure of the generation service itself:
// unreachable, non-200, or an undecodable reply.
type ServiceError struct {
	Model      string
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("generation service (%s): HTTP %d: %v", e.Model, e.StatusCode, e.Err)
	case e.Model != "":
		return fmt.Sprintf("generation service (%s): %v", e.Model, e.Err)
	default:
		return fmt.Sprintf("generation service: %v", e.Err)
	}
}

func (e *ServiceError) Unwrap() error { return e.Err }
