// Package supervisor races a set of named tasks to first completion, then
// cancels and drains the rest. The caller decides what the first completion
// means; the combinator only guarantees the ordering: first result, the
// before-cancel hook, cancellation, full drain.
package supervisor

import (
	"context"
	"fmt"
	"sync"
)

// Task is a named unit of work run under supervision. Run must honor ctx
// cancellation; a task that ignores it delays the drain.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Result pairs a finished task with its outcome.
type Result struct {
	Name string
	Err  error
}

type options struct {
	beforeCancel func(Result)
}

type Option func(*options)

// WithBeforeCancel runs f after the first task finishes and before the
// remaining tasks are cancelled.
func WithBeforeCancel(f func(Result)) Option {
	return func(o *options) {
		o.beforeCancel = f
	}
}

// Supervise runs every task in its own goroutine and blocks until the first
// finishes, then cancels the others and waits for all of them to return.
// A panic inside a task is captured as that task's error instead of killing
// the process, so defects surface through the same race as ordinary
// failures.
func Supervise(ctx context.Context, tasks []Task, opts ...Option) Result {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if len(tasks) == 0 {
		return Result{}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan Result, len(tasks))
	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		go func(task Task) {
			defer wg.Done()
			results <- runTask(ctx, task)
		}(task)
	}

	first := <-results
	if o.beforeCancel != nil {
		o.beforeCancel(first)
	}
	cancel()
	wg.Wait()
	return first
}

func runTask(ctx context.Context, task Task) (res Result) {
	res.Name = task.Name
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("task %s panicked: %v", task.Name, r)
		}
	}()
	res.Err = task.Run(ctx)
	return res
}
