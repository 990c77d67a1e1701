// Package parallel runs keyed tasks concurrently, such as the HTTP listeners started by the CLI.
package parallel

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Task is a unit of work. Long running tasks must return once ctx is cancelled.
type Task func(ctx context.Context) (any, error)

// Result holds the result and error from a parallel task execution
type Result struct {
	Value any
	Error error
}

// Results holds the map of results from parallel execution
type Results map[string]Result

// Err joins the task errors in key order, or returns nil when every task succeeded.
func (r Results) Err() error {
	keys := make([]string, 0, len(r))
	for key := range r {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	var errs []error
	for _, key := range keys {
		if err := r[key].Error; err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// Builder collects keyed tasks and runs them together.
type Builder struct {
	tasks         map[string]Task
	cancelOnError bool
}

// NewBuilder creates a new parallel builder
func NewBuilder() *Builder {
	return &Builder{
		tasks: make(map[string]Task),
	}
}

// Add adds a keyed task to be executed in parallel. A later task with the same key replaces the earlier one.
func (b *Builder) Add(key string, task Task) *Builder {
	b.tasks[key] = task
	return b
}

// CancelOnError cancels the context shared by the tasks as soon as one of them fails.
func (b *Builder) CancelOnError() *Builder {
	b.cancelOnError = true
	return b
}

// Run executes all tasks and blocks until every one has returned.
func (b *Builder) Run(ctx context.Context) Results {
	if len(b.tasks) == 0 {
		return Results{}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(Results, len(b.tasks))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for key, task := range b.tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, err := runTask(ctx, task)

			mu.Lock()
			results[key] = Result{Value: value, Error: err}
			mu.Unlock()

			if err != nil && b.cancelOnError {
				cancel()
			}
		}()
	}

	wg.Wait()
	return results
}

func runTask(ctx context.Context, task Task) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task(ctx)
}

// Get retrieves a typed result using the function signature to infer the return type
func Get[T any](results Results, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	result, exists := results[key]
	if !exists {
		return zero, fmt.Errorf("no result found for key: %s", key)
	}
	if result.Error != nil {
		return zero, result.Error
	}

	value, ok := result.Value.(T)
	if !ok {
		return zero, fmt.Errorf("type assertion failed for key %s: expected %T, got %T", key, zero, result.Value)
	}
	return value, nil
}
