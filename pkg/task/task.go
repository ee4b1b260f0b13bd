// Package task defines the declarative unit of work the phase controller
// applies to a node: a desired end-state with a Check that reports whether
// the node already satisfies it and an Apply that converges the node.
//
// This split is what makes re-runs idempotent and check mode free of side
// effects: a second run finds every Check already satisfied, and a dry run
// evaluates Checks but never calls Apply.
package task

import (
	"context"

	"github.com/kubeboot/kubeboot/pkg/connector"
	"github.com/kubeboot/kubeboot/pkg/logger"
	"github.com/kubeboot/kubeboot/pkg/runner"
)

// Context carries everything a task needs to inspect and converge one node.
type Context struct {
	// Ctx bounds the remote operations of this node's plan. The controller
	// detaches it from operator cancellation so an in-flight task finishes
	// or times out instead of being severed mid-change.
	Ctx context.Context
	// Halt carries operator cancellation. Run checks it between tasks and
	// stops dispatching once it is done. Nil means no soft stop.
	Halt      context.Context
	Conn      connector.Connector
	Runner    *runner.Runner
	Facts     *runner.Facts
	Log       *logger.Logger
	CheckMode bool
}

// Task is one desired end-state on one node.
type Task interface {
	Name() string
	// Check reports whether the node already matches the desired state.
	// It must not mutate the node.
	Check(tc *Context) (done bool, err error)
	// Apply converges the node toward the desired state. Never called in
	// check mode.
	Apply(tc *Context) error
}

// Fn adapts a pair of closures into a Task, for desired states that do not
// fit the common command/package/file/service shapes.
type Fn struct {
	TaskName string
	CheckFn  func(tc *Context) (bool, error)
	ApplyFn  func(tc *Context) error
}

func (f *Fn) Name() string { return f.TaskName }

func (f *Fn) Check(tc *Context) (bool, error) {
	if f.CheckFn == nil {
		return false, nil
	}
	return f.CheckFn(tc)
}

func (f *Fn) Apply(tc *Context) error {
	if f.ApplyFn == nil {
		return nil
	}
	return f.ApplyFn(tc)
}

var _ Task = (*Fn)(nil)
