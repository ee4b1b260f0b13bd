// Package plan holds the per-node, per-phase outcome model and the final
// run report shown to the operator.
package plan

import (
	"sync"

	"github.com/google/uuid"

	"github.com/kubeboot/kubeboot/pkg/common"
)

// Status of one node within one phase.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// RunResult is one node's outcome for one phase.
type RunResult struct {
	Node   string
	Role   string
	Phase  string
	Status Status
	// Changed counts tasks that applied (or, in check mode, would apply) a
	// change on this node.
	Changed int
	Message string
}

// Report aggregates every RunResult of a run. Safe for concurrent Add from
// the per-node workers of a phase.
type Report struct {
	RunID     string
	CheckMode bool
	Aborted   bool

	mu      sync.Mutex
	results []RunResult
}

// NewReport creates a Report with a fresh run ID.
func NewReport(checkMode bool) *Report {
	return &Report{RunID: uuid.NewString()[:8], CheckMode: checkMode}
}

// Add records one result.
func (r *Report) Add(res RunResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

// Results returns a copy of the recorded results in insertion order.
func (r *Report) Results() []RunResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RunResult, len(r.results))
	copy(out, r.results)
	return out
}

// FailedResults returns the failed results of the given phase.
func (r *Report) FailedResults(phase string) []RunResult {
	var failed []RunResult
	for _, res := range r.Results() {
		if res.Phase == phase && res.Status == StatusFailed {
			failed = append(failed, res)
		}
	}
	return failed
}

// FailedNodes returns the names of nodes that failed the given phase.
func (r *Report) FailedNodes(phase string) []string {
	var failed []string
	for _, res := range r.FailedResults(phase) {
		failed = append(failed, res.Node)
	}
	return failed
}

// Failed reports whether the run must exit non-zero: an abort, or any failed
// result on a node whose role is required for cluster health (any control
// plane). Worker failures are reported but do not fail the run.
func (r *Report) Failed() bool {
	if r.Aborted {
		return true
	}
	for _, res := range r.Results() {
		if res.Status == StatusFailed && res.Role != common.RoleWorker {
			return true
		}
	}
	return false
}

// HasFailures reports whether any node failed any phase.
func (r *Report) HasFailures() bool {
	for _, res := range r.Results() {
		if res.Status == StatusFailed {
			return true
		}
	}
	return false
}
