// Package phase implements the bootstrap sequence itself: the ordered phase
// list, the per-node task plans of each phase, and the controller that
// drives them across the inventory with bounded fan-out and a global barrier
// between phases.
package phase

import (
	"github.com/kubeboot/kubeboot/pkg/inventory"
	"github.com/kubeboot/kubeboot/pkg/task"
)

// Phase names, in execution order. These are also the values accepted by
// the --tags and --skip-tags selectors.
const (
	PhasePrepare     = "prepare"
	PhaseInit        = "init"
	PhaseJoinMasters = "join-masters"
	PhaseJoinWorkers = "join-workers"
	PhasePostConfig  = "post-config"
)

// Phase is one stage of the bootstrap sequence: a name, the node subset it
// targets, and a builder producing the task plan for one target node.
type Phase struct {
	Name string
	// Targets selects the nodes this phase contacts. A node outside the
	// subset is never dialed for this phase.
	Targets func(inv *inventory.Inventory) []*inventory.Node
	// Plan builds the ordered task list for one node. Called after the node
	// is connected and its facts gathered.
	Plan func(c *Controller, node *inventory.Node, tc *task.Context) ([]task.Task, error)
}

// Sequence returns the fixed phase order:
// prepare < init < join-masters < join-workers < post-config.
func Sequence() []Phase {
	return []Phase{
		{
			Name:    PhasePrepare,
			Targets: func(inv *inventory.Inventory) []*inventory.Node { return inv.All() },
			Plan:    preparePlan,
		},
		{
			Name:    PhaseInit,
			Targets: func(inv *inventory.Inventory) []*inventory.Node { return []*inventory.Node{inv.Primary()} },
			Plan:    initPlan,
		},
		{
			Name:    PhaseJoinMasters,
			Targets: func(inv *inventory.Inventory) []*inventory.Node { return inv.SecondaryControlPlanes() },
			Plan:    joinMasterPlan,
		},
		{
			Name:    PhaseJoinWorkers,
			Targets: func(inv *inventory.Inventory) []*inventory.Node { return inv.Workers },
			Plan:    joinWorkerPlan,
		},
		{
			Name:    PhasePostConfig,
			Targets: func(inv *inventory.Inventory) []*inventory.Node { return inv.All() },
			Plan:    postConfigPlan,
		},
	}
}

// KnownPhase reports whether name is a valid phase tag.
func KnownPhase(name string) bool {
	for _, p := range Sequence() {
		if p.Name == name {
			return true
		}
	}
	return false
}
