// Package inventory turns the declarative host list of a Cluster manifest
// into the typed node topology the phase controller executes against.
package inventory

import (
	"fmt"
	"path"
	"strings"

	"github.com/kubeboot/kubeboot/pkg/apis/kubeboot/v1alpha1"
	"github.com/kubeboot/kubeboot/pkg/common"
)

// Node is one machine of the cluster. Immutable after Build.
type Node struct {
	Name           string
	Role           string
	Address        string
	Port           int
	User           string
	Password       string
	PrivateKeyPath string
	// Index is the node's position within its role group. Control-plane
	// index 0 is the primary; keepalived priorities are derived from it.
	Index int
}

// IsControlPlane reports whether the node is part of the control plane.
func (n *Node) IsControlPlane() bool {
	return n.Role == common.RoleControlPlanePrimary || n.Role == common.RoleControlPlaneSecondary
}

// Inventory is the resolved node topology of one run.
type Inventory struct {
	// ControlPlanes preserves the manifest's declaration order. The first
	// entry is the primary: it runs kubeadm init and mints the join
	// credential. Reordering the manifest changes which node initializes
	// the cluster.
	ControlPlanes []*Node
	Workers       []*Node
}

// InventoryError reports a malformed topology. Raised before any node is
// contacted.
type InventoryError struct {
	Reason string
}

func (e *InventoryError) Error() string {
	return fmt.Sprintf("invalid inventory: %s", e.Reason)
}

// Build validates role groups against the declared hosts and assigns roles.
// An empty worker group is valid: it means control-plane nodes double as
// workers, and the join-workers phase becomes a no-op.
func Build(spec *v1alpha1.ClusterSpec) (*Inventory, error) {
	if len(spec.RoleGroups.ControlPlane.Hosts) == 0 {
		return nil, &InventoryError{Reason: "the controlPlane role group must declare at least one host"}
	}

	byName := make(map[string]v1alpha1.HostSpec, len(spec.Hosts))
	for _, h := range spec.Hosts {
		if h.Name == "" {
			return nil, &InventoryError{Reason: "a host entry is missing its name"}
		}
		if _, dup := byName[h.Name]; dup {
			return nil, &InventoryError{Reason: fmt.Sprintf("host %q is declared more than once", h.Name)}
		}
		byName[h.Name] = h
	}

	inv := &Inventory{}
	seen := map[string]bool{}
	for i, name := range spec.RoleGroups.ControlPlane.Hosts {
		role := common.RoleControlPlaneSecondary
		if i == 0 {
			role = common.RoleControlPlanePrimary
		}
		node, err := newNode(byName, name, role, i, seen)
		if err != nil {
			return nil, err
		}
		inv.ControlPlanes = append(inv.ControlPlanes, node)
	}
	for i, name := range spec.RoleGroups.Worker.Hosts {
		node, err := newNode(byName, name, common.RoleWorker, i, seen)
		if err != nil {
			return nil, err
		}
		inv.Workers = append(inv.Workers, node)
	}
	return inv, nil
}

func newNode(byName map[string]v1alpha1.HostSpec, name, role string, index int, seen map[string]bool) (*Node, error) {
	h, ok := byName[name]
	if !ok {
		return nil, &InventoryError{Reason: fmt.Sprintf("role group references host %q which is not declared under spec.hosts", name)}
	}
	if seen[name] {
		return nil, &InventoryError{Reason: fmt.Sprintf("host %q is assigned to more than one role group", name)}
	}
	seen[name] = true
	if h.Address == "" {
		return nil, &InventoryError{Reason: fmt.Sprintf("host %q has no connection address", name)}
	}
	node := &Node{
		Name:           h.Name,
		Role:           role,
		Address:        h.Address,
		Port:           h.Port,
		User:           h.User,
		Password:       h.Password,
		PrivateKeyPath: h.PrivateKeyPath,
		Index:          index,
	}
	if node.Port == 0 {
		node.Port = common.DefaultSSHPort
	}
	if node.User == "" {
		node.User = common.DefaultSSHUser
	}
	return node, nil
}

// Primary returns the control-plane node that initializes the cluster.
func (inv *Inventory) Primary() *Node {
	return inv.ControlPlanes[0]
}

// SecondaryControlPlanes returns every control-plane node except the primary.
func (inv *Inventory) SecondaryControlPlanes() []*Node {
	return inv.ControlPlanes[1:]
}

// All returns every node, control planes first in declaration order.
func (inv *Inventory) All() []*Node {
	all := make([]*Node, 0, len(inv.ControlPlanes)+len(inv.Workers))
	all = append(all, inv.ControlPlanes...)
	all = append(all, inv.Workers...)
	return all
}

// Limit filters nodes by a shell-style glob on the node name, e.g.
// "master-*". An empty pattern matches everything.
func Limit(nodes []*Node, pattern string) []*Node {
	if strings.TrimSpace(pattern) == "" {
		return nodes
	}
	var out []*Node
	for _, n := range nodes {
		// path.Match only errors on a malformed pattern, which Validate
		// catches before any phase runs.
		if ok, _ := path.Match(pattern, n.Name); ok {
			out = append(out, n)
		}
	}
	return out
}

// ValidateLimitPattern rejects malformed glob patterns up front.
func ValidateLimitPattern(pattern string) error {
	if strings.TrimSpace(pattern) == "" {
		return nil
	}
	if _, err := path.Match(pattern, "probe"); err != nil {
		return fmt.Errorf("invalid --limit pattern %q: %w", pattern, err)
	}
	return nil
}
