// Package cluster inspects a bootstrapped cluster through its primary
// control plane: it fetches the admin kubeconfig over the node's connection
// and reads node registration and readiness from the API.
package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/kubeboot/kubeboot/pkg/common"
	"github.com/kubeboot/kubeboot/pkg/connector"
	"github.com/kubeboot/kubeboot/pkg/logger"
	"github.com/kubeboot/kubeboot/pkg/runner"
)

// NodeStatus is one registered cluster node as seen by the API server.
type NodeStatus struct {
	Name    string
	Ready   bool
	Version string
}

// Checker reads cluster state through the primary control plane.
type Checker struct {
	runner *runner.Runner
	// pollInterval and waitBudget bound WaitReady.
	pollInterval time.Duration
	waitBudget   time.Duration
}

// NewChecker returns a Checker with production polling bounds.
func NewChecker() *Checker {
	return &Checker{
		runner:       runner.New(),
		pollInterval: 10 * time.Second,
		waitBudget:   5 * time.Minute,
	}
}

// Nodes lists the cluster's registered nodes. It prefers talking to the API
// endpoint directly with the fetched admin kubeconfig; when the endpoint is
// not routable from the orchestrator it falls back to kubectl on the node.
func (c *Checker) Nodes(ctx context.Context, conn connector.Connector) ([]NodeStatus, error) {
	kubeconfig, err := conn.ReadFile(ctx, common.AdminKubeconfigPath)
	if err != nil {
		return nil, errors.Wrap(err, "fetching admin kubeconfig")
	}

	list, apiErr := listViaAPI(ctx, kubeconfig)
	if apiErr != nil {
		logger.Get().Debugf("direct API access failed, falling back to kubectl on the node: %v", apiErr)
		list, err = c.listViaKubectl(ctx, conn)
		if err != nil {
			return nil, errors.Wrapf(err, "listing nodes (direct API also failed: %v)", apiErr)
		}
	}

	statuses := make([]NodeStatus, 0, len(list.Items))
	for _, n := range list.Items {
		statuses = append(statuses, NodeStatus{
			Name:    n.Name,
			Ready:   nodeReady(&n),
			Version: n.Status.NodeInfo.KubeletVersion,
		})
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses, nil
}

// MissingOrNotReady returns the expected node names that are either not
// registered or not Ready.
func (c *Checker) MissingOrNotReady(ctx context.Context, conn connector.Connector, expected []string) ([]string, error) {
	statuses, err := c.Nodes(ctx, conn)
	if err != nil {
		return nil, err
	}
	ready := map[string]bool{}
	for _, s := range statuses {
		ready[s.Name] = s.Ready
	}
	var bad []string
	for _, name := range expected {
		if !ready[name] {
			bad = append(bad, name)
		}
	}
	return bad, nil
}

// WaitReady polls until every expected node is registered and Ready, or the
// wait budget runs out.
func (c *Checker) WaitReady(ctx context.Context, conn connector.Connector, expected []string) error {
	deadline := time.Now().Add(c.waitBudget)
	for {
		bad, err := c.MissingOrNotReady(ctx, conn, expected)
		if err == nil && len(bad) == 0 {
			return nil
		}
		if err != nil {
			logger.Get().Debugf("readiness poll: %v", err)
		} else {
			logger.Get().Debugf("waiting for node(s): %v", bad)
		}
		if time.Now().After(deadline) {
			if err != nil {
				return errors.Wrap(err, "cluster did not become ready within the wait budget")
			}
			return fmt.Errorf("node(s) not ready within the wait budget: %v", bad)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

func listViaAPI(ctx context.Context, kubeconfig []byte) (*corev1.NodeList, error) {
	restCfg, err := clientcmd.RESTConfigFromKubeConfig(kubeconfig)
	if err != nil {
		return nil, err
	}
	restCfg.Timeout = 15 * time.Second
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, err
	}
	return clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
}

func (c *Checker) listViaKubectl(ctx context.Context, conn connector.Connector) (*corev1.NodeList, error) {
	out, err := c.runner.Run(ctx, conn,
		fmt.Sprintf("kubectl --kubeconfig %s get nodes -o json", common.AdminKubeconfigPath), true)
	if err != nil {
		return nil, err
	}
	var list corev1.NodeList
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		return nil, errors.Wrap(err, "decoding kubectl node list")
	}
	return &list, nil
}

func nodeReady(n *corev1.Node) bool {
	for _, cond := range n.Status.Conditions {
		if cond.Type == corev1.NodeReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}
