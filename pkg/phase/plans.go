package phase

import (
	"crypto/sha256"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/kubeboot/kubeboot/pkg/apis/kubeboot/v1alpha1"
	"github.com/kubeboot/kubeboot/pkg/common"
	"github.com/kubeboot/kubeboot/pkg/inventory"
	"github.com/kubeboot/kubeboot/pkg/task"
	"github.com/kubeboot/kubeboot/pkg/templates"
)

// preparePlan converges one node to the kubeadm preflight baseline: swap
// off, kernel modules and sysctls in place, containerd configured against
// the registry mirror, kube packages installed, and on control planes the
// keepalived VIP agent running.
func preparePlan(c *Controller, node *inventory.Node, tc *task.Context) ([]task.Task, error) {
	spec := c.Spec

	modulesConf, err := templates.Render(templates.ModulesConfig, nil)
	if err != nil {
		return nil, err
	}
	sysctlConf, err := templates.Render(templates.SysctlConfig, nil)
	if err != nil {
		return nil, err
	}
	containerdConf, err := templates.RenderTOML(templates.ContainerdConfig, map[string]interface{}{
		"PauseImage":       spec.Registry.PauseImage,
		"RegistryEndpoint": spec.Registry.Endpoint,
		"MirrorUsername":   spec.Registry.MirrorUsername,
		"MirrorPassword":   spec.Registry.MirrorPassword,
	})
	if err != nil {
		return nil, err
	}

	tasks := []task.Task{
		&task.Fn{
			TaskName: "validate-network-interfaces",
			CheckFn: func(tc *task.Context) (bool, error) {
				if !tc.Facts.HasInterface(spec.Network.HostInterface) {
					return false, fmt.Errorf("host interface %q not present on %s (have: %s)",
						spec.Network.HostInterface, node.Name, strings.Join(tc.Facts.Interfaces, ", "))
				}
				if node.IsControlPlane() && !tc.Facts.HasInterface(spec.Network.VIPInterface) {
					return false, fmt.Errorf("VIP interface %q not present on %s (have: %s)",
						spec.Network.VIPInterface, node.Name, strings.Join(tc.Facts.Interfaces, ", "))
				}
				return true, nil
			},
		},
		&task.CommandTask{
			TaskName: "disable-swap",
			CheckCmd: `test -z "$(swapon --noheadings 2>/dev/null)"`,
			Cmd:      `swapoff -a && sed -i.bak '/\sswap\s/ s/^/#/' /etc/fstab`,
			Sudo:     true,
		},
		&task.FileTask{
			TaskName: "kernel-modules-config",
			Path:     common.ModulesLoadPath,
			Content:  string(modulesConf),
			Sudo:     true,
		},
		&task.CommandTask{
			TaskName: "load-kernel-modules",
			CheckCmd: "lsmod | grep -q br_netfilter && lsmod | grep -q overlay",
			Cmd:      "modprobe overlay && modprobe br_netfilter",
			Sudo:     true,
		},
		&task.FileTask{
			TaskName: "sysctl-config",
			Path:     common.SysctlConfPath,
			Content:  string(sysctlConf),
			Sudo:     true,
		},
		&task.CommandTask{
			TaskName: "apply-sysctl",
			CheckCmd: `test "$(sysctl -n net.ipv4.ip_forward)" = 1 && test "$(sysctl -n net.bridge.bridge-nf-call-iptables)" = 1`,
			Cmd:      "sysctl --system",
			Sudo:     true,
		},
		&task.PackageTask{
			TaskName: "install-packages",
			Packages: nodePackages(node),
		},
		&task.FileTask{
			TaskName:    "containerd-config",
			Path:        common.ContainerdConfigPath,
			Content:     string(containerdConf),
			Sudo:        true,
			RestartUnit: "containerd",
		},
		&task.ServiceTask{TaskName: "containerd-service", Unit: "containerd"},
		&task.CommandTask{
			// kubelet is enabled but not started; it crash-loops until the
			// node is initialized or joined, which kubeadm expects.
			TaskName: "enable-kubelet",
			CheckCmd: "systemctl is-enabled --quiet kubelet",
			Cmd:      "systemctl enable kubelet",
			Sudo:     true,
		},
	}

	if node.IsControlPlane() {
		keepalivedConf, err := templates.Render(templates.KeepalivedConfig, map[string]interface{}{
			"NodeName":      node.Name,
			"APIServerPort": spec.ControlPlaneEndpoint.Port,
			"IsPrimary":     node.Role == common.RoleControlPlanePrimary,
			"VIPInterface":  spec.Network.VIPInterface,
			"Priority":      vrrpPriority(node),
			"AuthPass":      vrrpAuthPass(spec.ControlPlaneEndpoint.Address),
			"VirtualIP":     spec.ControlPlaneEndpoint.Address,
		})
		if err != nil {
			return nil, err
		}
		tasks = append(tasks,
			&task.FileTask{
				TaskName:    "keepalived-config",
				Path:        common.KeepalivedConfigPath,
				Content:     string(keepalivedConf),
				Sudo:        true,
				RestartUnit: "keepalived",
			},
			&task.ServiceTask{TaskName: "keepalived-service", Unit: "keepalived"},
		)
	}
	return tasks, nil
}

// initPlan bootstraps the cluster on the primary control plane. The kubeadm
// run is guarded by the admin kubeconfig so a converged node is a no-op.
func initPlan(c *Controller, node *inventory.Node, tc *task.Context) ([]task.Task, error) {
	kubeadmConf, err := templates.Render(templates.KubeadmConfig, map[string]interface{}{
		"NodeName":             node.Name,
		"KubernetesVersion":    c.Spec.Versions.Kubernetes,
		"ControlPlaneEndpoint": controlPlaneEndpoint(c.Spec),
		"ImageRepository":      c.Spec.Registry.Endpoint,
		"PodSubnet":            c.Spec.Network.PodSubnet,
		"ServiceSubnet":        c.Spec.Network.ServiceSubnet,
		"CertSANs":             certSANs(c),
	})
	if err != nil {
		return nil, err
	}

	return []task.Task{
		&task.FileTask{
			TaskName: "kubeadm-config",
			Path:     common.KubeadmConfigPath,
			Content:  string(kubeadmConf),
			Perms:    "0600",
			Sudo:     true,
		},
		&task.CommandTask{
			TaskName: "kubeadm-init",
			DoneFile: common.AdminKubeconfigPath,
			Cmd:      fmt.Sprintf("kubeadm init --config %s --upload-certs", common.KubeadmConfigPath),
			Sudo:     true,
		},
		waitAPIServer(),
	}, nil
}

// joinMasterPlan joins one secondary control plane using the full join
// credential, certificate key included.
func joinMasterPlan(c *Controller, node *inventory.Node, tc *task.Context) ([]task.Task, error) {
	cred := c.cred.ControlPlaneJoin()
	joinCmd := fmt.Sprintf(
		"kubeadm join %s --token %s --discovery-token-ca-cert-hash %s --control-plane --certificate-key %s --node-name %s",
		controlPlaneEndpoint(c.Spec), cred.Token, cred.CACertHash, cred.CertificateKey, node.Name)

	return []task.Task{
		&task.CommandTask{
			TaskName: "kubeadm-join-control-plane",
			DoneFile: common.KubeletKubeconfPath,
			Cmd:      joinCmd,
			Sudo:     true,
		},
		waitAPIServer(),
	}, nil
}

// joinWorkerPlan joins one worker. Workers get the token and discovery hash
// only, never the certificate key.
func joinWorkerPlan(c *Controller, node *inventory.Node, tc *task.Context) ([]task.Task, error) {
	cred := c.cred.WorkerJoin()
	joinCmd := fmt.Sprintf(
		"kubeadm join %s --token %s --discovery-token-ca-cert-hash %s --node-name %s",
		controlPlaneEndpoint(c.Spec), cred.Token, cred.CACertHash, node.Name)

	return []task.Task{
		&task.CommandTask{
			TaskName: "kubeadm-join-worker",
			DoneFile: common.KubeletKubeconfPath,
			Cmd:      joinCmd,
			Sudo:     true,
		},
	}, nil
}

// postConfigPlan finishes the rollout: root kubeconfig on control planes,
// and on the primary a readiness wait across the whole inventory.
func postConfigPlan(c *Controller, node *inventory.Node, tc *task.Context) ([]task.Task, error) {
	var tasks []task.Task

	if node.IsControlPlane() {
		tasks = append(tasks, &task.CommandTask{
			TaskName: "root-kubeconfig",
			CheckCmd: fmt.Sprintf("test -f %s", common.RootKubeconfigPath),
			Cmd: fmt.Sprintf("mkdir -p %s && cp -f %s %s",
				"/root/.kube", common.AdminKubeconfigPath, common.RootKubeconfigPath),
			Sudo: true,
		})
	}

	if node.Role == common.RoleControlPlanePrimary {
		kubectl := fmt.Sprintf("kubectl --kubeconfig %s", common.AdminKubeconfigPath)

		// With no worker group the control planes must carry workloads.
		if len(c.Inventory.Workers) == 0 {
			tasks = append(tasks, &task.CommandTask{
				TaskName: "untaint-control-plane",
				CheckCmd: fmt.Sprintf(`test -z "$(%s get nodes -o jsonpath='{.items[*].spec.taints[?(@.key=="node-role.kubernetes.io/control-plane")].key}')"`, kubectl),
				Cmd:      fmt.Sprintf("%s taint nodes --all node-role.kubernetes.io/control-plane:NoSchedule-", kubectl),
				Sudo:     true,
			})
		}

		for _, w := range c.Inventory.Workers {
			if c.excluded[w.Name] {
				continue
			}
			tasks = append(tasks, &task.CommandTask{
				TaskName: "label-worker-" + w.Name,
				CheckCmd: fmt.Sprintf("%s get node %s -o jsonpath='{.metadata.labels}' | grep -q node-role.kubernetes.io/worker", kubectl, w.Name),
				Cmd:      fmt.Sprintf("%s label node %s node-role.kubernetes.io/worker= --overwrite", kubectl, w.Name),
				Sudo:     true,
			})
		}

		expected := make([]string, 0, len(c.Inventory.All()))
		for _, n := range c.Inventory.All() {
			if c.excluded[n.Name] {
				continue
			}
			expected = append(expected, n.Name)
		}
		tasks = append(tasks, &task.Fn{
			TaskName: "cluster-nodes-ready",
			CheckFn: func(tc *task.Context) (bool, error) {
				exists, err := tc.Runner.FileExists(tc.Ctx, tc.Conn, common.AdminKubeconfigPath)
				if err != nil || !exists {
					return false, err
				}
				missing, err := c.Readiness.MissingOrNotReady(tc.Ctx, tc.Conn, expected)
				if err != nil {
					// Cluster exists but is not answering yet; Apply waits.
					tc.Log.Debugf("readiness probe: %v", err)
					return false, nil
				}
				return len(missing) == 0, nil
			},
			ApplyFn: func(tc *task.Context) error {
				return c.Readiness.WaitReady(tc.Ctx, tc.Conn, expected)
			},
		})
	}
	return tasks, nil
}

// waitAPIServer polls the local apiserver health endpoint until it answers.
func waitAPIServer() task.Task {
	probe := "curl -skf --max-time 3 https://127.0.0.1:6443/healthz"
	return &task.Fn{
		TaskName: "apiserver-healthy",
		CheckFn: func(tc *task.Context) (bool, error) {
			return tc.Runner.Check(tc.Ctx, tc.Conn, probe, false)
		},
		ApplyFn: func(tc *task.Context) error {
			for attempt := 0; attempt < 30; attempt++ {
				ok, err := tc.Runner.Check(tc.Ctx, tc.Conn, probe, false)
				if err != nil {
					return err
				}
				if ok {
					return nil
				}
				select {
				case <-tc.Ctx.Done():
					return tc.Ctx.Err()
				case <-time.After(5 * time.Second):
				}
			}
			return errors.New("apiserver did not become healthy within the wait budget")
		},
	}
}

// nodePackages lists the OS packages a node needs. Version pins from the
// manifest drive the kubeadm configuration and image tags; package names are
// kept unversioned so the same plan works across apt and rpm repositories.
func nodePackages(node *inventory.Node) []string {
	pkgs := []string{"containerd", "kubelet", "kubeadm", "kubectl"}
	if node.IsControlPlane() {
		pkgs = append(pkgs, "keepalived")
	}
	return pkgs
}

// controlPlaneEndpoint renders the shared API endpoint, preferring the
// domain when one is declared.
func controlPlaneEndpoint(spec *v1alpha1.ClusterSpec) string {
	host := spec.ControlPlaneEndpoint.Address
	if spec.ControlPlaneEndpoint.Domain != "" {
		host = spec.ControlPlaneEndpoint.Domain
	}
	return net.JoinHostPort(host, strconv.Itoa(spec.ControlPlaneEndpoint.Port))
}

// certSANs collects every name the apiserver certificate must cover: the
// VIP, the optional domain, and each control-plane node's name and address.
func certSANs(c *Controller) []string {
	sans := []string{c.Spec.ControlPlaneEndpoint.Address}
	if c.Spec.ControlPlaneEndpoint.Domain != "" {
		sans = append(sans, c.Spec.ControlPlaneEndpoint.Domain)
	}
	for _, n := range c.Inventory.ControlPlanes {
		sans = append(sans, n.Name, n.Address)
	}
	return sans
}

// vrrpPriority derives the keepalived priority from declaration order so the
// primary always wins the initial VIP election.
func vrrpPriority(node *inventory.Node) int {
	return 200 - node.Index
}

// vrrpAuthPass derives the shared VRRP secret from the VIP so every control
// plane renders the same value without another manifest field. Keepalived
// truncates it to 8 characters.
func vrrpAuthPass(vip string) string {
	sum := sha256.Sum256([]byte("kubeboot-vrrp-" + vip))
	return fmt.Sprintf("%x", sum)[:8]
}
