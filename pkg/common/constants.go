// Package common holds constants shared across kubeboot packages: node
// roles, remote file locations, and the built-in defaults applied by the
// config resolver.
package common

import "time"

// Node roles. RoleControlPlanePrimary is assigned to exactly one node: the
// first host declared in the controlPlane role group.
const (
	RoleControlPlanePrimary   = "control-plane-primary"
	RoleControlPlaneSecondary = "control-plane-secondary"
	RoleWorker                = "worker"
)

// Defaults applied by the config resolver when the cluster manifest leaves
// the corresponding field empty.
const (
	DefaultKubernetesVersion = "v1.28.2"
	DefaultContainerdVersion = "1.7.11"
	DefaultKeepalivedVersion = "2.2.8"
	DefaultRegistryUser      = "kubeboot"
	DefaultVIPInterface      = "eth0"
	DefaultHostInterface     = "eth0"
	DefaultAPIServerPort     = 6443
	DefaultPauseImageTag     = "3.9"
	DefaultPodSubnet         = "10.244.0.0/16"
	DefaultServiceSubnet     = "10.96.0.0/12"
	DefaultSSHPort           = 22
	DefaultSSHUser           = "root"
)

// Execution tuning defaults. Fanout bounds parallel node dispatch within a
// phase so a shared package proxy or registry is not overwhelmed.
const (
	DefaultFanout         = 5
	DefaultConnectTimeout = 30 * time.Second
	DefaultConnectRetries = 3
	DefaultCommandTimeout = 10 * time.Minute
	// DefaultPhaseTimeout bounds one node's full task plan within a phase,
	// covering slow operations like image pulls during kubeadm init.
	DefaultPhaseTimeout = 30 * time.Minute
)

// Remote paths managed by the orchestrator.
const (
	KubeadmConfigPath    = "/etc/kubernetes/kubeboot-kubeadm.yaml"
	AdminKubeconfigPath  = "/etc/kubernetes/admin.conf"
	KubeletKubeconfPath  = "/etc/kubernetes/kubelet.conf"
	ContainerdConfigPath = "/etc/containerd/config.toml"
	KeepalivedConfigPath = "/etc/keepalived/keepalived.conf"
	ModulesLoadPath      = "/etc/modules-load.d/kubeboot.conf"
	SysctlConfPath       = "/etc/sysctl.d/99-kubeboot.conf"
	RootKubeconfigPath   = "/root/.kube/config"
)
