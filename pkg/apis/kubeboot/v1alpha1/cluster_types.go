// Package v1alpha1 defines the Cluster manifest consumed by kubeboot. A
// single YAML document declares the node inventory (hosts plus role groups)
// and the deployment parameters for a highly available kubeadm cluster.
package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Kind and APIVersion expected in a cluster manifest.
const (
	ClusterKind = "Cluster"
	GroupName   = "kubeboot.io"
	Version     = "v1alpha1"
	APIVersion  = GroupName + "/" + Version
)

// Cluster is the top-level configuration object.
type Cluster struct {
	metav1.TypeMeta   `json:",inline" yaml:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	Spec ClusterSpec `json:"spec,omitempty" yaml:"spec,omitempty"`
}

// ClusterSpec defines the desired cluster: which machines participate, which
// of them form the control plane, and the resolved deployment parameters.
type ClusterSpec struct {
	// Hosts declares every machine the orchestrator may contact.
	Hosts []HostSpec `json:"hosts" yaml:"hosts"`
	// RoleGroups maps declared hosts to their cluster roles.
	RoleGroups RoleGroupsSpec `json:"roleGroups,omitempty" yaml:"roleGroups,omitempty"`
	// ControlPlaneEndpoint is the floating API endpoint shared by all
	// control-plane nodes.
	ControlPlaneEndpoint ControlPlaneEndpointSpec `json:"controlPlaneEndpoint,omitempty" yaml:"controlPlaneEndpoint,omitempty"`
	// Network names the interfaces and subnets the cluster uses.
	Network NetworkSpec `json:"network,omitempty" yaml:"network,omitempty"`
	// Versions pins the packages the prepare phase installs.
	Versions VersionsSpec `json:"versions,omitempty" yaml:"versions,omitempty"`
	// Registry configures the image registry/mirror the nodes pull from.
	Registry RegistrySpec `json:"registry,omitempty" yaml:"registry,omitempty"`
}

// HostSpec describes one machine and how to reach it.
type HostSpec struct {
	Name           string `json:"name" yaml:"name"`
	Address        string `json:"address" yaml:"address"`
	Port           int    `json:"port,omitempty" yaml:"port,omitempty"`
	User           string `json:"user,omitempty" yaml:"user,omitempty"`
	Password       string `json:"password,omitempty" yaml:"password,omitempty"`
	PrivateKeyPath string `json:"privateKeyPath,omitempty" yaml:"privateKeyPath,omitempty"`
}

// RoleGroupsSpec holds the two recognized role groups. Control-plane order
// is significant: the first entry initializes the cluster and mints the join
// credential. An empty worker group is valid and means the control-plane
// nodes double as workers.
type RoleGroupsSpec struct {
	ControlPlane RoleGroupSpec `json:"controlPlane,omitempty" yaml:"controlPlane,omitempty"`
	Worker       RoleGroupSpec `json:"worker,omitempty" yaml:"worker,omitempty"`
}

// RoleGroupSpec lists host names, in declaration order.
type RoleGroupSpec struct {
	Hosts []string `json:"hosts,omitempty" yaml:"hosts,omitempty"`
}

// ControlPlaneEndpointSpec defines the virtual API endpoint. Address is
// required; it is the VIP keepalived floats across control-plane nodes.
type ControlPlaneEndpointSpec struct {
	Address string `json:"address,omitempty" yaml:"address,omitempty"`
	Port    int    `json:"port,omitempty" yaml:"port,omitempty"`
	Domain  string `json:"domain,omitempty" yaml:"domain,omitempty"`
}

// NetworkSpec names the two node interfaces the deployment relies on:
// VIPInterface carries the keepalived virtual address, HostInterface carries
// regular node traffic. Both default when unset.
type NetworkSpec struct {
	VIPInterface  string `json:"vipInterface,omitempty" yaml:"vipInterface,omitempty"`
	HostInterface string `json:"hostInterface,omitempty" yaml:"hostInterface,omitempty"`
	PodSubnet     string `json:"podSubnet,omitempty" yaml:"podSubnet,omitempty"`
	ServiceSubnet string `json:"serviceSubnet,omitempty" yaml:"serviceSubnet,omitempty"`
}

// VersionsSpec pins component versions installed during prepare.
type VersionsSpec struct {
	Kubernetes string `json:"kubernetes,omitempty" yaml:"kubernetes,omitempty"`
	Containerd string `json:"containerd,omitempty" yaml:"containerd,omitempty"`
	Keepalived string `json:"keepalived,omitempty" yaml:"keepalived,omitempty"`
}

// RegistrySpec configures the registry mirror. Endpoint is required.
// MirrorUsername falls back to Username when unset; the common case is a
// single service account for both push and pull.
type RegistrySpec struct {
	Endpoint       string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Username       string `json:"username,omitempty" yaml:"username,omitempty"`
	Password       string `json:"password,omitempty" yaml:"password,omitempty"`
	MirrorUsername string `json:"mirrorUsername,omitempty" yaml:"mirrorUsername,omitempty"`
	MirrorPassword string `json:"mirrorPassword,omitempty" yaml:"mirrorPassword,omitempty"`
	PauseImage     string `json:"pauseImage,omitempty" yaml:"pauseImage,omitempty"`
}
