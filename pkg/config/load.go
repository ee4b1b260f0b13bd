package config

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	sigsyaml "sigs.k8s.io/yaml"

	"github.com/kubeboot/kubeboot/pkg/apis/kubeboot/v1alpha1"
)

// Environment variables recognized as overrides for registry credentials.
// Supplying secrets through the environment keeps them out of the manifest.
const (
	EnvRegistryPassword       = "KUBEBOOT_REGISTRY_PASSWORD"
	EnvRegistryMirrorPassword = "KUBEBOOT_REGISTRY_MIRROR_PASSWORD"
)

// LoadClusterFromFile reads a Cluster manifest from path. Unknown fields are
// rejected so typos surface immediately instead of silently deploying with a
// default. Registry passwords may be overridden from the environment.
func LoadClusterFromFile(path string) (*v1alpha1.Cluster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ConfigError{MissingKeys: []string{fmt.Sprintf("cluster manifest %s (file not found)", path)}}
		}
		return nil, errors.Wrapf(err, "failed to read cluster manifest %s", path)
	}
	return ParseCluster(data)
}

// ParseCluster decodes and sanity-checks a raw manifest.
func ParseCluster(data []byte) (*v1alpha1.Cluster, error) {
	cluster := &v1alpha1.Cluster{}
	if err := sigsyaml.UnmarshalStrict(data, cluster); err != nil {
		return nil, errors.Wrap(err, "failed to parse cluster manifest")
	}

	if cluster.Kind != "" && cluster.Kind != v1alpha1.ClusterKind {
		return nil, fmt.Errorf("unexpected manifest kind %q, want %q", cluster.Kind, v1alpha1.ClusterKind)
	}
	if cluster.APIVersion != "" && cluster.APIVersion != v1alpha1.APIVersion {
		return nil, fmt.Errorf("unsupported apiVersion %q, want %q", cluster.APIVersion, v1alpha1.APIVersion)
	}

	applyEnvOverrides(cluster)
	return cluster, nil
}

func applyEnvOverrides(cluster *v1alpha1.Cluster) {
	if v, ok := os.LookupEnv(EnvRegistryPassword); ok && v != "" {
		cluster.Spec.Registry.Password = v
	}
	if v, ok := os.LookupEnv(EnvRegistryMirrorPassword); ok && v != "" {
		cluster.Spec.Registry.MirrorPassword = v
	}
}
