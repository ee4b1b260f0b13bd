package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/distribution/reference"

	"github.com/kubeboot/kubeboot/pkg/apis/kubeboot/v1alpha1"
	"github.com/kubeboot/kubeboot/pkg/common"
	"github.com/kubeboot/kubeboot/pkg/logger"
)

// Resolve validates the required configuration subset, fills the defaulted
// subset, and applies the derived credential rule. It is a pure
// transformation of the manifest: no network access, no host contact.
//
// Every violation is collected before failing so the operator sees the full
// list at once. On success the returned spec is complete and immutable for
// the rest of the run.
func Resolve(cluster *v1alpha1.Cluster, log *logger.Logger) (*v1alpha1.ClusterSpec, error) {
	spec := cluster.Spec
	cfgErr := &ConfigError{}

	// Required subset. Collect all misses, never just the first.
	if spec.ControlPlaneEndpoint.Address == "" {
		cfgErr.MissingKeys = append(cfgErr.MissingKeys, "spec.controlPlaneEndpoint.address")
	} else if net.ParseIP(spec.ControlPlaneEndpoint.Address) == nil {
		cfgErr.InvalidValues = append(cfgErr.InvalidValues,
			fmt.Sprintf("spec.controlPlaneEndpoint.address %q is not an IP address", spec.ControlPlaneEndpoint.Address))
	}
	if spec.Registry.Endpoint == "" {
		cfgErr.MissingKeys = append(cfgErr.MissingKeys, "spec.registry.endpoint")
	}

	// Defaulted subset. Defaulted keys are logged at info so the operator
	// sees the audit without raising verbosity; supplied keys stay at debug.
	defaultString(log, "spec.versions.kubernetes", &spec.Versions.Kubernetes, common.DefaultKubernetesVersion)
	defaultString(log, "spec.versions.containerd", &spec.Versions.Containerd, common.DefaultContainerdVersion)
	defaultString(log, "spec.versions.keepalived", &spec.Versions.Keepalived, common.DefaultKeepalivedVersion)
	defaultString(log, "spec.network.vipInterface", &spec.Network.VIPInterface, common.DefaultVIPInterface)
	defaultString(log, "spec.network.hostInterface", &spec.Network.HostInterface, common.DefaultHostInterface)
	defaultString(log, "spec.network.podSubnet", &spec.Network.PodSubnet, common.DefaultPodSubnet)
	defaultString(log, "spec.network.serviceSubnet", &spec.Network.ServiceSubnet, common.DefaultServiceSubnet)
	defaultString(log, "spec.registry.username", &spec.Registry.Username, common.DefaultRegistryUser)
	if spec.ControlPlaneEndpoint.Port == 0 {
		spec.ControlPlaneEndpoint.Port = common.DefaultAPIServerPort
		log.Infof("defaulted spec.controlPlaneEndpoint.port=%d", spec.ControlPlaneEndpoint.Port)
	} else {
		log.Debugf("supplied spec.controlPlaneEndpoint.port=%d", spec.ControlPlaneEndpoint.Port)
	}

	// Derived rule: the mirror (pull) account defaults to the primary
	// registry account. The common case is one service account for both;
	// split-credential deployments set mirrorUsername explicitly.
	if spec.Registry.MirrorUsername == "" {
		spec.Registry.MirrorUsername = spec.Registry.Username
		log.Infof("derived spec.registry.mirrorUsername from spec.registry.username")
	}
	if spec.Registry.MirrorPassword == "" {
		spec.Registry.MirrorPassword = spec.Registry.Password
	}
	if spec.Registry.PauseImage == "" && spec.Registry.Endpoint != "" {
		spec.Registry.PauseImage = fmt.Sprintf("%s/pause:%s", spec.Registry.Endpoint, common.DefaultPauseImageTag)
		log.Infof("defaulted spec.registry.pauseImage=%s", spec.Registry.PauseImage)
	}

	// Version pins must parse so the package tasks can build pin arguments.
	checkVersion(cfgErr, "spec.versions.kubernetes", spec.Versions.Kubernetes)
	checkVersion(cfgErr, "spec.versions.containerd", spec.Versions.Containerd)
	checkVersion(cfgErr, "spec.versions.keepalived", spec.Versions.Keepalived)

	// The pause image (and implicitly the registry endpoint it is derived
	// from) must be a valid image reference.
	if spec.Registry.PauseImage != "" {
		if _, err := reference.ParseNormalizedNamed(strings.ToLower(spec.Registry.PauseImage)); err != nil {
			cfgErr.InvalidValues = append(cfgErr.InvalidValues,
				fmt.Sprintf("spec.registry.endpoint %q does not form a valid image reference: %v", spec.Registry.Endpoint, err))
		}
	}

	if cfgErr.HasViolations() {
		return nil, cfgErr
	}
	return &spec, nil
}

func defaultString(log *logger.Logger, key string, field *string, def string) {
	if *field == "" {
		*field = def
		log.Infof("defaulted %s=%s", key, def)
		return
	}
	log.Debugf("supplied %s=%s", key, *field)
}

func checkVersion(cfgErr *ConfigError, key, value string) {
	if value == "" {
		return
	}
	if _, err := semver.NewVersion(strings.TrimPrefix(value, "v")); err != nil {
		cfgErr.InvalidValues = append(cfgErr.InvalidValues, fmt.Sprintf("%s %q is not a valid version", key, value))
	}
}
