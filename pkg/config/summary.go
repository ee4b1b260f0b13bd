package config

import (
	yaml "gopkg.in/yaml.v3"

	"github.com/kubeboot/kubeboot/pkg/apis/kubeboot/v1alpha1"
)

// SummaryYAML renders the resolved configuration for the confirmation gate.
// Credential material is redacted; everything else is shown as it will be
// applied.
func SummaryYAML(spec *v1alpha1.ClusterSpec) (string, error) {
	redacted := *spec
	redacted.Hosts = nil // topology is rendered separately, as a table
	if redacted.Registry.Password != "" {
		redacted.Registry.Password = "********"
	}
	if redacted.Registry.MirrorPassword != "" {
		redacted.Registry.MirrorPassword = "********"
	}
	out, err := yaml.Marshal(&redacted)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
