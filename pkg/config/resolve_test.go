package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubeboot/kubeboot/pkg/apis/kubeboot/v1alpha1"
	"github.com/kubeboot/kubeboot/pkg/common"
	"github.com/kubeboot/kubeboot/pkg/logger"
)

func validCluster() *v1alpha1.Cluster {
	c := &v1alpha1.Cluster{}
	c.Kind = v1alpha1.ClusterKind
	c.APIVersion = v1alpha1.APIVersion
	c.Name = "test"
	c.Spec = v1alpha1.ClusterSpec{
		Hosts: []v1alpha1.HostSpec{
			{Name: "cp-1", Address: "10.0.0.1"},
		},
		RoleGroups: v1alpha1.RoleGroupsSpec{
			ControlPlane: v1alpha1.RoleGroupSpec{Hosts: []string{"cp-1"}},
		},
		ControlPlaneEndpoint: v1alpha1.ControlPlaneEndpointSpec{Address: "10.0.0.100"},
		Registry:             v1alpha1.RegistrySpec{Endpoint: "registry.example.com", Username: "svc", Password: "secret"},
	}
	return c
}

func TestResolveReportsAllMissingKeysAtOnce(t *testing.T) {
	c := validCluster()
	c.Spec.ControlPlaneEndpoint.Address = ""
	c.Spec.Registry.Endpoint = ""

	_, err := Resolve(c, logger.Get())
	require.Error(t, err)

	cfgErr, ok := err.(*ConfigError)
	require.True(t, ok, "expected *ConfigError, got %T", err)
	assert.Contains(t, cfgErr.MissingKeys, "spec.controlPlaneEndpoint.address")
	assert.Contains(t, cfgErr.MissingKeys, "spec.registry.endpoint")
	assert.Len(t, cfgErr.MissingKeys, 2)
	assert.Contains(t, err.Error(), "spec.controlPlaneEndpoint.address")
	assert.Contains(t, err.Error(), "spec.registry.endpoint")
}

func TestResolveAppliesDefaults(t *testing.T) {
	spec, err := Resolve(validCluster(), logger.Get())
	require.NoError(t, err)

	assert.Equal(t, common.DefaultKubernetesVersion, spec.Versions.Kubernetes)
	assert.Equal(t, common.DefaultContainerdVersion, spec.Versions.Containerd)
	assert.Equal(t, common.DefaultKeepalivedVersion, spec.Versions.Keepalived)
	assert.Equal(t, common.DefaultVIPInterface, spec.Network.VIPInterface)
	assert.Equal(t, common.DefaultHostInterface, spec.Network.HostInterface)
	assert.Equal(t, common.DefaultAPIServerPort, spec.ControlPlaneEndpoint.Port)
	assert.Equal(t, "registry.example.com/pause:"+common.DefaultPauseImageTag, spec.Registry.PauseImage)
}

func TestResolveAuditsDefaultedKeysAtInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "resolve.log")
	log := logger.NewLogger(logger.Options{
		FileOutput:  true,
		FileLevel:   logger.InfoLevel,
		LogFilePath: logPath,
	})

	_, err := Resolve(validCluster(), log)
	require.NoError(t, err)
	_ = log.Sync()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "defaulted spec.versions.kubernetes")
	assert.Contains(t, out, "defaulted spec.controlPlaneEndpoint.port")
	assert.Contains(t, out, "derived spec.registry.mirrorUsername")
	assert.NotContains(t, out, "supplied spec.", "supplied keys stay below the audit level")
}

func TestResolveKeepsSuppliedValues(t *testing.T) {
	c := validCluster()
	c.Spec.Versions.Kubernetes = "v1.29.0"
	c.Spec.Network.VIPInterface = "ens192"
	c.Spec.ControlPlaneEndpoint.Port = 8443

	spec, err := Resolve(c, logger.Get())
	require.NoError(t, err)
	assert.Equal(t, "v1.29.0", spec.Versions.Kubernetes)
	assert.Equal(t, "ens192", spec.Network.VIPInterface)
	assert.Equal(t, 8443, spec.ControlPlaneEndpoint.Port)
}

func TestResolveDerivesMirrorCredentials(t *testing.T) {
	t.Run("defaults to primary account", func(t *testing.T) {
		spec, err := Resolve(validCluster(), logger.Get())
		require.NoError(t, err)
		assert.Equal(t, "svc", spec.Registry.MirrorUsername)
		assert.Equal(t, "secret", spec.Registry.MirrorPassword)
	})

	t.Run("explicit override wins", func(t *testing.T) {
		c := validCluster()
		c.Spec.Registry.MirrorUsername = "pull-only"
		c.Spec.Registry.MirrorPassword = "other"
		spec, err := Resolve(c, logger.Get())
		require.NoError(t, err)
		assert.Equal(t, "pull-only", spec.Registry.MirrorUsername)
		assert.Equal(t, "other", spec.Registry.MirrorPassword)
	})
}

func TestResolveRejectsInvalidValues(t *testing.T) {
	c := validCluster()
	c.Spec.ControlPlaneEndpoint.Address = "not-an-ip"
	c.Spec.Versions.Kubernetes = "latest"

	_, err := Resolve(c, logger.Get())
	require.Error(t, err)
	cfgErr, ok := err.(*ConfigError)
	require.True(t, ok)
	assert.Len(t, cfgErr.InvalidValues, 2)
}

func TestLoadClusterFromMissingFile(t *testing.T) {
	_, err := LoadClusterFromFile("/nonexistent/cluster.yaml")
	require.Error(t, err)
	_, ok := err.(*ConfigError)
	assert.True(t, ok, "a missing manifest is a configuration error, got %T", err)
}

func TestParseCluster(t *testing.T) {
	manifest := `
apiVersion: kubeboot.io/v1alpha1
kind: Cluster
metadata:
  name: demo
spec:
  hosts:
  - name: cp-1
    address: 10.0.0.1
  roleGroups:
    controlPlane:
      hosts: [cp-1]
  controlPlaneEndpoint:
    address: 10.0.0.100
  registry:
    endpoint: registry.example.com
`
	cluster, err := ParseCluster([]byte(manifest))
	require.NoError(t, err)
	assert.Equal(t, "demo", cluster.Name)
	assert.Equal(t, "10.0.0.1", cluster.Spec.Hosts[0].Address)
	assert.Equal(t, []string{"cp-1"}, cluster.Spec.RoleGroups.ControlPlane.Hosts)

	t.Run("wrong kind rejected", func(t *testing.T) {
		_, err := ParseCluster([]byte("apiVersion: kubeboot.io/v1alpha1\nkind: Pod\n"))
		require.Error(t, err)
	})
}

func TestEnvOverridesRegistryPasswords(t *testing.T) {
	t.Setenv(EnvRegistryPassword, "from-env")
	t.Setenv(EnvRegistryMirrorPassword, "mirror-from-env")

	manifest := `
apiVersion: kubeboot.io/v1alpha1
kind: Cluster
spec:
  registry:
    endpoint: registry.example.com
`
	cluster, err := ParseCluster([]byte(manifest))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cluster.Spec.Registry.Password)
	assert.Equal(t, "mirror-from-env", cluster.Spec.Registry.MirrorPassword)
}

func TestSummaryRedactsSecrets(t *testing.T) {
	c := validCluster()
	c.Spec.Hosts[0].Password = "ssh-secret"
	spec, err := Resolve(c, logger.Get())
	require.NoError(t, err)

	out, err := SummaryYAML(spec)
	require.NoError(t, err)
	assert.NotContains(t, out, "secret")
	assert.NotContains(t, out, "ssh-secret")
	assert.Contains(t, out, "registry.example.com")
}

func TestMain(m *testing.M) {
	logger.Init(logger.Options{ConsoleOutput: false, FileOutput: false})
	os.Exit(m.Run())
}
