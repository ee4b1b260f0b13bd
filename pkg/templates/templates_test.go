package templates

import (
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderKubeadmConfig(t *testing.T) {
	out, err := Render(KubeadmConfig, map[string]interface{}{
		"NodeName":             "m1",
		"KubernetesVersion":    "v1.28.2",
		"ControlPlaneEndpoint": "10.0.0.100:6443",
		"ImageRepository":      "registry.example.com",
		"PodSubnet":            "10.244.0.0/16",
		"ServiceSubnet":        "10.96.0.0/12",
		"CertSANs":             []string{"10.0.0.100", "m1", "10.0.0.1"},
	})
	require.NoError(t, err)

	rendered := string(out)
	assert.Contains(t, rendered, "kind: InitConfiguration")
	assert.Contains(t, rendered, "kind: ClusterConfiguration")
	assert.Contains(t, rendered, "kubernetesVersion: v1.28.2")
	assert.Contains(t, rendered, `controlPlaneEndpoint: "10.0.0.100:6443"`)
	assert.Contains(t, rendered, "- 10.0.0.100")
	assert.Contains(t, rendered, "- m1")
}

func TestRenderKeepalivedConfig(t *testing.T) {
	data := map[string]interface{}{
		"NodeName":      "m1",
		"APIServerPort": 6443,
		"IsPrimary":     true,
		"VIPInterface":  "eth1",
		"Priority":      200,
		"AuthPass":      "0123456789abcdef",
		"VirtualIP":     "10.0.0.100",
	}
	out, err := Render(KeepalivedConfig, data)
	require.NoError(t, err)
	rendered := string(out)
	assert.Contains(t, rendered, "state MASTER")
	assert.Contains(t, rendered, "interface eth1")
	assert.Contains(t, rendered, "priority 200")
	// keepalived only honors 8 characters of the VRRP password
	assert.Contains(t, rendered, "auth_pass 01234567")
	assert.NotContains(t, rendered, "auth_pass 0123456789abcdef")

	data["IsPrimary"] = false
	out, err = Render(KeepalivedConfig, data)
	require.NoError(t, err)
	assert.Contains(t, string(out), "state BACKUP")
}

func TestRenderContainerdConfigIsValidTOML(t *testing.T) {
	out, err := RenderTOML(ContainerdConfig, map[string]interface{}{
		"PauseImage":       "registry.example.com/pause:3.9",
		"RegistryEndpoint": "registry.example.com",
		"MirrorUsername":   "svc",
		"MirrorPassword":   "secret",
	})
	require.NoError(t, err)

	var parsed map[string]interface{}
	require.NoError(t, toml.Unmarshal(out, &parsed))
	assert.Contains(t, string(out), `sandbox_image = "registry.example.com/pause:3.9"`)
	assert.Contains(t, string(out), "auth")
}

func TestRenderContainerdConfigWithoutAuth(t *testing.T) {
	out, err := RenderTOML(ContainerdConfig, map[string]interface{}{
		"PauseImage":       "registry.example.com/pause:3.9",
		"RegistryEndpoint": "registry.example.com",
		"MirrorUsername":   "",
		"MirrorPassword":   "",
	})
	require.NoError(t, err)
	assert.NotContains(t, string(out), "auth")
}

func TestRenderMissingKeyFails(t *testing.T) {
	_, err := Render(KeepalivedConfig, map[string]interface{}{"NodeName": "m1"})
	require.Error(t, err)
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, err := Render("nope.tmpl", nil)
	require.Error(t, err)
}
