// Package templates renders the configuration files kubeboot places on the
// nodes. Templates are embedded and rendered with sprig's function set.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	toml "github.com/pelletier/go-toml/v2"
)

//go:embed files/*.tmpl
var templateFS embed.FS

// Template names, relative to the embedded files directory.
const (
	KubeadmConfig    = "kubeadm-config.yaml.tmpl"
	KeepalivedConfig = "keepalived.conf.tmpl"
	ContainerdConfig = "containerd-config.toml.tmpl"
	SysctlConfig     = "sysctl-k8s.conf.tmpl"
	ModulesConfig    = "modules-k8s.conf.tmpl"
)

// Render executes the named embedded template with data.
func Render(name string, data interface{}) ([]byte, error) {
	raw, err := templateFS.ReadFile("files/" + name)
	if err != nil {
		return nil, fmt.Errorf("unknown template %q: %w", name, err)
	}
	tmpl, err := template.New(name).Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %q: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render template %q: %w", name, err)
	}
	return buf.Bytes(), nil
}

// RenderTOML renders the named template and verifies the output is valid
// TOML before it is shipped to a node. A template regression that produces
// syntactically broken containerd config would otherwise only surface as a
// runtime failure on every node at once.
func RenderTOML(name string, data interface{}) ([]byte, error) {
	out, err := Render(name, data)
	if err != nil {
		return nil, err
	}
	var probe map[string]interface{}
	if err := toml.Unmarshal(out, &probe); err != nil {
		return nil, fmt.Errorf("template %q rendered invalid TOML: %w", name, err)
	}
	return out, nil
}
