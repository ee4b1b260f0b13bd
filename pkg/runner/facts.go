package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/kubeboot/kubeboot/pkg/connector"
)

// PackageManagerType identifies the package manager found on a host.
type PackageManagerType string

const (
	PackageManagerUnknown PackageManagerType = "unknown"
	PackageManagerApt     PackageManagerType = "apt"
	PackageManagerYum     PackageManagerType = "yum"
	PackageManagerDnf     PackageManagerType = "dnf"
)

// PackageInfo holds the command shapes for the detected package manager.
type PackageInfo struct {
	Type        PackageManagerType
	UpdateCmd   string
	InstallCmd  string
	PkgQueryCmd string
}

// Facts is what kubeboot knows about a host after the initial probe.
type Facts struct {
	Hostname       string
	OSID           string
	OSVersion      string
	PackageManager *PackageInfo
	// Interfaces are the host's network interface names, from `ip -json
	// addr`. The prepare phase checks the configured VIP and host
	// interfaces against this list before rendering keepalived config.
	Interfaces []string
}

// HasInterface reports whether the host exposes the named interface.
func (f *Facts) HasInterface(name string) bool {
	for _, ifc := range f.Interfaces {
		if ifc == name {
			return true
		}
	}
	return false
}

// GatherFacts probes a connected host for identity, OS and package manager.
func (r *Runner) GatherFacts(ctx context.Context, conn connector.Connector) (*Facts, error) {
	facts := &Facts{}

	hostname, err := r.Run(ctx, conn, "hostname -s", false)
	if err != nil {
		return nil, fmt.Errorf("failed to read hostname: %w", err)
	}
	facts.Hostname = strings.TrimSpace(hostname)

	if release, err := conn.ReadFile(ctx, "/etc/os-release"); err == nil {
		facts.OSID, facts.OSVersion = parseOSRelease(string(release))
	}

	facts.PackageManager = detectPackageManager(ctx, conn)

	// `ip -json addr` gives structured interface data; gjson avoids
	// defining the whole iproute2 schema for the one field we need.
	if out, err := r.Run(ctx, conn, "ip -json addr show", false); err == nil {
		for _, ifname := range gjson.Get(out, "#.ifname").Array() {
			if name := ifname.String(); name != "" {
				facts.Interfaces = append(facts.Interfaces, name)
			}
		}
	}

	return facts, nil
}

func parseOSRelease(content string) (id, version string) {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if v, ok := strings.CutPrefix(line, "ID="); ok {
			id = strings.Trim(v, `"`)
		}
		if v, ok := strings.CutPrefix(line, "VERSION_ID="); ok {
			version = strings.Trim(v, `"`)
		}
	}
	return id, version
}

func detectPackageManager(ctx context.Context, conn connector.Connector) *PackageInfo {
	if _, err := conn.LookPath(ctx, "apt-get"); err == nil {
		return &PackageInfo{
			Type:        PackageManagerApt,
			UpdateCmd:   "DEBIAN_FRONTEND=noninteractive apt-get update -q",
			InstallCmd:  "DEBIAN_FRONTEND=noninteractive apt-get install -y -q %s",
			PkgQueryCmd: "dpkg-query -W -f='${Status}' %s 2>/dev/null | grep -q 'install ok installed'",
		}
	}
	if _, err := conn.LookPath(ctx, "dnf"); err == nil {
		return &PackageInfo{
			Type:        PackageManagerDnf,
			UpdateCmd:   "dnf makecache -q",
			InstallCmd:  "dnf install -y -q %s",
			PkgQueryCmd: "rpm -q %s",
		}
	}
	if _, err := conn.LookPath(ctx, "yum"); err == nil {
		return &PackageInfo{
			Type:        PackageManagerYum,
			UpdateCmd:   "yum makecache -q",
			InstallCmd:  "yum install -y -q %s",
			PkgQueryCmd: "rpm -q %s",
		}
	}
	return &PackageInfo{Type: PackageManagerUnknown}
}
