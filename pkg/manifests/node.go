package manifests

import (
	"fmt"
	"strings"
	"text/template"
)

// KernelModulesConf is written to /etc/modules-load.d/k8s.conf so the
// overlay and bridge-netfilter modules load on every boot.
const KernelModulesConf = `overlay
br_netfilter
`

// SysctlConf is written to /etc/sysctl.d/k8s.conf: IPv4 forwarding plus
// bridged traffic visibility for the packet filter on both IP families.
const SysctlConf = `net.bridge.bridge-nf-call-iptables  = 1
net.bridge.bridge-nf-call-ip6tables = 1
net.ipv4.ip_forward                 = 1
`

var kubeletExtraArgsTemplate = template.Must(template.New("kubelet-extra-args").Parse(
	`KUBELET_EXTRA_ARGS=--node-ip={{ .NodeIP }}
`))

// KubeletExtraArgs renders the node agent's extra-arguments file so the
// kubelet advertises the given address.
func KubeletExtraArgs(nodeIP string) (string, error) {
	var sb strings.Builder
	if err := kubeletExtraArgsTemplate.Execute(&sb, struct{ NodeIP string }{NodeIP: nodeIP}); err != nil {
		return "", fmt.Errorf("failed to render kubelet extra args: %w", err)
	}
	return sb.String(), nil
}

var dockerAptSourceTemplate = template.Must(template.New("docker-apt-source").Parse(
	`deb [arch={{ .Arch }} signed-by={{ .Keyring }}] {{ .Mirror }} {{ .Codename }} stable
`))

// DockerAptSource renders the sources.list.d entry for the container
// runtime repository.
func DockerAptSource(arch, keyring, mirror, codename string) (string, error) {
	var sb strings.Builder
	err := dockerAptSourceTemplate.Execute(&sb, struct {
		Arch, Keyring, Mirror, Codename string
	}{Arch: arch, Keyring: keyring, Mirror: mirror, Codename: codename})
	if err != nil {
		return "", fmt.Errorf("failed to render docker apt source: %w", err)
	}
	return sb.String(), nil
}

var kubernetesAptSourceTemplate = template.Must(template.New("kubernetes-apt-source").Parse(
	`deb [signed-by={{ .Keyring }}] {{ .Mirror }}/{{ .ReleaseLine }}/deb/ /
`))

// KubernetesAptSource renders the sources.list.d entry for the kubernetes
// tooling repository, pinned to a release line such as "v1.33".
func KubernetesAptSource(keyring, mirror, releaseLine string) (string, error) {
	var sb strings.Builder
	err := kubernetesAptSourceTemplate.Execute(&sb, struct {
		Keyring, Mirror, ReleaseLine string
	}{Keyring: keyring, Mirror: mirror, ReleaseLine: releaseLine})
	if err != nil {
		return "", fmt.Errorf("failed to render kubernetes apt source: %w", err)
	}
	return sb.String(), nil
}
