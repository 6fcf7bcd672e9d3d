package environment

import (
	"github.com/monshunter/kubeboot/pkg/config"
	"github.com/monshunter/kubeboot/pkg/envar"
)

// CommandRunner is the subset of runner.Runner node setup needs. Privileged
// file writes go through sudo tee commands, so command execution is enough.
type CommandRunner interface {
	Run(command string) (string, error)
}

// InitOptions defines the node setup options.
type InitOptions struct {
	// Pins are the exact package versions to install and hold.
	Pins config.VersionPins
	// Interface is the network interface whose IPv4 address the kubelet
	// advertises.
	Interface string
	// K8sMirrorURL is the kubernetes apt repository base.
	K8sMirrorURL string
	// DockerMirrorURL is the container runtime apt repository base.
	DockerMirrorURL string
}

// DefaultInitOptions returns options for the given pins and interface, with
// repository mirrors taken from the environment or the official defaults.
func DefaultInitOptions(pins config.VersionPins, iface string) InitOptions {
	return InitOptions{
		Pins:            pins,
		Interface:       iface,
		K8sMirrorURL:    envar.K8sMirrorURL(),
		DockerMirrorURL: envar.DockerMirrorURL(),
	}
}
