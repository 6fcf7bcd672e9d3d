package kube

import (
	"fmt"
	"strings"

	"github.com/monshunter/kubeboot/pkg/config"
	"github.com/monshunter/kubeboot/pkg/envar"
	"github.com/monshunter/kubeboot/pkg/environment"
	"github.com/monshunter/kubeboot/pkg/log"
	"github.com/monshunter/kubeboot/pkg/publicip"
	"github.com/monshunter/kubeboot/pkg/steps"
)

const adminConf = "/etc/kubernetes/admin.conf"

// Manager drives control-plane initialization on a host whose node setup
// already succeeded.
type Manager struct {
	runner   environment.CommandRunner
	cfg      *config.Config
	publicIP publicip.Lookup
}

// NewManager creates a control-plane manager for the given configuration.
func NewManager(runner environment.CommandRunner, cfg *config.Config) *Manager {
	return &Manager{
		runner:   runner,
		cfg:      cfg,
		publicIP: publicip.NewLookup(envar.PublicIPEndpoint()),
	}
}

// SetPublicIPLookup overrides the public address discovery, used in tests.
func (m *Manager) SetPublicIPLookup(lookup publicip.Lookup) {
	m.publicIP = lookup
}

// Steps returns the ordered control-plane steps up to and including the
// kubeconfig install. Add-on steps are appended by the caller.
func (m *Manager) Steps() []steps.Step {
	return []steps.Step{
		{Name: "pull-images", Run: m.PullImages},
		{Name: "kubeadm-init", Run: m.InitControlPlane},
		{Name: "install-kubeconfig", Run: m.InstallKubeconfig},
	}
}

// ResolveAdvertiseAddress resolves the address the control plane advertises
// according to the configured advertise mode. Any unrecognized mode is an
// error naming the offending value, raised before anything is executed.
func (m *Manager) ResolveAdvertiseAddress() (string, error) {
	switch m.cfg.Network.AdvertiseMode {
	case config.AdvertisePrivate:
		return environment.InterfaceIPv4(m.runner, m.cfg.Network.Interface)
	case config.AdvertisePublic:
		return m.publicIP()
	default:
		return "", fmt.Errorf("unrecognized advertise mode %q: must be %q or %q",
			string(m.cfg.Network.AdvertiseMode), config.AdvertisePrivate, config.AdvertisePublic)
	}
}

// PullImages pre-pulls the control-plane images so image-pull failures
// surface separately from init failures.
func (m *Manager) PullImages() error {
	cmd := fmt.Sprintf("sudo kubeadm config images pull --kubernetes-version %s",
		m.cfg.Pins.KubernetesVersion())
	if _, err := m.runner.Run(cmd); err != nil {
		return fmt.Errorf("failed to pull control-plane images: %w", err)
	}
	return nil
}

// InitCommand assembles the kubeadm init invocation for the resolved
// advertise address. In private mode the address is advertised directly; in
// public mode it becomes the control-plane endpoint. Either way it is added
// as an extra certificate SAN.
func (m *Manager) InitCommand(address string) (string, error) {
	args := []string{"sudo kubeadm init"}
	switch m.cfg.Network.AdvertiseMode {
	case config.AdvertisePrivate:
		args = append(args, fmt.Sprintf("--apiserver-advertise-address=%s", address))
	case config.AdvertisePublic:
		args = append(args, fmt.Sprintf("--control-plane-endpoint=%s", address))
	default:
		return "", fmt.Errorf("unrecognized advertise mode %q: must be %q or %q",
			string(m.cfg.Network.AdvertiseMode), config.AdvertisePrivate, config.AdvertisePublic)
	}
	args = append(args,
		fmt.Sprintf("--apiserver-cert-extra-sans=%s", address),
		fmt.Sprintf("--pod-network-cidr=%s", m.cfg.Network.PodCIDR),
		fmt.Sprintf("--node-name=%s", m.cfg.NodeName),
	)
	if len(m.cfg.IgnorePreflightErrors) > 0 {
		args = append(args, fmt.Sprintf("--ignore-preflight-errors=%s",
			strings.Join(m.cfg.IgnorePreflightErrors, ",")))
	}
	return strings.Join(args, " "), nil
}

// InitControlPlane resolves the advertise address and runs kubeadm init.
func (m *Manager) InitControlPlane() error {
	address, err := m.ResolveAdvertiseAddress()
	if err != nil {
		return err
	}
	log.Infof("initializing control plane advertising %s (%s mode)",
		address, m.cfg.Network.AdvertiseMode)

	cmd, err := m.InitCommand(address)
	if err != nil {
		return err
	}
	if _, err := m.runner.Run(cmd); err != nil {
		return fmt.Errorf("failed to initialize control plane: %w", err)
	}
	return nil
}

// InstallKubeconfig copies the admin credentials into the invoking user's
// home configuration directory and fixes ownership. When run under sudo the
// file is chowned to the original user, not root.
func (m *Manager) InstallKubeconfig() error {
	cmd := fmt.Sprintf(`mkdir -p $HOME/.kube
sudo cp -f %s $HOME/.kube/config
sudo chown $(id -u):$(id -g) $HOME/.kube/config`, adminConf)
	if _, err := m.runner.Run(cmd); err != nil {
		return fmt.Errorf("failed to install admin kubeconfig: %w", err)
	}
	return nil
}

// PrintJoinCommand fetches a fresh worker join command from the control
// plane.
func (m *Manager) PrintJoinCommand() (string, error) {
	output, err := m.runner.Run("sudo kubeadm token create --print-join-command")
	if err != nil {
		return "", fmt.Errorf("failed to get join command: %w", err)
	}
	return strings.TrimSpace(output), nil
}

// JoinNode runs a join command on a prepared worker node.
func JoinNode(runner environment.CommandRunner, joinCommand string) error {
	if !strings.HasPrefix(joinCommand, "sudo ") {
		joinCommand = "sudo " + joinCommand
	}
	if _, err := runner.Run(joinCommand); err != nil {
		return fmt.Errorf("failed to join node to cluster: %w", err)
	}
	return nil
}
