package environment

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/monshunter/kubeboot/pkg/config"
	"github.com/monshunter/kubeboot/pkg/log"
	"github.com/monshunter/kubeboot/pkg/manifests"
	"github.com/monshunter/kubeboot/pkg/steps"
)

const (
	dockerKeyring     = "/etc/apt/keyrings/docker.gpg"
	kubernetesKeyring = "/etc/apt/keyrings/kubernetes-apt-keyring.gpg"
	dockerSourceList  = "/etc/apt/sources.list.d/docker.list"
	k8sSourceList     = "/etc/apt/sources.list.d/kubernetes.list"
)

// Initializer prepares a single machine to run cluster software: swap off
// now and across reboots, kernel modules and sysctls in place, containerd
// and the kube tools installed at pinned versions and held.
type Initializer struct {
	runner  CommandRunner
	options InitOptions
}

// NewInitializer creates a node initializer. The version pins are validated
// up front so no unsafe value ever reaches a shell command.
func NewInitializer(runner CommandRunner, options InitOptions) (*Initializer, error) {
	if err := options.Pins.Validate(); err != nil {
		return nil, err
	}
	if options.Interface == "" {
		return nil, fmt.Errorf("network interface must not be empty")
	}
	if !config.ShellSafe(options.Interface) {
		return nil, fmt.Errorf("network interface contains unsafe characters: %q", options.Interface)
	}
	return &Initializer{runner: runner, options: options}, nil
}

// Steps returns the ordered node setup steps for the fail-fast pipeline.
func (i *Initializer) Steps() []steps.Step {
	return []steps.Step{
		{Name: "disable-swap", Run: i.DisableSwap},
		{Name: "update-package-index", Run: i.UpdatePackageIndex},
		{Name: "kernel-modules", Run: i.ConfigureKernelModules},
		{Name: "sysctl", Run: i.ConfigureSysctls},
		{Name: "repo-prerequisites", Run: i.InstallRepoPrerequisites},
		{Name: "install-containerd", Run: i.InstallContainerd},
		{Name: "install-kube-tools", Run: i.InstallKubeTools},
		{Name: "install-jq", Run: i.InstallJQ},
		{Name: "configure-node-ip", Run: i.ConfigureNodeIP},
	}
}

// Initialize executes all node setup steps in order.
func (i *Initializer) Initialize() error {
	return steps.NewPipeline("node-setup", i.Steps()).Run()
}

// waitForAptLock waits until no other package operation holds the apt lock,
// force-releasing it as a last resort.
func (i *Initializer) waitForAptLock() error {
	maxRetries := 30
	retryDelay := 5 * time.Second

	checkCmd := `if sudo fuser /var/lib/apt/lists/lock /var/lib/dpkg/lock-frontend /var/lib/dpkg/lock 2>/dev/null; then
	echo "locked"
else
	echo "unlocked"
fi`

	for attempt := 1; attempt <= maxRetries; attempt++ {
		output, err := i.runner.Run(checkCmd)
		if err != nil {
			return fmt.Errorf("failed to check apt lock state: %w", err)
		}
		if strings.TrimSpace(output) == "unlocked" {
			return nil
		}
		if attempt < maxRetries {
			log.Infof("apt is locked by another process, waiting (attempt %d/%d)...", attempt, maxRetries)
			time.Sleep(retryDelay)
			continue
		}

		log.Warning("timed out waiting for apt lock, force-releasing it")
		if _, err := i.runner.Run("sudo killall apt apt-get dpkg 2>/dev/null || true"); err != nil {
			return fmt.Errorf("failed to stop package processes: %w", err)
		}
		unlockCmd := `sudo rm -f /var/lib/apt/lists/lock /var/cache/apt/archives/lock /var/lib/dpkg/lock /var/lib/dpkg/lock-frontend
sudo dpkg --configure -a`
		if _, err := i.runner.Run(unlockCmd); err != nil {
			return fmt.Errorf("failed to force-release apt lock: %w", err)
		}
	}
	return nil
}

// DisableSwap turns swap off immediately and comments the swap entries out
// of /etc/fstab so it stays off across reboots.
func (i *Initializer) DisableSwap() error {
	if _, err := i.runner.Run("sudo swapoff -a"); err != nil {
		return fmt.Errorf("failed to disable swap: %w", err)
	}

	if _, err := i.runner.Run(`sudo sed -ri '/\sswap\s/s/^#?/#/' /etc/fstab`); err != nil {
		return fmt.Errorf("failed to persist swap removal in /etc/fstab: %w", err)
	}
	return nil
}

// UpdatePackageIndex refreshes the system package index.
func (i *Initializer) UpdatePackageIndex() error {
	if err := i.waitForAptLock(); err != nil {
		return err
	}
	if _, err := i.runner.Run("sudo apt-get update"); err != nil {
		return fmt.Errorf("failed to update package index: %w", err)
	}
	return nil
}

// ConfigureKernelModules declares the overlay and br_netfilter modules for
// load at boot and loads them now.
func (i *Initializer) ConfigureKernelModules() error {
	modulesFile := "/etc/modules-load.d/k8s.conf"
	cmd := fmt.Sprintf("cat <<EOF | sudo tee %s\n%sEOF", modulesFile, manifests.KernelModulesConf)
	if _, err := i.runner.Run(cmd); err != nil {
		return fmt.Errorf("failed to write %s: %w", modulesFile, err)
	}

	for _, module := range []string{"overlay", "br_netfilter"} {
		if _, err := i.runner.Run(fmt.Sprintf("sudo modprobe %s", module)); err != nil {
			return fmt.Errorf("failed to load kernel module %s: %w", module, err)
		}
	}
	return nil
}

// ConfigureSysctls applies the bridge and forwarding kernel parameters
// without a reboot.
func (i *Initializer) ConfigureSysctls() error {
	sysctlFile := "/etc/sysctl.d/k8s.conf"
	cmd := fmt.Sprintf("cat <<EOF | sudo tee %s\n%sEOF", sysctlFile, manifests.SysctlConf)
	if _, err := i.runner.Run(cmd); err != nil {
		return fmt.Errorf("failed to write %s: %w", sysctlFile, err)
	}

	if _, err := i.runner.Run("sudo sysctl --system"); err != nil {
		return fmt.Errorf("failed to apply kernel parameters: %w", err)
	}
	return nil
}

// InstallRepoPrerequisites installs the packages needed to register signed
// third-party repositories and prepares the keyring directory.
func (i *Initializer) InstallRepoPrerequisites() error {
	if err := i.waitForAptLock(); err != nil {
		return err
	}
	cmd := "sudo apt-get install -y apt-transport-https ca-certificates curl gpg"
	if _, err := i.runner.Run(cmd); err != nil {
		return fmt.Errorf("failed to install repository prerequisites: %w", err)
	}

	if _, err := i.runner.Run("sudo mkdir -p -m 755 /etc/apt/keyrings"); err != nil {
		return fmt.Errorf("failed to create keyring directory: %w", err)
	}
	return nil
}

// InstallContainerd registers the container runtime repository pinned to the
// host's release, installs containerd at the pinned version, and enables it.
func (i *Initializer) InstallContainerd() error {
	// gpg --batch --yes overwrites an existing keyring, keeping re-runs safe
	keyCmd := fmt.Sprintf("curl -fsSL %s/gpg | sudo gpg --batch --yes --dearmor -o %s",
		i.options.DockerMirrorURL, dockerKeyring)
	if _, err := i.runner.Run(keyCmd); err != nil {
		return fmt.Errorf("failed to import container runtime repository key: %w", err)
	}

	arch, err := i.runner.Run("dpkg --print-architecture")
	if err != nil {
		return fmt.Errorf("failed to detect architecture: %w", err)
	}
	codename, err := i.runner.Run(". /etc/os-release && echo \"$VERSION_CODENAME\"")
	if err != nil {
		return fmt.Errorf("failed to detect OS codename: %w", err)
	}

	source, err := manifests.DockerAptSource(strings.TrimSpace(arch), dockerKeyring,
		i.options.DockerMirrorURL, strings.TrimSpace(codename))
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf("cat <<EOF | sudo tee %s\n%sEOF", dockerSourceList, source)
	if _, err := i.runner.Run(cmd); err != nil {
		return fmt.Errorf("failed to register container runtime repository: %w", err)
	}

	if err := i.waitForAptLock(); err != nil {
		return err
	}
	if _, err := i.runner.Run("sudo apt-get update"); err != nil {
		return fmt.Errorf("failed to update package index: %w", err)
	}

	installCmd := fmt.Sprintf("sudo apt-get install -y containerd.io=%s", i.options.Pins.Containerd)
	if _, err := i.runner.Run(installCmd); err != nil {
		return fmt.Errorf("failed to install containerd %s: %w", i.options.Pins.Containerd, err)
	}

	if _, err := i.runner.Run("sudo systemctl daemon-reload"); err != nil {
		return fmt.Errorf("failed to reload service manager: %w", err)
	}
	if _, err := i.runner.Run("sudo systemctl enable --now containerd"); err != nil {
		return fmt.Errorf("failed to enable containerd service: %w", err)
	}
	return nil
}

// InstallKubeTools registers the kubernetes repository for the pinned
// release line, installs kubelet/kubeadm/kubectl at exact versions, and
// holds all three against upgrades.
func (i *Initializer) InstallKubeTools() error {
	releaseLine := i.options.Pins.ReleaseLine()

	keyCmd := fmt.Sprintf("curl -fsSL %s/%s/deb/Release.key | sudo gpg --batch --yes --dearmor -o %s",
		i.options.K8sMirrorURL, releaseLine, kubernetesKeyring)
	if _, err := i.runner.Run(keyCmd); err != nil {
		return fmt.Errorf("failed to import kubernetes repository key: %w", err)
	}

	source, err := manifests.KubernetesAptSource(kubernetesKeyring, i.options.K8sMirrorURL, releaseLine)
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf("cat <<EOF | sudo tee %s\n%sEOF", k8sSourceList, source)
	if _, err := i.runner.Run(cmd); err != nil {
		return fmt.Errorf("failed to register kubernetes repository: %w", err)
	}

	if err := i.waitForAptLock(); err != nil {
		return err
	}
	if _, err := i.runner.Run("sudo apt-get update"); err != nil {
		return fmt.Errorf("failed to update package index: %w", err)
	}

	installCmd := fmt.Sprintf("sudo apt-get install -y kubelet=%s kubeadm=%s kubectl=%s",
		i.options.Pins.Kubelet, i.options.Pins.Kubeadm, i.options.Pins.Kubectl)
	if _, err := i.runner.Run(installCmd); err != nil {
		return fmt.Errorf("failed to install kubernetes components: %w", err)
	}

	if _, err := i.runner.Run("sudo apt-mark hold kubelet kubeadm kubectl"); err != nil {
		return fmt.Errorf("failed to hold kubernetes component versions: %w", err)
	}

	if _, err := i.runner.Run("sudo systemctl enable --now kubelet"); err != nil {
		return fmt.Errorf("failed to enable kubelet: %w", err)
	}
	return nil
}

// InstallJQ installs the JSON-query utility used by address detection.
func (i *Initializer) InstallJQ() error {
	if err := i.waitForAptLock(); err != nil {
		return err
	}
	if _, err := i.runner.Run("sudo apt-get install -y jq"); err != nil {
		return fmt.Errorf("failed to install jq: %w", err)
	}
	return nil
}

// ConfigureNodeIP resolves the machine's IPv4 address on the configured
// interface and writes it into the kubelet's extra-arguments file so the
// node agent advertises that address.
func (i *Initializer) ConfigureNodeIP() error {
	nodeIP, err := InterfaceIPv4(i.runner, i.options.Interface)
	if err != nil {
		return err
	}

	extraArgs, err := manifests.KubeletExtraArgs(nodeIP)
	if err != nil {
		return err
	}
	extraArgsFile := "/etc/default/kubelet"
	cmd := fmt.Sprintf("cat <<EOF | sudo tee %s\n%sEOF", extraArgsFile, extraArgs)
	if _, err := i.runner.Run(cmd); err != nil {
		return fmt.Errorf("failed to write %s: %w", extraArgsFile, err)
	}

	if _, err := i.runner.Run("sudo systemctl restart kubelet"); err != nil {
		return fmt.Errorf("failed to restart kubelet: %w", err)
	}

	log.Infof("kubelet will advertise node IP %s on %s", nodeIP, i.options.Interface)
	return nil
}

// InterfaceIPv4 resolves the local IPv4 address assigned to a named
// interface on the target host. The output is parsed as an address before it
// reaches any rendered file or command.
func InterfaceIPv4(runner CommandRunner, iface string) (string, error) {
	cmd := fmt.Sprintf("ip -j -4 addr show %s | jq -r '.[0].addr_info[0].local'", iface)
	output, err := runner.Run(cmd)
	if err != nil {
		return "", fmt.Errorf("failed to resolve IPv4 address on %s: %w", iface, err)
	}
	addr := strings.TrimSpace(output)
	ip := net.ParseIP(addr)
	if ip == nil || ip.To4() == nil {
		return "", fmt.Errorf("interface %s has no IPv4 address, got %q", iface, addr)
	}
	return ip.String(), nil
}
