package app

import (
	"fmt"

	"github.com/monshunter/kubeboot/pkg/addons"
	"github.com/monshunter/kubeboot/pkg/config"
	"github.com/monshunter/kubeboot/pkg/kube"
	"github.com/monshunter/kubeboot/pkg/log"
	"github.com/monshunter/kubeboot/pkg/steps"
	"github.com/spf13/cobra"
)

var (
	advertiseMode string
	podCIDR       string
	nodeName      string
	addressPool   []string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a control plane (with CNI, MetalLB, ingress-nginx)",
	Long: `Initialize the Kubernetes control plane on a machine prepared by
"kubeboot node", then install the cluster add-ons in order:
- Flannel as the pod network
- MetalLB with a layer-2 address pool
- ingress-nginx, waiting for the controller to become ready
- an example ingress as a smoke test`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		applyInitFlags(cmd, cfg)
		cfg.Role = config.RoleControlPlane

		// Reject bad configuration (an unrecognized advertise mode in
		// particular) before anything touches the host.
		if err := cfg.Validate(); err != nil {
			return err
		}

		r, err := newRunner()
		if err != nil {
			return err
		}
		defer r.Close()

		state, err := loadStateIfResume(cfg, r)
		if err != nil {
			return err
		}

		manager := kube.NewManager(r, cfg)
		flannel := addons.NewFlannelInstaller(r, cfg.Network.PodCIDR)
		metallb := addons.NewMetalLBInstaller(r, cfg.AddressPool)
		ingress := addons.NewIngressNginxInstaller(r, cfg.IngressRules)

		pipeline := append(manager.Steps(),
			steps.Step{Name: "install-flannel", Run: flannel.Install},
			steps.Step{Name: "install-metallb", Run: metallb.Install},
			steps.Step{Name: "install-ingress-nginx", Run: ingress.Install},
			steps.Step{Name: "apply-example-ingress", Run: ingress.ApplyExampleIngress},
		)

		state.SetPhase(config.PhaseRunning)
		if err := steps.NewPipeline("control-plane-init", pipeline).WithRecorder(state).Run(); err != nil {
			state.SetPhase(config.PhaseFailed)
			if saveErr := state.Save(); saveErr != nil {
				log.Warningf("failed to persist state: %v", saveErr)
			}
			return err
		}
		state.SetPhase(config.PhaseReady)
		if err := state.Save(); err != nil {
			log.Warningf("failed to persist state: %v", err)
		}

		if sshHost != "" {
			kubeconfigPath, err := manager.DownloadKubeconfig(cfg.Name)
			if err != nil {
				return fmt.Errorf("control plane is ready but kubeconfig download failed: %w", err)
			}
			log.Infof("kubeconfig saved to %s", kubeconfigPath)
		}

		log.Infof("control plane for cluster %s is ready", cfg.Name)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&advertiseMode, "advertise-mode", "",
		"Which address the control plane advertises: private or public")
	initCmd.Flags().StringVar(&podCIDR, "pod-cidr", "", "Pod network CIDR")
	initCmd.Flags().StringVar(&nodeName, "node-name", "", "Name registered for the control-plane node")
	initCmd.Flags().StringArrayVar(&addressPool, "address-pool", nil,
		"IP range for the MetalLB layer-2 pool (repeatable)")
	initCmd.Flags().StringVar(&interfaceName, "interface", "", "Network interface for the private advertise address")
}

// applyInitFlags overrides config values with explicitly set flags.
func applyInitFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("advertise-mode") {
		cfg.Network.AdvertiseMode = config.AdvertiseMode(advertiseMode)
	}
	if cmd.Flags().Changed("pod-cidr") {
		cfg.Network.PodCIDR = podCIDR
	}
	if cmd.Flags().Changed("node-name") {
		cfg.NodeName = nodeName
	}
	if cmd.Flags().Changed("address-pool") {
		cfg.AddressPool = addressPool
	}
	if cmd.Flags().Changed("interface") {
		cfg.Network.Interface = interfaceName
	}
}
