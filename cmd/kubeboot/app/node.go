package app

import (
	"github.com/monshunter/kubeboot/pkg/config"
	"github.com/monshunter/kubeboot/pkg/environment"
	"github.com/monshunter/kubeboot/pkg/log"
	"github.com/monshunter/kubeboot/pkg/steps"
	"github.com/spf13/cobra"
)

var (
	containerdVersion string
	kubeletVersion    string
	kubeadmVersion    string
	kubectlVersion    string
	interfaceName     string
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Prepare a machine to run cluster software",
	Long: `Run the common node setup on a machine (control-plane or worker):
disable swap persistently, load required kernel modules, apply network
sysctls, install containerd and kubelet/kubeadm/kubectl at pinned versions,
hold them against upgrades, and configure the kubelet's advertised IP.

Safe to run independently and in parallel on multiple machines.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		applyNodeFlags(cmd, cfg)

		if err := cfg.Pins.Validate(); err != nil {
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

		initializer, err := environment.NewInitializer(r,
			environment.DefaultInitOptions(cfg.Pins, cfg.Network.Interface))
		if err != nil {
			return err
		}

		state.SetPhase(config.PhaseRunning)
		if err := steps.NewPipeline("node-setup", initializer.Steps()).WithRecorder(state).Run(); err != nil {
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

		log.Infof("node %s is ready to run cluster software", r.Name())
		return nil
	},
}

func init() {
	nodeCmd.Flags().StringVar(&containerdVersion, "containerd-version", "", "containerd package version pin")
	nodeCmd.Flags().StringVar(&kubeletVersion, "kubelet-version", "", "kubelet package version pin")
	nodeCmd.Flags().StringVar(&kubeadmVersion, "kubeadm-version", "", "kubeadm package version pin")
	nodeCmd.Flags().StringVar(&kubectlVersion, "kubectl-version", "", "kubectl package version pin")
	nodeCmd.Flags().StringVar(&interfaceName, "interface", "", "Network interface the kubelet advertises")
}

// applyNodeFlags overrides config values with explicitly set flags.
func applyNodeFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("containerd-version") {
		cfg.Pins.Containerd = containerdVersion
	}
	if cmd.Flags().Changed("kubelet-version") {
		cfg.Pins.Kubelet = kubeletVersion
	}
	if cmd.Flags().Changed("kubeadm-version") {
		cfg.Pins.Kubeadm = kubeadmVersion
	}
	if cmd.Flags().Changed("kubectl-version") {
		cfg.Pins.Kubectl = kubectlVersion
	}
	if cmd.Flags().Changed("interface") {
		cfg.Network.Interface = interfaceName
	}
}
