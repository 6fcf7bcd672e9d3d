package app

import (
	"fmt"
	"os"

	"github.com/monshunter/kubeboot/pkg/config"
	"github.com/monshunter/kubeboot/pkg/log"
	"github.com/monshunter/kubeboot/pkg/runner"
	"github.com/spf13/cobra"
)

var (
	verbose bool
	quiet   bool
)

var (
	clusterName string
	configFile  string
	resume      bool

	// Remote execution options; when host is empty everything runs locally.
	sshHost     string
	sshPort     string
	sshUser     string
	sshPassword string
	sshKeyFile  string
)

var rootCmd = &cobra.Command{
	Use:   "kubeboot",
	Short: "Kubeboot - Bootstrap a self-managed Kubernetes cluster",
	Long: `Kubeboot prepares machines for Kubernetes (swap, kernel modules, containerd,
pinned kubelet/kubeadm/kubectl) and initializes a control plane with
Flannel (CNI), MetalLB (LoadBalancer), and ingress-nginx.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Set log modes based on flags
		if verbose {
			log.SetVerbose(true)
		}
		if quiet {
			log.SetQuiet(true)
		}
	},
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Enable quiet mode (minimal output)")
	rootCmd.PersistentFlags().StringVar(&clusterName, "name", "kubeboot", "Cluster name")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "f", "", "Path to a cluster configuration file")
	rootCmd.PersistentFlags().BoolVar(&resume, "resume", true,
		"Skip steps recorded as completed by a previous run")

	rootCmd.PersistentFlags().StringVar(&sshHost, "host", "", "Remote host to bootstrap (default: run locally)")
	rootCmd.PersistentFlags().StringVar(&sshPort, "port", "22", "SSH port of the remote host")
	rootCmd.PersistentFlags().StringVar(&sshUser, "user", "root", "SSH user for the remote host")
	rootCmd.PersistentFlags().StringVar(&sshPassword, "password", "", "SSH password for the remote host")
	rootCmd.PersistentFlags().StringVar(&sshKeyFile, "ssh-key-file", "", "Path to an SSH private key for the remote host")

	// Add subcommands
	rootCmd.AddCommand(nodeCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(joinCmd)
	rootCmd.AddCommand(joinCommandCmd)
	rootCmd.AddCommand(versionCmd)
}

// Run adds all child commands to the root command and sets flags, this is
// the entry point called by main.go
func Run() error {
	return rootCmd.Execute()
}

// loadConfig loads the cluster configuration from the config file when one
// is given, falling back to defaults, and applies the cluster name flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if configFile != "" {
		loaded, err := config.LoadFromFile(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if cmd.Flags().Changed("name") || cfg.Name == "" {
		cfg.Name = clusterName
	}
	return cfg, nil
}

// newRunner builds the runner for the target host: SSH when --host is set,
// otherwise the local machine.
func newRunner() (runner.Runner, error) {
	if sshHost == "" {
		return runner.NewLocalRunner(), nil
	}

	privKey := ""
	if sshKeyFile != "" {
		content, err := os.ReadFile(sshKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read SSH private key file: %w", err)
		}
		privKey = string(content)
	}
	if sshPassword == "" && privKey == "" {
		return nil, fmt.Errorf("remote host %s requires --password or --ssh-key-file", sshHost)
	}
	return runner.NewSSHRunner(sshHost, sshPort, sshUser, sshPassword, privKey), nil
}

// stateName scopes the persisted step state to the cluster and target host.
func stateName(cfg *config.Config, r runner.Runner) string {
	return fmt.Sprintf("%s-%s", cfg.Name, r.Name())
}

// loadStateIfResume loads step state when --resume is enabled, otherwise
// starts fresh so every step runs again.
func loadStateIfResume(cfg *config.Config, r runner.Runner) (*config.State, error) {
	name := stateName(cfg, r)
	if !resume {
		return config.NewState(name), nil
	}
	return config.LoadState(name)
}
