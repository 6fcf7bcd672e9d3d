package app

import (
	"fmt"
	"strings"

	"github.com/monshunter/kubeboot/pkg/kube"
	"github.com/monshunter/kubeboot/pkg/log"
	"github.com/spf13/cobra"
)

var joinCommandCmd = &cobra.Command{
	Use:   "join-command",
	Short: "Print a fresh worker join command",
	Long:  `Print a fresh kubeadm join command, generated on the control-plane host.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		r, err := newRunner()
		if err != nil {
			return err
		}
		defer r.Close()

		joinCommand, err := kube.NewManager(r, cfg).PrintJoinCommand()
		if err != nil {
			return err
		}
		fmt.Println(joinCommand)
		return nil
	},
}

var joinCmd = &cobra.Command{
	Use:   "join JOIN_COMMAND...",
	Short: "Join a prepared worker node to the cluster",
	Long: `Run a kubeadm join command on a worker machine prepared by
"kubeboot node". Obtain the command with "kubeboot join-command" on the
control-plane host.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		joinCommand := strings.Join(args, " ")
		if !strings.Contains(joinCommand, "kubeadm join") {
			return fmt.Errorf("argument does not look like a kubeadm join command: %q", joinCommand)
		}

		r, err := newRunner()
		if err != nil {
			return err
		}
		defer r.Close()

		if err := kube.JoinNode(r, joinCommand); err != nil {
			return err
		}
		log.Infof("node %s joined the cluster", r.Name())
		return nil
	},
}
