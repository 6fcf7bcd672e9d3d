package kube

import (
	"fmt"
	"os"
	"path/filepath"
)

// DownloadKubeconfig copies the cluster's admin credentials to the local
// machine as ~/.kube/<cluster>-config, for use when the control plane was
// bootstrapped on a remote host.
func (m *Manager) DownloadKubeconfig(clusterName string) (string, error) {
	content, err := m.runner.Run(fmt.Sprintf("sudo cat %s", adminConf))
	if err != nil {
		return "", fmt.Errorf("failed to read admin kubeconfig: %w", err)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	kubeDir := filepath.Join(homeDir, ".kube")
	if err := os.MkdirAll(kubeDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create .kube directory: %w", err)
	}

	kubeconfigPath := filepath.Join(kubeDir, clusterName+"-config")
	if err := os.WriteFile(kubeconfigPath, []byte(content), 0600); err != nil {
		return "", fmt.Errorf("failed to write kubeconfig file: %w", err)
	}
	return kubeconfigPath, nil
}
