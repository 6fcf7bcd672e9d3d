package addons

import (
	"fmt"

	"github.com/monshunter/kubeboot/pkg/config"
	"github.com/monshunter/kubeboot/pkg/manifests"
)

// MetalLBInstaller installs the MetalLB load balancer and configures its
// layer-2 address pool.
type MetalLBInstaller struct {
	runner   Runner
	Pool     config.AddressPool
	PoolName string
	Version  string
}

// NewMetalLBInstaller creates a MetalLB installer for the given pool.
func NewMetalLBInstaller(runner Runner, pool config.AddressPool) *MetalLBInstaller {
	return &MetalLBInstaller{
		runner:   runner,
		Pool:     pool,
		PoolName: "default",
		Version:  "v0.14.9",
	}
}

func (m *MetalLBInstaller) Name() string {
	return "metallb"
}

// Install applies the MetalLB manifest at the pinned version, waits for the
// controller to come up, then applies the layer-2 address-pool objects.
func (m *MetalLBInstaller) Install() error {
	manifestURL := fmt.Sprintf(
		"https://raw.githubusercontent.com/metallb/metallb/%s/config/manifests/metallb-native.yaml", m.Version)
	if _, err := m.runner.Run(fmt.Sprintf("kubectl apply -f %s", manifestURL)); err != nil {
		return fmt.Errorf("failed to install MetalLB: %w", err)
	}

	// The IPAddressPool webhook rejects objects until the controller is up
	waitCmd := "kubectl wait --namespace metallb-system --for=condition=ready pod --selector=app=metallb --timeout=90s"
	if _, err := m.runner.Run(waitCmd); err != nil {
		return fmt.Errorf("failed to wait for MetalLB deployment: %w", err)
	}

	poolYAML, err := manifests.RenderMetalLBPool(m.PoolName, m.Pool)
	if err != nil {
		return err
	}

	remotePath := "/tmp/metallb-config.yaml"
	if err := m.runner.WriteFile(remotePath, []byte(poolYAML), 0644); err != nil {
		return fmt.Errorf("failed to stage MetalLB pool configuration: %w", err)
	}

	if _, err := m.runner.Run(fmt.Sprintf("kubectl apply -f %s", remotePath)); err != nil {
		return fmt.Errorf("failed to apply MetalLB pool configuration: %w", err)
	}
	return nil
}
