package addons

import (
	"fmt"

	"github.com/monshunter/kubeboot/pkg/config"
	"github.com/monshunter/kubeboot/pkg/manifests"
)

// IngressNginxInstaller installs the ingress-nginx controller and, once it
// is ready, an example ingress as a smoke-test artifact.
type IngressNginxInstaller struct {
	runner  Runner
	Rules   []config.IngressRule
	Version string
	// ReadyTimeout bounds the wait for the controller pod; exceeding it is
	// a terminal failure, not retried.
	ReadyTimeout string
}

// NewIngressNginxInstaller creates an ingress-nginx installer.
func NewIngressNginxInstaller(runner Runner, rules []config.IngressRule) *IngressNginxInstaller {
	return &IngressNginxInstaller{
		runner:       runner,
		Rules:        rules,
		Version:      "v1.12.1",
		ReadyTimeout: "90s",
	}
}

func (n *IngressNginxInstaller) Name() string {
	return "ingress-nginx"
}

// Install applies the controller manifest and blocks until at least one
// controller pod reports ready or the timeout elapses.
func (n *IngressNginxInstaller) Install() error {
	manifestURL := fmt.Sprintf(
		"https://raw.githubusercontent.com/kubernetes/ingress-nginx/controller-%s/deploy/static/provider/cloud/deploy.yaml",
		n.Version)
	if _, err := n.runner.Run(fmt.Sprintf("kubectl apply -f %s", manifestURL)); err != nil {
		return fmt.Errorf("failed to install ingress-nginx: %w", err)
	}

	waitCmd := fmt.Sprintf(
		"kubectl wait --namespace ingress-nginx --for=condition=ready pod --selector=app.kubernetes.io/component=controller --timeout=%s",
		n.ReadyTimeout)
	if _, err := n.runner.Run(waitCmd); err != nil {
		return fmt.Errorf("ingress-nginx controller did not become ready within %s: %w", n.ReadyTimeout, err)
	}
	return nil
}

// ApplyExampleIngress renders and applies the smoke-test ingress. Callers
// run this only after Install succeeded.
func (n *IngressNginxInstaller) ApplyExampleIngress() error {
	ingressYAML, err := manifests.RenderExampleIngress("example-ingress", n.Rules)
	if err != nil {
		return err
	}

	remotePath := "/tmp/example-ingress.yaml"
	if err := n.runner.WriteFile(remotePath, []byte(ingressYAML), 0644); err != nil {
		return fmt.Errorf("failed to stage example ingress: %w", err)
	}

	if _, err := n.runner.Run(fmt.Sprintf("kubectl apply -f %s", remotePath)); err != nil {
		return fmt.Errorf("failed to apply example ingress: %w", err)
	}
	return nil
}
