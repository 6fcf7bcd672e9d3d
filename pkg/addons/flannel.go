package addons

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/monshunter/kubeboot/pkg/log"
)

// flannelDefaultCIDR is the pod network baked into the upstream manifest.
const flannelDefaultCIDR = "10.244.0.0/16"

// FlannelInstaller installs the Flannel pod network add-on.
type FlannelInstaller struct {
	runner  Runner
	PodCIDR string
	Version string
}

// NewFlannelInstaller creates a Flannel installer for the given pod CIDR.
func NewFlannelInstaller(runner Runner, podCIDR string) *FlannelInstaller {
	return &FlannelInstaller{
		runner:  runner,
		PodCIDR: podCIDR,
		Version: "v0.26.7",
	}
}

func (f *FlannelInstaller) Name() string {
	return "flannel"
}

func (f *FlannelInstaller) manifestURL() string {
	return fmt.Sprintf("https://github.com/flannel-io/flannel/releases/download/%s/kube-flannel.yml", f.Version)
}

// Install applies the Flannel manifest. When the configured pod CIDR
// matches the upstream default the canonical URL is applied directly;
// otherwise the manifest is downloaded, patched, staged, and applied.
func (f *FlannelInstaller) Install() error {
	if f.PodCIDR == flannelDefaultCIDR {
		applyCmd := fmt.Sprintf("kubectl apply -f %s", f.manifestURL())
		if _, err := f.runner.Run(applyCmd); err != nil {
			return fmt.Errorf("failed to apply Flannel manifest: %w", err)
		}
		return f.waitReady()
	}

	log.Infof("Downloading Flannel manifest to set pod CIDR %s", f.PodCIDR)
	manifest, err := f.downloadManifest()
	if err != nil {
		return err
	}

	oldCIDR := fmt.Sprintf(`"Network": %q`, flannelDefaultCIDR)
	newCIDR := fmt.Sprintf(`"Network": %q`, f.PodCIDR)
	patched := strings.Replace(manifest, oldCIDR, newCIDR, -1)

	remotePath := "/tmp/kube-flannel.yml"
	if err := f.runner.WriteFile(remotePath, []byte(patched), 0644); err != nil {
		return fmt.Errorf("failed to stage Flannel manifest: %w", err)
	}

	if _, err := f.runner.Run(fmt.Sprintf("kubectl apply -f %s", remotePath)); err != nil {
		return fmt.Errorf("failed to apply Flannel manifest: %w", err)
	}
	return f.waitReady()
}

func (f *FlannelInstaller) downloadManifest() (string, error) {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.HTTPClient.Timeout = 60 * time.Second
	client.Logger = nil

	resp, err := client.Get(f.manifestURL())
	if err != nil {
		return "", fmt.Errorf("failed to download Flannel manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return "", fmt.Errorf("Flannel manifest download returned status %s", resp.Status)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read Flannel manifest: %w", err)
	}
	return string(content), nil
}

// waitReady waits for the flannel daemonset pods; a slow CNI rollout is
// logged but not fatal because later add-ons surface real network failures.
func (f *FlannelInstaller) waitReady() error {
	waitCmd := "kubectl -n kube-flannel wait --for=condition=ready pod -l app=flannel --timeout=120s"
	if _, err := f.runner.Run(waitCmd); err != nil {
		log.Warningf("Timed out waiting for Flannel to be ready, continuing: %v", err)
	}
	return nil
}
