package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	KindCluster = "Cluster"
	ApiVersion  = "kubeboot.dev/v1alpha1"
)

// Role determines which procedures run on a node.
type Role string

const (
	RoleControlPlane Role = "control-plane"
	RoleWorker       Role = "worker"
)

// AdvertiseMode selects which address the control plane advertises.
type AdvertiseMode string

const (
	AdvertisePrivate AdvertiseMode = "private"
	AdvertisePublic  AdvertiseMode = "public"
)

// shellUnsafe lists characters that must never leak from a user-supplied
// value into a rendered shell command or repository file.
const shellUnsafe = " \t\n\"'`$;&|<>(){}[]*?\\~#"

// ShellSafe reports whether a user-supplied value can be interpolated into
// a shell command without quoting.
func ShellSafe(value string) bool {
	return !strings.ContainsAny(value, shellUnsafe)
}

// VersionPins maps each installed component to an exact package version
// string, e.g. kubelet "1.33.1-1.1", containerd "1.7.27-1". The three kube
// tools are expected to share a major.minor line; mismatches are not
// detected here.
type VersionPins struct {
	Containerd string `yaml:"containerd,omitempty"`
	Kubelet    string `yaml:"kubelet,omitempty"`
	Kubeadm    string `yaml:"kubeadm,omitempty"`
	Kubectl    string `yaml:"kubectl,omitempty"`
}

// ReleaseLine derives the "v<major>.<minor>" repository line from the
// kubeadm pin, used to build the pkgs.k8s.io repository URL.
func (p VersionPins) ReleaseLine() string {
	pin := p.Kubeadm
	if pin == "" {
		pin = p.Kubelet
	}
	pin = strings.TrimPrefix(pin, "v")
	parts := strings.SplitN(pin, ".", 3)
	if len(parts) < 2 {
		return ""
	}
	return fmt.Sprintf("v%s.%s", parts[0], parts[1])
}

// KubernetesVersion derives the semantic version ("v1.33.1") from the
// kubeadm package pin ("1.33.1-1.1").
func (p VersionPins) KubernetesVersion() string {
	pin := strings.TrimPrefix(p.Kubeadm, "v")
	if idx := strings.Index(pin, "-"); idx > 0 {
		pin = pin[:idx]
	}
	if pin == "" {
		return ""
	}
	return "v" + pin
}

// Validate rejects pins containing shell metacharacters before any of them
// is interpolated into a command or a sources.list entry.
func (p VersionPins) Validate() error {
	for name, pin := range map[string]string{
		"containerd": p.Containerd,
		"kubelet":    p.Kubelet,
		"kubeadm":    p.Kubeadm,
		"kubectl":    p.Kubectl,
	} {
		if pin == "" {
			return fmt.Errorf("version pin for %s is empty", name)
		}
		if strings.ContainsAny(pin, shellUnsafe) {
			return fmt.Errorf("version pin for %s contains unsafe characters: %q", name, pin)
		}
	}
	if p.ReleaseLine() == "" {
		return fmt.Errorf("cannot derive release line from kubeadm pin %q", p.Kubeadm)
	}
	return nil
}

// NetworkConfig carries the values consumed once at control-plane init.
type NetworkConfig struct {
	PodCIDR       string        `yaml:"podCIDR,omitempty"`
	AdvertiseMode AdvertiseMode `yaml:"advertiseMode,omitempty"`
	Interface     string        `yaml:"interface,omitempty"`
}

// Validate checks the advertise mode, naming the offending value so a typo
// surfaces before any cluster mutation.
func (n NetworkConfig) Validate() error {
	switch n.AdvertiseMode {
	case AdvertisePrivate, AdvertisePublic:
	default:
		return fmt.Errorf("unrecognized advertise mode %q: must be %q or %q",
			string(n.AdvertiseMode), AdvertisePrivate, AdvertisePublic)
	}
	if n.PodCIDR == "" {
		return fmt.Errorf("pod CIDR must not be empty")
	}
	if !ShellSafe(n.PodCIDR) {
		return fmt.Errorf("pod CIDR contains unsafe characters: %q", n.PodCIDR)
	}
	if n.Interface == "" {
		return fmt.Errorf("network interface must not be empty")
	}
	if !ShellSafe(n.Interface) {
		return fmt.Errorf("network interface contains unsafe characters: %q", n.Interface)
	}
	return nil
}

// AddressPool is the ordered list of IP ranges handed to the load
// balancer's layer-2 pool, e.g. "192.168.64.200-192.168.64.250".
type AddressPool []string

// IngressRule describes one route of the example ingress. Routing-conflict
// resolution between rules is owned by the ingress controller.
type IngressRule struct {
	Host       string `yaml:"host,omitempty"`
	PathPrefix string `yaml:"pathPrefix"`
	Service    string `yaml:"service"`
	Port       int    `yaml:"port"`
}

// Config is the immutable configuration handed to the procedures. Values
// are read once at procedure start and never mutated.
type Config struct {
	ApiVersion string `yaml:"apiVersion,omitempty"`
	Kind       string `yaml:"kind,omitempty"`

	Name     string `yaml:"name,omitempty"`
	Role     Role   `yaml:"role,omitempty"`
	NodeName string `yaml:"nodeName,omitempty"`

	Pins    VersionPins   `yaml:"versionPins,omitempty"`
	Network NetworkConfig `yaml:"network,omitempty"`

	AddressPool  AddressPool   `yaml:"addressPool,omitempty"`
	IngressRules []IngressRule `yaml:"ingressRules,omitempty"`

	// IgnorePreflightErrors is passed to kubeadm init. Swap is ignored by
	// default: node setup already disabled it, but the preflight check can
	// still fire transiently between swapoff and the first reboot.
	IgnorePreflightErrors []string `yaml:"ignorePreflightErrors,omitempty"`
}

// Default returns the configuration used when no file or flags override it.
func Default() *Config {
	return &Config{
		ApiVersion: ApiVersion,
		Kind:       KindCluster,
		Name:       "kubeboot",
		Role:       RoleControlPlane,
		NodeName:   "control-plane",
		Pins: VersionPins{
			Containerd: "1.7.27-1",
			Kubelet:    "1.33.1-1.1",
			Kubeadm:    "1.33.1-1.1",
			Kubectl:    "1.33.1-1.1",
		},
		Network: NetworkConfig{
			PodCIDR:       "10.244.0.0/16",
			AdvertiseMode: AdvertisePrivate,
			Interface:     "eth0",
		},
		AddressPool: AddressPool{"192.168.64.200-192.168.64.250"},
		IngressRules: []IngressRule{
			{
				Host:       "demo.local",
				PathPrefix: "/",
				Service:    "demo",
				Port:       80,
			},
		},
		IgnorePreflightErrors: []string{"Swap"},
	}
}

// Validate checks everything that would otherwise fail mid-procedure.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("cluster name must not be empty")
	}
	switch c.Role {
	case RoleControlPlane, RoleWorker:
	default:
		return fmt.Errorf("unrecognized role %q: must be %q or %q",
			string(c.Role), RoleControlPlane, RoleWorker)
	}
	if !ShellSafe(c.NodeName) {
		return fmt.Errorf("node name contains unsafe characters: %q", c.NodeName)
	}
	if err := c.Pins.Validate(); err != nil {
		return err
	}
	if err := c.Network.Validate(); err != nil {
		return err
	}
	if c.Role == RoleControlPlane {
		if c.NodeName == "" {
			return fmt.Errorf("node name must not be empty")
		}
		if len(c.AddressPool) == 0 {
			return fmt.Errorf("address pool must contain at least one range")
		}
		for _, r := range c.AddressPool {
			if strings.ContainsAny(r, shellUnsafe) {
				return fmt.Errorf("address pool range contains unsafe characters: %q", r)
			}
		}
	}
	return nil
}

// LoadFromFile reads a cluster configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if cfg.Kind != "" && cfg.Kind != KindCluster {
		return nil, fmt.Errorf("unexpected kind %q in %s, want %q", cfg.Kind, path, KindCluster)
	}
	return cfg, nil
}

// SaveToFile writes the configuration as YAML.
func (c *Config) SaveToFile(path string) error {
	c.ApiVersion = ApiVersion
	c.Kind = KindCluster
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}
