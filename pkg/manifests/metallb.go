package manifests

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ObjectMeta is the minimal metadata block the generated objects need.
type ObjectMeta struct {
	Name      string `yaml:"name"`
	Namespace string `yaml:"namespace,omitempty"`
}

// IPAddressPool mirrors metallb.io/v1beta1 IPAddressPool.
type IPAddressPool struct {
	ApiVersion string            `yaml:"apiVersion"`
	Kind       string            `yaml:"kind"`
	Metadata   ObjectMeta        `yaml:"metadata"`
	Spec       IPAddressPoolSpec `yaml:"spec"`
}

type IPAddressPoolSpec struct {
	Addresses []string `yaml:"addresses"`
}

// L2Advertisement mirrors metallb.io/v1beta1 L2Advertisement.
type L2Advertisement struct {
	ApiVersion string              `yaml:"apiVersion"`
	Kind       string              `yaml:"kind"`
	Metadata   ObjectMeta          `yaml:"metadata"`
	Spec       L2AdvertisementSpec `yaml:"spec"`
}

type L2AdvertisementSpec struct {
	IPAddressPools []string `yaml:"ipAddressPools"`
}

const metallbNamespace = "metallb-system"

// RenderMetalLBPool renders the layer-2 address-pool configuration: an
// IPAddressPool named poolName holding the given ranges, announced by an
// L2Advertisement referencing it.
func RenderMetalLBPool(poolName string, addresses []string) (string, error) {
	if len(addresses) == 0 {
		return "", fmt.Errorf("address pool %q has no address ranges", poolName)
	}

	pool := IPAddressPool{
		ApiVersion: "metallb.io/v1beta1",
		Kind:       "IPAddressPool",
		Metadata:   ObjectMeta{Name: poolName, Namespace: metallbNamespace},
		Spec:       IPAddressPoolSpec{Addresses: addresses},
	}
	adv := L2Advertisement{
		ApiVersion: "metallb.io/v1beta1",
		Kind:       "L2Advertisement",
		Metadata:   ObjectMeta{Name: poolName, Namespace: metallbNamespace},
		Spec:       L2AdvertisementSpec{IPAddressPools: []string{poolName}},
	}

	poolDoc, err := yaml.Marshal(pool)
	if err != nil {
		return "", fmt.Errorf("failed to marshal IPAddressPool: %w", err)
	}
	advDoc, err := yaml.Marshal(adv)
	if err != nil {
		return "", fmt.Errorf("failed to marshal L2Advertisement: %w", err)
	}

	var sb strings.Builder
	sb.Write(poolDoc)
	sb.WriteString("---\n")
	sb.Write(advDoc)
	return sb.String(), nil
}
