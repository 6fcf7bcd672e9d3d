package manifests

import (
	"fmt"

	"github.com/monshunter/kubeboot/pkg/config"
	"gopkg.in/yaml.v3"
)

// Ingress mirrors networking.k8s.io/v1 Ingress, reduced to the fields the
// example resource uses.
type Ingress struct {
	ApiVersion string      `yaml:"apiVersion"`
	Kind       string      `yaml:"kind"`
	Metadata   ObjectMeta  `yaml:"metadata"`
	Spec       IngressSpec `yaml:"spec"`
}

type IngressSpec struct {
	IngressClassName string        `yaml:"ingressClassName,omitempty"`
	Rules            []IngressRule `yaml:"rules"`
}

type IngressRule struct {
	Host string          `yaml:"host,omitempty"`
	HTTP IngressRuleHTTP `yaml:"http"`
}

type IngressRuleHTTP struct {
	Paths []HTTPIngressPath `yaml:"paths"`
}

type HTTPIngressPath struct {
	Path     string         `yaml:"path"`
	PathType string         `yaml:"pathType"`
	Backend  IngressBackend `yaml:"backend"`
}

type IngressBackend struct {
	Service IngressServiceBackend `yaml:"service"`
}

type IngressServiceBackend struct {
	Name string             `yaml:"name"`
	Port ServiceBackendPort `yaml:"port"`
}

type ServiceBackendPort struct {
	Number int `yaml:"number"`
}

// RenderExampleIngress renders the smoke-test ingress routing each rule's
// host and path prefix to its backend service. Rules without a host match
// any host; conflicts between rules are left to the ingress controller.
func RenderExampleIngress(name string, rules []config.IngressRule) (string, error) {
	if len(rules) == 0 {
		return "", fmt.Errorf("example ingress %q has no rules", name)
	}

	ing := Ingress{
		ApiVersion: "networking.k8s.io/v1",
		Kind:       "Ingress",
		Metadata:   ObjectMeta{Name: name},
		Spec:       IngressSpec{IngressClassName: "nginx"},
	}
	for _, r := range rules {
		if r.PathPrefix == "" || r.Service == "" || r.Port == 0 {
			return "", fmt.Errorf("incomplete ingress rule: path %q, service %q, port %d",
				r.PathPrefix, r.Service, r.Port)
		}
		ing.Spec.Rules = append(ing.Spec.Rules, IngressRule{
			Host: r.Host,
			HTTP: IngressRuleHTTP{
				Paths: []HTTPIngressPath{
					{
						Path:     r.PathPrefix,
						PathType: "Prefix",
						Backend: IngressBackend{
							Service: IngressServiceBackend{
								Name: r.Service,
								Port: ServiceBackendPort{Number: r.Port},
							},
						},
					},
				},
			},
		})
	}

	data, err := yaml.Marshal(ing)
	if err != nil {
		return "", fmt.Errorf("failed to marshal example ingress: %w", err)
	}
	return string(data), nil
}
