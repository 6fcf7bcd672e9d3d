package manifests

import (
	"strings"
	"testing"

	"github.com/monshunter/kubeboot/pkg/config"
	"gopkg.in/yaml.v3"
)

func TestRenderMetalLBPool(t *testing.T) {
	out, err := RenderMetalLBPool("default", []string{
		"192.168.64.200-192.168.64.250",
		"192.168.65.10-192.168.65.20",
	})
	if err != nil {
		t.Fatalf("RenderMetalLBPool failed: %v", err)
	}

	docs := strings.Split(out, "---\n")
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}

	var pool IPAddressPool
	if err := yaml.Unmarshal([]byte(docs[0]), &pool); err != nil {
		t.Fatalf("IPAddressPool document is not valid YAML: %v", err)
	}
	if pool.Kind != "IPAddressPool" || pool.Metadata.Name != "default" {
		t.Errorf("unexpected pool object: %+v", pool)
	}
	if pool.Metadata.Namespace != "metallb-system" {
		t.Errorf("pool namespace = %q, want metallb-system", pool.Metadata.Namespace)
	}
	if len(pool.Spec.Addresses) != 2 || pool.Spec.Addresses[0] != "192.168.64.200-192.168.64.250" {
		t.Errorf("pool addresses = %v", pool.Spec.Addresses)
	}

	var adv L2Advertisement
	if err := yaml.Unmarshal([]byte(docs[1]), &adv); err != nil {
		t.Fatalf("L2Advertisement document is not valid YAML: %v", err)
	}
	if adv.Kind != "L2Advertisement" {
		t.Errorf("second document kind = %q", adv.Kind)
	}
	if len(adv.Spec.IPAddressPools) != 1 || adv.Spec.IPAddressPools[0] != "default" {
		t.Errorf("advertisement must reference the pool, got %v", adv.Spec.IPAddressPools)
	}
}

func TestRenderMetalLBPoolRejectsEmpty(t *testing.T) {
	if _, err := RenderMetalLBPool("default", nil); err == nil {
		t.Error("expected error for empty address list")
	}
}

func TestRenderExampleIngress(t *testing.T) {
	out, err := RenderExampleIngress("example-ingress", []config.IngressRule{
		{Host: "demo.local", PathPrefix: "/", Service: "demo", Port: 80},
		{PathPrefix: "/api", Service: "api", Port: 8080},
	})
	if err != nil {
		t.Fatalf("RenderExampleIngress failed: %v", err)
	}

	var ing Ingress
	if err := yaml.Unmarshal([]byte(out), &ing); err != nil {
		t.Fatalf("ingress is not valid YAML: %v", err)
	}
	if ing.Kind != "Ingress" || ing.ApiVersion != "networking.k8s.io/v1" {
		t.Errorf("unexpected object: kind=%q apiVersion=%q", ing.Kind, ing.ApiVersion)
	}
	if ing.Spec.IngressClassName != "nginx" {
		t.Errorf("ingressClassName = %q, want nginx", ing.Spec.IngressClassName)
	}
	if len(ing.Spec.Rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(ing.Spec.Rules))
	}
	if ing.Spec.Rules[0].Host != "demo.local" {
		t.Errorf("first rule host = %q", ing.Spec.Rules[0].Host)
	}
	if ing.Spec.Rules[1].Host != "" {
		t.Errorf("second rule should have no host match, got %q", ing.Spec.Rules[1].Host)
	}
	path := ing.Spec.Rules[1].HTTP.Paths[0]
	if path.Path != "/api" || path.PathType != "Prefix" {
		t.Errorf("unexpected path: %+v", path)
	}
	if path.Backend.Service.Name != "api" || path.Backend.Service.Port.Number != 8080 {
		t.Errorf("unexpected backend: %+v", path.Backend)
	}
}

func TestRenderExampleIngressRejectsIncompleteRule(t *testing.T) {
	_, err := RenderExampleIngress("example-ingress", []config.IngressRule{
		{PathPrefix: "/", Service: "", Port: 80},
	})
	if err == nil {
		t.Error("expected error for rule without a backend service")
	}
}

func TestKubeletExtraArgs(t *testing.T) {
	out, err := KubeletExtraArgs("10.0.0.5")
	if err != nil {
		t.Fatalf("KubeletExtraArgs failed: %v", err)
	}
	if out != "KUBELET_EXTRA_ARGS=--node-ip=10.0.0.5\n" {
		t.Errorf("unexpected content: %q", out)
	}
}

func TestDockerAptSource(t *testing.T) {
	out, err := DockerAptSource("amd64", "/etc/apt/keyrings/docker.gpg",
		"https://download.docker.com/linux/ubuntu", "noble")
	if err != nil {
		t.Fatalf("DockerAptSource failed: %v", err)
	}
	want := "deb [arch=amd64 signed-by=/etc/apt/keyrings/docker.gpg] https://download.docker.com/linux/ubuntu noble stable\n"
	if out != want {
		t.Errorf("source = %q, want %q", out, want)
	}
}

func TestKubernetesAptSource(t *testing.T) {
	out, err := KubernetesAptSource("/etc/apt/keyrings/kubernetes-apt-keyring.gpg",
		"https://pkgs.k8s.io/core:/stable:", "v1.33")
	if err != nil {
		t.Fatalf("KubernetesAptSource failed: %v", err)
	}
	want := "deb [signed-by=/etc/apt/keyrings/kubernetes-apt-keyring.gpg] https://pkgs.k8s.io/core:/stable:/v1.33/deb/ /\n"
	if out != want {
		t.Errorf("source = %q, want %q", out, want)
	}
	if !strings.Contains(out, "/v1.33/deb/") {
		t.Errorf("release line not substituted into %q", out)
	}
}
