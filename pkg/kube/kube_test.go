package kube

import (
	"fmt"
	"strings"
	"testing"

	"github.com/monshunter/kubeboot/pkg/config"
)

// fakeRunner records every command and answers from a substring table.
type fakeRunner struct {
	commands  []string
	responses map[string]string
	failOn    string
}

func (f *fakeRunner) Run(command string) (string, error) {
	f.commands = append(f.commands, command)
	if f.failOn != "" && strings.Contains(command, f.failOn) {
		return "", fmt.Errorf("command failed: exit status 1")
	}
	for substr, output := range f.responses {
		if strings.Contains(command, substr) {
			return output, nil
		}
	}
	return "", nil
}

func (f *fakeRunner) find(substr string) string {
	for _, cmd := range f.commands {
		if strings.Contains(cmd, substr) {
			return cmd
		}
	}
	return ""
}

func testConfig(mode config.AdvertiseMode) *config.Config {
	cfg := config.Default()
	cfg.Name = "test"
	cfg.NodeName = "cp-1"
	cfg.Network.AdvertiseMode = mode
	return cfg
}

func TestInitControlPlanePrivateMode(t *testing.T) {
	runner := &fakeRunner{responses: map[string]string{"addr show": "10.0.0.5\n"}}
	manager := NewManager(runner, testConfig(config.AdvertisePrivate))

	if err := manager.InitControlPlane(); err != nil {
		t.Fatalf("InitControlPlane failed: %v", err)
	}

	initCmd := runner.find("kubeadm init")
	if initCmd == "" {
		t.Fatal("kubeadm init was not executed")
	}
	for _, want := range []string{
		"--apiserver-advertise-address=10.0.0.5",
		"--apiserver-cert-extra-sans=10.0.0.5",
		"--pod-network-cidr=10.244.0.0/16",
		"--node-name=cp-1",
		"--ignore-preflight-errors=Swap",
	} {
		if !strings.Contains(initCmd, want) {
			t.Errorf("init command %q missing %q", initCmd, want)
		}
	}
	if strings.Contains(initCmd, "--control-plane-endpoint") {
		t.Error("private mode must not set a control-plane endpoint")
	}
}

func TestInitControlPlanePublicMode(t *testing.T) {
	runner := &fakeRunner{}
	manager := NewManager(runner, testConfig(config.AdvertisePublic))
	manager.SetPublicIPLookup(func() (string, error) { return "203.0.113.9", nil })

	if err := manager.InitControlPlane(); err != nil {
		t.Fatalf("InitControlPlane failed: %v", err)
	}

	initCmd := runner.find("kubeadm init")
	if initCmd == "" {
		t.Fatal("kubeadm init was not executed")
	}
	for _, want := range []string{
		"--control-plane-endpoint=203.0.113.9",
		"--apiserver-cert-extra-sans=203.0.113.9",
	} {
		if !strings.Contains(initCmd, want) {
			t.Errorf("init command %q missing %q", initCmd, want)
		}
	}
	if strings.Contains(initCmd, "--apiserver-advertise-address") {
		t.Error("public mode must not set an advertise address")
	}
}

func TestInitControlPlaneUnrecognizedMode(t *testing.T) {
	runner := &fakeRunner{}
	manager := NewManager(runner, testConfig(config.AdvertiseMode("maybe")))

	err := manager.InitControlPlane()
	if err == nil {
		t.Fatal("expected error for advertise mode \"maybe\"")
	}
	if !strings.Contains(err.Error(), "maybe") {
		t.Errorf("error %q should name the offending value", err.Error())
	}
	if len(runner.commands) != 0 {
		t.Errorf("no command may run before the mode is validated, ran %v", runner.commands)
	}
}

func TestPullImages(t *testing.T) {
	runner := &fakeRunner{}
	manager := NewManager(runner, testConfig(config.AdvertisePrivate))

	if err := manager.PullImages(); err != nil {
		t.Fatalf("PullImages failed: %v", err)
	}
	cmd := runner.find("kubeadm config images pull")
	if cmd == "" {
		t.Fatal("images were not pulled")
	}
	if !strings.Contains(cmd, "--kubernetes-version v1.33.1") {
		t.Errorf("pull command %q missing the pinned kubernetes version", cmd)
	}
}

func TestInstallKubeconfig(t *testing.T) {
	runner := &fakeRunner{}
	manager := NewManager(runner, testConfig(config.AdvertisePrivate))

	if err := manager.InstallKubeconfig(); err != nil {
		t.Fatalf("InstallKubeconfig failed: %v", err)
	}
	cmd := runner.find("/etc/kubernetes/admin.conf")
	if cmd == "" {
		t.Fatal("admin.conf was not copied")
	}
	if !strings.Contains(cmd, "chown $(id -u):$(id -g)") {
		t.Errorf("kubeconfig ownership not fixed: %q", cmd)
	}
}

func TestJoinNode(t *testing.T) {
	runner := &fakeRunner{}
	if err := JoinNode(runner, "kubeadm join 10.0.0.5:6443 --token abc"); err != nil {
		t.Fatalf("JoinNode failed: %v", err)
	}
	if runner.find("sudo kubeadm join 10.0.0.5:6443") == "" {
		t.Error("join command must run under sudo")
	}
}
