package environment

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

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		responses: map[string]string{
			"fuser":                "unlocked\n",
			"--print-architecture": "amd64\n",
			"VERSION_CODENAME":     "noble\n",
			"addr show":            "10.0.0.5\n",
		},
	}
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

func (f *fakeRunner) indexOf(substr string) int {
	for i, cmd := range f.commands {
		if strings.Contains(cmd, substr) {
			return i
		}
	}
	return -1
}

func (f *fakeRunner) contains(substr string) bool {
	return f.indexOf(substr) >= 0
}

func testOptions() InitOptions {
	return InitOptions{
		Pins: config.VersionPins{
			Containerd: "1.7.27-1",
			Kubelet:    "1.33.1-1.1",
			Kubeadm:    "1.33.1-1.1",
			Kubectl:    "1.33.1-1.1",
		},
		Interface:       "eth0",
		K8sMirrorURL:    "https://pkgs.k8s.io/core:/stable:",
		DockerMirrorURL: "https://download.docker.com/linux/ubuntu",
	}
}

func TestNewInitializerRejectsUnsafePins(t *testing.T) {
	options := testOptions()
	options.Pins.Kubeadm = "1.33.1-1.1; rm -rf /"
	if _, err := NewInitializer(newFakeRunner(), options); err == nil {
		t.Error("expected error for pin with shell metacharacters")
	}

	options = testOptions()
	options.Interface = ""
	if _, err := NewInitializer(newFakeRunner(), options); err == nil {
		t.Error("expected error for empty interface")
	}

	options = testOptions()
	options.Interface = "eth0; id"
	if _, err := NewInitializer(newFakeRunner(), options); err == nil {
		t.Error("expected error for interface with shell metacharacters")
	}
}

func TestInitializeCommandSequence(t *testing.T) {
	runner := newFakeRunner()
	initializer, err := NewInitializer(runner, testOptions())
	if err != nil {
		t.Fatalf("NewInitializer failed: %v", err)
	}

	if err := initializer.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	t.Run("swap disabled now and across reboots", func(t *testing.T) {
		swapoff := runner.indexOf("swapoff -a")
		fstab := runner.indexOf("/etc/fstab")
		if swapoff < 0 || fstab < 0 {
			t.Fatalf("swapoff=%d fstab=%d, both must run", swapoff, fstab)
		}
		if swapoff > fstab {
			t.Error("swapoff must run before the fstab edit")
		}
		if fstab > runner.indexOf("modules-load.d") {
			t.Error("swap handling must precede kernel module configuration")
		}
	})

	t.Run("kernel modules and sysctls", func(t *testing.T) {
		for _, want := range []string{
			"tee /etc/modules-load.d/k8s.conf",
			"modprobe overlay",
			"modprobe br_netfilter",
			"tee /etc/sysctl.d/k8s.conf",
			"sysctl --system",
		} {
			if !runner.contains(want) {
				t.Errorf("missing command containing %q", want)
			}
		}
	})

	t.Run("containerd pinned install", func(t *testing.T) {
		if !runner.contains("containerd.io=1.7.27-1") {
			t.Error("containerd must be installed at the pinned version")
		}
		source := runner.commands[runner.indexOf("tee /etc/apt/sources.list.d/docker.list")]
		want := "deb [arch=amd64 signed-by=/etc/apt/keyrings/docker.gpg] https://download.docker.com/linux/ubuntu noble stable"
		if !strings.Contains(source, want) {
			t.Errorf("docker source %q missing %q", source, want)
		}
		if !runner.contains("systemctl daemon-reload") {
			t.Error("service manager must be reloaded after containerd install")
		}
		if !runner.contains("systemctl enable --now containerd") {
			t.Error("containerd service must be enabled and started")
		}
	})

	t.Run("kube tools pinned, repo carries the release line", func(t *testing.T) {
		source := runner.commands[runner.indexOf("tee /etc/apt/sources.list.d/kubernetes.list")]
		if !strings.Contains(source, "https://pkgs.k8s.io/core:/stable:/v1.33/deb/ /") {
			t.Errorf("kubernetes source missing the pinned release line: %q", source)
		}
		if !runner.contains("kubelet=1.33.1-1.1 kubeadm=1.33.1-1.1 kubectl=1.33.1-1.1") {
			t.Error("kube tools must be installed at exact pinned versions")
		}
		if !runner.contains("apt-mark hold kubelet kubeadm kubectl") {
			t.Error("kube tools must be held against upgrades")
		}
	})

	t.Run("key imports are re-run safe", func(t *testing.T) {
		for _, cmd := range runner.commands {
			if strings.Contains(cmd, "gpg --") && strings.Contains(cmd, "dearmor") {
				if !strings.Contains(cmd, "--batch --yes") {
					t.Errorf("key import must overwrite existing keyrings: %q", cmd)
				}
			}
		}
	})

	t.Run("node IP written to kubelet extra args", func(t *testing.T) {
		extraArgs := runner.commands[runner.indexOf("tee /etc/default/kubelet")]
		if !strings.Contains(extraArgs, "KUBELET_EXTRA_ARGS=--node-ip=10.0.0.5") {
			t.Errorf("kubelet extra args missing node IP: %q", extraArgs)
		}
		if runner.indexOf("apt-get install -y jq") > runner.indexOf("addr show") {
			t.Error("jq must be installed before address detection uses it")
		}
	})
}

func TestInitializeIsRerunnable(t *testing.T) {
	runner := newFakeRunner()
	initializer, err := NewInitializer(runner, testOptions())
	if err != nil {
		t.Fatalf("NewInitializer failed: %v", err)
	}

	// provisioned hosts answer the same way; file writes overwrite
	if err := initializer.Initialize(); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if err := initializer.Initialize(); err != nil {
		t.Fatalf("re-run on a provisioned node failed: %v", err)
	}
}

func TestInitializeStopsAtFirstFailure(t *testing.T) {
	runner := newFakeRunner()
	runner.failOn = "apt-get update"
	initializer, err := NewInitializer(runner, testOptions())
	if err != nil {
		t.Fatalf("NewInitializer failed: %v", err)
	}

	if err := initializer.Initialize(); err == nil {
		t.Fatal("expected Initialize to fail")
	}
	if runner.contains("containerd.io=") {
		t.Error("install steps must not run after an earlier failure")
	}
}

func TestInterfaceIPv4(t *testing.T) {
	runner := newFakeRunner()
	ip, err := InterfaceIPv4(runner, "eth0")
	if err != nil {
		t.Fatalf("InterfaceIPv4 failed: %v", err)
	}
	if ip != "10.0.0.5" {
		t.Errorf("ip = %q, want 10.0.0.5", ip)
	}

	runner.responses["addr show"] = "null\n"
	if _, err := InterfaceIPv4(runner, "eth0"); err == nil {
		t.Error("expected error for interface without IPv4 address")
	}

	runner.responses["addr show"] = "jq: error: syntax error\n"
	if _, err := InterfaceIPv4(runner, "eth0"); err == nil {
		t.Error("expected error for output that is not an address")
	}

	runner.responses["addr show"] = "fe80::1\n"
	if _, err := InterfaceIPv4(runner, "eth0"); err == nil {
		t.Error("expected error for an IPv6-only interface")
	}
}
