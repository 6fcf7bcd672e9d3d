package envar

import (
	"os"
	"path/filepath"
)

const (
	KUBEBOOT_HOME = "KUBEBOOT_HOME"
)

func UserHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	return home
}

func KubebootHome() string {
	home := os.Getenv(KUBEBOOT_HOME)
	if home == "" {
		return filepath.Join(UserHome(), ".kubeboot")
	}
	return home
}

func KubebootClustersDir() string {
	return filepath.Join(KubebootHome(), "clusters")
}

// PublicIPEndpoint returns the address-discovery service used in public
// advertise mode, overridable for air-gapped or mirrored environments.
func PublicIPEndpoint() string {
	endpoint := os.Getenv("KUBEBOOT_PUBLIC_IP_ENDPOINT")
	if endpoint == "" {
		return "https://checkip.amazonaws.com"
	}
	return endpoint
}

// K8sMirrorURL returns the kubernetes apt repository base, overridable
// to point at a regional mirror.
func K8sMirrorURL() string {
	mirror := os.Getenv("KUBEBOOT_K8S_MIRROR_URL")
	if mirror == "" {
		return "https://pkgs.k8s.io/core:/stable:"
	}
	return mirror
}

// DockerMirrorURL returns the docker apt repository base used for the
// containerd.io package.
func DockerMirrorURL() string {
	mirror := os.Getenv("KUBEBOOT_DOCKER_MIRROR_URL")
	if mirror == "" {
		return "https://download.docker.com/linux/ubuntu"
	}
	return mirror
}
