package addons

import "os"

// Runner is the subset of runner.Runner the installers need: command
// execution plus staging rendered manifests on the target host.
type Runner interface {
	Run(command string) (string, error)
	WriteFile(path string, data []byte, perm os.FileMode) error
}

// Installer is one cluster add-on.
type Installer interface {
	Name() string
	Install() error
}
