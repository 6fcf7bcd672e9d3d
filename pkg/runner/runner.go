package runner

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/monshunter/kubeboot/pkg/log"
)

// Runner executes shell commands on a target host. Every host mutation the
// bootstrap procedures perform goes through this interface so that tests can
// substitute a fake and assert on the exact command stream.
type Runner interface {
	// Name returns a label for the host, used in logs and errors.
	Name() string

	// Run executes a command and returns its combined output. A non-zero
	// exit is returned as an error carrying the output.
	Run(command string) (string, error)

	// WriteFile places a file on the host. Privileged paths are written by
	// the procedures themselves via sudo tee; this is for unprivileged
	// staging paths such as /tmp.
	WriteFile(path string, data []byte, perm os.FileMode) error

	// Close releases any connection held by the runner.
	Close() error
}

// LocalRunner runs commands on the invoking machine.
type LocalRunner struct {
	hostname string
}

// NewLocalRunner creates a runner for the local host.
func NewLocalRunner() *LocalRunner {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	return &LocalRunner{hostname: hostname}
}

func (r *LocalRunner) Name() string {
	return r.hostname
}

// Run executes the command through bash with pipefail so that failures in
// piped stages (key fetch | gpg) abort the step.
func (r *LocalRunner) Run(command string) (string, error) {
	log.Debugf("run on %s: %s", r.hostname, command)
	cmd := exec.Command("bash", "-o", "pipefail", "-c", command)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("command failed on %s: %w, output: %s", r.hostname, err, string(output))
	}
	return string(output), nil
}

func (r *LocalRunner) WriteFile(path string, data []byte, perm os.FileMode) error {
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (r *LocalRunner) Close() error {
	return nil
}
