package runner

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/monshunter/kubeboot/pkg/log"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SSHRunner runs commands on a remote host over SSH. File writes go through
// sftp so rendered manifests can be staged without shell quoting concerns.
type SSHRunner struct {
	Host     string
	Port     string
	User     string
	Password string
	PrivKey  string

	client *ssh.Client
	sftp   *sftp.Client
}

// NewSSHRunner creates a runner for a remote host. PrivKey is the PEM
// content of a private key, not a path; either it or Password must be set.
func NewSSHRunner(host, port, user, password, privKey string) *SSHRunner {
	return &SSHRunner{
		Host:     host,
		Port:     port,
		User:     user,
		Password: password,
		PrivKey:  privKey,
	}
}

func (r *SSHRunner) Name() string {
	return r.Host
}

// Connect dials the host, retrying a few times because freshly provisioned
// machines often accept SSH a little after they answer pings.
func (r *SSHRunner) Connect() error {
	var auth []ssh.AuthMethod
	if r.Password != "" {
		auth = append(auth, ssh.Password(r.Password))
	}
	if r.PrivKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(r.PrivKey))
		if err != nil {
			return fmt.Errorf("failed to parse SSH private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}

	config := &ssh.ClientConfig{
		User:            r.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         15 * time.Second,
	}

	addr := net.JoinHostPort(r.Host, r.Port)
	var err error
	for attempt := 0; attempt < 5; attempt++ {
		var client *ssh.Client
		client, err = ssh.Dial("tcp", addr, config)
		if err != nil {
			log.Warningf("ssh connection to %s failed: %v, retrying...", addr, err)
			time.Sleep(3 * time.Second)
			continue
		}
		r.client = client
		sftpClient, sftpErr := sftp.NewClient(client)
		if sftpErr != nil {
			client.Close()
			r.client = nil
			return fmt.Errorf("failed to create sftp client for %s: %w", addr, sftpErr)
		}
		r.sftp = sftpClient
		log.Debugf("ssh connection to %s established", addr)
		return nil
	}
	return fmt.Errorf("ssh connection to %s failed: %w", addr, err)
}

func (r *SSHRunner) ensureConnected() error {
	if r.client == nil {
		return r.Connect()
	}
	return nil
}

// Run executes a command on the remote host and returns combined output.
func (r *SSHRunner) Run(command string) (string, error) {
	if err := r.ensureConnected(); err != nil {
		return "", err
	}

	session, err := r.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create SSH session on %s: %w", r.Host, err)
	}
	defer session.Close()

	log.Debugf("run on %s: %s", r.Host, command)
	output, err := session.CombinedOutput(command)
	if err != nil {
		return "", fmt.Errorf("command failed on %s: %w, output: %s", r.Host, err, string(output))
	}
	return string(output), nil
}

// WriteFile uploads data to a remote path via sftp.
func (r *SSHRunner) WriteFile(path string, data []byte, perm os.FileMode) error {
	if err := r.ensureConnected(); err != nil {
		return err
	}

	f, err := r.sftp.Create(path)
	if err != nil {
		return fmt.Errorf("sftp create %s on %s failed: %w", path, r.Host, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("sftp write %s on %s failed: %w", path, r.Host, err)
	}
	if err := f.Chmod(perm); err != nil {
		return fmt.Errorf("sftp chmod %s on %s failed: %w", path, r.Host, err)
	}
	return nil
}

// Close shuts down the sftp and SSH connections.
func (r *SSHRunner) Close() error {
	if r.sftp != nil {
		r.sftp.Close()
		r.sftp = nil
	}
	if r.client != nil {
		err := r.client.Close()
		r.client = nil
		return err
	}
	return nil
}
