// Copyright 2026 LatticeQ Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cluster

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"

	"github.com/latticeq/latticeq/pkg/log"
)

// SSHConfig defines the SSH connection to the cluster login node.
type SSHConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	PrivateKeyPath string `mapstructure:"privateKeyPath"`
	DialTimeout    int    `mapstructure:"dialTimeout"` // seconds
}

// SetDefaults fills unset fields with defaults.
func (c *SSHConfig) SetDefaults() {
	if c.Port == 0 {
		c.Port = 22
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 15
	}
}

var submittedJobRe = regexp.MustCompile(`Submitted batch job (\d+)`)

// Permanent sbatch rejections. Anything else on a failed submit is treated
// as transient (scheduler hiccup, quota race).
var permanentSubmitMarkers = []string{
	"Batch script contains DOS line breaks",
	"Batch job submission failed: Invalid account",
	"Batch job submission failed: Access/permission denied",
	"Unable to open file",
	"No such file or directory",
}

// SSHScheduler drives a SLURM scheduler over SSH: sbatch to submit, squeue
// and sacct to poll, cat to read files.
type SSHScheduler struct {
	cfg SSHConfig

	mu     sync.Mutex
	client *ssh.Client
}

// NewSSHScheduler creates the adapter. The connection is established lazily
// on first use and re-established after network failures.
func NewSSHScheduler(cfg SSHConfig) *SSHScheduler {
	cfg.SetDefaults()
	return &SSHScheduler{cfg: cfg}
}

func (s *SSHScheduler) dial() (*ssh.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}

	key, err := os.ReadFile(s.cfg.PrivateKeyPath)
	if err != nil {
		return nil, errors.Wrap(err, "read ssh private key")
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, errors.Wrap(err, "parse ssh private key")
	}

	clientCfg := &ssh.ClientConfig{
		User:            s.cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // login nodes rotate; key pinning is deployment policy
		Timeout:         time.Duration(s.cfg.DialTimeout) * time.Second,
	}
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	client, err := ssh.Dial("tcp", addr, clientCfg)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	s.client = client
	return client, nil
}

func (s *SSHScheduler) dropClient() {
	s.mu.Lock()
	if s.client != nil {
		_ = s.client.Close()
		s.client = nil
	}
	s.mu.Unlock()
}

// run executes one remote command, honoring context cancellation.
func (s *SSHScheduler) run(ctx context.Context, cmd string, stdin string) (stdout, stderr string, err error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	client, err := s.dial()
	if err != nil {
		return "", "", err
	}
	session, err := client.NewSession()
	if err != nil {
		// A dead session usually means a dead connection.
		s.dropClient()
		return "", "", errors.Wrap(err, "open ssh session")
	}
	defer session.Close()

	var outBuf, errBuf bytes.Buffer
	session.Stdout = &outBuf
	session.Stderr = &errBuf
	if stdin != "" {
		session.Stdin = strings.NewReader(stdin)
	}

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return outBuf.String(), errBuf.String(), ctx.Err()
	case err := <-done:
		return outBuf.String(), errBuf.String(), err
	}
}

// Submit runs sbatch in the job directory.
func (s *SSHScheduler) Submit(ctx context.Context, dirPath, scriptName string) (string, error) {
	cmd := fmt.Sprintf("cd %s && sbatch %s", shellQuote(dirPath), shellQuote(scriptName))
	stdout, stderr, err := s.run(ctx, cmd, "")
	if err != nil {
		combined := stderr
		if combined == "" {
			combined = err.Error()
		}
		for _, marker := range permanentSubmitMarkers {
			if strings.Contains(combined, marker) {
				return "", &SubmissionError{Reason: strings.TrimSpace(combined)}
			}
		}
		return "", errors.Wrap(err, "sbatch")
	}
	m := submittedJobRe.FindStringSubmatch(stdout)
	if m == nil {
		return "", fmt.Errorf("unexpected sbatch output: %q", strings.TrimSpace(stdout))
	}
	log.Debugw("submitted batch job", "dir", dirPath, "remoteJobId", m[1])
	return m[1], nil
}

// PollStatus checks squeue first; once the job has left the queue it falls
// back to sacct for the terminal state.
func (s *SSHScheduler) PollStatus(ctx context.Context, remoteJobID string) (QueueStatus, error) {
	stdout, _, err := s.run(ctx, fmt.Sprintf("squeue -h -j %s -o %%T", shellQuote(remoteJobID)), "")
	if err == nil && strings.TrimSpace(stdout) != "" {
		return mapSlurmState(strings.TrimSpace(stdout)), nil
	}
	// squeue errors for unknown (finished) jobs on some SLURM versions, so a
	// failure here is not yet conclusive.
	stdout, _, err = s.run(ctx, fmt.Sprintf("sacct -n -X -j %s -o State", shellQuote(remoteJobID)), "")
	if err != nil {
		return StatusUnknown, errors.Wrap(err, "sacct")
	}
	state := strings.TrimSpace(stdout)
	if state == "" {
		return StatusUnknown, nil
	}
	return mapSlurmState(state), nil
}

// FetchText reads the tail of a file in the job directory. The returned
// text is bounded so classifier input stays small.
func (s *SSHScheduler) FetchText(ctx context.Context, dirPath, relFile string) (string, error) {
	path := remoteJoin(dirPath, relFile)
	exists, _, err := s.run(ctx, fmt.Sprintf("test -e %s && echo yes || echo no", shellQuote(path)), "")
	if err != nil {
		return "", errors.Wrap(err, "test remote file")
	}
	if strings.TrimSpace(exists) != "yes" {
		return "", ErrFileNotFound
	}
	stdout, _, err := s.run(ctx, fmt.Sprintf("tail -n 400 %s", shellQuote(path)), "")
	if err != nil {
		return "", errors.Wrap(err, "tail remote file")
	}
	return stdout, nil
}

// WriteText writes a file into the job directory via stdin.
func (s *SSHScheduler) WriteText(ctx context.Context, dirPath, relFile, content string) error {
	path := remoteJoin(dirPath, relFile)
	_, _, err := s.run(ctx, fmt.Sprintf("cat > %s", shellQuote(path)), content)
	return errors.Wrap(err, "write remote file")
}

func mapSlurmState(state string) QueueStatus {
	fields := strings.Fields(state)
	if len(fields) == 0 {
		return StatusUnknown
	}
	// sacct may append a reason suffix like "CANCELLED by 1234".
	state = strings.ToUpper(fields[0])
	switch state {
	case "PENDING", "CONFIGURING", "REQUEUED", "SUSPENDED":
		return StatusQueued
	case "RUNNING", "COMPLETING":
		return StatusRunning
	case "COMPLETED":
		return StatusCompleted
	case "FAILED", "CANCELLED", "CANCELLED+", "TIMEOUT", "OUT_OF_MEMORY", "NODE_FAIL", "PREEMPTED":
		return StatusFailed
	default:
		return StatusUnknown
	}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func remoteJoin(dir, rel string) string {
	return strings.TrimRight(dir, "/") + "/" + strings.TrimLeft(rel, "/")
}
