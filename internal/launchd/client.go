// Package launchd controls a per-user launchd service through launchctl.
package launchd

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Runner executes an external command and returns its captured output
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// CommandError is returned when launchctl exits unsuccessfully
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Output)
	if msg == "" {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("launchctl %s: %s", strings.Join(e.Args, " "), msg)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Client talks to launchd about a single labelled service
type Client struct {
	Label     string
	PlistPath string
	Launchctl string
	Runner    Runner
}

// New returns a Client using /bin/launchctl
func New(label, plistPath string) *Client {
	return &Client{
		Label:     label,
		PlistPath: plistPath,
		Launchctl: "launchctl",
		Runner:    ExecRunner{},
	}
}

// DescriptorExists reports whether the service plist is present right now
func (c *Client) DescriptorExists() bool {
	_, err := os.Stat(c.PlistPath)
	return err == nil
}

// PID asks launchd for the service's process ID.
// ok is false when the service is unknown or loaded without a running process.
func (c *Client) PID(ctx context.Context) (pid int, ok bool, err error) {
	stdout, stderr, err := c.run(ctx, "list", c.Label)
	if err != nil {
		return 0, false, &CommandError{Args: []string{"list", c.Label}, Output: string(stderr), Err: err}
	}

	pid, ok = ParsePID(stdout, c.Label)
	return pid, ok, nil
}

// Load runs `launchctl load <plist>`
func (c *Client) Load(ctx context.Context) error {
	return c.control(ctx, "load")
}

// Unload runs `launchctl unload <plist>`
func (c *Client) Unload(ctx context.Context) error {
	return c.control(ctx, "unload")
}

func (c *Client) control(ctx context.Context, verb string) error {
	_, stderr, err := c.run(ctx, verb, c.PlistPath)
	if err != nil {
		return &CommandError{Args: []string{verb, c.PlistPath}, Output: string(stderr), Err: err}
	}
	return nil
}

func (c *Client) run(ctx context.Context, args ...string) ([]byte, []byte, error) {
	runner := c.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	name := c.Launchctl
	if name == "" {
		name = "launchctl"
	}
	return runner.Run(ctx, name, args...)
}

// ParsePID extracts the process ID from `launchctl list` output.
// Both the dictionary form (`"PID" = 123;`) printed for a single label and the
// tabular form (`PID<TAB>Status<TAB>Label`) are understood; "-" means not running.
func ParsePID(output []byte, label string) (int, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, `"PID"`) {
			_, value, found := strings.Cut(line, "=")
			if !found {
				continue
			}
			value = strings.TrimSuffix(strings.TrimSpace(value), ";")
			if pid, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && pid > 0 {
				return pid, true
			}
			continue
		}

		fields := strings.Fields(line)
		if len(fields) == 3 && fields[2] == label {
			if pid, err := strconv.Atoi(fields[0]); err == nil && pid > 0 {
				return pid, true
			}
			return 0, false
		}
	}
	return 0, false
}

var (
	alreadyLoadedMessages = []string{"Already loaded", "service already loaded"}
	notLoadedMessages     = []string{"Could not find", "not loaded"}
)

// IsAlreadyLoaded reports whether a load failure means the service is already loaded
func IsAlreadyLoaded(err error) bool {
	return errorMentions(err, alreadyLoadedMessages)
}

// IsNotLoaded reports whether an unload failure means the service was not loaded
func IsNotLoaded(err error) bool {
	return errorMentions(err, notLoadedMessages)
}

func errorMentions(err error, needles []string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, n := range needles {
		if strings.Contains(msg, n) {
			return true
		}
	}
	return false
}
