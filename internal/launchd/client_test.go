package launchd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeRunner struct {
	calls  [][]string
	stdout string
	stderr string
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return []byte(f.stdout), []byte(f.stderr), f.err
}

func TestParsePID(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		wantPID int
		wantOK  bool
	}{
		{
			name: "dictionary form with pid",
			output: `{
	"LimitLoadToSessionType" = "Aqua";
	"Label" = "com.lapsus.rust";
	"OnDemand" = false;
	"LastExitStatus" = 0;
	"PID" = 4242;
	"Program" = "/usr/local/bin/lapsus_rust";
};`,
			wantPID: 4242,
			wantOK:  true,
		},
		{
			name: "dictionary form without pid",
			output: `{
	"Label" = "com.lapsus.rust";
	"LastExitStatus" = 256;
};`,
		},
		{
			name:    "tabular form running",
			output:  "PID\tStatus\tLabel\n812\t0\tcom.lapsus.rust\n",
			wantPID: 812,
			wantOK:  true,
		},
		{
			name:   "tabular form stopped",
			output: "-\t0\tcom.lapsus.rust\n",
		},
		{
			name:   "tabular form other label",
			output: "99\t0\tcom.apple.something\n",
		},
		{
			name: "empty output",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pid, ok := ParsePID([]byte(tt.output), "com.lapsus.rust")
			if pid != tt.wantPID || ok != tt.wantOK {
				t.Errorf("ParsePID() = (%d, %v), want (%d, %v)", pid, ok, tt.wantPID, tt.wantOK)
			}
		})
	}
}

func TestClientPID(t *testing.T) {
	runner := &fakeRunner{stdout: "{\n\t\"PID\" = 77;\n};\n"}
	c := &Client{Label: "com.lapsus.rust", Launchctl: "launchctl", Runner: runner}

	pid, ok, err := c.PID(context.Background())
	if err != nil {
		t.Fatalf("PID failed: %v", err)
	}
	if !ok || pid != 77 {
		t.Errorf("PID() = (%d, %v), want (77, true)", pid, ok)
	}

	want := "launchctl list com.lapsus.rust"
	if got := strings.Join(runner.calls[0], " "); got != want {
		t.Errorf("ran %q, want %q", got, want)
	}
}

func TestClientPID_UnknownService(t *testing.T) {
	runner := &fakeRunner{
		stderr: `Could not find service "com.lapsus.rust" in domain for port`,
		err:    errors.New("exit status 113"),
	}
	c := &Client{Label: "com.lapsus.rust", Runner: runner}

	_, ok, err := c.PID(context.Background())
	if err == nil {
		t.Fatal("expected error for unknown service")
	}
	if ok {
		t.Error("expected ok=false")
	}
}

func TestClientLoadUnload(t *testing.T) {
	runner := &fakeRunner{}
	c := &Client{Label: "com.lapsus.rust", PlistPath: "/tmp/com.lapsus.rust.plist", Launchctl: "/bin/launchctl", Runner: runner}

	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := c.Unload(context.Background()); err != nil {
		t.Fatalf("Unload failed: %v", err)
	}

	want := []string{
		"/bin/launchctl load /tmp/com.lapsus.rust.plist",
		"/bin/launchctl unload /tmp/com.lapsus.rust.plist",
	}
	for i, w := range want {
		if got := strings.Join(runner.calls[i], " "); got != w {
			t.Errorf("call %d = %q, want %q", i, got, w)
		}
	}
}

func TestClientLoad_FailureCarriesStderr(t *testing.T) {
	runner := &fakeRunner{
		stderr: "/tmp/com.lapsus.rust.plist: service already loaded\n",
		err:    errors.New("exit status 1"),
	}
	c := &Client{Label: "com.lapsus.rust", PlistPath: "/tmp/com.lapsus.rust.plist", Runner: runner}

	err := c.Load(context.Background())
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected CommandError, got %v", err)
	}
	if !IsAlreadyLoaded(err) {
		t.Errorf("IsAlreadyLoaded(%v) = false, want true", err)
	}
	if IsNotLoaded(err) {
		t.Errorf("IsNotLoaded(%v) = true, want false", err)
	}
}

func TestIdempotencyMatchers(t *testing.T) {
	tests := []struct {
		msg           string
		alreadyLoaded bool
		notLoaded     bool
	}{
		{msg: "Already loaded", alreadyLoaded: true},
		{msg: "/x.plist: service already loaded", alreadyLoaded: true},
		{msg: "Could not find specified service", notLoaded: true},
		{msg: "/x.plist: Operation now in progress; not loaded", notLoaded: true},
		{msg: "Input/output error"},
	}

	for _, tt := range tests {
		err := &CommandError{Args: []string{"load"}, Output: tt.msg, Err: errors.New("exit status 1")}
		if got := IsAlreadyLoaded(err); got != tt.alreadyLoaded {
			t.Errorf("IsAlreadyLoaded(%q) = %v", tt.msg, got)
		}
		if got := IsNotLoaded(err); got != tt.notLoaded {
			t.Errorf("IsNotLoaded(%q) = %v", tt.msg, got)
		}
	}

	if IsAlreadyLoaded(nil) || IsNotLoaded(nil) {
		t.Error("nil errors must not match")
	}
}

func TestDescriptorExists(t *testing.T) {
	plist := filepath.Join(t.TempDir(), "com.lapsus.rust.plist")
	c := New("com.lapsus.rust", plist)

	if c.DescriptorExists() {
		t.Error("expected descriptor to be absent")
	}
	if err := os.WriteFile(plist, []byte("<plist/>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !c.DescriptorExists() {
		t.Error("expected descriptor to be present")
	}
}
