// Package autolaunch registers the controller itself to run at login.
package autolaunch

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/google/renameio/v2"
)

// Registrar turns launch-at-login on and off
type Registrar interface {
	Enable() error
	Disable() error
	IsEnabled() bool
}

// LaunchAgent registers the controller through a per-user launchd agent
type LaunchAgent struct {
	Label string
	// Path is the plist location, normally ~/Library/LaunchAgents/<Label>.plist
	Path string
	// Program and Args make up ProgramArguments
	Program string
	Args    []string
}

// NewLaunchAgent builds a LaunchAgent that runs the current executable with args
func NewLaunchAgent(home, label string, args ...string) (*LaunchAgent, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to determine executable path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}

	return &LaunchAgent{
		Label:   label,
		Path:    filepath.Join(home, "Library", "LaunchAgents", label+".plist"),
		Program: exe,
		Args:    args,
	}, nil
}

var plistTemplate = template.Must(template.New("agent").Funcs(template.FuncMap{
	"xml": escapeXML,
}).Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{xml .Label}}</string>

    <key>ProgramArguments</key>
    <array>
        <string>{{xml .Program}}</string>
{{- range .Args}}
        <string>{{xml .}}</string>
{{- end}}
    </array>

    <key>RunAtLoad</key>
    <true/>

    <key>ProcessType</key>
    <string>Interactive</string>
</dict>
</plist>
`))

func escapeXML(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// Render returns the plist document for this agent
func (a *LaunchAgent) Render() ([]byte, error) {
	var buf bytes.Buffer
	if err := plistTemplate.Execute(&buf, a); err != nil {
		return nil, fmt.Errorf("failed to render launch agent: %w", err)
	}
	return buf.Bytes(), nil
}

// Enable writes the agent plist. Rewriting an existing one is fine.
func (a *LaunchAgent) Enable() error {
	if a.Program == "" {
		return errors.New("launch agent has no program")
	}

	data, err := a.Render()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(a.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(a.Path), err)
	}
	if err := renameio.WriteFile(a.Path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write launch agent %s: %w", a.Path, err)
	}
	return nil
}

// Disable removes the agent plist. A missing file is not an error.
func (a *LaunchAgent) Disable() error {
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove launch agent %s: %w", a.Path, err)
	}
	return nil
}

// IsEnabled reports whether the agent plist is present
func (a *LaunchAgent) IsEnabled() bool {
	_, err := os.Stat(a.Path)
	return err == nil
}
