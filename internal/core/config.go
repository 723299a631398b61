package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	BaseDirName      = ".config/lapsusctl"
	DatabaseFileName = "events.db"

	DefaultLabel      = "com.lapsus.rust"
	DefaultBinaryName = "lapsus_rust"
	ControllerLabel   = "com.lapsus.control"

	DefaultPollInterval = 2 * time.Second
	DefaultUITick       = 100 * time.Millisecond
)

// Options are the controller's own runtime settings, built from flags and LAPSUSCTL_* env vars.
// They are separate from the persisted Configuration document.
type Options struct {
	SettingsPath   string
	StateDir       string
	Verbose        int
	Label          string
	BinaryName     string
	PlistPath      string
	DevPath        string
	PollInterval   time.Duration
	CommandTimeout time.Duration
}

// DatabasePath returns the event history location
func (o *Options) DatabasePath() string {
	return filepath.Join(o.StateDir, DatabaseFileName)
}

var flagsToConfigKey = map[string]string{
	"settings":        "settings",
	"state-dir":       "state_dir",
	"verbose":         "verbose",
	"label":           "label",
	"binary-name":     "binary_name",
	"plist":           "plist",
	"dev-path":        "dev_path",
	"poll-interval":   "poll_interval",
	"command-timeout": "command_timeout",
}

// DefaultPlistPath returns ~/Library/LaunchAgents/<label>.plist
func DefaultPlistPath(home, label string) string {
	return filepath.Join(home, "Library", "LaunchAgents", label+".plist")
}

// AddPersistentFlags registers the global flags on the root command
func AddPersistentFlags(cmd *cobra.Command) {
	homeDir, _ := os.UserHomeDir()

	flags := cmd.PersistentFlags()
	flags.String("settings", DefaultSettingsPath(), "settings document path")
	flags.String("state-dir", filepath.Join(homeDir, BaseDirName), "directory for controller state (event history)")
	flags.CountP("verbose", "v", "more output, repeat for even more")
	flags.String("label", DefaultLabel, "launchd label of the supervised daemon")
	flags.String("binary-name", DefaultBinaryName, "executable name of the supervised daemon")
	flags.String("plist", "", "service descriptor path (default ~/Library/LaunchAgents/<label>.plist)")
	flags.String("dev-path", "", "override the fixed development binary location")
	flags.Duration("poll-interval", DefaultPollInterval, "liveness polling interval")
	flags.Duration("command-timeout", 0, "timeout for launchctl invocations (0 waits indefinitely)")
}

// InitializeConfig merges flags, LAPSUSCTL_* environment variables and defaults
func InitializeConfig(cmd *cobra.Command) (*Options, error) {
	v := viper.New()
	v.SetEnvPrefix("lapsusctl")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := flagsToConfigKey[f.Name]
		if !ok {
			return
		}
		if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
			bindErr = fmt.Errorf("failed to bind flag %s: %w", f.Name, err)
		}
	})
	if bindErr != nil {
		return nil, bindErr
	}

	opts := &Options{
		SettingsPath:   v.GetString("settings"),
		StateDir:       v.GetString("state_dir"),
		Verbose:        v.GetInt("verbose"),
		Label:          v.GetString("label"),
		BinaryName:     v.GetString("binary_name"),
		PlistPath:      v.GetString("plist"),
		DevPath:        v.GetString("dev_path"),
		PollInterval:   v.GetDuration("poll_interval"),
		CommandTimeout: v.GetDuration("command_timeout"),
	}

	if opts.PlistPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot find home directory: %w", err)
		}
		opts.PlistPath = DefaultPlistPath(homeDir, opts.Label)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Label == "" {
		return nil, fmt.Errorf("label must not be empty")
	}
	if opts.BinaryName == "" {
		return nil, fmt.Errorf("binary name must not be empty")
	}

	return opts, nil
}
