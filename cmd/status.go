package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/margooey/lapsusctl/internal/controller"
	"github.com/margooey/lapsusctl/internal/db"
)

// statusReport is what `status` prints
type statusReport struct {
	Running           bool       `json:"running"`
	Since             *time.Time `json:"since,omitempty"`
	Backend           string     `json:"backend"`
	Binary            string     `json:"binary,omitempty"`
	BinaryError       string     `json:"binary_error,omitempty"`
	Descriptor        string     `json:"descriptor"`
	DescriptorPresent bool       `json:"descriptor_present"`
	StartAtLogin      bool       `json:"start_at_login"`
	ShowIcon          bool       `json:"show_dock_icon"`
	CustomBinaryPath  string     `json:"custom_binary_path,omitempty"`
}

type lastChangeReader interface {
	LastLivenessChange() (*db.LivenessChange, error)
}

func collectStatus(ctx context.Context, ctrl *controller.Controller, descriptor string) statusReport {
	st := ctrl.Status(ctx)
	cfg := ctrl.Configuration()

	report := statusReport{
		Running:           st.Running,
		Backend:           st.Backend,
		Binary:            st.Binary,
		Descriptor:        descriptor,
		DescriptorPresent: fileExists(descriptor),
		StartAtLogin:      cfg.StartAtLogin,
		ShowIcon:          cfg.ShowPresentationIcon,
		CustomBinaryPath:  cfg.CustomBinaryPath,
	}
	if err := ctrl.ResolveError(); err != nil {
		report.BinaryError = err.Error()
	}

	if reader, ok := ctrl.Events().(lastChangeReader); ok {
		if last, err := reader.LastLivenessChange(); err == nil && last != nil && last.Running == st.Running {
			since := last.Timestamp
			report.Since = &since
		}
	}

	return report
}

func formatStatus(r statusReport, now time.Time) string {
	var b strings.Builder

	state := "stopped"
	if r.Running {
		state = "running"
	}
	if r.Since != nil {
		fmt.Fprintf(&b, "lapsus_rust: %s (since %s)\n", state, humanize.RelTime(*r.Since, now, "ago", "from now"))
	} else {
		fmt.Fprintf(&b, "lapsus_rust: %s\n", state)
	}

	fmt.Fprintf(&b, "  Backend:        %s\n", r.Backend)
	switch {
	case r.Binary != "":
		fmt.Fprintf(&b, "  Binary:         %s\n", r.Binary)
	case r.BinaryError != "":
		fmt.Fprintf(&b, "  Binary:         not found (%s)\n", r.BinaryError)
	default:
		fmt.Fprintf(&b, "  Binary:         not found\n")
	}
	if r.CustomBinaryPath != "" && r.CustomBinaryPath != r.Binary {
		fmt.Fprintf(&b, "  Custom path:    %s (applies after restart)\n", r.CustomBinaryPath)
	}

	descriptor := "absent"
	if r.DescriptorPresent {
		descriptor = "present"
	}
	fmt.Fprintf(&b, "  Descriptor:     %s (%s)\n", r.Descriptor, descriptor)
	fmt.Fprintf(&b, "  Start at login: %s\n", onOff(r.StartAtLogin))
	fmt.Fprintf(&b, "  Show icon:      %s\n", onOff(r.ShowIcon))

	return b.String()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func NewStatusCommand() *cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether lapsus_rust is running and how it is controlled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			if format != "text" && format != "json" {
				return fmt.Errorf("unknown format %q (want text or json)", format)
			}

			ctrl, err := buildController(cmd)
			if err != nil {
				return err
			}
			defer ctrl.Shutdown(context.WithoutCancel(cmd.Context()), false)

			report := collectStatus(cmd.Context(), ctrl, optionsFrom(cmd).PlistPath)

			switch format {
			case "json":
				jsonBytes, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(jsonBytes))
			default:
				fmt.Fprint(cmd.OutOrStdout(), formatStatus(report, time.Now()))
			}
			return nil
		},
	}
	statusCmd.Flags().StringP("format", "F", "text", "Format to use (text/json)")

	return statusCmd
}
