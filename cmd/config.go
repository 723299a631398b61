package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/margooey/lapsusctl/internal/controller"
)

func NewConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the persisted settings",
		Long: `Show or change the persisted settings.

Changes to the binary path and the presentation icon take effect the next
time lapsusctl starts. Start at login is applied immediately.`,
	}

	configCmd.AddCommand(
		newConfigShowCommand(),
		newConfigSetPathCommand(),
		newConfigClearPathCommand(),
		newConfigToggleCommand("start-at-login", "Launch lapsusctl watch at login", func(c *controller.Controller, on bool) error {
			return c.SetStartAtLogin(on)
		}),
		newConfigToggleCommand("show-icon", "Show the presentation icon", func(c *controller.Controller, on bool) error {
			return c.SetShowIcon(on)
		}),
	)

	return configCmd
}

func newConfigShowCommand() *cobra.Command {
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := buildController(cmd)
			if err != nil {
				return err
			}
			defer ctrl.Shutdown(context.WithoutCancel(cmd.Context()), false)

			cfg := ctrl.Configuration()
			format, _ := cmd.Flags().GetString("format")
			switch format {
			case "json":
				jsonBytes, err := json.MarshalIndent(cfg, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(jsonBytes))
			case "text":
				customPath := cfg.CustomBinaryPath
				if customPath == "" {
					customPath = "(search default locations)"
				}
				table := tablewriter.NewWriter(cmd.OutOrStdout())
				table.Header("Setting", "Value")
				table.Append([]string{"Settings file", optionsFrom(cmd).SettingsPath})
				table.Append([]string{"Start at login", onOff(cfg.StartAtLogin)})
				table.Append([]string{"Show icon", onOff(cfg.ShowPresentationIcon)})
				table.Append([]string{"Binary path", customPath})
				table.Render()
			default:
				return fmt.Errorf("unknown format %q (want text or json)", format)
			}
			return nil
		},
	}
	showCmd.Flags().StringP("format", "F", "text", "Format to use (text/json)")

	return showCmd
}

func newConfigSetPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set-path <path>",
		Short: "Use a specific lapsus_rust binary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("cannot use %s: %w", path, err)
			}
			if info.IsDir() {
				return fmt.Errorf("cannot use %s: is a directory", path)
			}

			ctrl, err := buildController(cmd)
			if err != nil {
				return err
			}
			defer ctrl.Shutdown(context.WithoutCancel(cmd.Context()), false)

			if err := ctrl.SetCustomBinaryPath(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Binary path set to %s (applies on next launch)\n", path)
			return nil
		},
	}
}

func newConfigClearPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-path",
		Short: "Go back to searching the default locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := buildController(cmd)
			if err != nil {
				return err
			}
			defer ctrl.Shutdown(context.WithoutCancel(cmd.Context()), false)

			if err := ctrl.SetCustomBinaryPath(""); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Binary path cleared (applies on next launch)")
			return nil
		},
	}
}

func newConfigToggleCommand(name, short string, apply func(*controller.Controller, bool) error) *cobra.Command {
	return &cobra.Command{
		Use:       name + " on|off",
		Short:     short,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := buildController(cmd)
			if err != nil {
				return err
			}
			defer ctrl.Shutdown(context.WithoutCancel(cmd.Context()), false)

			on := args[0] == "on"
			if err := apply(ctrl, on); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", name, onOff(on))
			return nil
		},
	}
}
