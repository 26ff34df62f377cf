// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/Thermoquad/rfdlink/pkg/rfdlink"
)

var (
	settingsFile   string
	settingsVerify bool
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Read or change the payload camera settings",
	Long: `Read or change the payload camera settings.

A settings record is seven decimal integers, one per line, in this order:
width, height, sharpness, brightness, contrast, saturation, iso. The last
record read or sent is kept in camerasettings.txt in the session root.`,
}

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Download the camera settings from the payload",
	Args:  cobra.NoArgs,
	RunE:  runSettingsGet,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Upload camera settings to the payload",
	Long: `Upload camera settings to the payload.

The record starts from --file, else the saved settings file, else the camera
defaults. Individual fields are then overridden by flags, e.g.
  rfdlink settings set --iso 400 --brightness 55

Every field is range checked before anything is sent. With --verify the
settings are read back afterwards and compared.`,
	Args: cobra.NoArgs,
	RunE: runSettingsSet,
}

var settingsDefaultsCmd = &cobra.Command{
	Use:   "defaults",
	Short: "Print the camera default settings",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(rfdlink.FormatSettings(rfdlink.DefaultSettings()))
	},
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsGetCmd, settingsSetCmd, settingsDefaultsCmd)

	settingsSetCmd.Flags().StringVarP(&settingsFile, "file", "f", "", "Read the settings record from this file")
	settingsSetCmd.Flags().BoolVar(&settingsVerify, "verify", false, "Read the settings back after sending")
	for _, f := range rfdlink.DefaultSettings().Fields() {
		settingsSetCmd.Flags().Int(f.Name, f.Value, fmt.Sprintf("Set %s [%d, %d]", f.Name, f.Min, f.Max))
	}
}

func runSettingsGet(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	d, err := rt.dispatcher()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	dl, err := d.GetSettings(ctx)
	if err != nil {
		if dl != nil {
			fmt.Printf("Received invalid settings record: %q\n", dl.Raw)
		}
		return err
	}

	fmt.Printf("Camera settings:\n%s", rfdlink.FormatSettings(dl.Settings))
	if err := rt.store.SaveSettings(dl.Settings); err != nil {
		return err
	}
	fmt.Printf("\nSaved to %s\n", rt.store.SettingsPath())
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	s, source, err := rt.baseSettings()
	if err != nil {
		return err
	}
	if err := applySettingsFlags(cmd.Flags(), &s); err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return err
	}
	rt.logger.Debug("Settings prepared", zap.String("source", source), zap.Object("settings", s))

	d, err := rt.dispatcher()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	fmt.Printf("Sending camera settings:\n%s", rfdlink.FormatSettings(s))
	if err := d.SetSettings(ctx, s); err != nil {
		return err
	}
	if err := rt.store.SaveSettings(s); err != nil {
		return err
	}
	fmt.Printf("\nSettings applied and saved to %s\n", rt.store.SettingsPath())

	if !settingsVerify {
		return nil
	}
	dl, err := d.GetSettings(ctx)
	if err != nil {
		return err
	}
	if dl.Settings != s {
		fmt.Printf("Payload reports:\n%s", rfdlink.FormatSettings(dl.Settings))
		return rfdlink.ErrSettingsMismatch
	}
	fmt.Println("Verified")
	return nil
}

// baseSettings returns the record set overrides apply to and where it came from.
func (rt *runtime) baseSettings() (rfdlink.Settings, string, error) {
	if settingsFile != "" {
		text, err := afero.ReadFile(afero.NewOsFs(), settingsFile)
		if err != nil {
			return rfdlink.Settings{}, "", fmt.Errorf("failed to read settings file: %w", err)
		}
		s, err := rfdlink.ParseSettings(text)
		return s, settingsFile, err
	}
	if s, err := rt.store.LoadSettings(); err == nil {
		return s, rt.store.SettingsPath(), nil
	}
	return rfdlink.DefaultSettings(), "defaults", nil
}

// applySettingsFlags copies every changed field flag into s.
func applySettingsFlags(flags *pflag.FlagSet, s *rfdlink.Settings) error {
	for _, f := range s.Fields() {
		if !flags.Changed(f.Name) {
			continue
		}
		v, err := flags.GetInt(f.Name)
		if err != nil {
			return err
		}
		if err := s.Set(f.Name, v); err != nil {
			return err
		}
	}
	return nil
}
