// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/rfdlink/pkg/rfdlink"
)

var timesyncCmd = &cobra.Command{
	Use:   "timesync",
	Short: "Compare the payload clock with the local clock",
	Long: `Read the payload clock and report its drift from the local clock, then run
a connection test.

The drift is informational; the payload clock is not changed.`,
	Args: cobra.NoArgs,
	RunE: runTimeSync,
}

func init() {
	rootCmd.AddCommand(timesyncCmd)
}

func runTimeSync(cmd *cobra.Command, args []string) error {
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

	fmt.Printf("rfdlink - Time Sync\n")
	fmt.Printf("Connection: %s\n\n", rt.connInfo)

	result, err := d.TimeSync(ctx)
	if result != nil && result.Remote != "" {
		fmt.Print(rfdlink.FormatTimeSync(result))
	}
	if err != nil {
		fmt.Printf("FAILED: %v\n", err)
		return err
	}

	fmt.Printf("\nConnection test:\n%s", rfdlink.FormatPing(result.Ping))
	return nil
}
