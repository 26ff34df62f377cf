// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/rfdlink/pkg/rfdlink"
)

var pingCount int

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure round-trip latency to the payload",
	Long: `Put the payload in connection test mode and measure the round trip of
single-byte pings.

Each ping is resent until the payload echoes it or the ping timeout
(protocol.timeouts.ping) elapses. A missed ping ends the test; no partial
average is reported.

Exit codes:
  0 - All pings answered
  2 - Connection error or ping timeout`,
	Args: cobra.NoArgs,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingCount, "count", 0, "Number of pings to send (default protocol.ping_count)")
}

func runPing(cmd *cobra.Command, args []string) error {
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

	count := pingCount
	if count <= 0 {
		count = rt.cfg.Protocol.PingCount
	}

	fmt.Printf("rfdlink - Connection Test\n")
	fmt.Printf("Connection: %s\n", rt.connInfo)
	fmt.Printf("Timeout: %v per ping\n", rt.cfg.Timeouts().Ping)
	fmt.Printf("Count: %d pings\n\n", count)

	result, err := d.ConnectionTest(ctx, count)
	if err != nil {
		fmt.Printf("FAILED: %v\n", err)
		return err
	}

	fmt.Print(rfdlink.FormatPing(result))
	return nil
}
