// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rawLogDuration time.Duration

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Dump raw bytes received from the radio link",
	Long: `Print every byte the modem delivers as hex and ASCII, without sending any
command.

Useful for checking that the link is up, finding the baud rate, or watching a
payload that is still streaming after an interrupted transfer. Silent read
windows are shown as gaps. Runs until Ctrl+C or --duration.`,
	Args: cobra.NoArgs,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().DurationVar(&rawLogDuration, "duration", 0, "Stop after this long (0 runs until interrupted)")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	d, err := rt.dispatcher()
	if err != nil {
		return err
	}
	link := d.Link()

	ctx, cancel := signalContext(cmd)
	defer cancel()

	fmt.Printf("rfdlink - Raw Link Log\n")
	fmt.Printf("Connection: %s\n", rt.connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	start := time.Now()
	var total int
	for ctx.Err() == nil {
		if rawLogDuration > 0 && time.Since(start) >= rawLogDuration {
			break
		}

		// Up to 16 bytes per line; an empty read is one silent window.
		data, err := link.Read(16)
		if err != nil {
			rt.logger.Error("Link read failed", zap.Error(err))
			return err
		}
		if len(data) == 0 {
			fmt.Printf("[%s] -- silent %v --\n", time.Now().Format("15:04:05.000"), link.Timeout())
			continue
		}
		total += len(data)
		fmt.Print(formatHexLine(time.Now(), data))
	}

	fmt.Printf("\n%d bytes received in %v\n", total, time.Since(start).Round(time.Second))
	return nil
}

// formatHexLine renders up to 16 bytes as a timestamped hex and ASCII line.
func formatHexLine(t time.Time, data []byte) string {
	var hex, ascii strings.Builder
	for i, b := range data {
		if i > 0 {
			hex.WriteByte(' ')
		}
		fmt.Fprintf(&hex, "%02X", b)
		if b >= 0x20 && b < 0x7F {
			ascii.WriteByte(b)
		} else {
			ascii.WriteByte('.')
		}
	}
	return fmt.Sprintf("[%s] %-47s  %s\n", t.Format("15:04:05.000"), hex.String(), ascii.String())
}
