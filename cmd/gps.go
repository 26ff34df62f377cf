// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/rfdlink/pkg/rfdlink"
)

var gpsInterval time.Duration

var gpsCmd = &cobra.Command{
	Use:   "gps",
	Short: "Request GPS fixes from the payload",
	Long: `Request a location fix and forward it to the telemetry sink.

With --interval the request repeats until interrupted (Ctrl+C). A missed fix
is reported and polling continues; in single-shot mode it exits with
status 2.`,
	Args: cobra.NoArgs,
	RunE: runGPS,
}

func init() {
	rootCmd.AddCommand(gpsCmd)
	gpsCmd.Flags().DurationVarP(&gpsInterval, "interval", "i", 0, "Poll interval (0 requests a single fix)")
}

func runGPS(cmd *cobra.Command, args []string) error {
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

	fmt.Printf("rfdlink - GPS\n")
	fmt.Printf("Connection: %s\n", rt.connInfo)
	if gpsInterval > 0 {
		fmt.Printf("Polling every %v, press Ctrl+C to stop\n", gpsInterval)
	}
	fmt.Println()

	if gpsInterval <= 0 {
		loc, err := d.RequestGPS(ctx)
		if err != nil {
			return err
		}
		fmt.Println(rfdlink.FormatLocation(*loc))
		return nil
	}

	ticker := time.NewTicker(gpsInterval)
	defer ticker.Stop()

	fixes, misses := 0, 0
	for {
		loc, err := d.RequestGPS(ctx)
		switch {
		case err == nil:
			fixes++
			fmt.Println(rfdlink.FormatLocation(*loc))
		case ctx.Err() != nil:
		case errors.Is(err, rfdlink.ErrConnection):
			misses++
			fmt.Printf("[%s] no fix: %v\n", time.Now().Format("15:04:05.000"), err)
		default:
			return err
		}

		select {
		case <-ctx.Done():
			fmt.Printf("\n--- GPS statistics ---\n")
			fmt.Printf("%d fixes, %d missed\n", fixes, misses)
			rt.logger.Info("GPS polling stopped", zap.Int("fixes", fixes), zap.Int("misses", misses))
			return nil
		case <-ticker.C:
		}
	}
}
