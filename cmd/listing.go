// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/rfdlink/internal/store"
)

var listingName string

var listingCmd = &cobra.Command{
	Use:   "listing",
	Short: "Download the payload's image listing",
	Long: `Request the payload's image directory.

Raw lines are written to <name>.txt in the session directory as they arrive
(imagedata.txt by default) and the entries are printed. Full-resolution
entries are marked with '*'; fetching them requires --yes.`,
	Args: cobra.NoArgs,
	RunE: runListing,
}

func init() {
	rootCmd.AddCommand(listingCmd)
	listingCmd.Flags().StringVarP(&listingName, "name", "n", "", "Listing file name without extension")
}

func runListing(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	d, err := rt.dispatcher()
	if err != nil {
		return err
	}

	w, path, err := rt.store.CreateListing(listingName)
	if err != nil {
		return err
	}
	defer w.Close()

	ctx, cancel := signalContext(cmd)
	defer cancel()

	fmt.Printf("rfdlink - Image Listing\n")
	fmt.Printf("Connection: %s\n\n", rt.connInfo)

	entries, err := d.RequestListing(ctx, w)
	printListing(entries)
	if err != nil {
		return err
	}

	fmt.Printf("\n%d entries saved to %s\n", len(entries), path)
	rt.logger.Info("Listing saved", zap.String("path", path), zap.Int("entries", len(entries)))
	return nil
}

func printListing(entries []string) {
	if len(entries) == 0 {
		fmt.Println("  (no images)")
		return
	}
	for i, entry := range entries {
		mark := " "
		if store.IsHighResolution(entry) {
			mark = "*"
		}
		fmt.Printf("  %3d %s %s\n", i+1, mark, entry)
	}
}
