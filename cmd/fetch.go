// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/rfdlink/internal/store"
)

var (
	fetchAs  string
	fetchYes bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <image>",
	Short: "Receive a specific image by name",
	Long: `Request one image by the name shown in the listing and receive it.

Names longer than the payload's filename field are cut to fit. Listing entries
whose 11th character is not 'b' are full-resolution images; these take much
longer over the radio and require --yes.`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringVarP(&fetchAs, "name", "n", "", "Save the image under this name")
	fetchCmd.Flags().BoolVarP(&fetchYes, "yes", "y", false, "Confirm a high-resolution request")
}

func runFetch(cmd *cobra.Command, args []string) error {
	image := args[0]
	if store.IsHighResolution(image) && !fetchYes {
		return fmt.Errorf("%s is a high-resolution image; rerun with --yes to request it", image)
	}

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

	fmt.Printf("rfdlink - Request Image %s\n", image)
	fmt.Printf("Connection: %s\n\n", rt.connInfo)

	xfer, err := d.RequestSpecific(ctx, image)
	if xfer == nil {
		return err
	}
	name := rt.store.ResolveImageName(fetchAs, xfer.Name, time.Now())
	return rt.saveImage(xfer.Result, name, err)
}
