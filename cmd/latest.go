// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/rfdlink/internal/store"
	"github.com/Thermoquad/rfdlink/pkg/rfdlink"
)

var latestName string

var latestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Receive the most recent image from the payload",
	Long: `Request the most recent image and receive it chunk by chunk.

The payload sends a filename hint before the data. The image is saved in the
session directory under --name, the hint, or image_<timestamp>.png, in that
order. Location blocks embedded in the chunks are forwarded to the telemetry
sink as they arrive.

A transfer that runs out of retries is saved with whatever data arrived and
exits with status 1.`,
	Args: cobra.NoArgs,
	RunE: runLatest,
}

func init() {
	rootCmd.AddCommand(latestCmd)
	latestCmd.Flags().StringVarP(&latestName, "name", "n", "", "Save the image under this name")
}

func runLatest(cmd *cobra.Command, args []string) error {
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

	fmt.Printf("rfdlink - Request Latest Image\n")
	fmt.Printf("Connection: %s\n\n", rt.connInfo)

	xfer, err := d.RequestLatest(ctx)
	if xfer == nil {
		return err
	}
	name := rt.store.ResolveImageName(latestName, xfer.Hint, time.Now())
	return rt.saveImage(xfer.Result, name, err)
}

// saveImage reports a transfer and writes whatever data it carried. xferErr is
// the error returned alongside the transfer and takes precedence.
func (rt *runtime) saveImage(r *rfdlink.TransferResult, name string, xferErr error) error {
	if r == nil {
		return xferErr
	}
	status := reportTransfer(r)

	if len(r.Data) == 0 {
		fmt.Println("No image data received")
	} else {
		path, err := rt.store.SaveImage(name, r.Data)
		var se *store.SaveError
		switch {
		case path == "":
			return err
		case errors.As(err, &se):
			fmt.Printf("Could not save as %s, saved as %s\n", name, path)
			rt.logger.Warn("Image saved under fallback name", zap.String("path", path), zap.Error(err))
		case err != nil:
			fmt.Printf("Saved partial image: %s (%v)\n", path, err)
			rt.logger.Warn("Image data incomplete", zap.String("path", path), zap.Error(err))
		default:
			fmt.Printf("Saved: %s\n", path)
			rt.logger.Info("Image saved", zap.String("path", path), zap.Int("bytes", len(r.Data)))
		}
	}

	if xferErr != nil {
		return xferErr
	}
	return status
}
