package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/watertreat/rtu/hal"
)

func newDiscoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Probe the board, I2C buses and 1-Wire devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			board := hal.DetectBoard()
			fmt.Fprintf(out, "board: %s (confidence %d, via %s)\n", board.Type, board.Confidence, board.Source)
			if !board.Detected() {
				fmt.Fprintln(out, "board not confidently detected; pin-map is a guess")
			}

			// Discovery is informational only (§4.1): probe errors are
			// reported, not fatal, so a headless bench run still shows
			// what it can see.
			for _, busIdx := range board.Pins.I2CBuses {
				hits, err := hal.ProbeI2CBus(busIdx, strconv.Itoa(busIdx))
				if err != nil {
					fmt.Fprintf(out, "i2c-%d: %v\n", busIdx, err)
					continue
				}
				for _, h := range hits {
					name := "unknown device"
					if len(h.Table) > 0 {
						name = h.Table[0].DisplayName
					}
					fmt.Fprintf(out, "i2c-%d %#02x  %s (%s)\n", h.Bus, h.Address, name, h.Method)
				}
				if len(hits) == 0 {
					fmt.Fprintf(out, "i2c-%d: no devices\n", busIdx)
				}
			}

			devs, err := hal.Enumerate1Wire()
			if err != nil {
				return failHardware(err)
			}
			for _, d := range devs {
				if d.IsTemp && d.TempValid {
					fmt.Fprintf(out, "1wire %s  %s  %.3f C\n", d.ID, d.DeviceName, d.TempC)
				} else if d.IsTemp {
					fmt.Fprintf(out, "1wire %s  %s\n", d.ID, d.DeviceName)
				} else {
					fmt.Fprintf(out, "1wire %s  family %#02x\n", d.ID, d.Family)
				}
			}
			if len(devs) == 0 {
				fmt.Fprintln(out, "1wire: no devices")
			}
			return nil
		},
	}
}
