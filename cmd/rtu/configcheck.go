package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/watertreat/rtu/config"
)

func newConfigCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config-check",
		Short: "Resolve and validate the configuration, printing each knob and its source",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := config.Resolve(cmd.Context(), flags.configPath, flags.configFlags(cmd))
			if err != nil {
				return failConfig(err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "station_id  %-20s (%s)\n", res.StationID, res.StationIDSource)
			fmt.Fprintf(out, "http_port   %-20d (%s)\n", res.HTTPPort, res.HTTPPortSource)
			fmt.Fprintf(out, "db_path     %s\n", res.DBPath)
			fmt.Fprintf(out, "log_level   %s\n", res.LogLevel)
			fmt.Fprintf(out, "vendor_id   %#04x\n", res.VendorID)
			fmt.Fprintf(out, "device_id   %#04x\n", res.DeviceID)
			return nil
		},
	}
}
