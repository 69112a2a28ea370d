// Command rtu is the RTU core process: it wires configuration, the
// persistent store, hardware binding, the sensor pipeline, the alarm
// engine and the fieldbus adapter, and exposes the operator subcommands
// run, config-check, discover and db-migrate (§6 "CLI surface").
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/watertreat/rtu/config"
)

// configFlagSet aliases the resolver's flag record; built per command so
// only flags the operator actually set participate in precedence.
type configFlagSet = config.Flags

// Exit codes per §6.
const (
	exitOK       = 0
	exitFailure  = 1
	exitConfig   = 2
	exitHardware = 3
	exitStore    = 4
)

// exitError carries the process exit code alongside the cause.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func failConfig(err error) error   { return &exitError{code: exitConfig, err: err} }
func failHardware(err error) error { return &exitError{code: exitHardware, err: err} }
func failStore(err error) error    { return &exitError{code: exitStore, err: err} }

// rootFlags are the persistent CLI knobs feeding the config resolver's
// precedence chain (§6: CLI flag > env > file > default).
type rootFlags struct {
	configPath string
	httpPort   int
	stationID  string
	configURL  string
}

var flags rootFlags

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rtu",
		Short:         "Water-treatment RTU core",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "/etc/rtu/rtu.ini", "INI configuration file")
	pf.IntVar(&flags.httpPort, "http-port", 0, "health/http port override")
	pf.StringVar(&flags.stationID, "station-id", "", "station name override")
	pf.StringVar(&flags.configURL, "config-url", "", "bootstrap URL replacing the INI file")

	root.AddCommand(newRunCmd(), newConfigCheckCmd(), newDiscoverCmd(), newDBMigrateCmd())
	return root
}

// configFlags converts the supplied CLI flags into the resolver's
// tri-state form (nil means "not supplied").
func (f *rootFlags) configFlags(cmd *cobra.Command) configFlagSet {
	var out configFlagSet
	if cmd.Flags().Changed("http-port") {
		out.HTTPPort = &f.httpPort
	}
	if cmd.Flags().Changed("station-id") {
		out.StationID = &f.stationID
	}
	if cmd.Flags().Changed("config-url") {
		out.ConfigURL = &f.configURL
	}
	return out
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "rtu:", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(exitFailure)
	}
}
