package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var ifaceCmd = &cobra.Command{
	Use:     "iface",
	Short:   "Administer link interfaces on a running controller",
	GroupID: "run",
}

var ifaceNewCmd = &cobra.Command{
	Use:   "new <name> <off|accept|send>",
	Short: "Register a new link interface (spec.md §6 newIface)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runIPC(func(sock string) (string, error) {
			return ipcRequest(sock, fmt.Sprintf("iface-new %s %s", args[0], args[1]))
		})
	},
}

var ifaceBeaconCmd = &cobra.Command{
	Use:   "beacon <ifNum> <off|accept|send>",
	Short: "Change a link's beacon mode (spec.md §6 beaconState)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runIPC(func(sock string) (string, error) {
			return ipcRequest(sock, fmt.Sprintf("beacon %s %s", args[0], args[1]))
		})
	},
}

func init() {
	rootCmd.AddCommand(ifaceCmd)
	ifaceCmd.AddCommand(ifaceNewCmd, ifaceBeaconCmd)
}
