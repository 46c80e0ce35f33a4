package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meshwire/linkctl/state"
)

var peerCmd = &cobra.Command{
	Use:     "peer",
	Short:   "Administer peers on a running controller",
	GroupID: "run",
}

var peerStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Snapshot every peer on every link (spec.md §6 getPeerStats)",
	Run: func(cmd *cobra.Command, args []string) {
		runIPC(func(sock string) (string, error) {
			return ipcRequest(sock, "stats")
		})
	},
}

var peerBootstrapCmd = &cobra.Command{
	Use:   "bootstrap <ifNum> <pubkey-b64> <lladdr> <password>",
	Short: "Bootstrap an outbound peer (spec.md §6 bootstrapPeer)",
	Args:  cobra.ExactArgs(4),
	Run: func(cmd *cobra.Command, args []string) {
		password := encodePassword([]byte(args[3]))
		runIPC(func(sock string) (string, error) {
			return ipcRequest(sock, fmt.Sprintf("bootstrap %s %s %s %s", args[0], args[1], args[2], password))
		})
	},
}

var peerDisconnectCmd = &cobra.Command{
	Use:   "disconnect <pubkey-b64>",
	Short: "Disconnect a peer by its public key (spec.md §6 disconnectPeer)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runIPC(func(sock string) (string, error) {
			return ipcRequest(sock, "disconnect "+args[0])
		})
	},
}

func init() {
	rootCmd.AddCommand(peerCmd)
	peerCmd.AddCommand(peerStatsCmd, peerBootstrapCmd, peerDisconnectCmd)
}

// runIPC resolves the admin socket from the node config, runs fn against
// it, and prints the result or error the way cmd/inspect.go prints
// core.IPCGet's response.
func runIPC(fn func(sock string) (string, error)) {
	cfg, err := state.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	result, err := fn(socketPath(cfg))
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	fmt.Print(result)
	if result == "" || result[len(result)-1] != '\n' {
		fmt.Println()
	}
}
