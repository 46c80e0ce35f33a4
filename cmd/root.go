// Package cmd is the admin CLI: keypair generation, node config scaffolding,
// and starting the controller process, grounded in the teacher's own
// cmd/root.go cobra layout.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "linkctl",
	Short: "Peer link controller CLI",
	Long:  `linkctl runs and administers one node of a mesh overlay's peer link controller.`,
}

// Execute runs the root command; called once from main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{ID: "init", Title: "Initialize"})
	rootCmd.AddGroup(&cobra.Group{ID: "run", Title: "Run"})
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "node config path")
}
