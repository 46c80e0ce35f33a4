package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meshwire/linkctl/state"
)

var newCmd = &cobra.Command{
	Use:     "new [id]",
	Short:   "Create a node config with a fresh keypair and no links",
	GroupID: "init",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := args[0]
		if err := state.NameValidator(id); err != nil {
			fmt.Fprintf(os.Stderr, "invalid id %q: %v\n", id, err)
			os.Exit(1)
		}
		cfg := state.Config{
			Id:  id,
			Key: state.GenerateKey(),
		}
		out := cmd.Flag("output").Value.String()
		if err := state.SaveConfig(out, cfg); err != nil {
			panic(err)
		}
		fmt.Printf("wrote %s\n", out)
	},
}

func init() {
	rootCmd.AddCommand(newCmd)
	newCmd.Flags().StringP("output", "o", "config.yaml", "config output path")
}
