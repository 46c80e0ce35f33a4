package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meshwire/linkctl/state"
)

var keyCmd = &cobra.Command{
	Use:     "key",
	Short:   "Generate a new long-term keypair",
	GroupID: "init",
	Run: func(cmd *cobra.Command, args []string) {
		key := state.GenerateKey()
		priv, err := key.MarshalText()
		if err != nil {
			panic(err)
		}
		pub, err := key.Pubkey().MarshalText()
		if err != nil {
			panic(err)
		}
		fmt.Printf("PrivateKey=%s\n", priv)
		fmt.Fprintf(os.Stderr, "PublicKey=%s\n", pub)
	},
}

func init() {
	rootCmd.AddCommand(keyCmd)
}
