// Command inferex runs a single role-specialized marketplace node: client,
// provider, miner, or the well-known bootstrap node. See SPEC_FULL.md §6 for
// the CLI surface this binary implements.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{Use: "inferex", Short: "peer-to-peer LLM inference marketplace node"}
	root.AddCommand(clientCmd, providerCmd, minerCmd, bootCmd, keygenCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
