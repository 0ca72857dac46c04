// Command vaultlint lints and fixes note vaults.
package main

import (
	"os"

	"github.com/leapstack-labs/vaultlint/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
