package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dcrodman/lodestone/internal/session"
)

var uuidCmd = &cobra.Command{
	Use:   "uuid <name>...",
	Short: "Prints the offline-mode UUID the server assigns to each player name",
	Args:  cobra.MinimumNArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		for _, name := range args {
			fmt.Printf("%s\t%s\n", name, session.OfflineUUID(name))
		}
	},
}
