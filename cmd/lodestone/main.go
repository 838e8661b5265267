package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var ConfigFlag string

func main() {
	rootCmd := &cobra.Command{
		Use:   "lodestone",
		Short: "Lodestone Minecraft server front-end and related tools",
		RunE:  ServerCommand,
	}
	rootCmd.PersistentFlags().StringVarP(&ConfigFlag, "config", "c", "./", "Path to the directory containing the server config file")

	statusCmd.Flags().DurationVarP(&TimeoutFlag, "timeout", "t", defaultStatusTimeout, "How long to wait for the server to respond")
	statusCmd.Flags().Int32VarP(&ProtocolFlag, "protocol", "p", defaultProtocolVersion, "Protocol version to advertise in the handshake")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(uuidCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
