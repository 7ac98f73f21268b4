package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "roomspeak-mesh",
	Short: "RoomSpeak mesh is a peer-to-peer voice chat client.",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runApp(cmd.Context()); err != nil {
			os.Exit(1)
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
