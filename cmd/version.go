package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zegnqin/seatunnel/sink"
)

// Version is set at build time via ldflags:
//
//	go build -ldflags "-X github.com/zegnqin/seatunnel/cmd.Version=v1.0.0"
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the icesink version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "icesink %s (%s sink)\n", Version, sink.PluginName)
	},
}
