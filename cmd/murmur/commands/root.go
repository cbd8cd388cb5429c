package commands

import (
	"github.com/mosaicnetworks/murmur/src/config"
	"github.com/spf13/cobra"
)

var (
	_config = config.NewDefaultConfig()
)

//RootCmd is the root command for murmur
var RootCmd = &cobra.Command{
	Use:   "murmur",
	Short: "Gossip node speaking JSON lines over stdin and stdout",
	Long: `murmur runs a single node of a distributed-systems test harness. It
reads one JSON message per line on stdin and writes one per line on stdout.
Logs go to stderr.`,
	TraverseChildren: true,
}
