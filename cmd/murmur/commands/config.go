package commands

import (
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/mosaicnetworks/murmur/src/config"
	"github.com/spf13/cobra"
)

//NewConfigCmd returns the command that prints the effective configuration
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the configuration run would use, as YAML",
		Long: `Show the configuration run would use, as YAML. The output can be saved
as murmur.yaml in the data directory.`,
		PreRunE: loadConfig,
		RunE:    printConfig,
	}
	AddRunFlags(cmd, _config)
	return cmd
}

func printConfig(cmd *cobra.Command, args []string) error {
	out, err := dumpConfig(_config)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), string(out))
	return nil
}

func dumpConfig(conf *config.Config) ([]byte, error) {
	out, err := yaml.Marshal(conf)
	if err != nil {
		return nil, fmt.Errorf("encoding configuration: %w", err)
	}
	return out, nil
}
