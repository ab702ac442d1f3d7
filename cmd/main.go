package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "coffee-store",
		Short:         "Coffee store cart, checkout and payment backend",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "optional YAML config file; environment variables override it")

	load := func() (*Config, error) {
		v, err := newViper(configFile)
		if err != nil {
			return nil, err
		}
		return loadConfig(v)
	}

	root.AddCommand(serveCmd(load))
	root.AddCommand(migrateCmd(load))
	return root
}
