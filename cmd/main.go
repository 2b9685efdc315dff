package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var root = &cobra.Command{
	Use:           "clouddrive",
	Short:         "Cloud Drive - file storage API with sharing and trash",
	SilenceErrors: true,
	SilenceUsage:  true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

func init() {
	root.PersistentFlags().StringVar(&configPath, "config", ".app.env", "path to the config file (.env, yaml or json)")
	root.AddCommand(serveCmd(), workerCmd(), migrateCmd(), userCmd())
}

func main() {
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
