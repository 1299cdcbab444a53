package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	debug      bool
	rootCmd    = &cobra.Command{
		Use:   "vibe",
		Short: "vibe-builder - turn prompts into running web apps",
		Long: `vibe-builder plans a small web project from a prompt, builds it in an
isolated workspace, repairs one failed build with an LLM auto-fix pass,
and starts a dev server you can preview.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
