package main

import (
	"github.com/spf13/cobra"
)

var rootConfigPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vcfping",
	Short: "vcfping - VM ping monitoring for VCF Operations",
	Long: `vcfping enables ping monitoring for virtual machines in VCF Operations,
either immediately or on a recurring schedule managed by a background daemon.`,
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootConfigPath, "config", "c", "",
		"Path to configuration file (default: ~/.vcfping/config.toml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(scheduleCmd)
}
