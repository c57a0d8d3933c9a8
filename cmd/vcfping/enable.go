package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/atrejom/vcfping/internal/schedule"
)

var (
	enableVMNames []string
	enableAllVMs  bool
	enableForce   bool
)

// enableCmd represents the enable command
var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable ping monitoring for VMs immediately",
	Long: `Enable ping monitoring for the named VMs (or all VMs) in a single
immediate pass, without going through the scheduler daemon.

VMs that were already processed in an earlier run are skipped unless
--force is given.`,
	Run: enableHandler,
}

func enableHandler(cmd *cobra.Command, args []string) {
	if len(enableVMNames) == 0 && !enableAllVMs {
		fmt.Printf("❌ Specify --vm-name at least once, or --all-vms\n")
		os.Exit(exitValidation)
	}
	if len(enableVMNames) > 0 && enableAllVMs {
		fmt.Printf("❌ --vm-name and --all-vms are mutually exclusive\n")
		os.Exit(exitValidation)
	}

	a := initApp()

	cycleRunner, err := a.newRunner()
	if err != nil {
		exitWith(err)
	}

	policy := schedule.UseCache
	if enableForce {
		policy = schedule.IgnoreCache
	}

	var targets []string
	if !enableAllVMs {
		targets = enableVMNames
	}

	summary, err := cycleRunner.Run(cmd.Context(), targets, policy)
	if err != nil {
		exitWith(err)
	}

	fmt.Printf("✅ Ping monitoring pass complete: %s\n", summary.String())
	for name, reason := range summary.Failures {
		fmt.Printf("  - %s: %s\n", name, reason)
	}
	if summary.Failed > 0 {
		os.Exit(exitFatal)
	}
}

func init() {
	enableCmd.Flags().StringArrayVar(&enableVMNames, "vm-name", nil, "VM name to enable (repeatable)")
	enableCmd.Flags().BoolVar(&enableAllVMs, "all-vms", false, "Enable ping monitoring for every VM")
	enableCmd.Flags().BoolVar(&enableForce, "force", false, "Process VMs even if already recorded as enabled")
}
