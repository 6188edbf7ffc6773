// Package main provides the blockwise CLI.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/born-ml/blockwise/internal/envconfig"
)

const version = "v0.1.0-dev"

func newRootCmd() *cobra.Command {
	goFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(goFlags)

	root := &cobra.Command{
		Use:           "blockwise",
		Short:         "Memory-bounded attention, transform and loss over long sequences",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if envconfig.Debug() && !cmd.Flags().Changed("v") {
				return goFlags.Set("v", "2")
			}
			return nil
		},
	}
	root.PersistentFlags().AddGoFlagSet(goFlags)

	root.AddCommand(
		newAttendCmd(),
		newTransformCmd(),
		newLossCmd(),
		newEnvCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Show version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "blockwise %s\n", version)
			},
		},
	)
	return root
}

func main() {
	defer klog.Flush()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
