package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/born-ml/blockwise/internal/envconfig"
)

func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Print environment configuration",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			vars := envconfig.AsMap()
			names := make([]string, 0, len(vars))
			for name := range vars {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				v := vars[name]
				fmt.Fprintf(cmd.OutOrStdout(), "%-22s %-20v %s\n", v.Name, v.Value, v.Description)
			}
		},
	}
}
