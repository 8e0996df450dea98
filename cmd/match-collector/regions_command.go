package main

import (
	"fmt"
	"strings"

	"github.com/Sternrassler/match-collector/pkg/riot"
	"github.com/spf13/cobra"
)

func newRegionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "regions",
		Short: "List regions and the platforms each one covers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var rows [][]string
			for _, region := range riot.Regions() {
				platforms := region.Platforms()
				names := make([]string, len(platforms))
				for i, p := range platforms {
					names[i] = string(p)
				}
				rows = append(rows, []string{string(region), fmt.Sprint(len(platforms)), strings.Join(names, ", ")})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Region", "Platforms", "Names"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
}
