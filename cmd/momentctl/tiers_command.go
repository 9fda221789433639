package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yangwenmai/storyteller/internal/model"
)

func newTiersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tiers",
		Short: "List subscription tiers and their photo ceilings",
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([][]string, 0, len(model.Tiers))
			for _, t := range model.Tiers {
				rows = append(rows, []string{string(t), fmt.Sprintf("%d", model.CeilingFor(t))})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Tier", "Max photos"},
				rows,
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		},
	}
}
