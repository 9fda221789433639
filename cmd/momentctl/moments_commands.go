package main

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yangwenmai/storyteller/internal/model"
	"github.com/yangwenmai/storyteller/internal/store"
)

func newMomentsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "moments",
		Short: "Browse and manage saved moments",
	}
	cmd.AddCommand(newMomentsListCommand(ctx))
	cmd.AddCommand(newMomentsShowCommand(ctx))
	cmd.AddCommand(newMomentsPinCommand(ctx, true))
	cmd.AddCommand(newMomentsPinCommand(ctx, false))
	cmd.AddCommand(newMomentsDeleteCommand(ctx))
	return cmd
}

func newMomentsListCommand(ctx *commandContext) *cobra.Command {
	var (
		filter     model.MomentFilter
		pinnedOnly bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved moments, pinned first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if pinnedOnly {
				pinned := true
				filter.Pinned = &pinned
			}
			return ctx.withStore(func(st *store.Store) error {
				moments, err := st.ListMoments(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, moments)
				}
				counts, err := st.CountMoments(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(moments) == 0 {
					fmt.Fprintln(out, "No moments found")
					return nil
				}
				fmt.Fprintln(out, renderMoments(moments, time.Now(), shouldColorize(out)))
				fmt.Fprintf(out, "%d of %d moments (%d pinned)\n", len(moments), counts.Total, counts.Pinned)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&filter.Location, "location", "", "Only moments at this location (case-insensitive)")
	cmd.Flags().StringVar(&filter.Person, "person", "", "Only moments with this person")
	cmd.Flags().BoolVar(&pinnedOnly, "pinned", false, "Only pinned moments")
	cmd.Flags().Uint64Var(&filter.Limit, "limit", 0, "Maximum number of moments (default 100)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print moments as JSON")
	return cmd
}

func renderMoments(moments []model.Moment, now time.Time, colorize bool) string {
	rows := make([][]string, 0, len(moments))
	for _, m := range moments {
		location := m.PrimaryLocation
		if location == "" {
			location = "-"
		}
		rows = append(rows, []string{
			m.ID,
			m.Title,
			location,
			fmt.Sprintf("%d", m.PhotoCount),
			pinnedLabel(m.Pinned, colorize),
			formatAge(m.CreatedAt, now),
		})
	}
	return renderTable(
		[]string{"ID", "Title", "Location", "Photos", "Pinned", "Created"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	)
}

func newMomentsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one moment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				m, err := st.GetMoment(cmd.Context(), args[0])
				if err != nil {
					return momentLookupError(args[0], err)
				}
				if asJSON {
					return writeJSON(cmd, m)
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				writeDraft(out, m.MomentDraft, colorize)
				fmt.Fprintf(out, "Tier:       %s\n", m.Tier)
				fmt.Fprintf(out, "Created:    %s\n", formatAge(m.CreatedAt, time.Now()))
				if m.Pinned {
					fmt.Fprintf(out, "Status:     %s\n", pinnedLabel(true, colorize))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the moment as JSON, previews included")
	return cmd
}

func newMomentsPinCommand(ctx *commandContext, pinned bool) *cobra.Command {
	use, short, verb := "pin <id>", "Pin a moment to the top of the list", "Pinned"
	if !pinned {
		use, short, verb = "unpin <id>", "Unpin a moment", "Unpinned"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				if err := st.SetPinned(cmd.Context(), args[0], pinned); err != nil {
					return momentLookupError(args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s moment %s\n", verb, args[0])
				return nil
			})
		},
	}
}

func newMomentsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a moment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				if err := st.DeleteMoment(cmd.Context(), args[0]); err != nil {
					return momentLookupError(args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted moment %s\n", args[0])
				return nil
			})
		},
	}
}

func momentLookupError(id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("moment %s not found", id)
	}
	return err
}
