package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/hugh/medpocket/internal/cards/types"
	"github.com/spf13/cobra"
)

func newSpecialtiesCmd(appFn func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "specialties",
		Aliases: []string{"sp"},
		Short:   "Configure specialties, their sections and links",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List specialties",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSECTIONS\tLINKS\t")
			for _, sp := range appFn().specialties.List() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t\n", sp.ID, sp.Name, strings.Join(sp.Sections, ","), len(sp.Links))
			}
			return tw.Flush()
		},
	}

	var sections []string
	add := &cobra.Command{
		Use:   "add <id> <name>",
		Short: "Add a specialty",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := checkpoint(cmd.Context(), appFn(), func(a *app) error {
				return a.specialties.Add(cmd.Context(), types.Specialty{ID: args[0], Name: args[1], Sections: sections})
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s\n", args[0])
			return nil
		},
	}
	add.Flags().StringSliceVar(&sections, "section", nil, "section keys (default: the standard seven)")

	rename := &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename a specialty",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := checkpoint(cmd.Context(), appFn(), func(a *app) error {
				return a.specialties.Rename(cmd.Context(), args[0], args[1])
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %s\n", args[0], args[1])
			return nil
		},
	}

	rm := &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a specialty",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := checkpoint(cmd.Context(), appFn(), func(a *app) error {
				return a.specialties.Delete(cmd.Context(), args[0])
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return nil
		},
	}

	setSections := &cobra.Command{
		Use:   "sections <id> <key>...",
		Short: "Replace a specialty's ordered section list",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := checkpoint(cmd.Context(), appFn(), func(a *app) error {
				return a.specialties.SetSections(cmd.Context(), args[0], args[1:])
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated sections of %s\n", args[0])
			return nil
		},
	}

	setLinks := &cobra.Command{
		Use:   "links <id> <name=url>...",
		Short: "Replace a specialty's reference links",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			links := make([]types.SpecialtyLink, 0, len(args)-1)
			for _, raw := range args[1:] {
				name, url, ok := strings.Cut(raw, "=")
				if !ok || name == "" || url == "" {
					return fmt.Errorf("link %q: want name=url", raw)
				}
				links = append(links, types.SpecialtyLink{Name: name, URL: url})
			}
			err := checkpoint(cmd.Context(), appFn(), func(a *app) error {
				return a.specialties.SetLinks(cmd.Context(), args[0], links)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated links of %s\n", args[0])
			return nil
		},
	}

	undo := &cobra.Command{
		Use:   "undo",
		Short: "Undo the last specialty change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := undoCheckpoint(cmd.Context(), appFn())
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to undo")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Undone")
			return nil
		},
	}

	cmd.AddCommand(list, add, rename, rm, setSections, setLinks, undo)
	return cmd
}

// Each CLI run is a fresh process, so the undo history is kept in local
// storage as a stack of snapshots.
const keySpecialtyHistory = "specialtyHistory"

func loadHistory(ctx context.Context, a *app) ([][]types.Specialty, error) {
	raw, err := a.storage.Get(ctx, keySpecialtyHistory)
	if err != nil || raw == nil {
		return nil, err
	}
	var history [][]types.Specialty
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, fmt.Errorf("decode specialty history: %w", err)
	}
	return history, nil
}

func saveHistory(ctx context.Context, a *app, history [][]types.Specialty) error {
	raw, err := json.Marshal(history)
	if err != nil {
		return err
	}
	return a.storage.Set(ctx, keySpecialtyHistory, raw)
}

func checkpoint(ctx context.Context, a *app, mutate func(*app) error) error {
	before := a.specialties.Snapshot()
	if err := mutate(a); err != nil {
		return err
	}
	history, err := loadHistory(ctx, a)
	if err != nil {
		return err
	}
	return saveHistory(ctx, a, append(history, before))
}

func undoCheckpoint(ctx context.Context, a *app) (bool, error) {
	history, err := loadHistory(ctx, a)
	if err != nil || len(history) == 0 {
		return false, err
	}
	if err := a.specialties.Restore(ctx, history[len(history)-1]); err != nil {
		return false, err
	}
	return true, saveHistory(ctx, a, history[:len(history)-1])
}
