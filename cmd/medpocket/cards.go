package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/hugh/medpocket/internal/cards/filter"
	"github.com/hugh/medpocket/internal/cards/types"
	"github.com/hugh/medpocket/internal/client"
	"github.com/hugh/medpocket/internal/client/store"
	"github.com/hugh/medpocket/internal/richtext"
	"github.com/spf13/cobra"
)

func newCardsCmd(appFn func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cards",
		Short: "List and edit your cards",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Cobra only runs the nearest PersistentPreRunE.
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			return appFn().requireLogin(cmd.Context())
		},
	}

	cmd.AddCommand(
		newCardsListCmd(appFn),
		newCardsShowCmd(appFn),
		newCardsAddCmd(appFn),
		newCardsEditCmd(appFn),
		newCardsTrashCmd(appFn),
		newCardsRestoreCmd(appFn),
		newCardsPurgeCmd(appFn),
		newCardsEmptyTrashCmd(appFn),
		newCardsFavoriteCmd(appFn),
		newCardsNoteCmd(appFn),
		newCardsPublishCmd(appFn),
	)
	return cmd
}

func newCardsListCmd(appFn func() *app) *cobra.Command {
	var (
		spec                     filter.Spec
		ai                       string
		sort                     string
		section                  string
		trash, recent, favorites bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cards, filtered and sorted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			out := cmd.OutOrStdout()

			switch {
			case trash:
				printCards(out, a.cards.Trashed(), spec.Lang, a.cards)
				return nil
			case recent:
				printCards(out, a.cards.RecentCards(), spec.Lang, a.cards)
				return nil
			case section != "":
				if spec.Specialty == "" {
					return errors.New("--section needs --specialty")
				}
				printCards(out, a.cards.CardsBySection(spec.Specialty, section), spec.Lang, a.cards)
				return nil
			}

			if ai != "" {
				v, err := strconv.ParseBool(ai)
				if err != nil {
					return fmt.Errorf("--ai: %w", err)
				}
				spec.AIGenerated = &v
			}
			spec.Sort = filter.SortKey(sort)
			spec.FavoritesOnly = favorites
			printCards(out, a.cards.Filter(spec), spec.Lang, a.cards)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&spec.Query, "query", "q", "", "fuzzy search over titles, content and tags")
	f.StringSliceVar(&spec.Tags, "tag", nil, "match any of these tags")
	f.StringSliceVar(&spec.Sections, "sections", nil, "match any of these sections")
	f.StringVar(&spec.Specialty, "specialty", "", "only this specialty")
	f.StringVar(&section, "section", "", "cards filed under this section of --specialty")
	f.StringVar(&ai, "ai", "", "true for AI-generated only, false for hand-written only")
	f.StringVar(&sort, "sort", "", "title, date or ai")
	f.StringVar(&spec.Lang, "lang", types.LangEN, "display language (en or fr)")
	f.BoolVar(&favorites, "favorites", false, "favorites only")
	f.BoolVar(&trash, "trash", false, "list the trash instead")
	f.BoolVar(&recent, "recent", false, "recently viewed cards")
	return cmd
}

func printCards(w io.Writer, cards []types.Card, lang string, s *store.CardStore) {
	if len(cards) == 0 {
		fmt.Fprintln(w, "No cards")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tSPECIALTY\tSECTIONS\tURGENCY\t")
	for _, c := range cards {
		title := c.Title.Text(lang)
		if s.IsFavorite(c.ID) {
			title = "* " + title
		}
		if c.AIGenerated {
			title += " [AI]"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n",
			c.ID, title, c.Specialty, strings.Join(c.Sections, ","), c.Urgency)
	}
	tw.Flush()
}

func newCardsShowCmd(appFn func() *app) *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print one card and remember it as recently viewed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			c, ok := a.cards.Card(args[0])
			if !ok {
				return fmt.Errorf("%w: %s", store.ErrCardNotFound, args[0])
			}
			if err := a.cards.TrackRecent(cmd.Context(), c.ID); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n\n", c.Title.Text(lang))
			fmt.Fprintf(out, "%s\n\n", richtext.PlainText(c.Content.Text(lang)))
			fmt.Fprintf(out, "Specialty: %s\nSections:  %s\nUrgency:   %s\n",
				c.Specialty, strings.Join(c.Sections, ", "), c.Urgency)
			if len(c.Tags) > 0 {
				fmt.Fprintf(out, "Tags:      %s\n", strings.Join(c.Tags, ", "))
			}
			for _, r := range c.References {
				fmt.Fprintf(out, "Ref:       %s %s\n", r.Name, r.URL)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&lang, "lang", types.LangEN, "display language (en or fr)")
	return cmd
}

func newCardsAddCmd(appFn func() *app) *cobra.Command {
	var (
		card           types.Card
		title, content string
		urgency        string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a card",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			card.Title = types.Plain(title)
			card.Content = types.Plain(content)
			card.Urgency = types.Urgency(urgency)

			res, err := appFn().cards.Add(cmd.Context(), card)
			if err != nil {
				return err
			}
			reportSave(cmd.OutOrStdout(), "Created", res)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&title, "title", "", "card title")
	f.StringVar(&content, "content", "", "card content (HTML allowed)")
	f.StringVar(&card.Specialty, "specialty", "", "specialty id")
	f.StringSliceVar(&card.Sections, "section", nil, "section key (repeatable)")
	f.StringSliceVar(&card.Tags, "tag", nil, "tag (repeatable)")
	f.StringVar(&urgency, "urgency", string(types.UrgencyStandard), "standard, high or urgent")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newCardsEditCmd(appFn func() *app) *cobra.Command {
	var (
		title, content, specialty, urgency string
		sections, tags                     []string
	)
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields of a card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch client.CardPatch
			f := cmd.Flags()
			if f.Changed("title") {
				t := types.Plain(title)
				patch.Title = &t
			}
			if f.Changed("content") {
				c := types.Plain(content)
				patch.Content = &c
			}
			if f.Changed("specialty") {
				patch.Specialty = &specialty
			}
			if f.Changed("urgency") {
				u := types.Urgency(urgency)
				patch.Urgency = &u
			}
			if f.Changed("section") {
				patch.Sections = &sections
			}
			if f.Changed("tag") {
				patch.Tags = &tags
			}

			res, err := appFn().cards.Update(cmd.Context(), args[0], patch)
			if err != nil {
				return err
			}
			reportSave(cmd.OutOrStdout(), "Updated", res)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&title, "title", "", "new title")
	f.StringVar(&content, "content", "", "new content")
	f.StringVar(&specialty, "specialty", "", "new specialty")
	f.StringVar(&urgency, "urgency", "", "standard, high or urgent")
	f.StringSliceVar(&sections, "section", nil, "replace sections")
	f.StringSliceVar(&tags, "tag", nil, "replace tags")
	return cmd
}

func reportSave(w io.Writer, verb string, res store.SaveResult) {
	fmt.Fprintf(w, "%s %s (%s)\n", verb, res.Card.ID, res.Sync)
	if res.Sync == store.SyncLocalOnly && res.Err != nil {
		fmt.Fprintf(w, "  server unreachable: %v\n", res.Err)
	}
}

func idCmd(use, short string, run func(cmd *cobra.Command, a *app, id string) error, appFn func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, appFn(), args[0])
		},
	}
}

func newCardsTrashCmd(appFn func() *app) *cobra.Command {
	return idCmd("rm", "Move a card to the trash", func(cmd *cobra.Command, a *app, id string) error {
		if err := a.cards.Trash(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Moved %s to trash\n", id)
		return nil
	}, appFn)
}

func newCardsRestoreCmd(appFn func() *app) *cobra.Command {
	return idCmd("restore", "Bring a card back from the trash", func(cmd *cobra.Command, a *app, id string) error {
		if err := a.cards.Restore(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Restored %s\n", id)
		return nil
	}, appFn)
}

func newCardsPurgeCmd(appFn func() *app) *cobra.Command {
	return idCmd("purge", "Delete a trashed card for good", func(cmd *cobra.Command, a *app, id string) error {
		status, err := a.cards.PermanentlyDelete(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s (%s)\n", id, status)
		return nil
	}, appFn)
}

func newCardsEmptyTrashCmd(appFn func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "empty-trash",
		Short: "Delete every trashed card for good",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			n := len(a.cards.Trashed())
			status, err := a.cards.EmptyTrash(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d cards (%s)\n", n, status)
			return nil
		},
	}
}

func newCardsFavoriteCmd(appFn func() *app) *cobra.Command {
	return idCmd("fav", "Toggle a card's favorite flag", func(cmd *cobra.Command, a *app, id string) error {
		if _, ok := a.cards.Card(id); !ok {
			return fmt.Errorf("%w: %s", store.ErrCardNotFound, id)
		}
		on, err := a.cards.ToggleFavorite(cmd.Context(), id)
		if err != nil {
			return err
		}
		state := "removed from"
		if on {
			state = "added to"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s favorites\n", id, state)
		return nil
	}, appFn)
}

func newCardsNoteCmd(appFn func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "note <id> [text]",
		Short: "Show a card's private note, or replace it with text",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			if len(args) == 2 {
				if err := a.api.PutNote(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Note saved")
				return nil
			}
			note, err := a.api.GetNote(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), note)
			return nil
		},
	}
}

func newCardsPublishCmd(appFn func() *app) *cobra.Command {
	return idCmd("publish", "Make a card visible to everyone", func(cmd *cobra.Command, a *app, id string) error {
		c, err := a.api.MakePublic(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is now public\n", c.ID)
		return nil
	}, appFn)
}
