package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hugh/medpocket/internal/api/dto"
	"github.com/hugh/medpocket/internal/cards"
	"github.com/hugh/medpocket/internal/cards/types"
	"github.com/hugh/medpocket/internal/client"
	"github.com/hugh/medpocket/internal/database/models"
	"github.com/hugh/medpocket/internal/generation"
	"github.com/hugh/medpocket/internal/llm"
	"github.com/hugh/medpocket/internal/richtext"
	"github.com/spf13/cobra"
)

const previewLength = 120

func newGenerateCmd(appFn func() *app) *cobra.Command {
	var (
		prompt, documentPath string
		specialty, section   string
		save                 string
		remote               bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a batch of cards with the AI assistant",
		Long: `Generates cards from a prompt ("Generate 20 cards on preeclampsia"), a
numbered list of topics, or a document (--document). Previews are printed
with their index; pass --save all or --save 0,2,5 to keep some of them.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return appFn().requireLogin(cmd.Context())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			ctx := cmd.Context()

			var document string
			if documentPath != "" {
				raw, err := os.ReadFile(documentPath)
				if err != nil {
					return fmt.Errorf("read document: %w", err)
				}
				document = string(raw)
			}
			if specialty == "" {
				specialty = "gynecology"
			}

			var (
				generated []models.GeneratedCard
				batchErrs []string
			)
			if remote {
				resp, err := a.api.Generate(ctx, dto.GenerateRequest{
					Prompt: prompt, Document: document, Specialty: specialty, Section: section,
				})
				if err != nil {
					return err
				}
				generated, batchErrs = resp.Cards, resp.Errors
			} else {
				session := generation.NewSession(a.api, generation.DefaultConfig(), generation.Hooks{
					Progress: func(p generation.Progress) {
						fmt.Fprintf(cmd.ErrOrStderr(), "\r%-16s batch %d  %d/%d cards", p.State, p.Batch, p.Generated, p.Target)
					},
				}, a.logger)
				res, err := session.Run(ctx, generation.Request{Prompt: prompt, Document: document, Section: section})
				fmt.Fprintln(cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				generated, batchErrs = res.Cards, res.BatchErrors
				if res.Err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "stopped early: %v\n", res.Err)
				}
			}

			out := cmd.OutOrStdout()
			printPreviews(out, generated)
			for _, e := range batchErrs {
				fmt.Fprintf(cmd.ErrOrStderr(), "batch error: %s\n", e)
			}
			if save == "" || len(generated) == 0 {
				return nil
			}

			indexes, err := parseIndexes(save, len(generated))
			if err != nil {
				return err
			}
			selected, err := generation.Select(generated, indexes)
			if err != nil {
				return err
			}
			return saveGenerated(ctx, out, a, selected, specialty)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&prompt, "prompt", "p", "", "what to generate")
	f.StringVar(&documentPath, "document", "", "generate from this text file")
	f.StringVar(&specialty, "specialty", "", "specialty for saved cards (default gynecology)")
	f.StringVar(&section, "section", "", "file every card under this section")
	f.StringVar(&save, "save", "", `indexes to save ("all" or "0,2,5")`)
	f.BoolVar(&remote, "remote", false, "run the whole generation on the server")
	return cmd
}

func printPreviews(w io.Writer, generated []models.GeneratedCard) {
	if len(generated) == 0 {
		fmt.Fprintln(w, "No cards generated")
		return
	}
	for i, g := range generated {
		text := []rune(richtext.PlainText(g.Content))
		if len(text) > previewLength {
			text = append(text[:previewLength], '.', '.', '.')
		}
		fmt.Fprintf(w, "[%d] %s (%s)\n    %s\n", i, g.Title, strings.Join(g.Sections, ","), string(text))
	}
}

// parseIndexes reads "all" or a comma-separated index list.
func parseIndexes(raw string, n int) ([]int, error) {
	if strings.EqualFold(strings.TrimSpace(raw), "all") {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out, nil
	}

	var out []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		i, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("--save: %q is not an index", part)
		}
		out = append(out, i)
	}
	if len(out) == 0 {
		return nil, generation.ErrNothingSelected
	}
	return out, nil
}

func saveGenerated(ctx context.Context, w io.Writer, a *app, selected []models.GeneratedCard, specialty string) error {
	for _, in := range cards.FromGeneratedAll(selected, specialty) {
		res, err := a.cards.Add(ctx, in.Card())
		if err != nil {
			return err
		}
		reportSave(w, "Saved", res)
	}
	return nil
}

func newDraftCmd(appFn func() *app) *cobra.Command {
	var (
		prompt, specialty, section, edit string
		save                             bool
	)
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Draft one card, or rewrite an existing one, with the AI assistant",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return appFn().requireLogin(cmd.Context())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			ctx := cmd.Context()
			if strings.TrimSpace(prompt) == "" {
				return errors.New("--prompt is required")
			}

			var current types.Card
			if edit != "" {
				c, ok := a.cards.Card(edit)
				if !ok {
					return fmt.Errorf("card %s not found", edit)
				}
				current = c
			}

			completion, err := a.api.Chat(ctx, llm.ChatRequest{
				Messages: generation.SingleCardMessages(prompt, nil, current.Content.String()),
			})
			if err != nil {
				return err
			}
			draft := generation.ParseSingleCard(completion)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n\n%s\n", draft.Title, richtext.PlainText(draft.Content))
			if len(draft.Sources) > 0 {
				fmt.Fprintf(out, "\nSources: %s\n", strings.Join(draft.Sources, ", "))
			}
			if !save {
				return nil
			}

			if edit != "" {
				title, content := types.Plain(draft.Title), types.Plain(draft.Content)
				res, err := a.cards.Update(ctx, edit, client.CardPatch{Title: &title, Content: &content})
				if err != nil {
					return err
				}
				reportSave(out, "Updated", res)
				return nil
			}

			g := models.GeneratedCard{Title: draft.Title, Content: draft.Content, Sources: draft.Sources}
			if section != "" {
				g.Sections = []string{section}
			}
			if specialty == "" {
				specialty = "gynecology"
			}
			return saveGenerated(ctx, out, a, []models.GeneratedCard{g}, specialty)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&prompt, "prompt", "p", "", "what the card should cover, or how to change it")
	f.StringVar(&edit, "edit", "", "rewrite this card instead of drafting a new one")
	f.StringVar(&specialty, "specialty", "", "specialty for the saved card (default gynecology)")
	f.StringVar(&section, "section", "", "section for the saved card")
	f.BoolVar(&save, "save", false, "save the draft")
	return cmd
}
