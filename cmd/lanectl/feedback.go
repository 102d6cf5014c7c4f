package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newFeedbackCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "feedback",
		Aliases: []string{"fb"},
		Short:   "List, file and vote on feedback",
	}

	var (
		status  string
		page    int
		perPage int
	)
	list := &cobra.Command{
		Use:   "list <board>",
		Short: "List feedback on a board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd)
			items, total, err := g.client().ListFeedback(cmd.Context(), args[0], status, page, perPage)
			if err != nil {
				return p.APIError("list feedback", err)
			}
			for _, it := range items {
				p.Info("%-36s  %-12s %3d▲  %s", it.ID, it.Status, it.VoteCount, it.Title)
			}
			faint.Fprintf(p.out, "%d of %d\n", len(items), total)
			return nil
		},
	}
	list.Flags().StringVar(&status, "status", "", "only items in this lane")
	list.Flags().IntVar(&page, "page", 1, "page number")
	list.Flags().IntVar(&perPage, "per-page", 20, "items per page")

	var description string
	create := &cobra.Command{
		Use:   "create <board> <title>",
		Short: "File a feedback item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd)
			it, _, err := g.client().CreateFeedback(cmd.Context(), args[0], args[1], description)
			if err != nil {
				return p.APIError("create feedback", err)
			}
			p.Success("created %s in %s", it.ID, it.Status)
			return nil
		},
	}
	create.Flags().StringVarP(&description, "description", "d", "", "longer description")

	vote := &cobra.Command{
		Use:   "vote <board> <item-id>",
		Short: "Upvote a feedback item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd)
			n, err := g.client().Upvote(cmd.Context(), args[0], args[1])
			if err != nil {
				return p.APIError("vote", err)
			}
			p.Success("%s has %s", args[1], plural(n, "vote"))
			return nil
		},
	}

	cmd.AddCommand(list, create, vote)
	return cmd
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
