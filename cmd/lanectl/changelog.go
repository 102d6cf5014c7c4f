package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lanehq/lanehq/pkg/lanehq"
)

func newChangelogCmd(g *globals) *cobra.Command {
	var (
		drafts bool
		follow bool
	)
	cmd := &cobra.Command{
		Use:   "changelog",
		Short: "Print the organization's changelog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := newPrinter(cmd)
			c := g.client()
			if !follow {
				cl, err := c.Changelog(cmd.Context(), drafts)
				if err != nil {
					return p.APIError("load changelog", err)
				}
				p.Changelog(cl)
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			err := c.WatchChangelog(ctx, drafts, func(cl *lanehq.Changelog) error {
				p.Changelog(cl)
				return nil
			})
			if err != nil {
				return p.APIError("follow changelog", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&drafts, "drafts", false, "include unpublished releases (needs releases:write)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing as releases change")

	release := &cobra.Command{
		Use:   "release",
		Short: "Manage releases",
	}
	var notes string
	create := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a draft release",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd)
			r, err := g.client().CreateRelease(cmd.Context(), args[0], notes)
			if err != nil {
				return p.APIError("create release", err)
			}
			p.Success("created draft %s", r.ID)
			return nil
		},
	}
	create.Flags().StringVar(&notes, "notes", "", "release notes in markdown")

	ship := &cobra.Command{
		Use:   "ship <release-id> <feedback-id>...",
		Short: "Attach shipped feedback to a release",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd)
			c := g.client()
			for _, id := range args[1:] {
				if err := c.ShipFeedback(cmd.Context(), args[0], id); err != nil {
					return p.APIError("ship "+id, err)
				}
			}
			p.Success("attached %s to %s", plural(len(args)-1, "item"), args[0])
			return nil
		},
	}

	publish := &cobra.Command{
		Use:   "publish <release-id>",
		Short: "Publish a draft release",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd)
			r, err := g.client().PublishRelease(cmd.Context(), args[0])
			if err != nil {
				return p.APIError("publish release", err)
			}
			p.Success("published %s", r.Title)
			return nil
		},
	}

	release.AddCommand(create, ship, publish)
	cmd.AddCommand(release)
	return cmd
}
