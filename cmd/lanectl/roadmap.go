package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lanehq/lanehq/pkg/lanehq"
)

func newRoadmapCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roadmap",
		Short: "Show and follow a board's roadmap",
	}

	var lanes []string
	show := &cobra.Command{
		Use:   "show <board>",
		Short: "Print the current roadmap",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd)
			b, err := g.client().Roadmap(cmd.Context(), args[0], lanes...)
			if err != nil {
				return p.APIError("load roadmap", err)
			}
			p.Board(b, nil)
			return nil
		},
	}
	show.Flags().StringSliceVar(&lanes, "lanes", nil, "only these lanes")

	laneList := &cobra.Command{
		Use:   "lanes <board>",
		Short: "List the board's lanes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd)
			ls, err := g.client().Lanes(cmd.Context(), args[0])
			if err != nil {
				return p.APIError("load lanes", err)
			}
			p.Lanes(ls)
			return nil
		},
	}

	watch := &cobra.Command{
		Use:   "watch <board>",
		Short: "Follow the roadmap and reprint it on every change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd)
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var lb *lanehq.LiveBoard
			lb = lanehq.NewLiveBoard(g.client(), args[0], lanehq.OnChange(func(b *lanehq.Board) {
				p.Board(b, lb.State)
				p.Info("")
			}))
			if err := lb.Run(ctx); err != nil {
				return p.APIError("follow roadmap", err)
			}
			return nil
		},
	}

	cmd.AddCommand(show, laneList, watch)
	return cmd
}

func newMoveCmd(g *globals) *cobra.Command {
	var index int
	cmd := &cobra.Command{
		Use:   "move <board> <item-id> <lane>",
		Short: "Move an item to a lane",
		Long:  "Move an item to a lane. --index places it before the item currently at that index; past the end appends.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd)
			ack, err := g.client().Move(cmd.Context(), args[0], lanehq.Drop{
				ItemID:      args[1],
				TargetLane:  args[2],
				TargetIndex: index,
			})
			if err != nil {
				return p.APIError("move item", err)
			}
			if ack.NoOp {
				p.Warning("%s is already there", args[1])
				return nil
			}
			p.Success("moved %s to %s (revision %d)", args[1], args[2], ack.Revision)
			return nil
		},
	}
	cmd.Flags().IntVar(&index, "index", 1<<30, "target index in the lane (default: end)")
	return cmd
}
