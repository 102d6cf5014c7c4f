package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lanehq/lanehq/pkg/lanehq"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan, color.Bold)
	faint  = color.New(color.Faint)
)

// printer writes to the command's streams so tests can capture output.
type printer struct {
	out io.Writer
	err io.Writer
}

func newPrinter(cmd *cobra.Command) *printer {
	return &printer{out: cmd.OutOrStdout(), err: cmd.ErrOrStderr()}
}

func (p *printer) Success(format string, a ...any) {
	green.Fprintf(p.out, "✓ "+format+"\n", a...)
}

func (p *printer) Warning(format string, a ...any) {
	yellow.Fprintf(p.err, "! "+format+"\n", a...)
}

func (p *printer) Info(format string, a ...any) {
	fmt.Fprintf(p.out, format+"\n", a...)
}

// Error prints a titled explanation with suggestions to stderr and returns a
// short error for cobra, which is told not to print it.
func (p *printer) Error(title, explanation string, suggestions []string) error {
	red.Fprintf(p.err, "%s\n", title)
	if explanation != "" {
		fmt.Fprintf(p.err, "\n%s\n", explanation)
	}
	switch len(suggestions) {
	case 0:
	case 1:
		fmt.Fprintf(p.err, "\n%s\n", suggestions[0])
	default:
		fmt.Fprintf(p.err, "\nEither:\n")
		for i, s := range suggestions {
			fmt.Fprintf(p.err, "  %d. %s\n", i+1, s)
		}
	}
	return errors.New(title)
}

// APIError turns a client error into a printed explanation.
func (p *printer) APIError(action string, err error) error {
	title := "Failed to " + action
	switch {
	case errors.Is(err, lanehq.ErrUnauthorized):
		return p.Error(title, err.Error(), []string{"pass a token with --token or LANEHQ_TOKEN", "check that the token holds the needed scope"})
	case errors.Is(err, lanehq.ErrNotFound):
		return p.Error(title, err.Error(), []string{"check the organization and board slugs"})
	case errors.Is(err, lanehq.ErrUnknownLane):
		return p.Error(title, err.Error(), []string{"list the board's lanes with: lanectl roadmap lanes <board>"})
	default:
		return p.Error(title, err.Error(), nil)
	}
}

// Board prints a roadmap one lane per block.
func (p *printer) Board(b *lanehq.Board, states func(string) lanehq.ItemState) {
	faint.Fprintf(p.out, "revision %d\n", b.Revision)
	for _, col := range b.Columns {
		label := col.Lane.Label
		if label == "" {
			label = col.Lane.Status
		}
		cyan.Fprintf(p.out, "\n%s (%d)\n", label, len(col.Items))
		for _, it := range col.Items {
			line := fmt.Sprintf("  %-36s  %3d▲  %s", it.ID, it.VoteCount, it.Title)
			if states == nil {
				fmt.Fprintln(p.out, line)
				continue
			}
			switch st := states(it.ID); st {
			case lanehq.StatePending:
				yellow.Fprintf(p.out, "%s  [%s]\n", line, st)
			case lanehq.StateReconciled:
				green.Fprintf(p.out, "%s  [%s]\n", line, st)
			default:
				fmt.Fprintln(p.out, line)
			}
		}
	}
}

func (p *printer) Lanes(lanes []lanehq.Lane) {
	for _, l := range lanes {
		mark := ""
		if l.Done {
			mark = " (done)"
		}
		fmt.Fprintf(p.out, "%d  %-16s %s%s\n", l.Index, l.Status, l.Label, mark)
	}
}

func (p *printer) Changelog(cl *lanehq.Changelog) {
	if len(cl.Releases) == 0 {
		faint.Fprintln(p.out, "no releases")
		return
	}
	for _, r := range cl.Releases {
		when := "draft"
		if r.PublishedAt != nil {
			when = r.PublishedAt.Format("2006-01-02")
		}
		cyan.Fprintf(p.out, "%s", r.Title)
		faint.Fprintf(p.out, "  %s  %s\n", when, r.ID)
		if notes := strings.TrimSpace(r.Notes); notes != "" {
			for _, line := range strings.Split(notes, "\n") {
				fmt.Fprintf(p.out, "  %s\n", line)
			}
		}
		for _, it := range r.Feedback {
			fmt.Fprintf(p.out, "  • %s\n", it.Title)
		}
		fmt.Fprintln(p.out)
	}
}
