// Command lanectl is a terminal client for a lanehq server.
//
//	lanectl roadmap show ideas
//	lanectl roadmap watch ideas
//	lanectl move ideas <item-id> planned --index 0
//	lanectl feedback create ideas "Dark mode"
//	lanectl changelog --drafts
//
// The server, organization and token come from --server, --org and --token or
// from LANEHQ_SERVER, LANEHQ_ORG and LANEHQ_TOKEN.
package main

import (
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lanehq/lanehq/pkg/lanehq"
)

var version = "0.1.0"

type globals struct {
	server string
	org    string
	token  string
}

func (g *globals) client() *lanehq.Client {
	return lanehq.NewClient(g.server, g.org, lanehq.WithToken(g.token))
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "lanectl",
		Short:         "Terminal client for lanehq roadmaps, feedback and changelogs",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.server, "server", envOr("LANEHQ_SERVER", "http://localhost:8080"), "lanehq server URL")
	pf.StringVar(&g.org, "org", os.Getenv("LANEHQ_ORG"), "organization slug")
	pf.StringVar(&g.token, "token", os.Getenv("LANEHQ_TOKEN"), "bearer token")
	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if cmd == root || cmd.Name() == "help" || strings.HasPrefix(cmd.CommandPath(), "lanectl completion") {
			return nil
		}
		if g.org == "" {
			return newPrinter(cmd).Error("No organization selected",
				"lanectl needs an organization slug for every request.",
				[]string{"pass --org <slug>", "set LANEHQ_ORG"})
		}
		return nil
	}

	root.AddCommand(newRoadmapCmd(g), newMoveCmd(g), newFeedbackCmd(g), newChangelogCmd(g))
	return root
}

func main() {
	if os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
