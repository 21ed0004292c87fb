package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/danhigham/huddle/internal/domain"
	"github.com/danhigham/huddle/internal/state"
)

func newConversationsCmd(a *app) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"ls"},
		Short:   "List conversations, most recently active first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, ok := domain.ParseConversationKind(kind)
			if !ok {
				return fmt.Errorf("unknown conversation kind %q", kind)
			}

			session, client, err := a.bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			convs, err := client.ListConversations(cmd.Context())
			if err != nil {
				return err
			}

			// The store applies the same ordering and filter as the TUI list.
			store := state.New(nil)
			store.SetSelf(session.UserID)
			store.SetConversations(convs)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tKIND\tNAME\tLAST MESSAGE")
			for _, c := range store.Conversations(k) {
				kindLabel := "direct"
				if c.IsGroup {
					kindLabel = "group"
				}
				last := ""
				if c.LatestMessage != nil {
					last = truncate(c.LatestMessage.Content, 40)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ID, kindLabel, c.DisplayName(session.UserID), last)
			}
			return tw.Flush()
		},
	}
	addKindFlag(cmd, &kind)
	return cmd
}

func truncate(s string, n int) string {
	r := []rune(s)
	for i, c := range r {
		if c == '\n' {
			r[i] = ' '
		}
	}
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
