package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/flemzord/recall/internal/memory"
	"github.com/flemzord/recall/pkg/app"
)

// openLocal starts the memory pipeline without the HTTP gateway or
// maintenance jobs, for commands that run once and exit.
func openLocal(cmd *cobra.Command) (*app.Runtime, error) {
	params, err := runParams(cmd, slog.LevelWarn)
	if err != nil {
		return nil, err
	}
	params.Modules = func(id string) bool { return !strings.HasPrefix(id, "gateway.") }
	params.NoMaintenance = true

	rt, err := app.Open(params)
	if err != nil {
		return nil, err
	}
	if err := rt.Start(); err != nil {
		return nil, err
	}
	return rt, nil
}

func askCmd() *cobra.Command {
	var owner, conversation string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from stored memories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openLocal(cmd)
			if err != nil {
				return err
			}
			defer rt.Stop()

			answer, err := rt.Facade.Answer(cmd.Context(), strings.Join(args, " "), memory.OwnerScope{
				OwnerID:        owner,
				ConversationID: conversation,
			})
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), answer)
			}
			printAnswer(cmd.OutOrStdout(), answer)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", defaultOwner(), "Owner whose memories are searched")
	cmd.Flags().StringVar(&conversation, "conversation", "", "Conversation whose memories are also searched")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full answer as JSON")
	return cmd
}

func printAnswer(w io.Writer, a memory.GroundedAnswer) {
	fmt.Fprintln(w, a.Answer)
	if !a.HasEvidence {
		return
	}
	fmt.Fprintf(w, "\nSources (confidence %.2f):\n", a.Confidence)
	for i, c := range a.Citations {
		fmt.Fprintf(w, "  [%d] %s (%s)\n", i+1, c.Title, c.CreatedAt.Format(time.DateOnly))
	}
}

func rememberCmd() *cobra.Command {
	var (
		item       memory.MemoryItem
		section    string
		occurredAt string
	)
	cmd := &cobra.Command{
		Use:   "remember <title> [content]",
		Short: "Store a memory",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			item.Title = args[0]
			if len(args) == 2 {
				item.Content = args[1]
			}
			item.Section = memory.Section(section)
			item.Source = memory.SourceCapture
			if occurredAt != "" {
				at, err := parseWhen(occurredAt)
				if err != nil {
					return err
				}
				item.TemporalRange = &memory.TimeRange{Start: at}
			}

			rt, err := openLocal(cmd)
			if err != nil {
				return err
			}
			defer rt.Stop()

			stored, err := rt.Facade.Remember(cmd.Context(), item)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), stored.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&section, "section", "s", string(memory.SectionNote), "Section: event, note, diary, task, list, reminder or conversation")
	cmd.Flags().StringSliceVarP(&item.Tags, "tag", "t", nil, "Tag (repeatable)")
	cmd.Flags().StringSliceVarP(&item.People, "person", "p", nil, "Person involved (repeatable)")
	cmd.Flags().StringVar(&item.Location, "location", "", "Where it happened")
	cmd.Flags().StringVar(&occurredAt, "at", "", "When it happened: YYYY-MM-DD or RFC 3339")
	cmd.Flags().StringVar(&item.OwnerID, "owner", defaultOwner(), "Owner of the memory")
	return cmd
}

// parseWhen accepts a date or a full timestamp.
func parseWhen(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: use YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <conversation-id>",
		Short: "Print the recent turns of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openLocal(cmd)
			if err != nil {
				return err
			}
			defer rt.Stop()

			turns, err := rt.Facade.History(cmd.Context(), args[0], memory.HistoryOptions{Limit: limit})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(turns) == 0 {
				fmt.Fprintln(out, "No turns recorded.")
				return nil
			}
			// Oldest first reads like a transcript.
			for i := len(turns) - 1; i >= 0; i-- {
				t := turns[i]
				fmt.Fprintf(out, "%s  %-9s %s\n", t.Timestamp.Local().Format(time.DateTime), t.Role, t.Text)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of turns (default: the window size)")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
