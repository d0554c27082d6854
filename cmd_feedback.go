package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/danmt/hub-spoke-cm-sub000/artifact"
	"github.com/danmt/hub-spoke-cm-sub000/feedback"
)

func newFeedbackCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Read or add to an agent's feedback log",
	}
	cmd.AddCommand(newFeedbackAddCmd(opts), newFeedbackShowCmd(opts))
	return cmd
}

// parseKey reads "<type>/<id>".
func parseKey(s string) (artifact.Key, error) {
	t, id, ok := strings.Cut(s, "/")
	if !ok || id == "" {
		return artifact.Key{}, fmt.Errorf("agent %q: want <type>/<id>", s)
	}
	typ, err := artifact.ParseType(t)
	if err != nil {
		return artifact.Key{}, err
	}
	return artifact.Key{Type: typ, ID: id}, nil
}

func newFeedbackAddCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <type>/<id> <text>",
		Short: "Record manual feedback for an agent",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(args[0])
			if err != nil {
				return err
			}
			text := strings.TrimSpace(strings.Join(args[1:], " "))
			if text == "" {
				return errors.New("feedback text is empty")
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if _, err := a.ws.Load(ctx, key); err != nil {
					return err
				}
				err := a.feedback.Append(ctx, feedback.KeyFor(key), feedback.Entry{
					Timestamp: time.Now().UTC(),
					Source:    feedback.SourceManual,
					Outcome:   feedback.OutcomeFeedback,
					Text:      text,
				})
				if err != nil {
					return fmt.Errorf("feedback add: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recorded feedback for %s\n", key)
				return nil
			})
		},
	}
}

func newFeedbackShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <type>/<id>",
		Short: "Print an agent's pending feedback",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				entries, err := a.feedback.Load(ctx, feedback.KeyFor(key))
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No pending feedback for %s\n", key)
					return nil
				}
				for _, e := range entries {
					line := fmt.Sprintf("%s  %-6s  %-8s", e.Timestamp.Format(time.RFC3339), e.Source, e.Outcome)
					if e.ThreadID != "" {
						line += fmt.Sprintf("  %s#%d", e.ThreadID, e.Turn)
					}
					if e.Text != "" {
						line += "  " + e.Text
					}
					fmt.Fprintln(cmd.OutOrStdout(), line)
				}
				return nil
			})
		},
	}
}
