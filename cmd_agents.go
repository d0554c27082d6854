package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danmt/hub-spoke-cm-sub000/artifact"
	"github.com/danmt/hub-spoke-cm-sub000/feedback"
	"github.com/danmt/hub-spoke-cm-sub000/registry"
)

func newAgentsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Inspect the agent definitions of the workspace",
	}
	cmd.AddCommand(newAgentsListCmd(opts), newAgentsValidateCmd(opts))
	return cmd
}

func newAgentsListCmd(opts *rootOptions) *cobra.Command {
	var showTruths bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List agents with their truths and pending feedback",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				arts, err := a.ws.Artifacts(ctx)
				if err != nil {
					return err
				}
				th := defaultTheme()
				out := cmd.OutOrStdout()
				for _, art := range arts {
					key := artifact.KeyOf(art)
					entries, err := a.feedback.Load(ctx, feedback.KeyFor(key))
					if err != nil {
						return err
					}
					m := art.Base()
					fmt.Fprintf(out, "%s  %d truths  %d feedback\n", th.title.Render(key.String()), len(m.Truths), len(entries))
					if m.Description != "" {
						fmt.Fprintln(out, "  "+th.muted.Render(m.Description))
					}
					if showTruths {
						for _, t := range artifact.SortedTruths(m.Truths) {
							fmt.Fprintf(out, "  %.2f  %s\n", t.Weight, t.Text)
						}
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&showTruths, "truths", false, "print every truth with its weight")
	return cmd
}

func newAgentsValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check that every assembler references known writers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				arts, err := a.ws.Artifacts(ctx)
				if err != nil {
					return err
				}
				if err := registry.Validate(arts); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok: %d agents\n", len(arts))
				return nil
			})
		},
	}
}
