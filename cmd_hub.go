package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danmt/hub-spoke-cm-sub000/agent"
	"github.com/danmt/hub-spoke-cm-sub000/orchestrator"
	"github.com/danmt/hub-spoke-cm-sub000/workspace"
)

func newHubCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hub",
		Short: "Create, fill and export content hubs",
	}
	cmd.AddCommand(
		newHubCreateCmd(opts),
		newHubFillCmd(opts),
		newHubExportCmd(opts),
		newHubListCmd(opts),
	)
	return cmd
}

func newHubCreateCmd(opts *rootOptions) *cobra.Command {
	var (
		base   agent.Brief
		notes  string
		noFill bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Plan a new hub and write its sections",
		Long:  "Runs the architect, the assembler and the persona intro, saves the hub with\nevery section pending, then fills the sections unless --no-fill is given.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				actions, err := a.actions(ctx)
				if err != nil {
					return err
				}
				term := newTerminal(cmd.InOrStdin(), cmd.OutOrStdout())
				cb := term.callbacks(a.interactive(), opts.retries, a.logger)

				res, err := actions.CreateHub(ctx, orchestrator.HubRequest{Baseline: base, Notes: notes}, cb)
				if err != nil {
					return fmt.Errorf("hub create: %w", err)
				}
				id, err := a.ws.NewHubID(res.Brief.Topic)
				if err != nil {
					return err
				}
				hub := workspace.NewHub(id, res.Brief, res.Blueprint, res.Intro)
				if err := a.ws.SaveHub(ctx, hub); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created hub %s with %d sections\n", id, len(res.Blueprint.Components))
				if noFill {
					return nil
				}
				return fillHub(ctx, cmd, a, actions, hub, cb)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&base.Topic, "topic", "", "hub topic")
	f.StringVar(&base.Goal, "goal", "", "what the reader should achieve")
	f.StringVar(&base.Audience, "audience", "", "target audience")
	f.StringVar(&base.Language, "language", "", "content language")
	f.StringVar(&base.AssemblerID, "assembler", "", "preferred assembler id")
	f.StringVar(&base.PersonaID, "persona", "", "preferred persona id")
	f.StringSliceVar(&base.AllowedWriterIDs, "writers", nil, "allowed writer ids")
	f.StringVar(&notes, "notes", "", "free-form notes for the architect")
	f.BoolVar(&noFill, "no-fill", false, "stop after planning")
	return cmd
}

func newHubFillCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fill <hub-id>",
		Short: "Write every pending section of a hub",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				hub, err := a.ws.LoadHub(ctx, args[0])
				if err != nil {
					return err
				}
				actions, err := a.actions(ctx)
				if err != nil {
					return err
				}
				term := newTerminal(cmd.InOrStdin(), cmd.OutOrStdout())
				return fillHub(ctx, cmd, a, actions, hub, term.callbacks(a.interactive(), opts.retries, a.logger))
			})
		},
	}
}

func fillHub(ctx context.Context, cmd *cobra.Command, a *app, actions *orchestrator.Actions, hub *workspace.Hub, cb orchestrator.Callbacks) error {
	pending := hub.Pending(workspace.IsPending)
	if len(pending) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Hub %s has no pending sections\n", hub.ID)
		return nil
	}
	res, err := actions.FillSections(ctx, orchestrator.FillRequest{
		Brief:     hub.Brief,
		Blueprint: hub.Blueprint,
		Doc:       hub,
		IsPending: workspace.IsPending,
		Persist:   func(ctx context.Context) error { return a.ws.SaveHub(ctx, hub) },
	}, cb)
	if res != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Filled %d of %d pending sections in %s\n", len(res.Filled), len(pending), hub.ID)
	}
	if err != nil {
		return fmt.Errorf("hub fill %s: %w", hub.ID, err)
	}
	return nil
}

func newHubExportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export <hub-id>",
		Short: "Render a hub to HTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				path, err := a.ws.ExportHTML(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			})
		},
	}
}

func newHubListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List hubs and their pending sections",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				ids, err := a.ws.Hubs()
				if err != nil {
					return err
				}
				for _, id := range ids {
					hub, err := a.ws.LoadHub(ctx, id)
					if err != nil {
						a.logger.Warn("skipping unreadable hub", "hub", id, "error", err)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d sections\t%d pending\n",
						id, len(hub.Blueprint.Components), len(hub.Pending(workspace.IsPending)))
				}
				return nil
			})
		},
	}
}
