package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danmt/hub-spoke-cm-sub000/artifact"
	"github.com/danmt/hub-spoke-cm-sub000/evolution"
)

func newEvolveCmd(opts *rootOptions) *cobra.Command {
	var (
		all    bool
		policy string
	)
	cmd := &cobra.Command{
		Use:   "evolve [<type>/<id>...]",
		Short: "Fold pending feedback into agent truths",
		Long:  "Analyses each agent's feedback buffer, updates its truths and description,\nand clears the buffer. A hard conflict pauses the agent: interactively you can\nfork it into a new variant, discard the feedback, or keep both for later.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return errors.New("evolve: pass agents or --all, not both or neither")
			}
			keys := make([]artifact.Key, 0, len(args))
			for _, s := range args {
				k, err := parseKey(s)
				if err != nil {
					return err
				}
				keys = append(keys, k)
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				eng, err := a.engine(ctx, policy)
				if err != nil {
					return err
				}
				if all {
					if keys, err = a.ws.Keys(); err != nil {
						return err
					}
				}
				term := newTerminal(cmd.InOrStdin(), cmd.OutOrStdout())
				var failed int
				for _, o := range eng.EvolveAll(ctx, keys) {
					switch {
					case errors.Is(o.Err, evolution.ErrEmptyFeedback):
						fmt.Fprintf(cmd.OutOrStdout(), "%s: no pending feedback\n", o.Key)
					case o.Err != nil:
						failed++
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", o.Key, o.Err)
					case o.Result.Paused:
						if err := resolvePaused(ctx, term, a, eng, o.Result); err != nil {
							failed++
							fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", o.Key, err)
						}
					default:
						fmt.Fprintf(cmd.OutOrStdout(), "%s: %s conflict, %d entries applied, %d truths\n",
							o.Key, o.Result.Conflict, o.Result.Consumed, len(o.Result.ProposedTruths()))
					}
				}
				if failed > 0 {
					return fmt.Errorf("evolve: %d of %d agents failed", failed, len(keys))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "evolve every agent in the workspace")
	cmd.Flags().StringVar(&policy, "policy", "", "conflict policy: trust or escalating (overrides config)")
	return cmd
}

// resolvePaused asks how to settle a hard conflict. Headless runs keep the
// agent and its buffer unchanged.
func resolvePaused(ctx context.Context, t *terminal, a *app, eng *evolution.Engine, res *evolution.Result) error {
	fmt.Fprintln(t.out, t.theme.warn.Render(res.Key.String()+": hard conflict, evolution paused"))
	t.show("Analysis", formatAnalysis(res.Analysis))
	if !a.interactive() {
		fmt.Fprintln(t.out, t.theme.muted.Render("kept unchanged; rerun interactively to fork or discard"))
		return nil
	}
	for {
		choice, err := t.readLine("[f]ork, [d]iscard feedback, [k]eep: ")
		if err != nil {
			return err
		}
		switch strings.ToLower(choice) {
		case "f", "fork":
			name, err := t.readLine(fmt.Sprintf("Fork name [%s]: ", res.Analysis.SuggestedForkName))
			if err != nil {
				return err
			}
			fork, err := eng.Fork(ctx, res, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(t.out, "Created %s\n", artifact.KeyOf(fork))
			return nil
		case "d", "discard":
			return eng.Discard(ctx, res.Key)
		case "k", "keep", "":
			return nil
		}
	}
}
