package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tally/internal/domain"
	"tally/internal/engine"
	"tally/internal/fsm"
)

func policyCmd() *cobra.Command {
	pol := &cobra.Command{
		Use:   "policy",
		Short: "Policies, votes and feedback",
		Long:  "Policies move draft -> open_for_feedback -> under_review -> approved -> implemented; rejected is the exit. Votes and feedback are accepted only while open_for_feedback.",
	}
	pol.AddCommand(policyCreateCmd())
	for _, ev := range []fsm.VotableEvent{fsm.VotableOpen, fsm.VotableReview, fsm.VotableApprove, fsm.VotableReject, fsm.VotableImplement} {
		pol.AddCommand(policyTransitionCmd(ev))
	}
	pol.AddCommand(policyVoteCmd())
	pol.AddCommand(policyFeedbackCmd())
	pol.AddCommand(policyShowCmd())
	return pol
}

func policyCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <title>",
		Short: "Draft a policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.CreatePolicy(ctx, actorID(), args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
}

func policyTransitionCmd(ev fsm.VotableEvent) *cobra.Command {
	return &cobra.Command{
		Use:   string(ev) + " <policy-id>",
		Short: fmt.Sprintf("Apply %s to a policy", ev),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.TransitionPolicy(ctx, actorID(), args[0], ev)
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
}

func policyVoteCmd() *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "vote <policy-id> <support|oppose|neutral>",
		Short: "Cast or change your vote",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Vote(ctx, actorID(), args[0], domain.VoteType(args[1]), comment)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				verb := "recorded"
				if res.Changed {
					verb = "changed"
				}
				p := res.Policy
				fmt.Printf("Vote %s: support %d, oppose %d, neutral %d\n", verb, p.SupportCount, p.OpposeCount, p.NeutralCount)
				if res.Points.Error != "" {
					fmt.Printf("points not credited: %s\n", res.Points.Error)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&comment, "comment", "m", "", "vote comment")
	return cmd
}

func policyFeedbackCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "feedback <policy-id> <content>",
		Short: "Comment on an open policy",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Feedback(ctx, actorID(), args[0], kind, args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "comment", "feedback kind")
	return cmd
}

func policyShowCmd() *cobra.Command {
	var votes bool
	cmd := &cobra.Command{
		Use:   "show <policy-id>",
		Short: "Show a policy and its counters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.GetPolicy(ctx, args[0])
				if err != nil {
					return err
				}
				if !votes {
					return printJSONOrTable(v)
				}
				items, err := e.PolicyVotes(ctx, v.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"policy": v, "votes": items})
			})
		},
	}
	cmd.Flags().BoolVar(&votes, "votes", false, "include individual votes")
	return cmd
}

func pointsCmd() *cobra.Command {
	pts := &cobra.Command{
		Use:   "points",
		Short: "Participation points and tiers",
	}
	var limit int
	board := &cobra.Command{
		Use:   "leaderboard",
		Short: "Top participants",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Leaderboard(ctx, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"#", "Actor", "Points", "Tier"})
				for i, a := range items {
					tw.AppendRow(table.Row{i + 1, a.Actor, a.TotalPoints, a.Tier})
				}
				tw.Render()
				return nil
			})
		},
	}
	board.Flags().IntVar(&limit, "limit", 10, "rows")
	show := &cobra.Command{
		Use:   "show [actor]",
		Short: "Show an actor's points by activity",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := actorID()
			if len(args) == 1 {
				target = args[0]
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				acct, err := e.Participation(ctx, target)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(acct)
				}
				fmt.Printf("%s: %d points (%s)\n", acct.Actor, acct.TotalPoints, acct.Tier)
				tw := newTable()
				tw.AppendHeader(table.Row{"Activity", "Points"})
				for kind, n := range acct.PerActivity {
					tw.AppendRow(table.Row{kind, n})
				}
				tw.SortBy([]table.SortBy{{Name: "Activity"}})
				tw.Render()
				return nil
			})
		},
	}
	var activity string
	var points int
	credit := &cobra.Command{
		Use:   "credit <actor>",
		Short: "Credit an activity recorded outside the ledger (moderators)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Auth.RequireModerator(ctx, actorID()); err != nil {
					return err
				}
				var (
					acct domain.ParticipationAccount
					err  error
				)
				if points > 0 {
					acct, err = e.Credit(ctx, args[0], domain.ActivityKind(activity), points)
				} else {
					acct, err = e.CreditActivity(ctx, args[0], domain.ActivityKind(activity))
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(acct)
			})
		},
	}
	credit.Flags().StringVar(&activity, "activity", string(domain.ActivityForumCreation), "activity kind")
	credit.Flags().IntVar(&points, "points", 0, "points to credit; 0 uses the reward table")
	pts.AddCommand(board, show, credit)
	return pts
}
