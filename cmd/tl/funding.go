package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tally/internal/domain"
	"tally/internal/engine"
	"tally/internal/repo"
)

func projectCmd() *cobra.Command {
	prj := &cobra.Command{
		Use:   "project",
		Short: "Crowdfunded projects",
		Long:  "Projects move pending_approval -> active -> funded/in_progress -> completed; cancelled is the exit. Contributions are accepted while active or funded.",
	}
	prj.AddCommand(projectProposeCmd())
	prj.AddCommand(projectTransitionCmd("approve", "Approve a pending project (moderators)"))
	prj.AddCommand(projectTransitionCmd("start", "Start work on a funded or flexible project (owner)"))
	prj.AddCommand(projectTransitionCmd("complete", "Complete an in-progress project (owner)"))
	prj.AddCommand(projectTransitionCmd("cancel", "Cancel a project (owner or moderator)"))
	prj.AddCommand(projectContributeCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectMilestoneCmd())
	return prj
}

func projectProposeCmd() *cobra.Command {
	var (
		title, goalType, milestones string
		goal                        float64
	)
	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Propose a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.ProposeProject(ctx, engine.ProposeOptions{
					Owner:      actorID(),
					Title:      title,
					GoalAmount: goal,
					GoalType:   domain.GoalType(goalType),
					Milestones: splitList(milestones),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "project title")
	cmd.Flags().Float64Var(&goal, "goal", 0, "funding goal")
	cmd.Flags().StringVar(&goalType, "goal-type", string(domain.GoalFixed), "fixed or flexible")
	cmd.Flags().StringVar(&milestones, "milestones", "", "comma-separated milestone names")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func projectTransitionCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <project-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var (
					p   domain.Fundable
					err error
				)
				switch action {
				case "approve":
					p, err = e.ApproveProject(ctx, actorID(), args[0])
				case "start":
					p, err = e.StartProject(ctx, actorID(), args[0])
				case "complete":
					p, err = e.CompleteProject(ctx, actorID(), args[0])
				case "cancel":
					p, err = e.CancelProject(ctx, actorID(), args[0])
				default:
					return fmt.Errorf("unknown action %q", action)
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func projectContributeCmd() *cobra.Command {
	var (
		amount    float64
		anonymous bool
		message   string
	)
	cmd := &cobra.Command{
		Use:   "contribute <project-id>",
		Short: "Contribute to an active or funded project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, c, err := e.Contribute(ctx, engine.ContributeOptions{
					Project:     args[0],
					Contributor: actorID(),
					Amount:      amount,
					Anonymous:   anonymous,
					Message:     message,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"project": p, "contribution": c})
				}
				fmt.Printf("Contribution %s recorded: %s raised %.2f of %.2f (%.1f%%, %s)\n",
					c.ID, p.ID, p.RaisedAmount, p.GoalAmount, p.FundingPercentage, p.Status)
				return nil
			})
		},
	}
	cmd.Flags().Float64Var(&amount, "amount", 0, "amount to contribute")
	cmd.Flags().BoolVar(&anonymous, "anonymous", false, "hide your id from other viewers")
	cmd.Flags().StringVarP(&message, "message", "m", "", "note to the owner")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func projectListCmd() *cobra.Command {
	var owner, status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListProjects(ctx, repo.FundableFilter{
					Owner:  owner,
					Status: domain.FundableStatus(status),
					Limit:  limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Title", "Owner", "Status", "Raised", "Goal", "%"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Title, p.Owner, p.Status, fmt.Sprintf("%.2f", p.RaisedAmount), fmt.Sprintf("%.2f", p.GoalAmount), fmt.Sprintf("%.1f", p.FundingPercentage)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func projectMilestoneCmd() *cobra.Command {
	ms := &cobra.Command{Use: "milestone", Short: "Project milestones (owner)"}
	add := &cobra.Command{
		Use:   "add <project-id> <name>",
		Short: "Add a milestone",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.AddMilestone(ctx, actorID(), args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	done := &cobra.Command{
		Use:   "complete <project-id> <name>",
		Short: "Mark a milestone complete",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CompleteMilestone(ctx, actorID(), args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	ms.AddCommand(add, done)
	return ms
}
