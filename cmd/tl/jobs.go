package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tally/internal/domain"
	"tally/internal/engine"
	"tally/internal/scoring"
)

func orgCmd() *cobra.Command {
	org := &cobra.Command{Use: "org", Short: "Organizations"}
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an organization owned by you",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.CreateOrg(ctx, actorID(), args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	var role string
	member := &cobra.Command{
		Use:   "add-member <org-id> <actor>",
		Short: "Add a member to an organization",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.AddOrgMember(ctx, actorID(), args[0], args[1], role)
			})
		},
	}
	member.Flags().StringVar(&role, "role", "member", "member role")
	org.AddCommand(create, member)
	return org
}

func jobCmd() *cobra.Command {
	job := &cobra.Command{Use: "job", Short: "Jobs and applications"}

	var title, skills string
	post := &cobra.Command{
		Use:   "post <org-id>",
		Short: "Post a job for an organization you belong to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				j, err := e.CreateJob(ctx, actorID(), args[0], title, splitList(skills))
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
	post.Flags().StringVar(&title, "title", "", "job title")
	post.Flags().StringVar(&skills, "skills", "", "comma-separated required skills")
	_ = post.MarkFlagRequired("title")

	var orgID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListJobs(ctx, orgID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Org", "Title", "Skills"})
				for _, j := range items {
					tw.AppendRow(table.Row{j.ID, j.Org, j.Title, strings.Join(j.RequiredSkills, ", ")})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&orgID, "org", "", "organization filter")

	var cover string
	apply := &cobra.Command{
		Use:   "apply <job-id>",
		Short: "Apply to a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Apply(ctx, actorID(), args[0], cover)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	apply.Flags().StringVar(&cover, "cover-letter", "", "cover letter")

	status := &cobra.Command{
		Use:   "status <application-id> <status>",
		Short: "Set an application's status (owning organization)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.UpdateApplicationStatus(ctx, actorID(), args[0], domain.ApplicationStatus(args[1]))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}

	candidates := &cobra.Command{
		Use:   "candidates <job-id>",
		Short: "Rank a job's applicants by skill match (owning organization)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.RankCandidates(ctx, actorID(), args[0])
				if err != nil {
					return err
				}
				return printMatches("Applicant", items)
			})
		},
	}

	job.AddCommand(post, list, apply, status, candidates)
	return job
}

func matchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "match",
		Short: "Jobs ranked by match with your profile skills",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.MatchJobsForActor(ctx, actorID())
				if err != nil {
					return err
				}
				return printMatches("Job", items)
			})
		},
	}
}

func printMatches(label string, items []scoring.Match) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{label, "Score", "Matched"})
	for _, m := range items {
		tw.AppendRow(table.Row{m.ID, fmt.Sprintf("%.1f", m.Score), strings.Join(m.Matched, ", ")})
	}
	tw.Render()
	return nil
}
