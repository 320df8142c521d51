package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tally/internal/domain"
	"tally/internal/engine"
)

func connectCmd() *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "connect <actor>",
		Short: "Request a connection with another actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				edge, err := e.Connect(ctx, actorID(), args[0], message)
				if err != nil {
					return err
				}
				return printJSONOrTable(edge)
			})
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "note for the other party")
	return cmd
}

func acceptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accept <edge-id>",
		Short: "Accept a pending connection addressed to you",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				edge, err := e.AcceptConnection(ctx, actorID(), args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(edge)
			})
		},
	}
}

func connectionsCmd() *cobra.Command {
	var view string
	cmd := &cobra.Command{
		Use:   "connections",
		Short: "List your connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				me := actorID()
				var (
					edges []domain.Edge
					err   error
				)
				switch view {
				case "accepted":
					edges, err = e.Connections(ctx, me)
				case "pending":
					edges, err = e.PendingRequests(ctx, me)
				case "sent":
					edges, err = e.SentRequests(ctx, me)
				default:
					return fmt.Errorf("unknown view %q (accepted, pending, sent)", view)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(edges)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "With", "Initiator", "Status", "Created"})
				for _, edge := range edges {
					tw.AppendRow(table.Row{edge.ID, edge.Other(me), edge.Initiator, edge.Status, edge.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&view, "view", "accepted", "accepted, pending (addressed to you) or sent")
	return cmd
}

func endorseCmd() *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "endorse <actor> <skill>",
		Short: "Endorse a connection's skill",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				en, err := e.Endorse(ctx, actorID(), args[0], args[1], message)
				if err != nil {
					return err
				}
				return printJSONOrTable(en)
			})
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "endorsement note")
	return cmd
}

func messageCmd() *cobra.Command {
	msg := &cobra.Command{Use: "message", Short: "Direct messages between connections"}
	send := &cobra.Command{
		Use:   "send <actor> <content>",
		Short: "Message a connected actor",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.SendMessage(ctx, actorID(), args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	show := &cobra.Command{
		Use:   "show <actor>",
		Short: "Show your conversation with an actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Conversation(ctx, actorID(), args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"At", "From", "Content"})
				for _, m := range items {
					tw.AppendRow(table.Row{m.CreatedAt, m.Sender, m.Content})
				}
				tw.Render()
				return nil
			})
		},
	}
	msg.AddCommand(send, show)
	return msg
}

func profileCmd() *cobra.Command {
	prof := &cobra.Command{Use: "profile", Short: "Actor profiles and skills"}
	var name, skills string
	set := &cobra.Command{
		Use:   "set",
		Short: "Set your display name and skills",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.SetProfile(ctx, actorID(), name, splitList(skills))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	set.Flags().StringVar(&name, "name", "", "display name")
	set.Flags().StringVar(&skills, "skills", "", "comma-separated skills")
	show := &cobra.Command{
		Use:   "show [actor]",
		Short: "Show a profile",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := actorID()
			if len(args) == 1 {
				target = args[0]
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GetProfile(ctx, target)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	prof.AddCommand(set, show)
	return prof
}
