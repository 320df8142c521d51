package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	_ "go.uber.org/automaxprocs"

	"tally/internal/app"
	"tally/internal/config"
	"tally/internal/db"
	"tally/internal/engine"
	"tally/internal/repo"
	"tally/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "tl",
	Short: "Tally CLI",
	Long: `Tally keeps the shared ledger of a civic community.
- Connections: actors connect; the other party accepts. One edge per pair.
- Projects: proposed, approved by a moderator, funded by contributions, then run to completion.
- Policies: drafted, opened for feedback and votes, reviewed, then approved or rejected.
- Participation: activities earn points; points decide the tier.
- Jobs: organizations post jobs; applicants are ranked by skill match.
- Journal: every accepted command, view with 'tl log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TALLY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("log-mode", "", "log mode (dev or prod); defaults to log.mode in tally.yml")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("log-mode", rootCmd.PersistentFlags().Lookup("log-mode"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(connectCmd())
	rootCmd.AddCommand(acceptCmd())
	rootCmd.AddCommand(connectionsCmd())
	rootCmd.AddCommand(endorseCmd())
	rootCmd.AddCommand(messageCmd())
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(policyCmd())
	rootCmd.AddCommand(pointsCmd())
	rootCmd.AddCommand(orgCmd())
	rootCmd.AddCommand(jobCmd())
	rootCmd.AddCommand(matchCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(roleCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func actorID() string {
	return viper.GetString("actor-id")
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create tally.yml and the workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if viper.GetBool("json") {
					return printJSON(map[string]any{"config": path})
				}
				fmt.Printf("Initialized %s\n", path)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing tally.yml")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect the ledger config",
		Long:  "Config is the reward table, tier bounds, moderators and ledger retry budget. tally.yml in the workspace wins over the copy stored in the database.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the active config",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Config.Validate()
			})
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Ledger journal",
		Long:  "Every accepted command appends one journal entry in the same transaction as its state change.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var (
		n                        int
		evtType, kind, aggregate string
		byActor                  string
	)
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest journal entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Journal(ctx, repo.EventFilter{
					Type:          evtType,
					AggregateKind: kind,
					AggregateID:   aggregate,
					ActorID:       byActor,
					Limit:         n,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Aggregate", "Actor"})
				for _, ev := range events {
					tw.AppendRow(table.Row{ev.ID, ev.TS, ev.Type, ev.AggregateKind + ":" + ev.AggregateID, ev.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&kind, "aggregate-kind", "", "aggregate kind filter")
	cmd.Flags().StringVar(&aggregate, "aggregate-id", "", "aggregate id filter")
	cmd.Flags().StringVar(&byActor, "by", "", "actor filter")
	return cmd
}

func roleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Grant or revoke stored roles",
	}
	for _, grant := range []bool{true, false} {
		var target, role string
		use, short := "grant", "Grant a role to an actor"
		if !grant {
			use, short = "revoke", "Revoke a role from an actor"
		}
		sub := &cobra.Command{
			Use:   use,
			Short: short,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
					if err := e.Auth.RequireModerator(ctx, actorID()); err != nil {
						return err
					}
					if grant {
						return e.GrantRole(ctx, target, role)
					}
					return e.RevokeRole(ctx, target, role)
				})
			},
		}
		sub.Flags().StringVar(&target, "actor", "", "actor id")
		sub.Flags().StringVar(&role, "role", "moderator", "role id")
		_ = sub.MarkFlagRequired("actor")
		cmd.AddCommand(sub)
	}
	return cmd
}

func apiKeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				key, rec, err := e.CreateAPIKey(ctx, actorID(), name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": rec.ID, "name": rec.Name, "key": key})
				}
				fmt.Printf("API key %s created; it is shown once:\n%s\n", rec.ID, key)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "key name")
	cmd.AddCommand(create)
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devLogin, actorHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			authCfg := server.AuthConfig{
				JWTSecret:        os.Getenv("TALLY_JWT_SECRET"),
				AllowActorHeader: actorHeader,
				DevLogin:         devLogin,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("TALLY_JWT_SECRET is required for bearer auth")
			}
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			rt, err := openRuntime(cmd.Context(), reg)
			if err != nil {
				return err
			}
			defer rt.Close()
			handler, err := server.New(server.Config{
				Engine:   rt.Engine,
				BasePath: basePath,
				Auth:     authCfg,
				Log:      rt.Log,
				Gatherer: reg,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			rt.Log.Info("serving tally api", "addr", addr, "base_path", basePath, "dev_login", devLogin)
			fmt.Printf("Serving Tally API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs, metrics at /metrics)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "expose POST /auth/dev/login (development only)")
	cmd.Flags().BoolVar(&actorHeader, "allow-actor-header", false, "trust the X-Actor-Id header (development only)")
	return cmd
}

// --- helpers ---

func openRuntime(ctx context.Context, reg prometheus.Registerer) (*app.Runtime, error) {
	return app.Open(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		LogMode:   viper.GetString("log-mode"),
		Registry:  reg,
	})
}

func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	rt, err := openRuntime(ctx, nil)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withRuntime(ctx, func(ctx context.Context, rt *app.Runtime) error {
		return fn(ctx, rt.Engine)
	})
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	return tw
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
