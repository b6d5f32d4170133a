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

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"courtside/internal/compat"
	"courtside/internal/config"
	"courtside/internal/db"
	"courtside/internal/domain"
	"courtside/internal/engine"
	"courtside/internal/migrate"
	"courtside/internal/repo"
	"courtside/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "cs",
	Short: "Courtside CLI",
	Long: `Courtside recruits players for matches before any field is booked.
- Workspace: your .courtside directory holding the database; optional courtside.yml configures the scoring provider and broadcast hooks.
- Draft match: a match idea with a time window and a number of needed players; it recruits until full, then converts into a confirmed match.
- Interest: players apply, the creator approves or rejects; approvals are capped at the slot count.
- Conflicts: every application is checked against the player's existing draft matches, confirmed matches, and bookings.
- Event log: diary of changes, view with 'cs log tail'.`,
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
	viper.SetEnvPrefix("COURTSIDE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(matchCmd())
	rootCmd.AddCommand(interestCmd())
	rootCmd.AddCommand(conflictsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users"}
	user.AddCommand(userCreateCmd())
	user.AddCommand(userShowCmd())
	return user
}

func userCreateCmd() *cobra.Command {
	var id, name string
	var tags []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if id == "" {
					id = uuid.NewString()
				}
				u := domain.User{ID: id, Name: name, Tags: tags, CreatedAt: time.Now().UTC().Format(time.RFC3339)}
				if err := e.Repo.InsertUser(ctx, u); err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "user id (generated when omitted)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringArrayVar(&tags, "tag", []string{}, "skill/position tag (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func userShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.Repo.GetUser(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	return cmd
}

func matchCmd() *cobra.Command {
	match := &cobra.Command{Use: "match", Short: "Manage draft matches"}
	match.AddCommand(matchCreateCmd())
	match.AddCommand(matchListCmd())
	match.AddCommand(matchShowCmd())
	match.AddCommand(matchUpdateCmd())
	match.AddCommand(matchLockCmd())
	match.AddCommand(matchBookCmd())
	match.AddCommand(matchConvertCmd())
	match.AddCommand(matchCancelCmd())
	return match
}

func matchCreateCmd() *cobra.Command {
	var opts engine.DraftMatchCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create draft match",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.CreatorID = viper.GetString("actor-id")
				m, err := e.CreateDraftMatch(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "match id (generated when omitted)")
	cmd.Flags().StringVar(&opts.Sport, "sport", "", "sport")
	cmd.Flags().StringVar(&opts.SkillLevel, "skill-level", "", "skill level")
	cmd.Flags().StringVar(&opts.LocationText, "location", "", "free-form location")
	cmd.Flags().StringVar(&opts.StartsAt, "starts-at", "", "start time (RFC3339)")
	cmd.Flags().StringVar(&opts.EndsAt, "ends-at", "", "end time (RFC3339)")
	cmd.Flags().IntVar(&opts.SlotsNeeded, "slots", 0, "players needed beyond the creator")
	cmd.Flags().StringArrayVar(&opts.RequiredTags, "require-tag", []string{}, "required tag (repeatable)")
	_ = cmd.MarkFlagRequired("sport")
	_ = cmd.MarkFlagRequired("starts-at")
	_ = cmd.MarkFlagRequired("ends-at")
	_ = cmd.MarkFlagRequired("slots")
	return cmd
}

func matchListCmd() *cobra.Command {
	var f repo.DraftMatchFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List draft matches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				matches, err := e.Repo.ListDraftMatches(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(matches)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Sport", "Status", "Starts", "Slots", "Creator"})
				for _, m := range matches {
					tw.AppendRow(table.Row{m.ID, m.Sport, m.Status, m.StartsAt, m.SlotsNeeded, m.CreatorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.CreatorID, "creator", "", "creator filter")
	cmd.Flags().StringVar(&f.Sport, "sport", "", "sport filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max results")
	return cmd
}

func matchShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a draft match with its participants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.Repo.GetDraftMatch(ctx, args[0])
				if err != nil {
					return err
				}
				parts, err := e.Repo.ListParticipants(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"match": m, "participants": parts})
			})
		},
	}
	return cmd
}

func matchUpdateCmd() *cobra.Command {
	var sport, skill, location, startsAt, endsAt string
	var slots int
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a draft match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var patch engine.DraftMatchPatch
				if cmd.Flags().Changed("sport") {
					patch.Sport = &sport
				}
				if cmd.Flags().Changed("skill-level") {
					patch.SkillLevel = &skill
				}
				if cmd.Flags().Changed("location") {
					patch.LocationText = &location
				}
				if cmd.Flags().Changed("starts-at") {
					patch.StartsAt = &startsAt
				}
				if cmd.Flags().Changed("ends-at") {
					patch.EndsAt = &endsAt
				}
				if cmd.Flags().Changed("slots") {
					patch.SlotsNeeded = &slots
				}
				m, err := e.UpdateDraftMatch(ctx, args[0], patch, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&sport, "sport", "", "sport")
	cmd.Flags().StringVar(&skill, "skill-level", "", "skill level")
	cmd.Flags().StringVar(&location, "location", "", "free-form location")
	cmd.Flags().StringVar(&startsAt, "starts-at", "", "start time (RFC3339)")
	cmd.Flags().StringVar(&endsAt, "ends-at", "", "end time (RFC3339)")
	cmd.Flags().IntVar(&slots, "slots", 0, "players needed")
	return cmd
}

func matchLockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock <id>",
		Short: "Freeze recruitment while arranging the booking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.InitiateLock(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	return cmd
}

func matchBookCmd() *cobra.Command {
	var fieldID string
	cmd := &cobra.Command{
		Use:   "book <id>",
		Short: "Initiate the field booking for a locked match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.InitiateBooking(ctx, args[0], viper.GetString("actor-id"), fieldID)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&fieldID, "field", "", "target field id")
	return cmd
}

func matchConvertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert <id>",
		Short: "Convert a filled draft match into a confirmed match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.Convert(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	return cmd
}

func matchCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a draft match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.CancelDraftMatch(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	return cmd
}

func interestCmd() *cobra.Command {
	interest := &cobra.Command{Use: "interest", Short: "Interest and approvals"}
	interest.AddCommand(interestExpressCmd())
	interest.AddCommand(interestWithdrawCmd())
	interest.AddCommand(interestDecideCmd("approve", "Approve a pending participant", true))
	interest.AddCommand(interestDecideCmd("reject", "Reject a pending participant", false))
	interest.AddCommand(interestRemoveCmd())
	return interest
}

func interestExpressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "express <match-id>",
		Short: "Express interest in a match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, report, err := e.ExpressInterest(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"participant": p, "conflicts": report})
			})
		},
	}
	return cmd
}

func interestWithdrawCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "withdraw <match-id>",
		Short: "Withdraw interest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Withdraw(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func interestDecideCmd(use, short string, approve bool) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   use + " <match-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Decide(ctx, args[0], userID, viper.GetString("actor-id"), approve)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "participant user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func interestRemoveCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "remove <match-id>",
		Short: "Remove an approved participant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RemoveApproved(ctx, args[0], userID, viper.GetString("actor-id"))
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "participant user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func conflictsCmd() *cobra.Command {
	var startsAt, endsAt, exclude string
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Check a time window against the actor's commitments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				report, err := e.CheckConflicts(ctx, viper.GetString("actor-id"), startsAt, endsAt, exclude)
				if err != nil {
					return err
				}
				return printJSONOrTable(report)
			})
		},
	}
	cmd.Flags().StringVar(&startsAt, "starts-at", "", "start time (RFC3339)")
	cmd.Flags().StringVar(&endsAt, "ends-at", "", "end time (RFC3339)")
	cmd.Flags().StringVar(&exclude, "exclude", "", "entity id to exclude")
	_ = cmd.MarkFlagRequired("starts-at")
	_ = cmd.MarkFlagRequired("ends-at")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: match changes, applications, decisions, and more.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, topic, recipient string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, repo.EventFilters{
					Topic:       topic,
					Type:        evtType,
					RecipientID: recipient,
					Limit:       n,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&topic, "topic", "", "match topic filter")
	cmd.Flags().StringVar(&recipient, "recipient", "", "recipient filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:              cfg.Auth.JWTSecret,
				AllowLegacyActorHeader: cfg.Auth.AllowActorHeader,
			}
			if secret := os.Getenv("COURTSIDE_JWT_SECRET"); secret != "" {
				authCfg.JWTSecret = secret
			}
			if authCfg.JWTSecret == "" && !authCfg.AllowLegacyActorHeader {
				return fmt.Errorf("COURTSIDE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Engine:   e,
				Compat:   compat.NewFromConfig(cfg),
				BasePath: basePath,
				Auth:     authCfg,
			})
			if err != nil {
				return err
			}
			server.StartBroadcast(e)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Courtside API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
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
