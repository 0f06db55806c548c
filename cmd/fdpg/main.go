package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/config"
	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/db"
	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/domain"
	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/engine"
	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/migrate"
	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/transition"
)

var rootCmd = &cobra.Command{
	Use:   "fdpg",
	Short: "FDPG proposal workflow CLI",
	Long: `fdpg drives research data access proposals through their lifecycle.
Core concepts:
- Proposal: one data access request, owned by a researcher, addressed to a set of locations.
- Status: the global stage (draft -> fdpg_check -> location_check -> contracting -> data delivery -> research -> archive).
- Location votes: each location runs its own DIZ check, UAC vote, optional conditional approval, and contract signature.
- Deadlines: one due date per phase; the active one schedules reminder events.
- Tasks: open items on the proposal (review complete, data amount reached, comments).
- Event log: append-only audit trail, view with 'fdpg log tail'.`,
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
	viper.SetEnvPrefix("FDPG")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("actor-role", "researcher", "actor role (researcher, fdpg_member, diz_member, uac_member)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("actor-role", rootCmd.PersistentFlags().Lookup("actor-role"))
}

func registerCommands() {
	rootCmd.AddCommand(proposalCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(voteCmd())
	rootCmd.AddCommand(contractCmd())
	rootCmd.AddCommand(deadlineCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(commentCmd())
	rootCmd.AddCommand(checklistCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
}

func actor() domain.Actor {
	return domain.Actor{
		ID:   viper.GetString("actor-id"),
		Role: domain.Role(viper.GetString("actor-role")),
	}
}

func proposalCmd() *cobra.Command {
	prop := &cobra.Command{Use: "proposal", Short: "Manage proposals"}
	prop.AddCommand(proposalCreateCmd())
	prop.AddCommand(proposalListCmd())
	prop.AddCommand(proposalShowCmd())
	prop.AddCommand(proposalLockCmd())
	prop.AddCommand(proposalUnlockCmd())
	return prop
}

func proposalCreateCmd() *cobra.Command {
	var opts engine.CreateOptions
	var locations []string
	var startAt string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a proposal",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Locations = locations
			if startAt != "" {
				t, err := time.Parse("2006-01-02", startAt)
				if err != nil {
					return fmt.Errorf("invalid --project-start: %w", err)
				}
				opts.ProjectStartAt = &t
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProposal(ctx, opts, actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "proposal id (optional, UUID if omitted)")
	cmd.Flags().StringVar(&opts.ProjectAbbreviation, "abbreviation", "", "project abbreviation")
	cmd.Flags().StringVar(&opts.OwnerID, "owner-id", "", "owner id (defaults to actor)")
	cmd.Flags().StringArrayVar(&locations, "location", []string{}, "requested location (repeatable)")
	cmd.Flags().StringVar(&startAt, "project-start", "", "planned project start (YYYY-MM-DD)")
	cmd.Flags().IntVar(&opts.ProjectDurationMonths, "duration-months", 0, "planned project duration in months")
	_ = cmd.MarkFlagRequired("abbreviation")
	return cmd
}

func proposalListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List proposals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListProposals(ctx, domain.Status(status))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Abbreviation", "Status", "Locked", "Updated"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID, it.ProjectAbbreviation, it.Status, it.IsLocked, it.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func proposalShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GetProposal(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func proposalLockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock <id>",
		Short: "Lock a proposal against mutation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.SetLocked(ctx, args[0], actor(), true)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func proposalUnlockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unlock <id>",
		Short: "Unlock a proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.SetLocked(ctx, args[0], actor(), false)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func statusCmd() *cobra.Command {
	st := &cobra.Command{Use: "status", Short: "Global status transitions"}
	st.AddCommand(statusSetCmd())
	st.AddCommand(statusCheckCmd())
	st.AddCommand(statusTargetsCmd())
	st.AddCommand(contractingInitCmd())
	return st
}

func statusSetCmd() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "set <id>",
		Short: "Set proposal status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.SetStatus(ctx, args[0], domain.Status(target), actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&target, "to", "", "target status")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func statusCheckCmd() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "check <id>",
		Short: "Check whether a transition would be allowed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.ValidateTransition(ctx, args[0], domain.Status(target), actor())
			})
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("transition OK")
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "to", "", "target status")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func statusTargetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "targets <id>",
		Short: "List statuses reachable from the current one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GetProposal(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(transition.Targets(p.Status))
			})
		},
	}
	return cmd
}

func contractingInitCmd() *cobra.Command {
	var locations []string
	cmd := &cobra.Command{
		Use:   "init-contracting <id>",
		Short: "Move to contracting with the selected locations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.InitContracting(ctx, args[0], actor(), locations)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringArrayVar(&locations, "location", []string{}, "selected location (repeatable)")
	return cmd
}

func voteCmd() *cobra.Command {
	vote := &cobra.Command{Use: "vote", Short: "Location votes during location check"}
	vote.AddCommand(voteCheckCmd())
	vote.AddCommand(voteCastCmd())
	vote.AddCommand(voteConditionCmd())
	vote.AddCommand(voteReviewCmd())
	vote.AddCommand(voteRevertCmd())
	return vote
}

func voteCheckCmd() *cobra.Command {
	var location, reason string
	var decline bool
	cmd := &cobra.Command{
		Use:   "check <id>",
		Short: "Record a DIZ plausibility check for a location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CheckLocation(ctx, args[0], actor(), location, !decline, reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&location, "location", "", "location identifier")
	cmd.Flags().BoolVar(&decline, "decline", false, "fail the check")
	cmd.Flags().StringVar(&reason, "reason", "", "decline reason")
	_ = cmd.MarkFlagRequired("location")
	return cmd
}

func voteCastCmd() *cobra.Command {
	var location, reason string
	var decline bool
	var dataAmount int
	cmd := &cobra.Command{
		Use:   "cast <id>",
		Short: "Record a location's UAC vote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.RecordInitialApproval(ctx, args[0], actor(), location, !decline, dataAmount, reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&location, "location", "", "location identifier")
	cmd.Flags().BoolVar(&decline, "decline", false, "decline instead of approve")
	cmd.Flags().IntVar(&dataAmount, "data-amount", 0, "promised data amount")
	cmd.Flags().StringVar(&reason, "reason", "", "decline reason")
	_ = cmd.MarkFlagRequired("location")
	return cmd
}

func voteConditionCmd() *cobra.Command {
	var location, reasoning, uploadID string
	var dataAmount int
	cmd := &cobra.Command{
		Use:   "condition <id>",
		Short: "Record a conditional approval for a location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, conditionID, err := e.RecordConditionalApproval(ctx, args[0], actor(), location, dataAmount, reasoning, uploadID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"condition_id": conditionID, "proposal": p})
				}
				fmt.Println("condition:", conditionID)
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&location, "location", "", "location identifier")
	cmd.Flags().IntVar(&dataAmount, "data-amount", 0, "promised data amount")
	cmd.Flags().StringVar(&reasoning, "reasoning", "", "condition reasoning")
	cmd.Flags().StringVar(&uploadID, "upload-id", "", "attached document id")
	_ = cmd.MarkFlagRequired("location")
	return cmd
}

func voteReviewCmd() *cobra.Command {
	var conditionID string
	var decline bool
	cmd := &cobra.Command{
		Use:   "review <id>",
		Short: "Accept or decline a pending condition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.ReviewCondition(ctx, args[0], actor(), conditionID, !decline)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&conditionID, "condition", "", "condition id")
	cmd.Flags().BoolVar(&decline, "decline", false, "decline the condition")
	_ = cmd.MarkFlagRequired("condition")
	return cmd
}

func voteRevertCmd() *cobra.Command {
	var location string
	cmd := &cobra.Command{
		Use:   "revert <id>",
		Short: "Revert a location's vote back to the open check pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.RevertVote(ctx, args[0], actor(), location)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&location, "location", "", "location identifier")
	_ = cmd.MarkFlagRequired("location")
	return cmd
}

func contractCmd() *cobra.Command {
	c := &cobra.Command{Use: "contract", Short: "Contract signatures during contracting"}
	c.AddCommand(contractSignLocationCmd())
	c.AddCommand(contractSignResearcherCmd())
	return c
}

func contractSignLocationCmd() *cobra.Command {
	var location, reason string
	var decline bool
	cmd := &cobra.Command{
		Use:   "sign-location <id>",
		Short: "Record a location's contract decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.SignContractForLocation(ctx, args[0], actor(), location, !decline, reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&location, "location", "", "location identifier")
	cmd.Flags().BoolVar(&decline, "decline", false, "decline the contract")
	cmd.Flags().StringVar(&reason, "reason", "", "decline reason")
	_ = cmd.MarkFlagRequired("location")
	return cmd
}

func contractSignResearcherCmd() *cobra.Command {
	var reason string
	var reject bool
	cmd := &cobra.Command{
		Use:   "sign-researcher <id>",
		Short: "Record the researcher's contract decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.SignContractForResearcher(ctx, args[0], actor(), !reject, reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().BoolVar(&reject, "reject", false, "reject the contract")
	cmd.Flags().StringVar(&reason, "reason", "", "rejection reason")
	return cmd
}

func deadlineCmd() *cobra.Command {
	d := &cobra.Command{Use: "deadline", Short: "Manage deadlines"}
	d.AddCommand(deadlineSetCmd())
	d.AddCommand(deadlineDueCmd())
	return d
}

func deadlineSetCmd() *cobra.Command {
	var kind, date string
	var clear bool
	cmd := &cobra.Command{
		Use:   "set <id>",
		Short: "Set or clear one deadline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var due *time.Time
			if !clear {
				if date == "" {
					return fmt.Errorf("--date or --clear required")
				}
				t, err := time.Parse("2006-01-02", date)
				if err != nil {
					return fmt.Errorf("invalid --date: %w", err)
				}
				due = &t
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.SetDeadline(ctx, args[0], actor(), domain.DeadlineKind(kind), due)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "deadline kind")
	cmd.Flags().StringVar(&date, "date", "", "due date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&clear, "clear", false, "clear the deadline")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func deadlineDueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "due-reached <id>",
		Short: "Mark the active due date as reached",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.MarkDueDateReached(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	t := &cobra.Command{Use: "task", Short: "Open tasks on a proposal"}
	t.AddCommand(taskListCmd())
	return t
}

func taskListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <id>",
		Short: "List open tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GetProposal(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p.OpenTasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Kind", "Location", "Message"})
				for _, t := range p.OpenTasks {
					tw.AppendRow(table.Row{t.ID, t.Kind, t.Location, t.Message})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func commentCmd() *cobra.Command {
	c := &cobra.Command{Use: "comment", Short: "Comment tasks"}
	c.AddCommand(commentAddCmd())
	c.AddCommand(commentResolveCmd())
	return c
}

func commentAddCmd() *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Add a comment task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, taskID, err := e.AddComment(ctx, args[0], actor(), message)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"task_id": taskID, "proposal": p})
				}
				fmt.Println("comment:", taskID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&message, "message", "", "comment text")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func commentResolveCmd() *cobra.Command {
	var taskID string
	cmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Resolve a comment task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.ResolveComment(ctx, args[0], actor(), taskID)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&taskID, "task", "", "comment task id")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func checklistCmd() *cobra.Command {
	c := &cobra.Command{Use: "checklist", Short: "FDPG review checklist"}
	c.AddCommand(checklistShowCmd())
	c.AddCommand(checklistMarkCmd())
	return c
}

func checklistShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show the review checklist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GetProposal(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p.FdpgChecklist)
			})
		},
	}
	return cmd
}

func checklistMarkCmd() *cobra.Command {
	var item string
	var undone bool
	cmd := &cobra.Command{
		Use:   "mark <id>",
		Short: "Mark a checklist item done or undone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.MarkChecklistItem(ctx, args[0], actor(), item, !undone)
				if err != nil {
					return err
				}
				return printJSONOrTable(p.FdpgChecklist)
			})
		},
	}
	cmd.Flags().StringVar(&item, "item", "", "checklist item id")
	cmd.Flags().BoolVar(&undone, "undone", false, "mark the item undone")
	_ = cmd.MarkFlagRequired("item")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Inspect workspace config"}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default fdpg.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate fdpg.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err == nil {
				err = cfg.Validate()
			}
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
	return cmd
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Audit event log"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var proposalID, evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail audit events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.LatestEvents(ctx, n, proposalID, evtType)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&proposalID, "proposal", "", "proposal filter")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
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
	cfg, err := config.LoadOptional(workspace)
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
