package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"opsportal/internal/actions"
	"opsportal/internal/app"
	"opsportal/internal/domain"
	"opsportal/internal/engine"
	"opsportal/internal/engine/auth"
	"opsportal/internal/gateway"
	"opsportal/internal/policy"
	"opsportal/internal/repo"
	"opsportal/internal/workflow"
)

func entityCmd() *cobra.Command {
	ent := &cobra.Command{Use: "entity", Short: "Create and inspect entities"}
	ent.AddCommand(entityCreateCmd())
	ent.AddCommand(entityListCmd())
	ent.AddCommand(entityShowCmd())
	return ent
}

func parseKind(s string) (domain.EntityKind, error) {
	kind, ok := domain.ParseKind(s)
	if !ok {
		return "", fmt.Errorf("unknown entity kind %q (order, report, feedback, service)", s)
	}
	return kind, nil
}

func entityCreateCmd() *cobra.Command {
	var kindName, id, data string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an entity",
		Example: `  portal entity create --kind order --data '{"order_type":"product","assigned_warehouse":"WHS-1"}'
  portal entity create --kind report --data '{"required_acknowledgers":["MGR-1","CON-1"]}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			who, err := identity()
			if err != nil {
				return err
			}
			kind, err := parseKind(kindName)
			if err != nil {
				return err
			}
			payload, err := domain.NewData(kind)
			if err != nil {
				return err
			}
			if data != "" {
				if err := json.Unmarshal([]byte(data), payload); err != nil {
					return fmt.Errorf("invalid --data: %w", err)
				}
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				ent, err := rt.Engine.CreateEntity(ctx, engine.CreateOptions{ID: id, Kind: kind, Data: payload, Actor: who})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ent)
				}
				fmt.Printf("created %s %s (%s)\n", ent.Kind, ent.ID, ent.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kindName, "kind", "", "order, report, feedback or service")
	cmd.Flags().StringVar(&id, "id", "", "entity id (generated when empty)")
	cmd.Flags().StringVar(&data, "data", "", "kind-specific data as JSON")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func entityListCmd() *cobra.Command {
	var f repo.EntityFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List entities visible to the current identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			who, err := identity()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items, err := rt.Engine.Repo.ListEntities(ctx, f)
				if err != nil {
					return err
				}
				visible := make([]domain.Entity, 0, len(items))
				for _, ent := range items {
					if policy.Can(ent.Kind, domain.ActionView, who.Role, policy.For(&ent, who.ActorID)) {
						visible = append(visible, ent)
					}
				}
				if viper.GetBool("json") {
					return printJSON(visible)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Kind", "Status", "State", "Updated"})
				for _, ent := range visible {
					tw.AppendRow(table.Row{ent.ID, ent.Kind, ent.Status, ent.State(), ent.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Kind, "kind", "", "kind filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.State, "state", "", "lifecycle state filter")
	cmd.Flags().StringVar(&f.ParentID, "parent", "", "parent entity id (services of an order)")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum rows")
	return cmd
}

// openView runs the gateway for the current identity.
func openView(ctx context.Context, rt *app.Runtime, gw *gateway.Gateway, who domain.Identity, prompter gateway.Prompter, kindName, id string) (*gateway.View, error) {
	kind, err := parseKind(kindName)
	if err != nil {
		return nil, err
	}
	session := rt.Engine.Session(who)
	view, err := gw.Open(ctx, gateway.Collaborators{
		Identity: who,
		Fetcher:  session,
		Executor: session,
		Prompter: prompter,
	}, kind, id)
	if err != nil {
		return nil, err
	}
	if view == nil {
		return nil, fmt.Errorf("%s %s: %w", kind, id, repo.ErrNotFound)
	}
	return view, nil
}

func entityShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <kind> <id>",
		Short: "Show an entity with its sections, tabs and actions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			who, err := identity()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				view, err := openView(ctx, rt, rt.Gateway(), who, nil, args[0], args[1])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(view)
				}
				ent := view.Entity
				fmt.Printf("%s %s  status=%s  state=%s\n", ent.Kind, ent.ID, ent.Status, ent.State())
				fmt.Printf("sections: %s\n", regionIDs(view.Sections))
				fmt.Printf("tabs:     %s\n", regionIDs(view.Tabs))
				printDescriptors(view.Descriptors)
				if len(view.Chain) > 0 {
					printChain(view.Chain)
				}
				return nil
			})
		},
	}
	return cmd
}

func canCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "can <kind> <id> <action>",
		Short: "Check whether the current identity may perform an action",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			who, err := identity()
			if err != nil {
				return err
			}
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				ent, err := rt.Engine.Session(who).Fetch(ctx, kind, args[1])
				if err != nil {
					return err
				}
				if ent == nil {
					return repo.ErrNotFound
				}
				action := domain.Action(strings.ToLower(args[2]))
				allowed := policy.Can(kind, action, who.Role, policy.For(ent, who.ActorID))
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"allowed":   allowed,
						"action":    action,
						"available": auth.Permissions(*ent, who),
					})
				}
				fmt.Println(allowed)
				return nil
			})
		},
	}
	return cmd
}

func actionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actions <kind> <id>",
		Short: "List the actions offered to the current identity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			who, err := identity()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				view, err := openView(ctx, rt, rt.Gateway(), who, nil, args[0], args[1])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(view.Descriptors)
				}
				printDescriptors(view.Descriptors)
				return nil
			})
		},
	}
	return cmd
}

func actCmd() *cobra.Command {
	var yes bool
	var notes string
	cmd := &cobra.Command{
		Use:   "act <kind> <id> <action>",
		Short: "Run an offered action, confirming and prompting on the terminal",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			who, err := identity()
			if err != nil {
				return err
			}
			prompter := newLinePrompter(os.Stdin, os.Stderr)
			prompter.assumeYes = yes
			if cmd.Flags().Changed("notes") {
				prompter.notes = &notes
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				view, err := openView(ctx, rt, rt.Gateway(), who, prompter, args[0], args[1])
				if err != nil {
					return err
				}
				key := actions.LabelKey(args[2])
				action, ok := view.Action(key)
				if !ok {
					return fmt.Errorf("%s is not offered on %s %s; offered: %s", key, view.Entity.Kind, view.Entity.ID, descriptorKeys(view.Descriptors))
				}
				outcome, err := action.Run(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"outcome": outcome, "entity_id": view.Entity.ID, "action": key})
				}
				switch outcome {
				case gateway.OutcomeCompleted:
					fmt.Printf("%s: done\n", action.Label)
				case gateway.OutcomeDeclined:
					fmt.Printf("%s: not run\n", action.Label)
				default:
					fmt.Printf("%s: %s\n", action.Label, outcome)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "answer yes to confirmations")
	cmd.Flags().StringVar(&notes, "notes", "", "answer to the action's prompt")
	return cmd
}

func chainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chain <order-id>",
		Short: "Show an order's approval chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			who, err := identity()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				ent, err := rt.Engine.Session(who).Fetch(ctx, domain.KindOrder, args[0])
				if err != nil {
					return err
				}
				if ent == nil {
					return repo.ErrNotFound
				}
				order, ok := ent.Order()
				if !ok {
					return errors.New("entity has no order data")
				}
				stages := workflow.ViewFor(order.Approvals, who.Role)
				if viper.GetBool("json") {
					return printJSON(stages)
				}
				printChain(stages)
				return nil
			})
		},
	}
	return cmd
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <kind>",
		Short: "Count entities of a kind by status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				counts, err := rt.Engine.Repo.CountByStatus(ctx, string(kind))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Status", "Count"})
				for status, n := range counts {
					tw.AppendRow(table.Row{status, n})
				}
				tw.SortBy([]table.SortBy{{Name: "Status", Mode: table.Asc}})
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func printDescriptors(ds []domain.ActionDescriptor) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Key", "Label", "Variant", "Confirm", "Prompt"})
	for _, d := range ds {
		tw.AppendRow(table.Row{d.Key, d.Label, d.Variant, d.Confirm, d.Prompt})
	}
	tw.Render()
}

func printChain(stages []workflow.StageView) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"#", "Role", "Status", "Actor", "Yours"})
	for i, s := range stages {
		mark := ""
		if s.Actionable {
			mark = "*"
		}
		tw.AppendRow(table.Row{i + 1, s.Role, s.Status, s.ActorID, mark})
	}
	tw.Render()
}

func regionIDs(rs []policy.Region) string {
	ids := make([]string, 0, len(rs))
	for _, r := range rs {
		ids = append(ids, r.ID)
	}
	return strings.Join(ids, ", ")
}

func descriptorKeys(ds []domain.ActionDescriptor) string {
	if len(ds) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(ds))
	for _, d := range ds {
		keys = append(keys, d.Key)
	}
	return strings.Join(keys, ", ")
}
