package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"opsportal/internal/app"
	"opsportal/internal/config"
	"opsportal/internal/db"
	"opsportal/internal/domain"
	"opsportal/internal/engine/auth"
)

var rootCmd = &cobra.Command{
	Use:   "portal",
	Short: "Ops portal CLI",
	Long: `portal drives orders, reports, feedback and services through their workflows.
- Workspace: a directory holding portal.yml and the .portal database.
- Identity: every command runs as --actor-id with --role (or PORTAL_ACTOR_ID / PORTAL_ROLE, also read from .env).
- Orders walk an approval chain one stage at a time; a rejection halts it.
- Admins archive, restore and delete anything; deleted entities are gone for everyone.
- Event log: every change is recorded, view it with 'portal log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	// .env in the workspace first, then the current directory. Existing
	// environment variables win.
	_ = godotenv.Load(envPath())
	_ = godotenv.Load()
	viper.SetEnvPrefix("PORTAL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "actor identifier")
	rootCmd.PersistentFlags().String("role", "", "actor role (admin, manager, contractor, customer, center, crew, warehouse)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("role", rootCmd.PersistentFlags().Lookup("role"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(entityCmd())
	rootCmd.AddCommand(canCmd())
	rootCmd.AddCommand(actionsCmd())
	rootCmd.AddCommand(actCmd())
	rootCmd.AddCommand(chainCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create portal.yml and the workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				fmt.Printf("%s already exists\n", path)
			} else {
				if name == "" {
					abs, _ := filepath.Abs(workspace)
					name = filepath.Base(abs)
				}
				if err := os.WriteFile(path, []byte(config.GenerateDefault(name)), 0o644); err != nil {
					return err
				}
				fmt.Printf("wrote %s\n", path)
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				fmt.Printf("database ready at %s\n", db.Path(workspace))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "portal name (defaults to the workspace directory name)")
	return cmd
}

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Remember --actor-id and --role in the workspace .env",
		RunE: func(cmd *cobra.Command, args []string) error {
			who, err := identity()
			if err != nil {
				return err
			}
			path := envPath()
			env, err := godotenv.Read(path)
			if err != nil {
				if !os.IsNotExist(err) {
					return err
				}
				env = map[string]string{}
			}
			env["PORTAL_ACTOR_ID"] = who.ActorID
			env["PORTAL_ROLE"] = string(who.Role)
			if err := godotenv.Write(env, path); err != nil {
				return err
			}
			fmt.Printf("acting as %s (%s); saved to %s\n", who.ActorID, who.Role, path)
			return nil
		},
	}
	return cmd
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			who, err := identity()
			if err != nil {
				return err
			}
			return printJSONOrTable(who)
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect portal.yml",
	}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate portal.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": errString(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	})
	return cfg
}

// --- helpers ---

func envPath() string {
	return filepath.Join(viper.GetString("workspace"), ".env")
}

// identity reads the caller from flags or PORTAL_ACTOR_ID / PORTAL_ROLE.
func identity() (domain.Identity, error) {
	actor := strings.TrimSpace(viper.GetString("actor-id"))
	role, ok := domain.ParseRole(viper.GetString("role"))
	if actor == "" || !ok {
		return domain.Identity{}, fmt.Errorf("%w: set --actor-id and --role, or run portal login", auth.ErrNoIdentity)
	}
	return domain.Identity{ActorID: actor, Role: role}, nil
}

func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	rt, err := app.Open(ctx, viper.GetString("workspace"), app.Options{})
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
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

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
