package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"opsportal/internal/app"
	"opsportal/internal/server"
)

func logCmd() *cobra.Command {
	lg := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				events, err := rt.Engine.Repo.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Actor", "Payload"})
				for _, e := range events {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityKind + " " + e.EntityID, e.ActorID, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		Long: `Serves the portal API. Callers authenticate with a bearer JWT signed with
PORTAL_JWT_SECRET (claims: sub, role). When server.allow_legacy_headers is set,
X-Actor-Id and X-Role are accepted without a token.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				cfg := rt.Config.Server
				if !cmd.Flags().Changed("addr") {
					addr = cfg.Addr
				}
				if !cmd.Flags().Changed("base-path") && cfg.BasePath != "" {
					basePath = cfg.BasePath
				}
				authCfg := server.AuthConfig{
					JWTSecret:          viper.GetString("jwt-secret"),
					AllowLegacyHeaders: cfg.AllowLegacyHeaders,
					AllowDevLogin:      devLogin,
				}
				if authCfg.JWTSecret == "" && !authCfg.AllowLegacyHeaders {
					return fmt.Errorf("PORTAL_JWT_SECRET is required unless server.allow_legacy_headers is set")
				}
				if devLogin && authCfg.JWTSecret == "" {
					return fmt.Errorf("--dev-login needs PORTAL_JWT_SECRET")
				}
				handler, err := server.New(server.Config{
					Engine:   rt.Engine,
					Gateway:  rt.Gateway(),
					BasePath: basePath,
					Auth:     authCfg,
					Logger:   rt.Logger,
				})
				if err != nil {
					return err
				}
				server.StartWebhooks(ctx, rt.Engine.Repo, rt.Config.Webhooks, rt.Logger)

				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
				rt.Logger.Info("serving portal API",
					zap.String("addr", addr),
					zap.String("base_path", basePath),
					zap.String("openapi", basePath+"/openapi.json"))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address (default from portal.yml)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path (default from portal.yml)")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "expose POST /auth/dev/login for local testing")
	return cmd
}
