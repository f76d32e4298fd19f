package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"opsportal/internal/config"
	"opsportal/internal/db"
	"opsportal/internal/domain"
	"opsportal/internal/engine"
	"opsportal/internal/gateway"
)

type yesPrompter struct{}

func (yesPrompter) Confirm(context.Context, string) (bool, error) { return true, nil }
func (yesPrompter) Prompt(context.Context, string) (string, error) { return "", nil }

func TestOpenMigratesAndServesViews(t *testing.T) {
	ctx := context.Background()
	ws := t.TempDir()
	rt, err := Open(ctx, ws, Options{Logger: zap.NewNop()})
	require.NoError(t, err)
	defer rt.Close()

	_, err = os.Stat(db.Path(ws))
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(ws), rt.Config.Portal.Name, "defaults apply without portal.yml")

	center := domain.Identity{ActorID: "CTR-1", Role: domain.RoleCenter}
	ent, err := rt.Engine.CreateEntity(ctx, engine.CreateOptions{
		Kind:  domain.KindOrder,
		Data:  &domain.OrderData{OrderType: "product", CenterID: "CTR-1", AssignedWarehouse: "WHS-1"},
		Actor: center,
	})
	require.NoError(t, err)

	contractor := domain.Identity{ActorID: "CON-1", Role: domain.RoleContractor}
	session := rt.Engine.Session(contractor)
	gw := rt.Gateway()
	view, err := gw.Open(ctx, gateway.Collaborators{Identity: contractor, Fetcher: session, Executor: session, Prompter: yesPrompter{}}, domain.KindOrder, ent.ID)
	require.NoError(t, err)
	require.NotNil(t, view)
	accept, ok := view.Action("accept")
	require.True(t, ok)

	outcome, err := accept.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, gateway.OutcomeCompleted, outcome)

	got, err := rt.Engine.Repo.GetEntity(ctx, ent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingWarehouse, got.Status)
}

func TestOpenWithExplicitConfig(t *testing.T) {
	cfg := config.Default("ops")
	rt, err := Open(context.Background(), t.TempDir(), Options{Config: cfg, Logger: zap.NewNop()})
	require.NoError(t, err)
	defer rt.Close()
	assert.Same(t, cfg, rt.Config)
	assert.Same(t, cfg, rt.Engine.Config)
}

func TestCloseNil(t *testing.T) {
	var rt *Runtime
	assert.NoError(t, rt.Close())
}
