package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"opsportal/internal/config"
	"opsportal/internal/domain"
	"opsportal/internal/policy"
)

func TestNew(t *testing.T) {
	log, err := New(config.Logging{Level: "debug", Encoding: "json"})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))

	log, err = New(config.Logging{})
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))

	_, err = New(config.Logging{Level: "loud"})
	assert.Error(t, err)
}

func TestDiagnosticsWarnsOnUnknownIdentifier(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	v := policy.Visibility{Diagnostics: Diagnostics{Logger: zap.New(core)}}

	assert.False(t, v.CanSeeTab("payroll", policy.VisibilityContext{Kind: domain.KindOrder, Role: domain.RoleAdmin}))
	assert.True(t, v.CanSeeTab(policy.TabDetails, policy.VisibilityContext{Kind: domain.KindOrder, Role: domain.RoleAdmin}))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "tab", entries[0].ContextMap()["scope"])
	assert.Equal(t, "payroll", entries[0].ContextMap()["id"])

	Diagnostics{}.UnknownIdentifier("section", "x")
}
