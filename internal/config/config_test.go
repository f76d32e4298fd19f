package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsportal/internal/domain"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default("acme")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "acme", cfg.Portal.Name)
	assert.Equal(t, "/v0", cfg.Server.BasePath)

	roles, err := cfg.Workflows.ChainFor("product")
	require.NoError(t, err)
	assert.Equal(t, []domain.Role{domain.RoleContractor, domain.RoleWarehouse}, roles)

	roles, err = cfg.Workflows.ChainFor("service")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleManager, roles[len(roles)-1])

	_, err = cfg.Workflows.ChainFor("rental")
	assert.Error(t, err)
}

func TestFromYAMLRejectsBadConfig(t *testing.T) {
	base := GenerateDefault("acme")
	cases := map[string]string{
		"missing name":  strings.Replace(base, `name: "acme"`, `name: ""`, 1),
		"bad level":     strings.Replace(base, "level: info", "level: chatty", 1),
		"unknown role":  strings.Replace(base, "[contractor, warehouse]", "[contractor, driver]", 1),
		"repeated role": strings.Replace(base, "[contractor, warehouse]", "[warehouse, warehouse]", 1),
		"admin stage":   strings.Replace(base, "[contractor, manager]", "[contractor, admin]", 1),
		"not approver":  strings.Replace(base, "[contractor, manager]", "[customer, manager]", 1),
		"empty chain":   strings.Replace(base, "[contractor, manager]", "[]", 1),
		"bad addr":      strings.Replace(base, "addr: 127.0.0.1:8080", "addr: nowhere", 1),
		"not yaml":      "portal: [",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestLoadAndLoadOptional(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	require.Error(t, err)

	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(dir), cfg.Portal.Name)

	require.NoError(t, os.WriteFile(Path(dir), []byte(GenerateDefault("ops")), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "ops", cfg.Portal.Name)
}

func TestWebhooks(t *testing.T) {
	raw := GenerateDefault("acme") + `
webhooks:
  - url: https://hooks.example.com/portal
    events: [chain.halted]
  - url: https://hooks.example.com/off
    enabled: false
`
	cfg, err := FromYAML([]byte(raw))
	require.NoError(t, err)
	require.Len(t, cfg.Webhooks, 2)
	assert.True(t, cfg.Webhooks[0].Active())
	assert.False(t, cfg.Webhooks[1].Active())

	_, err = FromYAML([]byte(GenerateDefault("acme") + "\nwebhooks:\n  - url: not a url\n"))
	assert.Error(t, err)
}
