package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/inventory-portal/internal/rbac"
)

func TestPrintRolesText(t *testing.T) {
	table, err := rbac.DefaultTable()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, printRoles(&buf, table, "customer", "text"))
	require.Contains(t, buf.String(), "Customer (customer)")
	require.Contains(t, buf.String(), "  - products_view")
	require.NotContains(t, buf.String(), "settings_full")
}

func TestPrintRolesYAMLRoundTrips(t *testing.T) {
	table, err := rbac.DefaultTable()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, printRoles(&buf, table, "", "yaml"))
	parsed, err := rbac.ParseTable(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, table.Snapshot(), parsed.Snapshot())

	var raw map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &raw))
	require.Contains(t, raw, "roles")
}

func TestPrintRolesRejectsUnknownFormat(t *testing.T) {
	table, err := rbac.DefaultTable()
	require.NoError(t, err)
	require.Error(t, printRoles(&bytes.Buffer{}, table, "", "xml"))
}
