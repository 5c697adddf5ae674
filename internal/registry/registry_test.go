package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowgrid/platform/internal/platform/logger"
)

func writeDef(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestRegistryLoadAndLookup(t *testing.T) {
	dir := t.TempDir()
	writeDef(t, dir, "sheets.yaml", `
id: google-sheets
name: Google Sheets
category: productivity
actions:
  - id: append_row
    params:
      - name: sheetId
        type: string
        required: true
`)
	writeDef(t, dir, "broken.yaml", "not: [valid: yaml")

	log := logger.New("error", "json")
	reg := New(dir, log)

	count, err := reg.Load()
	require.NoError(t, err)
	require.Equal(t, 1, count)

	conn, ok := reg.GetConnector("gsheets")
	require.True(t, ok)
	require.Equal(t, "sheets", conn.ID)

	fn, ok := reg.GetFunction("action.sheets:append_row")
	require.True(t, ok)
	require.Equal(t, "sheets", fn.AppID)
	require.Equal(t, "append_row", fn.OperationID)

	require.True(t, reg.IsValidNodeType("action.sheets:append_row"))
	require.False(t, reg.IsValidNodeType("action.sheets:delete_row"))
	require.True(t, reg.IsValidNodeType("transform.core:uppercase"))
}

func TestRegistryReloadSwapsAtomically(t *testing.T) {
	dir := t.TempDir()
	writeDef(t, dir, "a.yaml", "id: app-a\nname: A\ncategory: misc\n")

	log := logger.New("error", "json")
	reg := New(dir, log)
	_, err := reg.Load()
	require.NoError(t, err)

	_, ok := reg.GetConnector("app-a")
	require.True(t, ok)

	writeDef(t, dir, "b.yaml", "id: app-b\nname: B\ncategory: misc\n")
	_, err = reg.Reload()
	require.NoError(t, err)

	_, ok = reg.GetConnector("app-b")
	require.True(t, ok)
}

func TestNormalizeAppIDSynonyms(t *testing.T) {
	require.Equal(t, "sheets", NormalizeAppID("google-sheets"))
	require.Equal(t, "sheets", NormalizeAppID("gsheets"))
	require.Equal(t, "drive", NormalizeAppID("google-drive"))
	require.Equal(t, "calendar", NormalizeAppID("google-calendar"))
}
