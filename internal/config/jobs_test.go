package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sheetsync/internal/core"
)

func registerBase(t *testing.T) {
	t.Helper()
	require.NoError(t, core.Put(core.JobDefinition{
		Info:      core.JobInfo{Key: "cfg_test_base", Group: "analytics", Label: "Base"},
		Sheet:     "Остатки",
		Aliases:   core.AliasTable{"barcode": {"Баркод"}, "total": {"Итого"}},
		KeyFields: []core.FieldSpec{{Key: "barcode", Required: true}},
		Fields:    []core.FieldSpec{{Key: "total", Type: core.FieldNumeric}},
		Source:    core.SourceSpec{Path: "/api/v1/warehouse_remains", Pagination: core.PaginateNone},
		Transform: func(rec core.Record) ([]core.Record, error) { return []core.Record{rec}, nil },
	}))
}

func TestParseJobs_ExtendsBuiltin(t *testing.T) {
	registerBase(t)

	defs, err := ParseJobs([]byte(`
jobs:
  - key: cfg_test_kazan
    extends: cfg_test_base
    label: Kazan remains
    stamp_cell: Z1
    update_only: true
    aliases:
      Казань: [Казань, Склад Казань]
    fields:
      - {key: total, type: numeric, required: true}
      - {key: Казань, type: numeric}
`))
	require.NoError(t, err)
	require.Len(t, defs, 1)

	def := defs[0]
	assert.Equal(t, "cfg_test_kazan", def.Info.Key)
	assert.Equal(t, "analytics", def.Info.Group)
	assert.Equal(t, "Kazan remains", def.Info.Label)
	assert.Equal(t, "Остатки", def.Sheet)
	assert.Equal(t, "Z1", def.StampCell)
	assert.True(t, def.UpdateOnly)
	assert.NotNil(t, def.Transform)
	assert.Equal(t, []string{"Казань", "Склад Казань"}, def.Aliases["Казань"])
	require.Len(t, def.Fields, 2)
	assert.True(t, def.Fields[0].Required)
	assert.Equal(t, core.FieldNumeric, def.Fields[1].Type)

	base, _ := core.Get("cfg_test_base")
	assert.NotContains(t, base.Aliases, "Казань", "base job must stay untouched")
	assert.Len(t, base.Fields, 1)
	assert.False(t, base.UpdateOnly)
}

func TestParseJobs_NewJob(t *testing.T) {
	defs, err := ParseJobs([]byte(`
jobs:
  - key: cfg_test_cards
    group: content
    sheet: Карточки
    header_row: 2
    aliases:
      nmID: [Артикул WB]
      title: [Название]
    key_fields:
      - {key: nmID, type: numeric}
    fields:
      - {key: title, source: subjectName}
    source:
      method: POST
      path: /content/v2/get/cards/list
      pagination: cursor
      page_size: 100
      limit_param: settings.cursor.limit
      cursor_param: settings.cursor
      records_path: cards
      cursor_path: cursor
      body:
        settings:
          filter: {withPhoto: -1}
`))
	require.NoError(t, err)
	require.Len(t, defs, 1)

	def := defs[0]
	assert.Equal(t, 2, def.HeaderRow)
	assert.Equal(t, "subjectName", def.Fields[0].SourceKey())
	assert.Equal(t, core.PaginateCursor, def.Source.Pagination)
	assert.Equal(t, 100, def.Source.PageSize)
	settings := def.Source.Body["settings"].(map[string]any)
	assert.Equal(t, -1, settings["filter"].(map[string]any)["withPhoto"])
	assert.Nil(t, def.Transform)
}

func TestParseJobs_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"missing key", "jobs:\n  - sheet: x\n", "key is required"},
		{"duplicate", "jobs:\n  - key: a\n  - key: a\n", "duplicate key"},
		{"unknown base", "jobs:\n  - key: a\n    extends: nope\n", "unknown base job"},
		{"bad type", "jobs:\n  - key: a\n    fields:\n      - {key: f, type: money}\n", "unknown field type"},
		{"not yaml", "jobs: [", "parse jobs file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJobs([]byte(tt.doc))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestApplyJobs(t *testing.T) {
	registerBase(t)
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
jobs:
  - key: cfg_test_base
    sheet: Остатки (копия)
`), 0o600))

	n, err := ApplyJobs(path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	def, ok := core.Get("cfg_test_base")
	require.True(t, ok)
	assert.Equal(t, "Остатки (копия)", def.Sheet)

	_, err = ApplyJobs(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
